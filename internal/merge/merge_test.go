package merge

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ShayCichocki/colony/internal/errs"
	"github.com/ShayCichocki/colony/pkg/models"
)

func out(ordinal int, target, content string, extra ...models.Artifact) models.WorkerOutput {
	return models.WorkerOutput{
		SliceID:       sliceID(ordinal),
		WorkerOrdinal: ordinal,
		Deliverable:   models.Deliverable{Target: target, Content: content, Artifacts: extra},
	}
}

func sliceID(ordinal int) string {
	return "s" + string(rune('0'+ordinal))
}

func passed(ordinal int) models.ValidationResult {
	return models.ValidationResult{SliceID: sliceID(ordinal), WorkerOrdinal: ordinal, Status: models.ValidationPassed}
}

var web = models.DomainConfig{Name: "web", SharedTargets: []string{"src/shared.ts"}}

func TestMerge_DisjointTargets(t *testing.T) {
	m := Merge("t1", web,
		[]models.WorkerOutput{out(2, "b.ts", "B"), out(1, "a.ts", "A")},
		[]models.ValidationResult{passed(1), passed(2)},
	)
	want := map[string]string{"a.ts": "A", "b.ts": "B"}
	if !reflect.DeepEqual(m.Artifacts, want) {
		t.Errorf("Artifacts = %v, want %v", m.Artifacts, want)
	}
	if len(m.Conflicts) != 0 {
		t.Errorf("Conflicts = %v, want none", m.Conflicts)
	}
	if m.Outputs[0].WorkerOrdinal != 1 {
		t.Errorf("Outputs not sorted by ordinal")
	}
	if ConflictError(m) != nil {
		t.Error("ConflictError() should be nil")
	}
}

func TestMerge_OnlyPassedContribute(t *testing.T) {
	violation := models.ValidationResult{
		SliceID: sliceID(2), WorkerOrdinal: 2, Status: models.ValidationViolation,
		Violations: []models.Violation{{Rule: "x"}, {Rule: "y"}},
	}
	failed := models.ValidationResult{SliceID: sliceID(3), WorkerOrdinal: 3, Status: models.ValidationFailed}
	m := Merge("t1", web,
		[]models.WorkerOutput{out(1, "a.ts", "A"), out(2, "b.ts", "B"), out(3, "c.ts", "C")},
		[]models.ValidationResult{passed(1), violation, failed},
	)
	if len(m.Artifacts) != 1 || m.Artifacts["a.ts"] != "A" {
		t.Errorf("Artifacts = %v, want only a.ts", m.Artifacts)
	}
	if m.TotalViolations != 2 {
		t.Errorf("TotalViolations = %d, want 2", m.TotalViolations)
	}
}

func TestMerge_BarrelUnion(t *testing.T) {
	m := Merge("t1", web,
		[]models.WorkerOutput{
			out(1, "a.ts", "A", models.Artifact{Path: "src/index.ts", Content: "export * from './a'\n"}),
			out(2, "b.ts", "B", models.Artifact{Path: "src/index.ts", Content: "export * from './b'\nexport * from './a'\n"}),
		},
		[]models.ValidationResult{passed(1), passed(2)},
	)
	want := "export * from './a'\nexport * from './b'\n"
	if got := m.Artifacts["src/index.ts"]; got != want {
		t.Errorf("index.ts = %q, want %q", got, want)
	}
	if len(m.Conflicts) != 0 {
		t.Errorf("barrel collision recorded as conflict: %v", m.Conflicts)
	}
}

func TestMerge_SharedTargetUnion(t *testing.T) {
	m := Merge("t1", web,
		[]models.WorkerOutput{out(1, "src/shared.ts", "line1"), out(2, "src/shared.ts", "line2")},
		[]models.ValidationResult{passed(1), passed(2)},
	)
	if got := m.Artifacts["src/shared.ts"]; got != "line1\nline2" {
		t.Errorf("shared.ts = %q", got)
	}
}

func TestMerge_ConflictRetainsAllVariants(t *testing.T) {
	m := Merge("t1", web,
		[]models.WorkerOutput{out(3, "App.tsx", "three"), out(1, "App.tsx", "one"), out(2, "App.tsx", "one")},
		[]models.ValidationResult{passed(3), passed(1), passed(2)},
	)
	if len(m.Conflicts) != 1 {
		t.Fatalf("Conflicts = %v, want 1", m.Conflicts)
	}
	c := m.Conflicts[0]
	if c.Winner != 1 {
		t.Errorf("Winner = %d, want 1", c.Winner)
	}
	if !reflect.DeepEqual(c.Ordinals, []int{1, 2, 3}) {
		t.Errorf("Ordinals = %v", c.Ordinals)
	}
	if m.Artifacts["App.tsx"] != "one" {
		t.Errorf("winner content = %q", m.Artifacts["App.tsx"])
	}
	if m.Artifacts["App.tsx#conflict-w3"] != "three" {
		t.Errorf("losing variant not retained: %v", m.Artifacts)
	}
	if _, ok := m.Artifacts["App.tsx#conflict-w2"]; ok {
		t.Error("identical variant should not be retained separately")
	}
	if err := ConflictError(m); !errors.Is(err, errs.ErrConflictDetected) {
		t.Errorf("ConflictError() = %v, want ErrConflictDetected", err)
	}
}

func TestMerge_SameWorkerListsTargetTwice(t *testing.T) {
	m := Merge("t1", web,
		[]models.WorkerOutput{out(1, "web/a.ts", "A1",
			models.Artifact{Path: "web/a.ts", Content: "A2"},
			models.Artifact{Path: "./web/a.ts", Content: "A3"},
		)},
		[]models.ValidationResult{passed(1)},
	)
	want := map[string]string{
		"web/a.ts":               "A1",
		"web/a.ts#conflict-w1":   "A2",
		"web/a.ts#conflict-w1-2": "A3",
	}
	if !reflect.DeepEqual(m.Artifacts, want) {
		t.Errorf("Artifacts = %v, want %v", m.Artifacts, want)
	}
	if len(m.Conflicts) != 1 {
		t.Fatalf("Conflicts = %v, want 1", m.Conflicts)
	}
	c := m.Conflicts[0]
	if !reflect.DeepEqual(c.Ordinals, []int{1}) || c.Winner != 1 || len(c.Retained) != 2 {
		t.Errorf("conflict = %+v", c)
	}
}

func TestMerge_NormalizesPaths(t *testing.T) {
	m := Merge("t1", web,
		[]models.WorkerOutput{
			out(1, "./web/a.ts", "one"),
			out(2, "web/a.ts", "two"),
			out(3, "b.ts", "B", models.Artifact{Path: "./src/shared.ts", Content: "x\n"}),
			out(4, "c.ts", "C", models.Artifact{Path: "src/shared.ts", Content: "y\n"}),
		},
		[]models.ValidationResult{passed(1), passed(2), passed(3), passed(4)},
	)
	if _, ok := m.Artifacts["./web/a.ts"]; ok {
		t.Error("unnormalized key kept")
	}
	if m.Artifacts["web/a.ts"] != "one" || m.Artifacts["web/a.ts#conflict-w2"] != "two" {
		t.Errorf("Artifacts = %v", m.Artifacts)
	}
	if len(m.Conflicts) != 1 || m.Conflicts[0].Target != "web/a.ts" {
		t.Errorf("Conflicts = %+v, want one on web/a.ts", m.Conflicts)
	}
	if got := m.Artifacts["src/shared.ts"]; got != "x\ny\n" {
		t.Errorf("shared target = %q, want union", got)
	}
}

func TestMerge_Deterministic(t *testing.T) {
	outputs := []models.WorkerOutput{
		out(4, "x.ts", "four", models.Artifact{Path: "src/index.ts", Content: "d"}),
		out(2, "x.ts", "two", models.Artifact{Path: "src/index.ts", Content: "b"}),
		out(7, "y.ts", "seven"),
		out(1, "z.ts", "one", models.Artifact{Path: "src/index.ts", Content: "a"}),
	}
	vals := []models.ValidationResult{passed(4), passed(2), passed(7), passed(1)}

	first := Merge("t1", web, outputs, vals)
	for i := 0; i < 20; i++ {
		// Reverse input order each time.
		rev := make([]models.WorkerOutput, len(outputs))
		for j := range outputs {
			rev[len(outputs)-1-j] = outputs[j]
		}
		outputs = rev
		again := Merge("t1", web, outputs, vals)
		if !reflect.DeepEqual(first.Artifacts, again.Artifacts) {
			t.Fatalf("run %d artifacts differ: %v vs %v", i, first.Artifacts, again.Artifacts)
		}
		if !reflect.DeepEqual(first.Conflicts, again.Conflicts) {
			t.Fatalf("run %d conflicts differ", i)
		}
	}
	if first.Artifacts["src/index.ts"] != "a\nb\nd" {
		t.Errorf("index.ts = %q, want ordinal order", first.Artifacts["src/index.ts"])
	}
}

func TestIsBarrelFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"src/components/index.ts", true},
		{"app/__init__.py", true},
		{"types/global.d.ts", true},
		{"src/Card.tsx", false},
		{"quant/risk.py", false},
	}
	for _, tt := range tests {
		if got := IsBarrelFile(tt.path); got != tt.want {
			t.Errorf("IsBarrelFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestUnionLines(t *testing.T) {
	tests := []struct {
		name     string
		variants []string
		want     string
	}{
		{"empty", nil, ""},
		{"single", []string{"a\nb\n"}, "a\nb\n"},
		{"dedupe", []string{"a\nb", "b\nc"}, "a\nb\nc"},
		{"blank lines collapse", []string{"a\n\n\nb\n", "\nc\n"}, "a\n\nb\n\nc\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UnionLines(tt.variants); got != tt.want {
				t.Errorf("UnionLines() = %q, want %q", got, tt.want)
			}
		})
	}
}
