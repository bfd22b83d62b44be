package decompose

import (
	"strings"
	"testing"

	"github.com/ShayCichocki/colony/pkg/models"
)

func TestParsePlan(t *testing.T) {
	response := `Here is the plan:
[
  {"slice_id": 1, "description": "layout", "assigned_file": "src/A.tsx"},
  {"slice_id": 2, "description": "nav"}
]
Done.`
	plan, err := ParsePlan(response)
	if err != nil {
		t.Fatalf("ParsePlan() error = %v", err)
	}
	if len(plan) != 2 {
		t.Fatalf("len(plan) = %d, want 2", len(plan))
	}
	if plan[0].Target != "src/A.tsx" || plan[1].Target != "" {
		t.Errorf("targets = %q, %q", plan[0].Target, plan[1].Target)
	}

	if _, err := ParsePlan("no json here"); err == nil {
		t.Error("ParsePlan() should fail without an array")
	}
	if _, err := ParsePlan("[{\"slice_id\": \"one\"}]"); err == nil {
		t.Error("ParsePlan() should fail on wrong types")
	}
}

func fullPlan() []PlannedSlice {
	plan := make([]PlannedSlice, 7)
	for i := range plan {
		plan[i] = PlannedSlice{Ordinal: i + 1, Description: "do it"}
	}
	return plan
}

func TestNormalizePlan(t *testing.T) {
	dc := webDomain()

	plan, err := NormalizePlan(fullPlan(), dc)
	if err != nil {
		t.Fatalf("NormalizePlan() error = %v", err)
	}
	if plan[4].Target != "src/Chart.tsx" {
		t.Errorf("default target = %q, want src/Chart.tsx", plan[4].Target)
	}

	tests := []struct {
		name   string
		mutate func([]PlannedSlice) []PlannedSlice
		want   string
	}{
		{"duplicate ordinal", func(p []PlannedSlice) []PlannedSlice { p[6].Ordinal = 1; return p }, "ordinals"},
		{"empty description", func(p []PlannedSlice) []PlannedSlice { p[2].Description = "  "; return p }, "no description"},
		{"shared target", func(p []PlannedSlice) []PlannedSlice { p[0].Target = "src/index.ts"; return p }, "shared target"},
		{"same target", func(p []PlannedSlice) []PlannedSlice {
			p[0].Target, p[1].Target = "src/X.tsx", "src/X.tsx"
			return p
		}, "share target"},
		{"eight slices", func(p []PlannedSlice) []PlannedSlice {
			return append(p, PlannedSlice{Ordinal: 8, Description: "extra"})
		}, "want 7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizePlan(tt.mutate(fullPlan()), dc)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("NormalizePlan() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestFallbackPlan(t *testing.T) {
	dc := webDomain()
	dc.Targets = nil
	plan := FallbackPlan(&models.Task{Description: "Build it"}, dc)
	if len(plan) != 7 {
		t.Fatalf("len(plan) = %d", len(plan))
	}
	if plan[2].Target != "web/part-3.md" {
		t.Errorf("generated target = %q", plan[2].Target)
	}
	if !strings.Contains(plan[2].Description, "Focus on cards.") {
		t.Errorf("Description = %q, want specialization", plan[2].Description)
	}
}

func TestPlanPrompt(t *testing.T) {
	dc := webDomain()
	prompt := PlanPrompt(PlanRequest{
		Task:        &models.Task{Description: "Build a dashboard"},
		Domain:      dc,
		Constraints: models.ConstraintEnvelope{CanDo: dc.CanDo, CannotDo: dc.CannotDo},
		Context:     []string{"[pattern] use grid"},
	})
	for _, want := range []string{"Build a dashboard", "1: layout", "- create routes", "[pattern] use grid", "7: src/utils.ts"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
