package models

import "testing"

func TestTask_AdvanceForwardOnly(t *testing.T) {
	task := &Task{ID: "t1", Status: TaskStatusReceived}

	steps := []TaskStatus{
		TaskStatusSliced,
		TaskStatusExecuting,
		TaskStatusValidating,
		TaskStatusScored,
		TaskStatusDone,
	}
	for _, next := range steps {
		if err := task.Advance(next); err != nil {
			t.Fatalf("Advance(%s) failed: %v", next, err)
		}
		if task.Status != next {
			t.Errorf("Status = %s, want %s", task.Status, next)
		}
	}

	if err := task.Advance(TaskStatusExecuting); err == nil {
		t.Error("expected error moving backwards from DONE")
	}
}

func TestTask_AdvanceThroughEscalation(t *testing.T) {
	task := &Task{ID: "t2", Status: TaskStatusScored}
	if err := task.Advance(TaskStatusEscalated); err != nil {
		t.Fatalf("Advance(ESCALATED) failed: %v", err)
	}
	if err := task.Advance(TaskStatusScored); err == nil {
		t.Error("expected error re-entering SCORED")
	}
	if err := task.Advance(TaskStatusDone); err != nil {
		t.Fatalf("Advance(DONE) failed: %v", err)
	}
}

func TestTask_AdvanceRejectsUnknown(t *testing.T) {
	task := &Task{ID: "t3", Status: TaskStatusReceived}
	if err := task.Advance(TaskStatus("bogus")); err == nil {
		t.Error("expected error for unknown status")
	}
	if task.Status != TaskStatusReceived {
		t.Errorf("Status changed to %s on failed Advance", task.Status)
	}
}

func TestSliceStatus_Terminal(t *testing.T) {
	tests := []struct {
		status SliceStatus
		want   bool
	}{
		{SliceStatusDispatched, false},
		{SliceStatusRunning, false},
		{SliceStatusCompleted, true},
		{SliceStatusFailed, true},
		{SliceStatusTimedOut, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestConstraintEnvelope_CloneIsDeep(t *testing.T) {
	env := ConstraintEnvelope{
		Domain:   "web",
		Version:  2,
		CanDo:    []string{"create assigned file"},
		CannotDo: []string{"install packages"},
	}
	c := env.Clone()
	c.CanDo[0] = "mutated"
	c.CannotDo = append(c.CannotDo, "extra")

	if env.CanDo[0] != "create assigned file" {
		t.Errorf("original CanDo mutated: %v", env.CanDo)
	}
	if len(env.CannotDo) != 1 {
		t.Errorf("original CannotDo length = %d, want 1", len(env.CannotDo))
	}
}

func TestDomainConfig_WorkerFor(t *testing.T) {
	d := &DomainConfig{Name: "ai", Workers: []int{8, 9, 10, 11, 12, 13, 14}}
	if w, ok := d.WorkerFor(1); !ok || w != 8 {
		t.Errorf("WorkerFor(1) = %d, %v; want 8, true", w, ok)
	}
	if w, ok := d.WorkerFor(7); !ok || w != 14 {
		t.Errorf("WorkerFor(7) = %d, %v; want 14, true", w, ok)
	}
	if _, ok := d.WorkerFor(0); ok {
		t.Error("WorkerFor(0) should fail")
	}
	if _, ok := d.WorkerFor(8); ok {
		t.Error("WorkerFor(8) should fail")
	}
}

func TestDeliverable_Files(t *testing.T) {
	d := Deliverable{
		Target:    "src/a.ts",
		Content:   "a",
		Artifacts: []Artifact{{Path: "src/index.ts", Content: "export * from './a'"}},
	}
	files := d.Files()
	if len(files) != 2 {
		t.Fatalf("len(Files()) = %d, want 2", len(files))
	}
	if files[0].Path != "src/a.ts" {
		t.Errorf("Files()[0].Path = %q, want primary target first", files[0].Path)
	}
	if len((Deliverable{}).Files()) != 0 {
		t.Error("empty deliverable should have no files")
	}
}

func TestFrictionType_Valid(t *testing.T) {
	all := []FrictionType{
		FrictionRuleTooStrict, FrictionRuleUnclear, FrictionMissingContext,
		FrictionWrongSlice, FrictionDependencyIssue, FrictionToolingGap,
		FrictionScopeTooBig, FrictionScopeTooSmall, FrictionAmbiguousRequest,
	}
	for _, f := range all {
		if !f.Valid() {
			t.Errorf("FrictionType(%q).Valid() = false", f)
		}
	}
	if FrictionType("too_hard").Valid() {
		t.Error("unknown friction type should be invalid")
	}
}
