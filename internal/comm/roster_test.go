package comm

import (
	"testing"

	"github.com/ShayCichocki/colony/pkg/models"
)

func TestRegisterRoster(t *testing.T) {
	reg := NewRegistry(3)
	domains := []models.DomainConfig{
		{Name: "web", Workers: []int{1, 2, 3, 4, 5, 6, 7}},
		{Name: "ai", Workers: []int{8, 9, 10, 11, 12, 13, 14}},
	}
	if err := RegisterRoster(reg, domains); err != nil {
		t.Fatalf("RegisterRoster() error = %v", err)
	}
	// 3 singletons + 2 * (orchestrator + validator + 7 workers)
	if got := reg.Count(); got != 21 {
		t.Errorf("Count() = %d, want 21", got)
	}

	w, ok := reg.Get(WorkerID(9))
	if !ok {
		t.Fatal("worker-9 not registered")
	}
	if w.Domain != "ai" || w.Ordinal != 9 || w.Role != models.RoleWorker {
		t.Errorf("worker-9 = %+v", w)
	}
	if o, _ := reg.Get(OrchestratorID("web")); o.Role != models.RoleOrchestrator {
		t.Errorf("orch-web role = %q", o.Role)
	}

	// Re-registering is idempotent.
	if err := RegisterRoster(reg, domains); err != nil {
		t.Fatalf("second RegisterRoster() error = %v", err)
	}
	if got := reg.Count(); got != 21 {
		t.Errorf("Count() after re-register = %d, want 21", got)
	}
}
