package state

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ShayCichocki/colony/internal/errs"
	"github.com/ShayCichocki/colony/pkg/models"
)

func TestAppendViolation_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		e := models.ViolationLogEntry{
			EventID:        fmt.Sprintf("violation:worker-1:%d", i),
			Timestamp:      base.Add(time.Duration(i) * time.Second),
			Sender:         "worker-1",
			Recipient:      "commander",
			Channel:        models.ChannelDirect,
			Reason:         "no edge worker -> commander",
			ViolationCount: i,
		}
		// Redelivery appends once.
		for j := 0; j < 2; j++ {
			if err := db.AppendViolation(ctx, e); err != nil {
				t.Fatalf("AppendViolation failed: %v", err)
			}
		}
	}

	all, err := db.ListViolations(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListViolations failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d violations, want 3", len(all))
	}
	for i, e := range all {
		if e.ViolationCount != i+1 {
			t.Errorf("entry %d count = %d, want %d (oldest first)", i, e.ViolationCount, i+1)
		}
	}

	newest, err := db.ListViolations(ctx, "worker-1", 2)
	if err != nil {
		t.Fatalf("ListViolations failed: %v", err)
	}
	if len(newest) != 2 || newest[0].ViolationCount != 2 || newest[1].ViolationCount != 3 {
		t.Errorf("limited list = %+v, want counts 2,3", newest)
	}
}

func TestSaveAgent_NeverRegresses(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	revoked := models.Agent{ID: "worker-2", Role: models.RoleWorker, Domain: "web", Ordinal: 2,
		State: models.AgentStateRevoked, ViolationCount: 3, RegisteredAt: now, RevokedAt: &now}
	if err := db.SaveAgent(ctx, revoked); err != nil {
		t.Fatalf("SaveAgent failed: %v", err)
	}
	stale := revoked
	stale.State = models.AgentStateActive
	stale.ViolationCount = 0
	stale.RevokedAt = nil
	if err := db.SaveAgent(ctx, stale); err != nil {
		t.Fatalf("SaveAgent failed: %v", err)
	}

	agents, err := db.ListAgents(ctx)
	if err != nil {
		t.Fatalf("ListAgents failed: %v", err)
	}
	if len(agents) != 1 {
		t.Fatalf("got %d agents, want 1", len(agents))
	}
	if agents[0].State != models.AgentStateRevoked || agents[0].ViolationCount != 3 || agents[0].RevokedAt == nil {
		t.Errorf("agent regressed: %+v", agents[0])
	}
}

func TestEmit_StoresAlertOnce(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	a := models.HumanAlert{EventID: "revoked:worker-3", Kind: models.AlertAgentRevoked, Severity: models.SeverityCritical,
		AgentID: "worker-3", Message: "revoked", Timestamp: time.Now().UTC()}
	for i := 0; i < 2; i++ {
		if err := db.Emit(ctx, a); err != nil {
			t.Fatalf("Emit failed: %v", err)
		}
	}
	alerts, err := db.ListAlerts(ctx)
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	if len(alerts) != 1 || alerts[0].AgentID != "worker-3" {
		t.Errorf("alerts = %+v", alerts)
	}
}

func TestProposalUpsert(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	p := models.RuleAdjustmentProposal{
		ID: "p1", Domain: "web",
		Key:       models.FrictionKey{Type: models.FrictionScopeTooBig},
		Scope:     models.ScopeMajor,
		Status:    models.ProposalEscalated,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.SaveProposal(ctx, p); err != nil {
		t.Fatalf("SaveProposal failed: %v", err)
	}
	now := time.Now().UTC()
	p.Status = models.ProposalApproved
	p.ResolvedAt = &now
	if err := db.SaveProposal(ctx, p); err != nil {
		t.Fatalf("SaveProposal failed: %v", err)
	}

	open, err := db.ListProposals(ctx, models.ProposalEscalated)
	if err != nil {
		t.Fatalf("ListProposals failed: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("open proposals = %d, want 0", len(open))
	}
	all, _ := db.ListProposals(ctx, "")
	if len(all) != 1 || all[0].Status != models.ProposalApproved {
		t.Errorf("proposals = %+v", all)
	}
}

func TestTaskSlicesAndReport(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	task := models.Task{ID: "t1", Description: "build a form", Domain: "web", Status: models.TaskStatusReceived, CreatedAt: now, UpdatedAt: now}
	if err := db.SaveTask(ctx, task); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}
	task.Status = models.TaskStatusDone
	if err := db.SaveTask(ctx, task); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}
	got, err := db.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Status != models.TaskStatusDone {
		t.Errorf("status = %s, want DONE", got.Status)
	}
	if _, err := db.GetTask(ctx, "missing"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("GetTask(missing) = %v, want ErrNotFound", err)
	}

	var batch []models.TaskSlice
	for i := 7; i >= 1; i-- {
		batch = append(batch, models.TaskSlice{ID: fmt.Sprintf("t1-%d", i), TaskID: "t1", WorkerOrdinal: i,
			WorkerID: fmt.Sprintf("worker-%d", i), Status: models.SliceStatusCompleted})
	}
	if err := db.SaveSlices(ctx, batch); err != nil {
		t.Fatalf("SaveSlices failed: %v", err)
	}
	slices, err := db.SlicesForTask(ctx, "t1")
	if err != nil {
		t.Fatalf("SlicesForTask failed: %v", err)
	}
	if len(slices) != 7 || slices[0].WorkerOrdinal != 1 {
		t.Errorf("slices not ordered by ordinal: %d", len(slices))
	}

	report := models.QAReport{TaskID: "t1", Domain: "web", QualityScore: 0.91, Status: models.QAPassed, CreatedAt: now}
	if err := db.SaveReport(ctx, report); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}
	r, err := db.GetReport(ctx, "t1")
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	if r.Status != models.QAPassed || r.QualityScore != 0.91 {
		t.Errorf("report = %+v", r)
	}
}

func TestLoadSnapshot(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for v := 1; v <= 3; v++ {
		env := models.ConstraintEnvelope{Domain: "web", Version: v, CanDo: []string{fmt.Sprintf("rule v%d", v)}, PublishedAt: now}
		if err := db.SaveEnvelope(ctx, env); err != nil {
			t.Fatalf("SaveEnvelope failed: %v", err)
		}
	}
	db.SaveEnvelope(ctx, models.ConstraintEnvelope{Domain: "ai", Version: 1, PublishedAt: now})
	db.AppendViolation(ctx, models.ViolationLogEntry{EventID: "violation:worker-1:1", Sender: "worker-1", Timestamp: now, ViolationCount: 1})
	db.SaveAgent(ctx, models.Agent{ID: "worker-1", Role: models.RoleWorker, Domain: "web", State: models.AgentStateWarned, ViolationCount: 1, RegisteredAt: now})
	db.SaveEscalation(ctx, models.EscalationRequest{ID: "e1", Domain: "web", Reason: models.EscalationBlocked, CreatedAt: now})

	snap, err := db.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if len(snap.Envelopes) != 2 {
		t.Fatalf("envelopes = %d, want one per domain", len(snap.Envelopes))
	}
	for _, env := range snap.Envelopes {
		if env.Domain == "web" && env.Version != 3 {
			t.Errorf("web envelope v%d, want newest v3", env.Version)
		}
	}
	if len(snap.History["worker-1"]) != 1 {
		t.Errorf("history = %v", snap.History)
	}
	if len(snap.Agents) != 1 || len(snap.Escalations) != 1 {
		t.Errorf("agents=%d escalations=%d", len(snap.Agents), len(snap.Escalations))
	}
}

func TestPurgeTasks(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour).UTC()
	db.SaveTask(ctx, models.Task{ID: "old", Description: "x", Status: models.TaskStatusDone, CreatedAt: old, UpdatedAt: old})
	db.SaveTask(ctx, models.Task{ID: "new", Description: "y", Status: models.TaskStatusDone, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()})

	n, err := db.PurgeTasks(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PurgeTasks failed: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d, want 1", n)
	}
	tasks, _ := db.ListTasks(ctx, 10)
	if len(tasks) != 1 || tasks[0].ID != "new" {
		t.Errorf("remaining tasks = %+v", tasks)
	}
}
