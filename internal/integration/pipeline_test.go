//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/colony/internal/alert"
	"github.com/ShayCichocki/colony/internal/comm"
	"github.com/ShayCichocki/colony/internal/config"
	"github.com/ShayCichocki/colony/internal/errs"
	"github.com/ShayCichocki/colony/internal/executor"
	"github.com/ShayCichocki/colony/internal/mailbox"
	"github.com/ShayCichocki/colony/internal/memory"
	"github.com/ShayCichocki/colony/internal/orchestrator"
	"github.com/ShayCichocki/colony/internal/orchestrator/policy"
	"github.com/ShayCichocki/colony/internal/state"
	"github.com/ShayCichocki/colony/pkg/models"
)

const secret = "integration-secret"

type harness struct {
	dir    string
	db     *state.DB
	mem    *memory.Store
	alerts *alert.FileSink
	box    *mailbox.Mailbox
	engine *orchestrator.Engine
}

func newHarness(t *testing.T, dir string) *harness {
	t.Helper()
	db, err := state.OpenAndMigrate(filepath.Join(dir, "colony.db"))
	if err != nil {
		t.Fatalf("OpenAndMigrate() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mem, err := memory.NewStore(filepath.Join(dir, "memory.db"), 0.3)
	if err != nil {
		t.Fatalf("memory.NewStore() error = %v", err)
	}
	t.Cleanup(func() { mem.Close() })

	sink, err := alert.NewFileSink(filepath.Join(dir, "alerts"))
	if err != nil {
		t.Fatalf("NewFileSink() error = %v", err)
	}

	pol := policy.Default()
	pol.Execution.SliceTimeout = 5 * time.Second
	pol.Execution.BackoffBase = time.Millisecond
	pol.Execution.BackoffMax = 5 * time.Millisecond

	box := mailbox.New(0, nil)
	e, err := orchestrator.New(context.Background(), orchestrator.Config{
		Domains:     config.DefaultDomains(),
		Policy:      pol,
		Executor:    executor.NewEcho(),
		Memory:      mem,
		RecallLimit: 5,
		Ledger:      db,
		Alerts:      sink,
		Transport:   box,
	})
	if err != nil {
		t.Fatalf("orchestrator.New() error = %v", err)
	}
	return &harness{dir: dir, db: db, mem: mem, alerts: sink, box: box, engine: e}
}

func (h *harness) server(t *testing.T) *httptest.Server {
	t.Helper()
	handler, err := mailbox.NewHandler(mailbox.Config{Gate: h.engine.Gate(), Transport: h.box, JWTSecret: secret})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, agentID string, body any) int {
	t.Helper()
	b, _ := json.Marshal(body)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	tok, err := mailbox.IssueToken(secret, agentID, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode
}

func TestPipeline_EchoRunPersistsAndRemembers(t *testing.T) {
	h := newHarness(t, t.TempDir())
	ctx := context.Background()

	res, err := h.engine.Run(ctx, "build the signup form page", "web")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Report.Status != models.QAPassed {
		t.Errorf("report = %s %.3f, issues %v", res.Report.Status, res.Report.QualityScore, res.Report.Issues)
	}

	task, err := h.db.GetTask(ctx, res.Task.ID)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if task.Status != models.TaskStatusDone {
		t.Errorf("persisted status = %s, want DONE", task.Status)
	}
	slices, err := h.db.SlicesForTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("SlicesForTask() error = %v", err)
	}
	if len(slices) != models.SlicesPerTask {
		t.Errorf("persisted slices = %d", len(slices))
	}
	report, err := h.db.GetReport(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}
	if report.QualityScore != res.Report.QualityScore {
		t.Errorf("persisted score = %v, want %v", report.QualityScore, res.Report.QualityScore)
	}

	n, err := h.mem.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n < 1 {
		t.Errorf("memory count = %d, want the outcome remembered", n)
	}

	alerts, err := alert.List(filepath.Join(h.dir, "alerts"))
	if err != nil {
		t.Fatalf("alert.List() error = %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("alerts = %+v, want none", alerts)
	}
}

func TestPipeline_HTTPViolationsRevokeWorker(t *testing.T) {
	h := newHarness(t, t.TempDir())
	srv := h.server(t)
	ctx := context.Background()
	worker := comm.WorkerID(1)

	// Workers may not address the commander directly.
	for i := 0; i < 3; i++ {
		if code := post(t, srv.URL+"/v1/messages", worker, mailbox.SendRequest{To: comm.CommanderID, Body: "skip the chain"}); code != http.StatusForbidden {
			t.Fatalf("send %d status = %d, want 403", i+1, code)
		}
	}
	if !h.engine.Registry().IsRevoked(worker) {
		t.Fatal("worker not revoked after three violations")
	}

	entries, err := h.db.ListViolations(ctx, worker, 0)
	if err != nil {
		t.Fatalf("ListViolations() error = %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("persisted violations = %d, want 3", len(entries))
	}

	res, err := h.engine.Run(ctx, "build the signup form page", "web")
	if err != nil && !errors.Is(err, errs.ErrEscalationRequired) {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Slices[0].Status != models.SliceStatusFailed {
		t.Errorf("revoked worker's slice = %s, want FAILED", res.Slices[0].Status)
	}
	for _, s := range res.Slices[1:] {
		if s.Status != models.SliceStatusCompleted {
			t.Errorf("slice %d = %s, want COMPLETED", s.WorkerOrdinal, s.Status)
		}
	}

	// Revocation survives a restart on the same data directory.
	h2 := newHarness(t, h.dir)
	if !h2.engine.Registry().IsRevoked(worker) {
		t.Error("revocation lost across restart")
	}
}
