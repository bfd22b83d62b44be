package alert

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/colony/pkg/models"
)

func testAlert(id string, ts time.Time) models.HumanAlert {
	return models.HumanAlert{
		EventID:   id,
		Kind:      models.AlertAgentRevoked,
		Severity:  models.SeverityCritical,
		AgentID:   "worker-3",
		Domain:    "web",
		Message:   "worker-3 revoked",
		Timestamp: ts,
	}
}

func TestFileSink_EmitIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}

	a := testAlert("revoked:worker-3", time.Now())
	if err := sink.Emit(context.Background(), a); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	a.Message = "changed on retry"
	if err := sink.Emit(context.Background(), a); err != nil {
		t.Fatalf("second Emit failed: %v", err)
	}

	alerts, err := List(dir)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("len(alerts) = %d, want 1", len(alerts))
	}
	if alerts[0].Message != "worker-3 revoked" {
		t.Errorf("Message = %q, want first write to win", alerts[0].Message)
	}

	name := FileName(a)
	if name != "AGENT_REVOKED_revoked-worker-3.json" {
		t.Errorf("FileName = %q", name)
	}
	if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
		t.Errorf("alert file missing: %v", err)
	}
}

func TestFileSink_RejectsMissingEventID(t *testing.T) {
	sink, err := NewFileSink(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}
	if err := sink.Emit(context.Background(), models.HumanAlert{Kind: models.AlertHumanInput}); err == nil {
		t.Error("expected error for alert without event id")
	}
}

func TestList_OrdersByTimestamp(t *testing.T) {
	dir := t.TempDir()
	sink, _ := NewFileSink(dir)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sink.Emit(context.Background(), testAlert("b", base.Add(time.Minute)))
	sink.Emit(context.Background(), testAlert("a", base.Add(2*time.Minute)))
	sink.Emit(context.Background(), testAlert("c", base))

	alerts, err := List(dir)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"c", "b", "a"}
	for i, id := range want {
		if alerts[i].EventID != id {
			t.Errorf("alerts[%d].EventID = %q, want %q", i, alerts[i].EventID, id)
		}
	}
}

func TestMemorySink_Dedupes(t *testing.T) {
	s := NewMemorySink()
	a := testAlert("x", time.Now())
	s.Emit(context.Background(), a)
	s.Emit(context.Background(), a)
	if got := len(s.Alerts()); got != 1 {
		t.Errorf("len(Alerts()) = %d, want 1", got)
	}
}

type failingSink struct{}

func (failingSink) Emit(context.Context, models.HumanAlert) error { return errors.New("disk full") }

func TestMultiSink_DeliversToAllAndJoinsErrors(t *testing.T) {
	mem := NewMemorySink()
	m := MultiSink{failingSink{}, nil, mem}
	err := m.Emit(context.Background(), testAlert("y", time.Now()))
	if err == nil {
		t.Error("expected joined error from failing sink")
	}
	if len(mem.Alerts()) != 1 {
		t.Error("memory sink should still receive the alert")
	}
}

func TestFollow_SeesNewAlerts(t *testing.T) {
	dir := t.TempDir()
	sink, _ := NewFileSink(dir)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan models.HumanAlert, 1)
	done := make(chan error, 1)
	go func() {
		done <- Follow(ctx, dir, func(a models.HumanAlert) {
			select {
			case got <- a:
			default:
			}
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := sink.Emit(context.Background(), testAlert("followed", time.Now())); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	select {
	case a := <-got:
		if a.EventID != "followed" {
			t.Errorf("EventID = %q, want followed", a.EventID)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for followed alert")
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Follow returned %v", err)
	}
}
