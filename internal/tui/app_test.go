package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/colony/internal/orchestrator"
	"github.com/ShayCichocki/colony/pkg/models"
)

func send(t *testing.T, a *App, msgs ...tea.Msg) {
	t.Helper()
	for _, m := range msgs {
		a.Update(m)
	}
}

func TestApp_SliceLifecycle(t *testing.T) {
	a := New(Options{Description: "build a signup form"})
	send(t, a,
		EventMsg{Event: orchestrator.Event{Type: orchestrator.EventTaskClassified, TaskID: "t1", Domain: "web"}},
		EventMsg{Event: orchestrator.Event{Type: orchestrator.EventSliceDispatched, TaskID: "t1", Ordinal: 1, AgentID: "worker-1"}},
		EventMsg{Event: orchestrator.Event{Type: orchestrator.EventSliceDispatched, TaskID: "t1", Ordinal: 2, AgentID: "worker-2"}},
		EventMsg{Event: orchestrator.Event{Type: orchestrator.EventSliceCompleted, TaskID: "t1", Ordinal: 1, AgentID: "worker-1"}},
		EventMsg{Event: orchestrator.Event{Type: orchestrator.EventSliceFailed, TaskID: "t1", Ordinal: 2, AgentID: "worker-2", Error: errors.New("agent revoked")}},
		EventMsg{Event: orchestrator.Event{Type: orchestrator.EventSliceTimedOut, TaskID: "t1", Ordinal: 3, AgentID: "worker-3"}},
	)

	if a.taskID != "t1" || a.domain != "web" {
		t.Errorf("task/domain = %q/%q, want t1/web", a.taskID, a.domain)
	}
	want := []models.SliceStatus{
		models.SliceStatusCompleted,
		models.SliceStatusFailed,
		models.SliceStatusTimedOut,
		"",
	}
	for i, w := range want {
		if got := a.slices[i].status; got != w {
			t.Errorf("slice %d status = %q, want %q", i+1, got, w)
		}
	}
	if a.slices[1].detail != "agent revoked" {
		t.Errorf("slice 2 detail = %q", a.slices[1].detail)
	}
	if len(a.logs) != 6 {
		t.Errorf("len(logs) = %d, want 6", len(a.logs))
	}
	view := a.View()
	for _, s := range []string{"worker-1", "COMPLETED", "WAITING", "domain web"} {
		if !strings.Contains(view, s) {
			t.Errorf("view missing %q", s)
		}
	}
}

func TestApp_IgnoresOutOfRangeOrdinal(t *testing.T) {
	a := New(Options{})
	send(t, a, EventMsg{Event: orchestrator.Event{Type: orchestrator.EventSliceCompleted, Ordinal: 9}})
	for i, row := range a.slices {
		if row.status != "" {
			t.Errorf("slice %d status = %q, want untouched", i+1, row.status)
		}
	}
}

func TestApp_AgentsPanelShowsOnlyOffenders(t *testing.T) {
	a := New(Options{})
	send(t, a, AgentsMsg{Agents: []models.Agent{
		{ID: "worker-1", State: models.AgentStateActive},
		{ID: "worker-2", State: models.AgentStateWarned, ViolationCount: 1},
		{ID: "worker-3", State: models.AgentStateRevoked, ViolationCount: 3},
	}})
	if len(a.agents) != 2 {
		t.Fatalf("len(agents) = %d, want 2", len(a.agents))
	}
	if a.agents[0].ID != "worker-3" {
		t.Errorf("agents[0] = %s, want worker-3 (most violations first)", a.agents[0].ID)
	}
	if strings.Contains(a.viewAgents(), "worker-1") {
		t.Error("clean agent listed in gate panel")
	}
}

func TestApp_DoneFoldsResult(t *testing.T) {
	a := New(Options{})
	res := &orchestrator.Result{
		Slices: []models.TaskSlice{
			{WorkerOrdinal: 1, WorkerID: "worker-1", Status: models.SliceStatusCompleted},
			{WorkerOrdinal: 2, WorkerID: "worker-2", Status: models.SliceStatusFailed, Error: "boom"},
		},
		Report:     models.QAReport{Status: models.QAPartial, QualityScore: 0.61},
		Escalation: &models.EscalationRequest{ID: "esc-1"},
	}
	send(t, a, DoneMsg{Result: res})

	if !a.done {
		t.Fatal("done not set")
	}
	if a.slices[1].status != models.SliceStatusFailed || a.slices[1].detail != "boom" {
		t.Errorf("slice 2 = %+v", a.slices[1])
	}
	footer := a.viewFooter()
	if !strings.Contains(footer, "PARTIAL 0.610") || !strings.Contains(footer, "esc-1") {
		t.Errorf("footer = %q", footer)
	}
}

func TestApp_DoneWithoutResult(t *testing.T) {
	a := New(Options{})
	send(t, a, DoneMsg{Err: errors.New("unknown domain")})
	if !strings.Contains(a.viewFooter(), "unknown domain") {
		t.Errorf("footer = %q", a.viewFooter())
	}
}

func TestApp_QuitKey(t *testing.T) {
	a := New(Options{})
	_, cmd := a.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if a.View() != "" {
		t.Error("view not blank after quit")
	}
}

func TestApp_LogIsBounded(t *testing.T) {
	a := New(Options{})
	for i := 0; i < maxLogLines+25; i++ {
		a.apply(orchestrator.Event{Type: orchestrator.EventTaskReceived})
	}
	if len(a.logs) != maxLogLines {
		t.Errorf("len(logs) = %d, want %d", len(a.logs), maxLogLines)
	}
}
