package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/colony/internal/orchestrator"
	"github.com/ShayCichocki/colony/pkg/models"
)

// slicesPerTask mirrors the fixed fan-out of the decomposer.
const slicesPerTask = 7

// maxLogLines bounds the event log kept in memory.
const maxLogLines = 500

// EventMsg wraps an engine event for the dashboard.
type EventMsg struct {
	Event orchestrator.Event
}

// DoneMsg signals that the run finished.
type DoneMsg struct {
	Result *orchestrator.Result
	Err    error
}

// AgentsMsg carries a fresh snapshot of the registry.
type AgentsMsg struct {
	Agents []models.Agent
}

type agentsTickMsg struct{}

type sliceRow struct {
	workerID string
	status   models.SliceStatus
	detail   string
}

// Options configures the dashboard.
type Options struct {
	// Description is the task being run.
	Description string
	// Agents, when set, is polled for the governance panel.
	Agents func() []models.Agent
	// PollInterval defaults to one second.
	PollInterval time.Duration
}

// App is the bubbletea model for the run dashboard.
type App struct {
	opts Options

	taskID string
	domain string
	slices [slicesPerTask]sliceRow
	agents []models.Agent

	logs     []string
	logView  viewport.Model
	spinner  spinner.Model
	width    int
	height   int
	done     bool
	result   *orchestrator.Result
	err      error
	quitting bool
}

// New creates a dashboard model.
func New(opts Options) *App {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = runningStyle
	a := &App{
		opts:    opts,
		spinner: sp,
		logView: viewport.New(80, 10),
		width:   80,
		height:  30,
	}
	return a
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	cmds := []tea.Cmd{a.spinner.Tick}
	if a.opts.Agents != nil {
		cmds = append(cmds, a.pollAgents())
	}
	return tea.Batch(cmds...)
}

func (a *App) pollAgents() tea.Cmd {
	return tea.Tick(a.opts.PollInterval, func(time.Time) tea.Msg {
		return agentsTickMsg{}
	})
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			a.quitting = true
			return a, tea.Quit
		}
		var cmd tea.Cmd
		a.logView, cmd = a.logView.Update(msg)
		return a, cmd

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.resize()

	case EventMsg:
		a.apply(msg.Event)

	case AgentsMsg:
		a.setAgents(msg.Agents)

	case agentsTickMsg:
		if a.opts.Agents == nil {
			return a, nil
		}
		a.setAgents(a.opts.Agents())
		if a.done {
			return a, nil
		}
		return a, a.pollAgents()

	case DoneMsg:
		a.done = true
		a.result = msg.Result
		a.err = msg.Err
		if msg.Result != nil {
			for _, s := range msg.Result.Slices {
				a.setSlice(s.WorkerOrdinal, s.WorkerID, s.Status, s.Error)
			}
		}
		if a.opts.Agents != nil {
			a.setAgents(a.opts.Agents())
		}

	case spinner.TickMsg:
		if a.done {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}
	return a, nil
}

// apply folds one engine event into the dashboard state.
func (a *App) apply(ev orchestrator.Event) {
	if ev.TaskID != "" && a.taskID == "" {
		a.taskID = ev.TaskID
	}
	if ev.Domain != "" {
		a.domain = ev.Domain
	}
	switch ev.Type {
	case orchestrator.EventSliceDispatched:
		a.setSlice(ev.Ordinal, ev.AgentID, models.SliceStatusRunning, "")
	case orchestrator.EventSliceCompleted:
		a.setSlice(ev.Ordinal, ev.AgentID, models.SliceStatusCompleted, "")
	case orchestrator.EventSliceFailed:
		a.setSlice(ev.Ordinal, ev.AgentID, models.SliceStatusFailed, errString(ev.Error))
	case orchestrator.EventSliceTimedOut:
		a.setSlice(ev.Ordinal, ev.AgentID, models.SliceStatusTimedOut, "")
	}
	a.appendLog(formatEvent(ev))
}

func (a *App) setSlice(ordinal int, workerID string, status models.SliceStatus, detail string) {
	if ordinal < 1 || ordinal > slicesPerTask {
		return
	}
	row := &a.slices[ordinal-1]
	if workerID != "" {
		row.workerID = workerID
	}
	row.status = status
	row.detail = detail
}

func (a *App) setAgents(agents []models.Agent) {
	// Only agents with a record are interesting here.
	var out []models.Agent
	for _, ag := range agents {
		if ag.ViolationCount > 0 || ag.State != models.AgentStateActive {
			out = append(out, ag)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ViolationCount != out[j].ViolationCount {
			return out[i].ViolationCount > out[j].ViolationCount
		}
		return out[i].ID < out[j].ID
	})
	a.agents = out
}

func (a *App) appendLog(line string) {
	a.logs = append(a.logs, line)
	if len(a.logs) > maxLogLines {
		a.logs = a.logs[len(a.logs)-maxLogLines:]
	}
	a.logView.SetContent(strings.Join(a.logs, "\n"))
	a.logView.GotoBottom()
}

func (a *App) resize() {
	w := a.width - 4
	if w < 20 {
		w = 20
	}
	// header(2) + slices panel(slicesPerTask+4) + footer(1) + borders
	h := a.height - slicesPerTask - 12
	if h < 3 {
		h = 3
	}
	a.logView.Width = w
	a.logView.Height = h
}

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting {
		return ""
	}
	left := panelStyle.Render(a.viewSlices())
	right := panelStyle.Render(a.viewAgents())
	top := lipgloss.JoinHorizontal(lipgloss.Top, left, right)
	logs := panelStyle.Render(a.logView.View())
	return lipgloss.JoinVertical(lipgloss.Left, a.viewHeader(), top, logs, a.viewFooter())
}

func (a *App) viewHeader() string {
	task := a.taskID
	if task == "" {
		task = "(pending)"
	}
	domain := a.domain
	if domain == "" {
		domain = "classifying"
	}
	line := titleStyle.Render("colony") + subtleStyle.Render(fmt.Sprintf("  task %s  domain %s", task, domain))
	desc := a.opts.Description
	if limit := a.width - 2; limit > 3 && len(desc) > limit {
		desc = desc[:limit-3] + "..."
	}
	return line + "\n" + subtleStyle.Render(desc)
}

func (a *App) viewSlices() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Slices"))
	b.WriteString("\n")
	for i, row := range a.slices {
		worker := row.workerID
		if worker == "" {
			worker = "-"
		}
		status := string(row.status)
		if status == "" {
			status = "WAITING"
		}
		if row.status == models.SliceStatusRunning && !a.done {
			status = a.spinner.View() + " " + status
		}
		line := fmt.Sprintf("%d  %-10s %s", i+1, worker, sliceStyle(row.status).Render(status))
		if row.detail != "" {
			line += subtleStyle.Render("  " + truncate(row.detail, 40))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (a *App) viewAgents() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Gate"))
	b.WriteString("\n")
	if len(a.agents) == 0 {
		b.WriteString(subtleStyle.Render("no violations"))
		return b.String()
	}
	for i, ag := range a.agents {
		if i == slicesPerTask {
			b.WriteString(subtleStyle.Render(fmt.Sprintf("... %d more", len(a.agents)-i)))
			break
		}
		fmt.Fprintf(&b, "%-16s %s %d\n", ag.ID, agentStyle(ag.State).Render(string(ag.State)), ag.ViolationCount)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (a *App) viewFooter() string {
	if !a.done {
		return subtleStyle.Render("running | arrows scroll log | q to quit")
	}
	if a.result == nil {
		return failStyle.Render(fmt.Sprintf("✗ %v", a.err)) + subtleStyle.Render(" | q to quit")
	}
	r := a.result.Report
	summary := qaStyle(r.Status).Render(fmt.Sprintf("%s %.3f", r.Status, r.QualityScore))
	if a.result.Escalation != nil {
		summary += warnStyle.Render(fmt.Sprintf("  escalated %s", a.result.Escalation.ID))
	}
	return summary + subtleStyle.Render(" | q to quit")
}

func formatEvent(ev orchestrator.Event) string {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	line := fmt.Sprintf("%s %-18s", ts.Format("15:04:05"), ev.Type)
	if ev.Ordinal > 0 {
		line += fmt.Sprintf(" slice %d", ev.Ordinal)
	}
	if ev.Message != "" {
		line += " " + ev.Message
	}
	if ev.Error != nil {
		return failStyle.Render(line + ": " + ev.Error.Error())
	}
	return line
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
