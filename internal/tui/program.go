package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/colony/internal/orchestrator"
)

// RunFunc executes the task the dashboard is watching.
type RunFunc func(ctx context.Context) (*orchestrator.Result, error)

// Run shows the dashboard while run executes, forwarding events until the
// channel closes; run must close it before returning. The dashboard stays
// up after completion until the user quits.
func Run(ctx context.Context, opts Options, events <-chan orchestrator.Event, run RunFunc) (*orchestrator.Result, error) {
	p := tea.NewProgram(New(opts), tea.WithAltScreen(), tea.WithContext(ctx))

	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for ev := range events {
			p.Send(EventMsg{Event: ev})
		}
	}()

	type outcome struct {
		res *orchestrator.Result
		err error
	}
	finished := make(chan outcome, 1)
	go func() {
		res, err := run(ctx)
		finished <- outcome{res, err}
	}()
	go func() {
		o := <-finished
		<-forwarded
		p.Send(DoneMsg{Result: o.res, Err: o.err})
		finished <- o
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return nil, err
	}
	o := <-finished
	return o.res, o.err
}
