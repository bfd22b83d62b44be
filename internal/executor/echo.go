package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/ShayCichocki/colony/pkg/models"
)

// Echo is an offline executor that writes the slice instructions to the
// assigned target. It is used for dry runs and tests of the pipeline.
type Echo struct {
	// Confidence is reported in every output's feedback. Defaults to 0.9.
	Confidence float64
	// Delay simulates work; the context cancels it.
	Delay time.Duration
}

// NewEcho creates an Echo executor with default feedback.
func NewEcho() *Echo {
	return &Echo{Confidence: 0.9}
}

// Execute returns a deliverable that satisfies the slice's envelope.
func (e *Echo) Execute(ctx context.Context, s models.TaskSlice) (*models.WorkerOutput, error) {
	if e.Delay > 0 {
		t := time.NewTimer(e.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	var actions []string
	if len(s.Constraints.CanDo) > 0 {
		actions = []string{s.Constraints.CanDo[0]}
	}
	conf := e.Confidence
	if conf == 0 {
		conf = 0.9
	}
	return &models.WorkerOutput{
		Deliverable: models.Deliverable{
			Target:  s.Target,
			Content: fmt.Sprintf("# Slice %d\n\n%s\n", s.WorkerOrdinal, s.Description),
			Actions: actions,
		},
		Feedback: models.Feedback{
			Confidence:     conf,
			TaskFit:        conf,
			Clarity:        conf,
			ContextQuality: conf,
		},
		CreatedAt: time.Now().UTC(),
	}, nil
}
