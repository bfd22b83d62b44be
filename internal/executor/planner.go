package executor

import (
	"context"

	"github.com/ShayCichocki/colony/internal/decompose"
)

const plannerSystem = `You plan work for a colony of seven specialized workers. You only
produce slicing plans; you never do the work yourself.`

// Planner slices tasks with a model.
type Planner struct {
	llm Completer
}

var _ decompose.Planner = (*Planner)(nil)

// NewPlanner creates a model-backed slice planner.
func NewPlanner(llm Completer) *Planner {
	return &Planner{llm: llm}
}

// Plan asks the model for seven slices. The decomposer normalizes the result
// and falls back to specialization slicing on error.
func (p *Planner) Plan(ctx context.Context, req decompose.PlanRequest) ([]decompose.PlannedSlice, error) {
	resp, err := p.llm.Complete(ctx, plannerSystem, decompose.PlanPrompt(req))
	if err != nil {
		return nil, err
	}
	return decompose.ParsePlan(resp)
}
