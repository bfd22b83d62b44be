package decompose

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ShayCichocki/colony/pkg/models"
)

// PlannedSlice is one entry of a slicing plan.
type PlannedSlice struct {
	// Ordinal is the slice position 1..7 within the domain pool.
	Ordinal     int    `json:"slice_id"`
	Description string `json:"description"`
	// Target is the artifact the slice produces; empty uses the domain default.
	Target string `json:"assigned_file,omitempty"`
}

// PlanRequest is what a Planner sees.
type PlanRequest struct {
	Task        *models.Task
	Domain      models.DomainConfig
	Constraints models.ConstraintEnvelope
	Context     []string
}

// Planner proposes how to divide a task among the seven workers.
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) ([]PlannedSlice, error)
}

// ParsePlan extracts a JSON array of slices from a model response.
func ParsePlan(response string) ([]PlannedSlice, error) {
	jsonStart := strings.Index(response, "[")
	jsonEnd := strings.LastIndex(response, "]")
	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		responsePreview := response
		if len(responsePreview) > 500 {
			responsePreview = responsePreview[:500] + "... (truncated)"
		}
		return nil, fmt.Errorf("no valid JSON array found in response (got %d chars): %q", len(response), responsePreview)
	}

	var plan []PlannedSlice
	if err := json.Unmarshal([]byte(response[jsonStart:jsonEnd+1]), &plan); err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}
	return plan, nil
}

// NormalizePlan checks that plan covers ordinals 1..7 exactly once with
// non-empty descriptions and distinct targets, fills default targets, and
// returns the slices sorted by ordinal.
func NormalizePlan(plan []PlannedSlice, dc models.DomainConfig) ([]PlannedSlice, error) {
	if len(plan) != models.SlicesPerTask {
		return nil, fmt.Errorf("plan has %d slices, want %d", len(plan), models.SlicesPerTask)
	}

	out := make([]PlannedSlice, len(plan))
	copy(out, plan)
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })

	targets := make(map[string]int)
	for i := range out {
		p := &out[i]
		if p.Ordinal != i+1 {
			return nil, fmt.Errorf("plan ordinals must be 1..%d exactly once, got %d at position %d",
				models.SlicesPerTask, p.Ordinal, i+1)
		}
		p.Description = strings.TrimSpace(p.Description)
		if p.Description == "" {
			return nil, fmt.Errorf("slice %d has no description", p.Ordinal)
		}
		p.Target = strings.TrimSpace(p.Target)
		if p.Target == "" {
			p.Target = DefaultTarget(dc, p.Ordinal)
		}
		if dc.IsSharedTarget(p.Target) {
			return nil, fmt.Errorf("slice %d assigned shared target %s", p.Ordinal, p.Target)
		}
		if prev, ok := targets[p.Target]; ok {
			return nil, fmt.Errorf("slices %d and %d share target %s", prev, p.Ordinal, p.Target)
		}
		targets[p.Target] = p.Ordinal
	}
	return out, nil
}

// FallbackPlan slices task by worker specialization.
func FallbackPlan(task *models.Task, dc models.DomainConfig) []PlannedSlice {
	plan := make([]PlannedSlice, 0, models.SlicesPerTask)
	for i := 1; i <= models.SlicesPerTask; i++ {
		desc := fmt.Sprintf("Part %d of task: %s", i, task.Description)
		if spec := dc.Specializations[i]; spec != "" {
			desc += fmt.Sprintf(" Focus on %s.", spec)
		}
		plan = append(plan, PlannedSlice{
			Ordinal:     i,
			Description: desc,
			Target:      DefaultTarget(dc, i),
		})
	}
	return plan
}

// DefaultTarget returns the configured target for a slice ordinal, or a
// generated per-slice path when the domain does not define one.
func DefaultTarget(dc models.DomainConfig, ordinal int) string {
	if t := dc.Targets[ordinal]; t != "" {
		return t
	}
	return fmt.Sprintf("%s/part-%d.md", dc.Name, ordinal)
}
