// Package decompose slices an incoming task into the seven constrained
// pieces handed to a domain's worker pool.
package decompose

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/colony/internal/comm"
	"github.com/ShayCichocki/colony/internal/constraints"
	"github.com/ShayCichocki/colony/internal/errs"
	"github.com/ShayCichocki/colony/internal/logging"
	"github.com/ShayCichocki/colony/internal/memory"
	"github.com/ShayCichocki/colony/pkg/models"
)

// DefaultRecallLimit is how many memories enrich a task's slices.
const DefaultRecallLimit = 5

// contextSnippetLimit truncates each recalled memory.
const contextSnippetLimit = 200

// Recaller is the part of the memory contract the decomposer needs.
type Recaller interface {
	Recall(ctx context.Context, query string, tags []string, limit int) ([]memory.Memory, error)
}

// Config wires a Decomposer.
type Config struct {
	Store   *constraints.Store
	Domains []models.DomainConfig
	// Planner is optional; without one every task uses specialization slicing.
	Planner Planner
	// Memory is optional.
	Memory      Recaller
	RecallLimit int
	Logger      *logging.DebugLogger
}

// Decomposer breaks tasks into seven parallel, constrained slices.
type Decomposer struct {
	store       *constraints.Store
	domains     map[string]models.DomainConfig
	planner     Planner
	memory      Recaller
	recallLimit int
	logger      *logging.DebugLogger
}

// New creates a Decomposer.
func New(cfg Config) *Decomposer {
	limit := cfg.RecallLimit
	if limit <= 0 {
		limit = DefaultRecallLimit
	}
	domains := make(map[string]models.DomainConfig, len(cfg.Domains))
	for _, d := range cfg.Domains {
		domains[d.Name] = d
	}
	return &Decomposer{
		store:       cfg.Store,
		domains:     domains,
		planner:     cfg.Planner,
		memory:      cfg.Memory,
		recallLimit: limit,
		logger:      cfg.Logger.With("decompose"),
	}
}

// Domain returns the named domain's configuration.
func (d *Decomposer) Domain(name string) (models.DomainConfig, bool) {
	dc, ok := d.domains[name]
	return dc, ok
}

// Domains returns the configured domain names, sorted.
func (d *Decomposer) Domains() []string {
	out := make([]string, 0, len(d.domains))
	for name := range d.domains {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Decompose returns exactly seven slices for task, one per worker in the
// domain pool. Each slice carries its own copy of the domain's current
// constraint envelope; later envelope versions never affect it.
func (d *Decomposer) Decompose(ctx context.Context, task *models.Task, domain string) ([]*models.TaskSlice, error) {
	dc, ok := d.domains[domain]
	if !ok {
		return nil, fmt.Errorf("decompose task %s: domain %q has no worker pool: %w", task.ID, domain, errs.ErrInvalidDomain)
	}
	if len(dc.Workers) != models.SlicesPerTask {
		return nil, fmt.Errorf("decompose task %s: domain %q has %d workers: %w", task.ID, domain, len(dc.Workers), errs.ErrConfigInvalid)
	}
	env, err := d.store.Snapshot(domain)
	if err != nil {
		return nil, fmt.Errorf("decompose task %s: %w", task.ID, err)
	}

	snippets, memoryIDs := d.recall(ctx, task, domain)

	plan := d.plan(ctx, task, dc, env, snippets)

	now := time.Now().UTC()
	slices := make([]*models.TaskSlice, 0, models.SlicesPerTask)
	for _, p := range plan {
		worker, _ := dc.WorkerFor(p.Ordinal)
		slices = append(slices, &models.TaskSlice{
			ID:            uuid.New().String(),
			TaskID:        task.ID,
			Domain:        domain,
			WorkerOrdinal: p.Ordinal,
			WorkerID:      comm.WorkerID(worker),
			Description:   p.Description,
			Target:        p.Target,
			Constraints:   env.Clone(),
			Context:       append([]string(nil), snippets...),
			MemoryIDs:     append([]string(nil), memoryIDs...),
			Status:        models.SliceStatusDispatched,
			DispatchedAt:  now,
		})
	}

	d.logger.Log("task %s sliced into %d pieces (domain=%s, envelope v%d, %d memories)",
		task.ID, len(slices), domain, env.Version, len(memoryIDs))
	return slices, nil
}

// plan asks the planner for slices and falls back to specialization
// slicing when there is no planner or its plan is unusable.
func (d *Decomposer) plan(ctx context.Context, task *models.Task, dc models.DomainConfig, env models.ConstraintEnvelope, snippets []string) []PlannedSlice {
	if d.planner != nil {
		plan, err := d.planner.Plan(ctx, PlanRequest{
			Task:        task,
			Domain:      dc,
			Constraints: env,
			Context:     snippets,
		})
		if err == nil {
			plan, err = NormalizePlan(plan, dc)
		}
		if err == nil {
			return plan
		}
		d.logger.Log("planner failed for task %s, using fallback slices: %v", task.ID, err)
	}
	return FallbackPlan(task, dc)
}

func (d *Decomposer) recall(ctx context.Context, task *models.Task, domain string) ([]string, []string) {
	if d.memory == nil {
		return nil, nil
	}
	memories, err := d.memory.Recall(ctx, task.Description, []string{domain}, d.recallLimit)
	if err != nil {
		d.logger.Log("recall for task %s failed: %v", task.ID, err)
		return nil, nil
	}
	var snippets, ids []string
	for _, m := range memories {
		content := m.Content
		if r := []rune(content); len(r) > contextSnippetLimit {
			content = string(r[:contextSnippetLimit]) + "..."
		}
		snippets = append(snippets, fmt.Sprintf("[%s] %s", m.Category, content))
		ids = append(ids, m.ID)
	}
	return snippets, ids
}
