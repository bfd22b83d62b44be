// Package adaptation aggregates worker friction and evolves each domain's
// constraint envelope through audited proposals.
package adaptation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/colony/internal/constraints"
	"github.com/ShayCichocki/colony/internal/errs"
	"github.com/ShayCichocki/colony/internal/logging"
	"github.com/ShayCichocki/colony/internal/orchestrator/policy"
	"github.com/ShayCichocki/colony/pkg/models"
)

// Escalator receives MAJOR proposals.
type Escalator interface {
	EscalateProposal(ctx context.Context, p models.RuleAdjustmentProposal) error
}

// Ledger persists proposals. SaveProposal is an upsert by ID.
type Ledger interface {
	SaveProposal(ctx context.Context, p models.RuleAdjustmentProposal) error
}

// Config wires an Engine.
type Config struct {
	Store     *constraints.Store
	Policy    policy.AdaptationPolicy
	Escalator Escalator
	Ledger    Ledger
	Logger    *logging.DebugLogger
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

type windowKey struct {
	domain string
	key    models.FrictionKey
}

// Engine holds per-domain rolling friction windows.
type Engine struct {
	store     *constraints.Store
	threshold int
	window    time.Duration
	escalator Escalator
	ledger    Ledger
	logger    *logging.DebugLogger
	now       func() time.Time

	mu        sync.Mutex
	windows   map[windowKey][]models.FrictionRecord
	seen      map[string]bool
	open      map[windowKey]string
	proposals map[string]*models.RuleAdjustmentProposal
	order     []string
	resolving map[string]bool
}

// New creates an Engine.
func New(cfg Config) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	threshold := cfg.Policy.Threshold
	if threshold < 1 {
		threshold = policy.Default().Adaptation.Threshold
	}
	window := cfg.Policy.Window
	if window <= 0 {
		window = policy.Default().Adaptation.Window
	}
	return &Engine{
		store:     cfg.Store,
		threshold: threshold,
		window:    window,
		escalator: cfg.Escalator,
		ledger:    cfg.Ledger,
		logger:    cfg.Logger.With("adaptation"),
		now:       now,
		windows:   make(map[windowKey][]models.FrictionRecord),
		seen:      make(map[string]bool),
		open:      make(map[windowKey]string),
		proposals: make(map[string]*models.RuleAdjustmentProposal),
		resolving: make(map[string]bool),
	}
}

// SetEscalator installs the escalator after construction.
func (e *Engine) SetEscalator(esc Escalator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.escalator = esc
}

// Record adds one friction record. It returns the proposal the record
// triggered, or nil. Records already seen (by ID) are ignored.
func (e *Engine) Record(ctx context.Context, f models.FrictionRecord) (*models.RuleAdjustmentProposal, error) {
	if !f.Type.Valid() {
		return nil, fmt.Errorf("record friction: unknown type %q", f.Type)
	}
	if f.Domain == "" {
		return nil, fmt.Errorf("record friction %s: %w", f.ID, errs.ErrInvalidDomain)
	}
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	now := e.now().UTC()
	if f.Timestamp.IsZero() {
		f.Timestamp = now
	}

	wk := windowKey{domain: f.Domain, key: models.FrictionKey{Type: f.Type, BlockedByRule: f.BlockedByRule}}

	e.mu.Lock()
	if e.seen[f.ID] {
		e.mu.Unlock()
		return nil, nil
	}
	e.seen[f.ID] = true

	cutoff := now.Add(-e.window)
	recs := e.windows[wk][:0]
	for _, r := range e.windows[wk] {
		if r.Timestamp.After(cutoff) {
			recs = append(recs, r)
		}
	}
	if f.Timestamp.After(cutoff) {
		recs = append(recs, f)
	}
	e.windows[wk] = recs

	if len(recs) < e.threshold {
		e.mu.Unlock()
		return nil, nil
	}
	if _, busy := e.open[wk]; busy {
		e.mu.Unlock()
		return nil, nil
	}

	evidence := append([]models.FrictionRecord(nil), recs...)
	delete(e.windows, wk)
	scope, change := Classify(wk.key, evidence)
	p := &models.RuleAdjustmentProposal{
		ID:        uuid.New().String(),
		Domain:    f.Domain,
		Key:       wk.key,
		Evidence:  evidence,
		Scope:     scope,
		Change:    change,
		CreatedAt: now,
	}
	if scope == models.ScopeMajor {
		p.Status = models.ProposalEscalated
		e.open[wk] = p.ID
	}
	e.proposals[p.ID] = p
	e.order = append(e.order, p.ID)
	escalator := e.escalator
	e.mu.Unlock()

	if scope == models.ScopeMinor {
		e.autoApply(p)
	} else {
		e.logger.Log("proposal %s for %s %s escalated (%d records)", p.ID, p.Domain, p.Key.Type, len(evidence))
	}

	out := e.snapshot(p.ID)
	e.save(ctx, out)

	if scope == models.ScopeMajor && escalator != nil {
		if err := escalator.EscalateProposal(ctx, out); err != nil {
			return &out, fmt.Errorf("escalate proposal %s: %w", p.ID, err)
		}
	}
	return &out, nil
}

// autoApply publishes a MINOR change. A change that no longer applies
// (the rule was already edited) is recorded as REJECTED.
func (e *Engine) autoApply(p *models.RuleAdjustmentProposal) {
	env, err := e.store.Apply(p.Domain, p.Change)

	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now().UTC()
	p.ResolvedAt = &now
	if err != nil {
		p.Status = models.ProposalRejected
		p.Resolution = fmt.Sprintf("auto-apply failed: %v", err)
		e.logger.Log("proposal %s could not be applied: %v", p.ID, err)
		return
	}
	p.Status = models.ProposalAutoApplied
	p.AppliedVersion = env.Version
	p.Resolution = "auto-applied"
	e.logger.Log("proposal %s auto-applied to %s: envelope v%d (%s %q -> %q)",
		p.ID, p.Domain, env.Version, p.Change.Kind, p.Change.OldRule, p.Change.NewRule)
}

// Resolve approves or rejects an ESCALATED proposal. Approval applies the
// change as a new envelope version.
func (e *Engine) Resolve(ctx context.Context, id string, approve bool, note string) (*models.RuleAdjustmentProposal, error) {
	e.mu.Lock()
	p, ok := e.proposals[id]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("proposal %s: %w", id, errs.ErrNotFound)
	}
	if !p.Status.Open() || e.resolving[id] {
		status := p.Status
		e.mu.Unlock()
		return nil, fmt.Errorf("proposal %s is %s, not open", id, status)
	}
	e.resolving[id] = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.resolving, id)
		e.mu.Unlock()
	}()

	var applied int
	if approve {
		env, err := e.store.Apply(p.Domain, p.Change)
		switch {
		case err == nil:
			applied = env.Version
		case errors.Is(err, constraints.ErrRuleNotFound) && p.Change.Kind == models.ChangeStructural:
			// Nothing in the envelope to edit; the approval stands on its own.
			e.logger.Log("proposal %s approved without envelope change: %v", id, err)
		default:
			return nil, fmt.Errorf("apply proposal %s: %w", id, err)
		}
	}

	e.mu.Lock()
	now := e.now().UTC()
	p.ResolvedAt = &now
	p.Resolution = note
	if approve {
		p.Status = models.ProposalApproved
		p.AppliedVersion = applied
	} else {
		p.Status = models.ProposalRejected
	}
	delete(e.open, windowKey{domain: p.Domain, key: p.Key})
	out := cloneProposal(p)
	e.mu.Unlock()

	e.logger.Log("proposal %s resolved: %s", id, out.Status)
	e.save(ctx, out)
	return &out, nil
}

// Restore loads a persisted proposal so open proposals keep blocking their
// key and evidence is never counted twice.
func (e *Engine) Restore(p models.RuleAdjustmentProposal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.proposals[p.ID]; ok {
		return
	}
	cp := cloneProposal(&p)
	e.proposals[p.ID] = &cp
	e.order = append(e.order, p.ID)
	for _, f := range p.Evidence {
		e.seen[f.ID] = true
	}
	if p.Status.Open() {
		e.open[windowKey{domain: p.Domain, key: p.Key}] = p.ID
	}
}

// Get returns a proposal by ID.
func (e *Engine) Get(id string) (models.RuleAdjustmentProposal, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.proposals[id]
	if !ok {
		return models.RuleAdjustmentProposal{}, false
	}
	return cloneProposal(p), true
}

// Proposals returns every proposal in creation order.
func (e *Engine) Proposals() []models.RuleAdjustmentProposal {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.RuleAdjustmentProposal, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, cloneProposal(e.proposals[id]))
	}
	return out
}

// Pending returns the current window size per key for a domain.
func (e *Engine) Pending(domain string) map[models.FrictionKey]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[models.FrictionKey]int)
	for wk, recs := range e.windows {
		if wk.domain == domain && len(recs) > 0 {
			out[wk.key] = len(recs)
		}
	}
	return out
}

// OpenKeys returns keys with an ESCALATED proposal, sorted.
func (e *Engine) OpenKeys(domain string) []models.FrictionKey {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []models.FrictionKey
	for wk := range e.open {
		if wk.domain == domain {
			out = append(out, wk.key)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].BlockedByRule < out[j].BlockedByRule
	})
	return out
}

func (e *Engine) snapshot(id string) models.RuleAdjustmentProposal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneProposal(e.proposals[id])
}

func (e *Engine) save(ctx context.Context, p models.RuleAdjustmentProposal) {
	if e.ledger == nil {
		return
	}
	if err := e.ledger.SaveProposal(ctx, p); err != nil {
		e.logger.Log("persist proposal %s failed: %v", p.ID, err)
	}
}

func cloneProposal(p *models.RuleAdjustmentProposal) models.RuleAdjustmentProposal {
	out := *p
	out.Evidence = append([]models.FrictionRecord(nil), p.Evidence...)
	if p.ResolvedAt != nil {
		t := *p.ResolvedAt
		out.ResolvedAt = &t
	}
	return out
}
