// Package escalation routes requests that exceed a domain's authority to
// the commander and applies the commander's resolutions.
package escalation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/colony/internal/alert"
	"github.com/ShayCichocki/colony/internal/comm"
	"github.com/ShayCichocki/colony/internal/errs"
	"github.com/ShayCichocki/colony/internal/logging"
	"github.com/ShayCichocki/colony/pkg/models"
)

// ErrAlreadyResolved is returned when a request was already answered.
var ErrAlreadyResolved = errors.New("escalation already resolved")

// ErrResolving is returned while another resolution of the same request
// is still running.
var ErrResolving = errors.New("escalation resolution in progress")

// Commander decides escalations synchronously. A nil resolution with a nil
// error leaves the request pending for a later Resolve call.
type Commander interface {
	Decide(ctx context.Context, req models.EscalationRequest) (*models.EscalationResolution, error)
}

// ProposalResolver applies the commander's verdict on a MAJOR proposal.
type ProposalResolver interface {
	Resolve(ctx context.Context, id string, approve bool, note string) (*models.RuleAdjustmentProposal, error)
}

// Redispatcher re-runs one slice of a task with adjusted constraints.
type Redispatcher interface {
	Redispatch(ctx context.Context, req models.EscalationRequest, res models.EscalationResolution) error
}

// Ledger persists escalation requests. SaveEscalation is an upsert by ID.
type Ledger interface {
	SaveEscalation(ctx context.Context, req models.EscalationRequest) error
}

// Config wires a Router.
type Config struct {
	Gate         *comm.Gate
	Alerts       alert.Sink
	Proposals    ProposalResolver
	Redispatcher Redispatcher
	Commander    Commander
	Ledger       Ledger
	Logger       *logging.DebugLogger
	Now          func() time.Time
}

// Router holds escalation requests until the commander resolves them.
type Router struct {
	gate      *comm.Gate
	alerts    alert.Sink
	ledger    Ledger
	logger    *logging.DebugLogger
	now       func() time.Time
	commander Commander

	mu           sync.Mutex
	proposals    ProposalResolver
	redispatcher Redispatcher
	onResolved   func(context.Context, models.EscalationRequest)
	requests     map[string]*models.EscalationRequest
	resolving    map[string]bool
	order        []string
}

// NewRouter creates a Router. Gate is required.
func NewRouter(cfg Config) (*Router, error) {
	if cfg.Gate == nil {
		return nil, fmt.Errorf("escalation router: gate required: %w", errs.ErrConfigInvalid)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Router{
		gate:         cfg.Gate,
		alerts:       cfg.Alerts,
		ledger:       cfg.Ledger,
		logger:       cfg.Logger.With("escalation"),
		now:          now,
		commander:    cfg.Commander,
		proposals:    cfg.Proposals,
		redispatcher: cfg.Redispatcher,
		requests:     make(map[string]*models.EscalationRequest),
		resolving:    make(map[string]bool),
	}, nil
}

// SetProposals installs the proposal resolver after construction.
func (r *Router) SetProposals(p ProposalResolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proposals = p
}

// SetRedispatcher installs the redispatcher after construction.
func (r *Router) SetRedispatcher(d Redispatcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redispatcher = d
}

// OnResolved registers fn to run after a request is closed. It is not
// called for human_input, which leaves the request open.
func (r *Router) OnResolved(fn func(context.Context, models.EscalationRequest)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onResolved = fn
}

// EscalateProposal routes a MAJOR rule proposal.
func (r *Router) EscalateProposal(ctx context.Context, p models.RuleAdjustmentProposal) error {
	_, err := r.Escalate(ctx, models.EscalationRequest{
		Domain:   p.Domain,
		Reason:   models.EscalationMajorProposal,
		Detail:   fmt.Sprintf("%s friction on %q reached %d reports; proposed %s", p.Key.Type, p.Key.BlockedByRule, len(p.Evidence), p.Change.Kind),
		Proposal: &p,
	})
	return err
}

// EscalateReport routes a task whose report exceeded the domain's authority.
func (r *Router) EscalateReport(ctx context.Context, reason models.EscalationReason, report models.QAReport, detail string) (models.EscalationRequest, error) {
	return r.Escalate(ctx, models.EscalationRequest{
		Domain: report.Domain,
		TaskID: report.TaskID,
		Reason: reason,
		Detail: detail,
		Report: &report,
	})
}

// Escalate sends req from the domain orchestrator to the commander on the
// escalation channel. If the orchestrator cannot reach the commander, the
// domain validator tries; if neither can, the request is still kept pending
// and an operator alert is raised. The commander, if configured, decides
// immediately.
func (r *Router) Escalate(ctx context.Context, req models.EscalationRequest) (models.EscalationRequest, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = r.now().UTC()
	}
	req.Resolved = false
	req.Resolution = nil

	r.mu.Lock()
	if _, ok := r.requests[req.ID]; ok {
		existing := *r.requests[req.ID]
		r.mu.Unlock()
		return existing, nil
	}
	cp := req
	r.requests[req.ID] = &cp
	r.order = append(r.order, req.ID)
	r.mu.Unlock()

	r.save(ctx, req)

	if err := r.deliver(ctx, req); err != nil {
		r.logger.Log("escalation %s undeliverable: %v", req.ID, err)
		r.emit(ctx, models.HumanAlert{
			EventID:  "escalation:" + req.ID,
			Kind:     models.AlertEscalationRequired,
			Severity: models.SeverityCritical,
			Domain:   req.Domain,
			TaskID:   req.TaskID,
			Message:  fmt.Sprintf("escalation %s (%s) could not reach the commander: %v", req.ID, req.Reason, err),
			NextSteps: []string{
				"colony escalations list",
				"colony escalations resolve " + req.ID + " --action <approve|reject|redispatch|human_input>",
			},
			Timestamp: r.now().UTC(),
		})
	} else {
		r.logger.Log("escalation %s routed to commander: %s %s", req.ID, req.Domain, req.Reason)
	}

	if r.commander == nil {
		return req, nil
	}
	res, err := r.commander.Decide(ctx, req)
	if err != nil {
		r.logger.Log("commander failed on %s, leaving pending: %v", req.ID, err)
		return req, nil
	}
	if res == nil {
		return req, nil
	}
	return r.Resolve(ctx, req.ID, *res)
}

func (r *Router) deliver(ctx context.Context, req models.EscalationRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode escalation: %w", err)
	}
	var failures []error
	for _, from := range []string{comm.OrchestratorID(req.Domain), comm.ValidatorID(req.Domain)} {
		_, err := r.gate.Send(ctx, models.Message{
			ID:        "escalation:" + req.ID + ":" + from,
			From:      from,
			To:        comm.CommanderID,
			Channel:   models.ChannelEscalation,
			Subject:   string(req.Reason),
			Body:      string(body),
			Timestamp: r.now().UTC(),
		})
		if err == nil {
			return nil
		}
		failures = append(failures, err)
	}
	return errors.Join(failures...)
}

// Resolve applies the commander's decision.
func (r *Router) Resolve(ctx context.Context, id string, res models.EscalationResolution) (models.EscalationRequest, error) {
	if !res.Action.Valid() {
		return models.EscalationRequest{}, fmt.Errorf("resolve %s: unknown action %q", id, res.Action)
	}

	r.mu.Lock()
	stored, ok := r.requests[id]
	if !ok {
		r.mu.Unlock()
		return models.EscalationRequest{}, fmt.Errorf("escalation %s: %w", id, errs.ErrNotFound)
	}
	if stored.Resolved {
		r.mu.Unlock()
		return models.EscalationRequest{}, fmt.Errorf("escalation %s: %w", id, ErrAlreadyResolved)
	}
	if r.resolving[id] {
		r.mu.Unlock()
		return models.EscalationRequest{}, fmt.Errorf("escalation %s: %w", id, ErrResolving)
	}
	r.resolving[id] = true
	req := *stored
	proposals, redispatcher, onResolved := r.proposals, r.redispatcher, r.onResolved
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.resolving, id)
		r.mu.Unlock()
	}()

	if res.DecidedAt.IsZero() {
		res.DecidedAt = r.now().UTC()
	}

	switch res.Action {
	case models.ActionApprove, models.ActionReject:
		if req.Proposal == nil {
			return req, fmt.Errorf("escalation %s has no proposal to %s", id, res.Action)
		}
		if proposals == nil {
			return req, fmt.Errorf("escalation %s: no proposal resolver: %w", id, errs.ErrConfigInvalid)
		}
		p, err := proposals.Resolve(ctx, req.Proposal.ID, res.Action == models.ActionApprove, res.Note)
		if err != nil {
			return req, fmt.Errorf("resolve proposal %s: %w", req.Proposal.ID, err)
		}
		req.Proposal = p

	case models.ActionRedispatch:
		if req.TaskID == "" {
			return req, fmt.Errorf("escalation %s has no task to re-dispatch", id)
		}
		if res.SliceOrdinal < 1 || res.SliceOrdinal > 7 {
			return req, fmt.Errorf("escalation %s: slice ordinal %d out of range", id, res.SliceOrdinal)
		}
		if redispatcher == nil {
			return req, fmt.Errorf("escalation %s: no redispatcher: %w", id, errs.ErrConfigInvalid)
		}
		if err := redispatcher.Redispatch(ctx, req, res); err != nil {
			return req, fmt.Errorf("re-dispatch slice %d of %s: %w", res.SliceOrdinal, req.TaskID, err)
		}

	case models.ActionHumanInput:
		r.emit(ctx, models.HumanAlert{
			EventID:   "human-input:" + req.ID,
			Kind:      models.AlertHumanInput,
			Severity:  models.SeverityCritical,
			Domain:    req.Domain,
			TaskID:    req.TaskID,
			Message:   humanInputMessage(req, res),
			NextSteps: []string{"review the escalation detail", "resolve with approve, reject, or redispatch"},
			Timestamp: res.DecidedAt,
		})
	}

	r.mu.Lock()
	// Human input defers the decision; the request stays open for a
	// follow-up resolution.
	if res.Action != models.ActionHumanInput {
		req.Resolved = true
	}
	req.Resolution = &res
	*r.requests[id] = req
	r.mu.Unlock()

	r.logger.Log("escalation %s resolved: %s", id, res.Action)
	r.save(ctx, req)
	if req.Resolved && onResolved != nil {
		onResolved(ctx, req)
	}
	return req, nil
}

func humanInputMessage(req models.EscalationRequest, res models.EscalationResolution) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Commander requested human input on %s escalation %s", req.Reason, req.ID)
	if req.Domain != "" {
		fmt.Fprintf(&b, " in domain %s", req.Domain)
	}
	if req.TaskID != "" {
		fmt.Fprintf(&b, " (task %s)", req.TaskID)
	}
	b.WriteString(": ")
	b.WriteString(req.Detail)
	if res.Note != "" {
		b.WriteString(". Note: ")
		b.WriteString(res.Note)
	}
	return b.String()
}

// Restore loads a persisted request.
func (r *Router) Restore(req models.EscalationRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.requests[req.ID]; ok {
		return
	}
	cp := req
	r.requests[req.ID] = &cp
	r.order = append(r.order, req.ID)
}

// Get returns a request by ID.
func (r *Router) Get(id string) (models.EscalationRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return models.EscalationRequest{}, false
	}
	return *req, true
}

// Pending returns unresolved requests, oldest first.
func (r *Router) Pending() []models.EscalationRequest {
	all := r.All()
	out := all[:0]
	for _, req := range all {
		if !req.Resolved {
			out = append(out, req)
		}
	}
	return out
}

// All returns every request, oldest first.
func (r *Router) All() []models.EscalationRequest {
	r.mu.Lock()
	out := make([]models.EscalationRequest, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.requests[id])
	}
	r.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *Router) emit(ctx context.Context, a models.HumanAlert) {
	if r.alerts == nil {
		return
	}
	if err := r.alerts.Emit(ctx, a); err != nil {
		r.logger.Log("alert %s failed: %v", a.EventID, err)
	}
}

func (r *Router) save(ctx context.Context, req models.EscalationRequest) {
	if r.ledger == nil {
		return
	}
	if err := r.ledger.SaveEscalation(ctx, req); err != nil {
		r.logger.Log("persist escalation %s failed: %v", req.ID, err)
	}
}
