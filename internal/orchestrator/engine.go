package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/colony/internal/adaptation"
	"github.com/ShayCichocki/colony/internal/alert"
	"github.com/ShayCichocki/colony/internal/comm"
	"github.com/ShayCichocki/colony/internal/config"
	"github.com/ShayCichocki/colony/internal/constraints"
	"github.com/ShayCichocki/colony/internal/decompose"
	"github.com/ShayCichocki/colony/internal/errs"
	"github.com/ShayCichocki/colony/internal/escalation"
	"github.com/ShayCichocki/colony/internal/logging"
	"github.com/ShayCichocki/colony/internal/memory"
	"github.com/ShayCichocki/colony/internal/merge"
	"github.com/ShayCichocki/colony/internal/orchestrator/policy"
	"github.com/ShayCichocki/colony/internal/quality"
	"github.com/ShayCichocki/colony/internal/state"
	"github.com/ShayCichocki/colony/internal/validation"
	"github.com/ShayCichocki/colony/pkg/models"
)

// Config wires an Engine. Domains, Executor are required; everything else
// is optional.
type Config struct {
	Domains  []models.DomainConfig
	Policy   *policy.Config
	Executor Executor

	// Classifier routes tasks submitted without a domain. The keyword
	// classifier is always the fallback.
	Classifier decompose.Classifier
	Planner    decompose.Planner
	Reviewer   validation.Reviewer
	Memory     memory.Provider
	// RecallLimit bounds memories recalled per task.
	RecallLimit int

	Ledger    state.Ledger
	Alerts    alert.Sink
	Transport comm.Deliverer
	Commander escalation.Commander

	Events *EventEmitter
	Logger *logging.DebugLogger
}

// Engine runs tasks through the full pipeline: classify, decompose,
// dispatch, validate and merge, score, adapt, escalate, record.
type Engine struct {
	domains     map[string]models.DomainConfig
	policy      *policy.Config
	store       *constraints.Store
	registry    *comm.Registry
	gate        *comm.Gate
	classifier  decompose.Classifier
	decomposer  *decompose.Decomposer
	coordinator *Coordinator
	validator   *validation.Validator
	scorer      *quality.Scorer
	adaptation  *adaptation.Engine
	router      *escalation.Router
	recorder    *memory.Recorder
	ledger      state.Ledger
	alerts      alert.Sink
	events      *EventEmitter
	logger      *logging.DebugLogger

	mu   sync.Mutex
	runs map[string]*taskRun
}

// taskRun keeps a finished task's working set so a slice can be re-dispatched.
type taskRun struct {
	mu      sync.Mutex
	task    models.Task
	domain  models.DomainConfig
	slices  []*models.TaskSlice
	outputs map[string]*models.WorkerOutput
	report  models.QAReport
	merged  models.MergedResult
}

// Result is the outcome of one task.
type Result struct {
	Task        models.Task
	Slices      []models.TaskSlice
	Validations []models.ValidationResult
	Merged      models.MergedResult
	Report      models.QAReport
	Proposals   []models.RuleAdjustmentProposal
	Escalation  *models.EscalationRequest
}

// New builds an engine, restoring persisted state from the ledger before
// seeding domains and registering the roster. A configuration error raises
// a config_invalid alert on the configured sinks before it is returned.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	e, err := newEngine(ctx, cfg)
	if err != nil && fatalConfig(err) {
		raiseConfigInvalid(ctx, configSinks(cfg), cfg.Logger.With("engine"), "", "", err)
	}
	return e, err
}

func newEngine(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("engine: executor required: %w", errs.ErrConfigInvalid)
	}
	if err := config.ValidateDomains(cfg.Domains); err != nil {
		return nil, err
	}
	pol := cfg.Policy
	if pol == nil {
		pol = policy.Default()
	}
	if err := pol.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		domains: make(map[string]models.DomainConfig, len(cfg.Domains)),
		policy:  pol,
		store:   constraints.NewStore(),
		ledger:  cfg.Ledger,
		events:  cfg.Events,
		logger:  cfg.Logger.With("engine"),
		runs:    make(map[string]*taskRun),
	}
	for _, d := range cfg.Domains {
		e.domains[d.Name] = d
	}
	e.registry = comm.NewRegistry(pol.Gate.RevocationThreshold)

	e.alerts = configSinks(cfg)

	var snap state.Snapshot
	if cfg.Ledger != nil {
		var err error
		snap, err = cfg.Ledger.LoadSnapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("restore ledger: %w", err)
		}
		for _, env := range snap.Envelopes {
			e.store.Restore(env)
		}
		for _, a := range snap.Agents {
			e.registry.Restore(a, snap.History[a.ID])
		}
		e.store.OnPublish(func(env models.ConstraintEnvelope) {
			if err := cfg.Ledger.SaveEnvelope(context.Background(), env); err != nil {
				e.logger.Log("persist envelope %s v%d failed: %v", env.Domain, env.Version, err)
			}
		})
	}
	for _, d := range cfg.Domains {
		if err := e.store.Seed(d); err != nil {
			return nil, err
		}
	}
	if err := comm.RegisterRoster(e.registry, cfg.Domains); err != nil {
		return nil, err
	}

	graph, err := buildGraph(pol.Gate.Edges)
	if err != nil {
		return nil, err
	}
	var vlog comm.ViolationLog
	if cfg.Ledger != nil {
		vlog = cfg.Ledger
	}
	e.gate, err = comm.NewGate(comm.GateConfig{
		Graph:     graph,
		Registry:  e.registry,
		Log:       vlog,
		Alerts:    e.alerts,
		Transport: cfg.Transport,
		Logger:    cfg.Logger,
		CacheSize: pol.Gate.DecisionCacheSize,
	})
	if err != nil {
		return nil, err
	}
	e.registry.OnRevoke(e.onRevoke)

	e.coordinator, err = NewCoordinator(CoordinatorConfig{
		Executor: cfg.Executor,
		Gate:     e.gate,
		Policy:   pol.Execution,
		Events:   cfg.Events,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	var recaller decompose.Recaller
	if cfg.Memory != nil {
		recaller = cfg.Memory
	}
	e.decomposer = decompose.New(decompose.Config{
		Store:       e.store,
		Domains:     cfg.Domains,
		Planner:     cfg.Planner,
		Memory:      recaller,
		RecallLimit: cfg.RecallLimit,
		Logger:      cfg.Logger,
	})
	keyword := decompose.NewKeywordClassifier(cfg.Domains)
	if cfg.Classifier != nil {
		e.classifier = &decompose.FallbackClassifier{Primary: cfg.Classifier, Secondary: keyword, Known: e.knownDomain}
	} else {
		e.classifier = keyword
	}

	e.validator = validation.New(cfg.Domains, cfg.Reviewer, cfg.Logger)
	if e.scorer, err = quality.NewScorer(pol.Quality); err != nil {
		return nil, err
	}

	var escLedger escalation.Ledger
	var propLedger adaptation.Ledger
	if cfg.Ledger != nil {
		escLedger, propLedger = cfg.Ledger, cfg.Ledger
	}
	e.router, err = escalation.NewRouter(escalation.Config{
		Gate:      e.gate,
		Alerts:    e.alerts,
		Commander: cfg.Commander,
		Ledger:    escLedger,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	e.adaptation = adaptation.New(adaptation.Config{
		Store:     e.store,
		Policy:    pol.Adaptation,
		Escalator: e.router,
		Ledger:    propLedger,
		Logger:    cfg.Logger,
	})
	e.router.SetProposals(e.adaptation)
	e.router.SetRedispatcher(e)
	e.router.OnResolved(e.onEscalationResolved)
	for _, p := range snap.Proposals {
		e.adaptation.Restore(p)
	}
	for _, req := range snap.Escalations {
		e.router.Restore(req)
	}

	if cfg.Memory != nil {
		e.recorder = memory.NewRecorder(cfg.Memory, cfg.Logger)
	}

	e.persistAgents(ctx)
	return e, nil
}

// configSinks fans alerts out to the configured sink and the ledger.
func configSinks(cfg Config) alert.MultiSink {
	sinks := alert.MultiSink{}
	if cfg.Alerts != nil {
		sinks = append(sinks, cfg.Alerts)
	}
	if cfg.Ledger != nil {
		sinks = append(sinks, cfg.Ledger)
	}
	return sinks
}

func fatalConfig(err error) bool {
	return errors.Is(err, errs.ErrConfigInvalid) || errors.Is(err, errs.ErrInvalidDomain)
}

func raiseConfigInvalid(ctx context.Context, sink alert.Sink, logger *logging.DebugLogger, domain, taskID string, cause error) {
	id := "config-invalid:" + cause.Error()
	if taskID != "" {
		id = "config-invalid:" + taskID
	}
	a := models.HumanAlert{
		EventID:   id,
		Kind:      models.AlertConfigInvalid,
		Severity:  models.SeverityCritical,
		Domain:    domain,
		TaskID:    taskID,
		Message:   "Configuration error: " + cause.Error(),
		NextSteps: []string{"colony config", "fix domains.yaml or the policy section and restart"},
		Timestamp: time.Now().UTC(),
	}
	if err := sink.Emit(ctx, a); err != nil {
		logger.Log("alert %s failed: %v", a.EventID, err)
	}
}

func buildGraph(specs []string) (*comm.PolicyGraph, error) {
	if len(specs) == 0 {
		return comm.DefaultPolicyGraph(), nil
	}
	edges := make([]comm.Edge, 0, len(specs))
	for _, s := range specs {
		edge, err := comm.ParseEdge(s)
		if err != nil {
			return nil, fmt.Errorf("policy.gate.edges: %w: %w", err, errs.ErrConfigInvalid)
		}
		edges = append(edges, edge)
	}
	return comm.NewPolicyGraph(edges), nil
}

func (e *Engine) knownDomain(name string) bool {
	_, ok := e.domains[name]
	return ok
}

func (e *Engine) onRevoke(a models.Agent) {
	e.events.Emit(Event{Type: EventAgentRevoked, AgentID: a.ID, Domain: a.Domain,
		Message: fmt.Sprintf("%s revoked after %d violations", a.ID, a.ViolationCount)})
	if e.ledger != nil {
		if err := e.ledger.SaveAgent(context.Background(), a); err != nil {
			e.logger.Log("persist revoked agent %s failed: %v", a.ID, err)
		}
	}
}

// Run processes one task. domain may be empty, in which case the task is
// classified. When the task needs the commander, the result is returned
// together with an error wrapping errs.ErrEscalationRequired.
func (e *Engine) Run(ctx context.Context, description, domain string) (*Result, error) {
	now := time.Now().UTC()
	task := models.Task{
		ID:          uuid.New().String(),
		Description: description,
		Domain:      domain,
		Status:      models.TaskStatusReceived,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	e.saveTask(ctx, task)
	e.events.Emit(Event{Type: EventTaskReceived, TaskID: task.ID, Message: description})
	e.logger.Log("task %s received: %q", task.ID, description)

	if task.Domain == "" {
		d, err := e.classifier.Classify(ctx, description)
		if err != nil {
			return nil, e.failConfig(ctx, task, fmt.Errorf("task %s: %w", task.ID, err))
		}
		task.Domain = d
		e.events.Emit(Event{Type: EventTaskClassified, TaskID: task.ID, Domain: d})
	}
	dc, ok := e.domains[task.Domain]
	if !ok {
		return nil, e.failConfig(ctx, task, fmt.Errorf("task %s: domain %q: %w", task.ID, task.Domain, errs.ErrInvalidDomain))
	}

	slices, err := e.decomposer.Decompose(ctx, &task, task.Domain)
	if err != nil {
		return nil, e.failConfig(ctx, task, fmt.Errorf("task %s: %w", task.ID, err))
	}
	e.advance(ctx, &task, models.TaskStatusSliced)
	e.saveSlices(ctx, slices)
	e.events.Emit(Event{Type: EventTaskSliced, TaskID: task.ID, Domain: task.Domain,
		Message: fmt.Sprintf("%d slices", len(slices))})

	e.advance(ctx, &task, models.TaskStatusExecuting)
	outputs := e.coordinator.Dispatch(ctx, slices)
	e.saveSlices(ctx, slices)
	if len(outputs) == 0 {
		e.emitAlert(ctx, models.HumanAlert{
			EventID:   "no-output:" + task.ID,
			Kind:      models.AlertCollaboratorDown,
			Severity:  models.SeverityCritical,
			Domain:    task.Domain,
			TaskID:    task.ID,
			Message:   fmt.Sprintf("No slice of task %s produced output; the executor may be unavailable.", task.ID),
			NextSteps: []string{"check executor credentials and connectivity", "re-run the task"},
			Timestamp: time.Now().UTC(),
		})
	}

	run := &taskRun{domain: dc, slices: slices, outputs: outputs}
	e.advance(ctx, &task, models.TaskStatusValidating)
	validations := e.evaluate(ctx, run, task.ID)
	e.events.Emit(Event{Type: EventTaskValidated, TaskID: task.ID, Domain: task.Domain,
		Message: fmt.Sprintf("%d violations, %d conflicts", run.merged.TotalViolations, len(run.merged.Conflicts))})

	e.advance(ctx, &task, models.TaskStatusScored)
	e.events.Emit(Event{Type: EventTaskScored, TaskID: task.ID, Domain: task.Domain,
		Message: fmt.Sprintf("%s %.3f", run.report.Status, run.report.QualityScore)})
	if run.report.QualityScore < e.policy.Quality.LowQualityAlert {
		e.emitAlert(ctx, models.HumanAlert{
			EventID:   "low-quality:" + task.ID,
			Kind:      models.AlertLowQuality,
			Severity:  models.SeverityWarning,
			Domain:    task.Domain,
			TaskID:    task.ID,
			Message:   fmt.Sprintf("Task %s scored %.3f (%s).", task.ID, run.report.QualityScore, run.report.Status),
			NextSteps: run.report.Issues,
			Timestamp: time.Now().UTC(),
		})
	}

	run.task = task
	e.mu.Lock()
	e.runs[task.ID] = run
	e.mu.Unlock()

	res := &Result{Validations: validations}
	res.Proposals = e.absorbFriction(ctx, run)

	var escalateErr error
	if reason, detail, needed := e.needsEscalation(run); needed {
		e.advance(ctx, &task, models.TaskStatusEscalated)
		run.mu.Lock()
		run.task = task
		report := run.report
		run.mu.Unlock()
		e.events.Emit(Event{Type: EventTaskEscalated, TaskID: task.ID, Domain: task.Domain, Message: detail})
		// A commander that decides synchronously closes the task through
		// the router's resolution hook before this returns.
		req, err := e.router.EscalateReport(ctx, reason, report, detail)
		if err != nil {
			e.logger.Log("escalate task %s failed: %v", task.ID, err)
		}
		res.Escalation = &req
		if !req.Resolved {
			escalateErr = fmt.Errorf("task %s: %s: %w", task.ID, detail, errs.ErrEscalationRequired)
		}
	}

	run.mu.Lock()
	task = run.task
	report := run.report
	used := memoryIDs(run.slices)
	run.mu.Unlock()
	if err := e.recorder.RecordOutcome(ctx, &task, &report, used); err != nil {
		e.logger.Log("record outcome for %s failed: %v", task.ID, err)
	}

	// An open escalation holds the task at ESCALATED until it resolves.
	if task.Status == models.TaskStatusScored {
		e.finish(ctx, run)
	}
	e.persistAgents(ctx)

	run.mu.Lock()
	res.Task = run.task
	res.Slices = copySlices(run.slices)
	res.Merged = run.merged
	res.Report = run.report
	run.mu.Unlock()
	return res, escalateErr
}

// finish moves a run's task to DONE once, saving and announcing it.
func (e *Engine) finish(ctx context.Context, run *taskRun) {
	run.mu.Lock()
	if run.task.Status == models.TaskStatusDone {
		run.mu.Unlock()
		return
	}
	task := run.task
	if err := task.Advance(models.TaskStatusDone); err != nil {
		run.mu.Unlock()
		e.logger.Log("%v", err)
		return
	}
	run.task = task
	run.mu.Unlock()
	e.saveTask(ctx, task)
	e.events.Emit(Event{Type: EventTaskDone, TaskID: task.ID, Domain: task.Domain})
}

// onEscalationResolved closes the task an escalation was holding.
func (e *Engine) onEscalationResolved(ctx context.Context, req models.EscalationRequest) {
	if req.TaskID == "" {
		return
	}
	e.mu.Lock()
	run, ok := e.runs[req.TaskID]
	e.mu.Unlock()
	if !ok {
		return
	}
	run.mu.Lock()
	escalated := run.task.Status == models.TaskStatusEscalated
	run.mu.Unlock()
	if escalated {
		e.finish(ctx, run)
	}
}

// failConfig raises a config_invalid alert for configuration errors and
// returns err unchanged.
func (e *Engine) failConfig(ctx context.Context, task models.Task, err error) error {
	if fatalConfig(err) {
		raiseConfigInvalid(ctx, e.alerts, e.logger, task.Domain, task.ID, err)
	}
	return err
}

// evaluate validates, merges and scores run, storing the results on it.
func (e *Engine) evaluate(ctx context.Context, run *taskRun, taskID string) []models.ValidationResult {
	run.mu.Lock()
	defer run.mu.Unlock()

	validations := e.validator.ValidateAll(ctx, run.slices, run.outputs)
	outs := make([]models.WorkerOutput, 0, len(run.outputs))
	for _, s := range run.slices {
		if out, ok := run.outputs[s.ID]; ok {
			outs = append(outs, *out)
		}
	}
	run.merged = merge.Merge(taskID, run.domain, outs, validations)
	if err := merge.ConflictError(run.merged); err != nil {
		e.logger.Log("task %s: %v", taskID, err)
	}
	run.report = e.scorer.Score(run.merged)
	run.report.CreatedAt = time.Now().UTC()
	if e.ledger != nil {
		if err := e.ledger.SaveReport(ctx, run.report); err != nil {
			e.logger.Log("persist report %s failed: %v", taskID, err)
		}
	}
	return validations
}

// absorbFriction feeds every friction report to the adaptation engine and
// to memory, returning the proposals that fired.
func (e *Engine) absorbFriction(ctx context.Context, run *taskRun) []models.RuleAdjustmentProposal {
	run.mu.Lock()
	var records []models.FrictionRecord
	for _, s := range run.slices {
		if out, ok := run.outputs[s.ID]; ok && out.Feedback.Friction != nil {
			records = append(records, *out.Feedback.Friction)
		}
	}
	run.mu.Unlock()

	var fired []models.RuleAdjustmentProposal
	for _, f := range records {
		if e.recorder != nil {
			e.recorder.RememberFriction(ctx, f)
		}
		p, err := e.adaptation.Record(ctx, f)
		if err != nil {
			e.logger.Log("friction %s: %v", f.ID, err)
		}
		if p != nil {
			fired = append(fired, *p)
			e.events.Emit(Event{Type: EventProposalCreated, TaskID: run.task.ID, Domain: p.Domain,
				Message: fmt.Sprintf("%s %s: %s %q -> %q", p.Scope, p.Status, p.Change.Kind, p.Change.OldRule, p.Change.NewRule)})
		}
	}
	return fired
}

func (e *Engine) needsEscalation(run *taskRun) (models.EscalationReason, string, bool) {
	run.mu.Lock()
	defer run.mu.Unlock()
	if run.report.Status == models.QABlocked {
		return models.EscalationBlocked, fmt.Sprintf("task blocked with %d violations", run.merged.TotalViolations), true
	}
	if run.merged.TotalViolations > run.domain.ViolationTolerance {
		return models.EscalationToleranceExceeded,
			fmt.Sprintf("%d violations exceed the %s tolerance of %d", run.merged.TotalViolations, run.domain.Name, run.domain.ViolationTolerance), true
	}
	return "", "", false
}

// Redispatch re-runs one slice of a finished task with the domain's current
// envelope adjusted by the resolution, then re-validates, re-merges and
// re-scores the task.
func (e *Engine) Redispatch(ctx context.Context, req models.EscalationRequest, res models.EscalationResolution) error {
	e.mu.Lock()
	run, ok := e.runs[req.TaskID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("task %s: %w", req.TaskID, errs.ErrNotFound)
	}

	run.mu.Lock()
	var old *models.TaskSlice
	idx := -1
	for i, s := range run.slices {
		if s.WorkerOrdinal == res.SliceOrdinal {
			old, idx = s, i
		}
	}
	domain := run.domain.Name
	run.mu.Unlock()
	if old == nil {
		return fmt.Errorf("task %s slice %d: %w", req.TaskID, res.SliceOrdinal, errs.ErrNotFound)
	}

	env, err := e.store.Snapshot(domain)
	if err != nil {
		return err
	}
	env = adjustEnvelope(env, res)

	fresh := *old
	fresh.ID = uuid.New().String()
	fresh.Constraints = env
	fresh.Context = append([]string(nil), old.Context...)
	fresh.Status = models.SliceStatusDispatched
	fresh.Error = ""
	fresh.CompletedAt = nil
	fresh.Directive = ""

	outputs := e.coordinator.Dispatch(ctx, []*models.TaskSlice{&fresh})

	run.mu.Lock()
	delete(run.outputs, old.ID)
	if out, ok := outputs[fresh.ID]; ok {
		run.outputs[fresh.ID] = out
	}
	run.slices[idx] = &fresh
	taskID := run.task.ID
	run.mu.Unlock()

	e.saveSlices(ctx, []*models.TaskSlice{&fresh})
	e.evaluate(ctx, run, taskID)

	run.mu.Lock()
	report := run.report
	run.mu.Unlock()
	e.logger.Log("re-dispatched slice %d of %s: %s, task now %s %.3f",
		res.SliceOrdinal, taskID, fresh.Status, report.Status, report.QualityScore)
	if fresh.Status != models.SliceStatusCompleted {
		return fmt.Errorf("re-dispatched slice %d of %s ended %s: %w", res.SliceOrdinal, taskID, fresh.Status, errs.ErrSliceExecution)
	}
	return nil
}

// adjustEnvelope applies a resolution's slice-local overrides to a snapshot.
// The domain's published envelope is not changed.
func adjustEnvelope(env models.ConstraintEnvelope, res models.EscalationResolution) models.ConstraintEnvelope {
	out := env.Clone()
	for _, rule := range res.DropCannotDo {
		next, err := constraints.ApplyChange(out, models.RuleChange{Kind: models.ChangeRemoveCannotDo, OldRule: rule})
		if err == nil {
			out = next
		}
	}
	for _, rule := range res.CanDo {
		next, err := constraints.ApplyChange(out, models.RuleChange{Kind: models.ChangeAddCanDo, NewRule: rule})
		if err == nil {
			out = next
		}
	}
	return out
}

// Report returns the latest QA report for a task run by this engine.
func (e *Engine) Report(taskID string) (models.QAReport, bool) {
	e.mu.Lock()
	run, ok := e.runs[taskID]
	e.mu.Unlock()
	if !ok {
		return models.QAReport{}, false
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.report, true
}

// ResolveEscalation applies a commander decision.
func (e *Engine) ResolveEscalation(ctx context.Context, id string, res models.EscalationResolution) (models.EscalationRequest, error) {
	return e.router.Resolve(ctx, id, res)
}

// ResolveProposal approves or rejects an escalated proposal, closing the
// escalation that carries it when there is one.
func (e *Engine) ResolveProposal(ctx context.Context, id string, approve bool, note string) (models.RuleAdjustmentProposal, error) {
	action := models.ActionReject
	if approve {
		action = models.ActionApprove
	}
	for _, req := range e.router.Pending() {
		if req.Proposal == nil || req.Proposal.ID != id {
			continue
		}
		resolved, err := e.router.Resolve(ctx, req.ID, models.EscalationResolution{Action: action, Note: note})
		if err != nil {
			return models.RuleAdjustmentProposal{}, err
		}
		return *resolved.Proposal, nil
	}
	p, err := e.adaptation.Resolve(ctx, id, approve, note)
	if err != nil {
		return models.RuleAdjustmentProposal{}, err
	}
	return *p, nil
}

// Gate returns the message gate.
func (e *Engine) Gate() *comm.Gate { return e.gate }

// Registry returns the agent registry.
func (e *Engine) Registry() *comm.Registry { return e.registry }

// Constraints returns the constraint store.
func (e *Engine) Constraints() *constraints.Store { return e.store }

// Adaptation returns the rule adaptation engine.
func (e *Engine) Adaptation() *adaptation.Engine { return e.adaptation }

// Escalations returns the escalation router.
func (e *Engine) Escalations() *escalation.Router { return e.router }

// Events returns the event emitter, which may be nil.
func (e *Engine) Events() *EventEmitter { return e.events }

// Domains returns the configured domain names, sorted.
func (e *Engine) Domains() []string {
	names := make([]string, 0, len(e.domains))
	for n := range e.domains {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) advance(ctx context.Context, t *models.Task, next models.TaskStatus) {
	if err := t.Advance(next); err != nil {
		e.logger.Log("%v", err)
		return
	}
	e.saveTask(ctx, *t)
}

func (e *Engine) saveTask(ctx context.Context, t models.Task) {
	if e.ledger == nil {
		return
	}
	if err := e.ledger.SaveTask(ctx, t); err != nil {
		e.logger.Log("persist task %s failed: %v", t.ID, err)
	}
}

func (e *Engine) saveSlices(ctx context.Context, slices []*models.TaskSlice) {
	if e.ledger == nil {
		return
	}
	if err := e.ledger.SaveSlices(ctx, copySlices(slices)); err != nil {
		e.logger.Log("persist slices failed: %v", err)
	}
}

func (e *Engine) persistAgents(ctx context.Context) {
	if e.ledger == nil {
		return
	}
	var errList []error
	for _, a := range e.registry.All() {
		if err := e.ledger.SaveAgent(ctx, a); err != nil {
			errList = append(errList, err)
		}
	}
	if err := errors.Join(errList...); err != nil {
		e.logger.Log("persist agents: %v", err)
	}
}

func (e *Engine) emitAlert(ctx context.Context, a models.HumanAlert) {
	if err := e.alerts.Emit(ctx, a); err != nil {
		e.logger.Log("alert %s failed: %v", a.EventID, err)
	}
}

func copySlices(in []*models.TaskSlice) []models.TaskSlice {
	out := make([]models.TaskSlice, len(in))
	for i, s := range in {
		out[i] = *s
	}
	return out
}

func memoryIDs(slices []*models.TaskSlice) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range slices {
		for _, id := range s.MemoryIDs {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}
