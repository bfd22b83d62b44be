package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ShayCichocki/colony/internal/comm"
	"github.com/ShayCichocki/colony/internal/errs"
	"github.com/ShayCichocki/colony/internal/logging"
	"github.com/ShayCichocki/colony/internal/orchestrator/policy"
	"github.com/ShayCichocki/colony/internal/retry"
	"github.com/ShayCichocki/colony/pkg/models"
)

// Executor performs the work of one slice.
type Executor interface {
	Execute(ctx context.Context, slice models.TaskSlice) (*models.WorkerOutput, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, slice models.TaskSlice) (*models.WorkerOutput, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, slice models.TaskSlice) (*models.WorkerOutput, error) {
	return f(ctx, slice)
}

// CoordinatorConfig wires a Coordinator.
type CoordinatorConfig struct {
	Executor Executor
	Gate     *comm.Gate
	Policy   policy.ExecutionPolicy
	Events   *EventEmitter
	Logger   *logging.DebugLogger
}

// Coordinator fans slices out to their workers and joins the results.
type Coordinator struct {
	executor Executor
	gate     *comm.Gate
	registry *comm.Registry
	timeout  time.Duration
	backoff  retry.Backoff
	events   *EventEmitter
	logger   *logging.DebugLogger

	mu       sync.RWMutex
	inFlight map[string]*running
}

// running tracks one executing slice.
type running struct {
	sliceID      string
	worker       string
	orchestrator string
	cancel       context.CancelCauseFunc
}

// NewCoordinator creates a Coordinator and subscribes it to revocations so
// in-flight slices of a revoked worker or orchestrator stop.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("coordinator: executor required: %w", errs.ErrConfigInvalid)
	}
	if cfg.Gate == nil {
		return nil, fmt.Errorf("coordinator: gate required: %w", errs.ErrConfigInvalid)
	}
	timeout := cfg.Policy.SliceTimeout
	if timeout <= 0 {
		timeout = policy.Default().Execution.SliceTimeout
	}
	c := &Coordinator{
		executor: cfg.Executor,
		gate:     cfg.Gate,
		registry: cfg.Gate.Registry(),
		timeout:  timeout,
		backoff: retry.Backoff{
			MaxRetries: cfg.Policy.MaxRetries,
			Base:       cfg.Policy.BackoffBase,
			Max:        cfg.Policy.BackoffMax,
		},
		events:   cfg.Events,
		logger:   cfg.Logger.With("coordinator"),
		inFlight: make(map[string]*running),
	}
	c.registry.OnRevoke(c.onRevoke)
	cfg.Gate.SetInFlight(c.InFlight)
	return c, nil
}

// InFlight returns the IDs of executing slices owned by agentID, either as
// the slice's worker or as its domain orchestrator.
func (c *Coordinator) InFlight(agentID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for _, r := range c.inFlight {
		if r.worker == agentID || r.orchestrator == agentID {
			out = append(out, r.sliceID)
		}
	}
	sort.Strings(out)
	return out
}

func (c *Coordinator) onRevoke(a models.Agent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.inFlight {
		if r.worker == a.ID || r.orchestrator == a.ID {
			r.cancel(fmt.Errorf("%s revoked: %w", a.ID, errs.ErrAgentRevoked))
		}
	}
}

// Dispatch runs every slice concurrently and waits for all of them, never
// longer than the slice timeout plus delivery of the last result. Slices
// are updated in place with their terminal status. The returned map holds
// outputs of COMPLETED slices keyed by slice ID.
func (c *Coordinator) Dispatch(ctx context.Context, slices []*models.TaskSlice) map[string]*models.WorkerOutput {
	outputs := make(map[string]*models.WorkerOutput, len(slices))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, s := range slices {
		wg.Add(1)
		go func(s *models.TaskSlice) {
			defer wg.Done()
			if out := c.run(ctx, s); out != nil {
				mu.Lock()
				outputs[s.ID] = out
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()
	return outputs
}

type execResult struct {
	out *models.WorkerOutput
	err error
}

// run executes one slice under its deadline. It owns s until it returns.
func (c *Coordinator) run(ctx context.Context, s *models.TaskSlice) *models.WorkerOutput {
	orch := comm.OrchestratorID(s.Domain)

	if err := c.revocationCheck(s.WorkerID, orch); err != nil {
		c.finish(s, models.SliceStatusFailed, err)
		return nil
	}

	sctx, cancelTimeout := context.WithTimeoutCause(ctx, c.timeout,
		fmt.Errorf("slice %s after %s: %w", s.ID, c.timeout, errs.ErrSliceTimeout))
	defer cancelTimeout()
	sctx, cancel := context.WithCancelCause(sctx)
	defer cancel(nil)

	c.mu.Lock()
	c.inFlight[s.ID] = &running{sliceID: s.ID, worker: s.WorkerID, orchestrator: orch, cancel: cancel}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inFlight, s.ID)
		c.mu.Unlock()
	}()

	now := time.Now().UTC()
	s.Status = models.SliceStatusRunning
	s.DispatchedAt = now
	if d := c.registry.TakeDirective(s.WorkerID); d != "" {
		s.Directive = d
	}

	work := *s
	work.Constraints = s.Constraints.Clone()
	work.Context = append([]string(nil), s.Context...)

	c.events.Emit(Event{Type: EventSliceDispatched, TaskID: s.TaskID, SliceID: s.ID, Ordinal: s.WorkerOrdinal, AgentID: s.WorkerID, Domain: s.Domain})
	c.logger.Log("dispatch slice %d of %s to %s", s.WorkerOrdinal, s.TaskID, s.WorkerID)

	// Buffered so a late result after timeout is dropped without blocking.
	done := make(chan execResult, 1)
	go func() {
		var out *models.WorkerOutput
		err := c.backoff.Do(sctx, func(attempt int) error {
			if attempt > 0 {
				c.logger.Log("retry %d of slice %s", attempt, s.ID)
			}
			o, err := c.executor.Execute(sctx, work)
			if err != nil {
				return err
			}
			out = o
			return nil
		})
		done <- execResult{out: out, err: err}
	}()

	var res execResult
	select {
	case res = <-done:
	case <-sctx.Done():
	}

	if sctx.Err() != nil {
		cause := context.Cause(sctx)
		switch {
		case errors.Is(cause, errs.ErrSliceTimeout):
			c.finish(s, models.SliceStatusTimedOut, cause)
		case errors.Is(cause, errs.ErrAgentRevoked):
			c.finish(s, models.SliceStatusFailed, cause)
		default:
			c.finish(s, models.SliceStatusFailed, fmt.Errorf("slice %s cancelled: %w", s.ID, cause))
		}
		return nil
	}

	if res.err != nil {
		c.finish(s, models.SliceStatusFailed, fmt.Errorf("%w: %w", errs.ErrSliceExecution, res.err))
		return nil
	}
	if res.out == nil {
		c.finish(s, models.SliceStatusFailed, fmt.Errorf("%w: executor returned no output", errs.ErrSliceExecution))
		return nil
	}

	out := *res.out
	out.SliceID = s.ID
	out.TaskID = s.TaskID
	out.WorkerOrdinal = s.WorkerOrdinal
	out.WorkerID = s.WorkerID
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}
	if f := out.Feedback.Friction; f != nil {
		fr := *f
		fr.Domain = s.Domain
		fr.WorkerOrdinal = s.WorkerOrdinal
		if fr.ID == "" {
			fr.ID = "friction:" + s.ID
		}
		out.Feedback.Friction = &fr
	}

	c.sendOutbound(ctx, s, out.Outbound)

	// A worker revoked by its own chatter, or whose orchestrator was revoked
	// meanwhile, does not deliver.
	if err := c.revocationCheck(s.WorkerID, orch); err != nil {
		c.finish(s, models.SliceStatusFailed, err)
		return nil
	}

	c.finish(s, models.SliceStatusCompleted, nil)
	return &out
}

// sendOutbound passes each outbound message through the gate. The sender is
// always the slice's worker regardless of what the executor claimed.
func (c *Coordinator) sendOutbound(ctx context.Context, s *models.TaskSlice, msgs []models.Message) {
	for i, m := range msgs {
		m.From = s.WorkerID
		if m.ID == "" {
			m.ID = fmt.Sprintf("%s:out:%d", s.ID, i)
		}
		if m.Timestamp.IsZero() {
			m.Timestamp = time.Now().UTC()
		}
		d, err := c.gate.Send(ctx, m)
		if err != nil {
			c.logger.Log("outbound %s from %s to %s: %s (%v)", m.ID, m.From, m.To, d.Kind, err)
		}
	}
}

func (c *Coordinator) revocationCheck(worker, orch string) error {
	for _, id := range []string{worker, orch} {
		if c.registry.IsRevoked(id) {
			return fmt.Errorf("%s revoked: %w", id, errs.ErrAgentRevoked)
		}
	}
	return nil
}

func (c *Coordinator) finish(s *models.TaskSlice, status models.SliceStatus, err error) {
	now := time.Now().UTC()
	s.Status = status
	s.CompletedAt = &now
	ev := Event{TaskID: s.TaskID, SliceID: s.ID, Ordinal: s.WorkerOrdinal, AgentID: s.WorkerID, Domain: s.Domain, Error: err}
	switch status {
	case models.SliceStatusCompleted:
		ev.Type = EventSliceCompleted
	case models.SliceStatusTimedOut:
		ev.Type = EventSliceTimedOut
	default:
		ev.Type = EventSliceFailed
	}
	if err != nil {
		s.Error = err.Error()
		c.logger.Log("slice %d of %s %s: %v", s.WorkerOrdinal, s.TaskID, status, err)
	}
	c.events.Emit(ev)
}
