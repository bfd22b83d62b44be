package comm

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ShayCichocki/colony/internal/errs"
	"github.com/ShayCichocki/colony/pkg/models"
)

// DefaultRevocationThreshold is the violation count that revokes an agent.
const DefaultRevocationThreshold = 3

// Registry tracks every agent's lifecycle state and violation counter.
// Agents are never removed; revoked agents remain as tombstones.
type Registry struct {
	// agents maps agent IDs to their entries.
	agents map[string]*entry
	// mu protects the agents map and listeners, not entry contents.
	mu        sync.RWMutex
	threshold int
	listeners []func(models.Agent)
}

// entry serializes all mutation of a single agent.
type entry struct {
	// ep is fixed at registration and safe to read without mu.
	ep        Endpoint
	mu        sync.Mutex
	agent     models.Agent
	history   []models.ViolationLogEntry
	directive string
	// revoked mirrors agent.State == REVOKED for lock-free reads.
	revoked atomic.Bool
}

// NewRegistry creates a registry that revokes agents at threshold violations.
// A threshold below 1 uses DefaultRevocationThreshold.
func NewRegistry(threshold int) *Registry {
	if threshold < 1 {
		threshold = DefaultRevocationThreshold
	}
	return &Registry{
		agents:    make(map[string]*entry),
		threshold: threshold,
	}
}

// Threshold returns the revocation threshold.
func (r *Registry) Threshold() int {
	return r.threshold
}

// Register adds an agent in the ACTIVE state. Registering an ID that
// already exists is a no-op, so tombstones cannot be reset.
func (r *Registry) Register(a models.Agent) error {
	if a.ID == "" {
		return fmt.Errorf("register agent: empty id: %w", errs.ErrConfigInvalid)
	}
	if !a.Role.Valid() {
		return fmt.Errorf("register agent %s: unknown role %q: %w", a.ID, a.Role, errs.ErrConfigInvalid)
	}
	if a.Role.DomainScoped() && a.Domain == "" {
		return fmt.Errorf("register agent %s: role %s requires a domain: %w", a.ID, a.Role, errs.ErrConfigInvalid)
	}
	if !a.Role.DomainScoped() {
		a.Domain = ""
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[a.ID]; ok {
		return nil
	}
	a.State = models.AgentStateActive
	a.ViolationCount = 0
	a.RevokedAt = nil
	if a.RegisteredAt.IsZero() {
		a.RegisteredAt = time.Now().UTC()
	}
	r.agents[a.ID] = &entry{ep: EndpointOf(a), agent: a}
	return nil
}

// Restore loads a persisted agent, preserving its state and counter.
// Used at startup to rebuild tombstones; existing IDs are left untouched.
func (r *Registry) Restore(a models.Agent, history []models.ViolationLogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[a.ID]; ok {
		return
	}
	e := &entry{ep: EndpointOf(a), agent: a, history: append([]models.ViolationLogEntry(nil), history...)}
	e.revoked.Store(a.State == models.AgentStateRevoked)
	r.agents[a.ID] = e
}

// OnRevoke registers fn to be called, outside any registry lock, each
// time an agent becomes REVOKED.
func (r *Registry) OnRevoke(fn func(models.Agent)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *Registry) lookup(id string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.agents[id]
}

// Get returns a copy of the agent.
func (r *Registry) Get(id string) (models.Agent, bool) {
	e := r.lookup(id)
	if e == nil {
		return models.Agent{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agent, true
}

// IsRevoked reports whether the agent is revoked. Unknown agents are not.
func (r *Registry) IsRevoked(id string) bool {
	e := r.lookup(id)
	return e != nil && e.revoked.Load()
}

// All returns copies of every agent sorted by ID.
func (r *Registry) All() []models.Agent {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.agents))
	for _, e := range r.agents {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]models.Agent, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.agent)
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Active returns every agent currently in the ACTIVE state.
func (r *Registry) Active() []models.Agent {
	var out []models.Agent
	for _, a := range r.All() {
		if a.State == models.AgentStateActive {
			out = append(out, a)
		}
	}
	return out
}

// Count returns the number of registered agents, tombstones included.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// History returns the agent's violation log entries in order.
func (r *Registry) History(id string) []models.ViolationLogEntry {
	e := r.lookup(id)
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.ViolationLogEntry(nil), e.history...)
}

// TakeDirective returns and clears the pending warning for the agent.
func (r *Registry) TakeDirective(id string) string {
	e := r.lookup(id)
	if e == nil {
		return ""
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	d := e.directive
	e.directive = ""
	return d
}

// WorkerCapacity returns the number of workers registered for the domain
// and how many of them are revoked.
func (r *Registry) WorkerCapacity(domain string) (total, revoked int) {
	for _, a := range r.All() {
		if a.Role != models.RoleWorker || a.Domain != domain {
			continue
		}
		total++
		if a.State == models.AgentStateRevoked {
			revoked++
		}
	}
	return total, revoked
}

// violation is the outcome of recording one denied send.
type violation struct {
	agent     models.Agent
	entry     models.ViolationLogEntry
	newlyDead bool
	history   []models.ViolationLogEntry
	listeners []func(models.Agent)
	prevState models.AgentState
	directive string
}

// recordViolation increments the sender's counter and advances its state.
// build receives the new count and returns the log entry to append.
// Callers must hold e.mu.
func (r *Registry) recordViolation(e *entry, build func(count int) models.ViolationLogEntry) violation {
	prev := e.agent.State
	e.agent.ViolationCount++
	count := e.agent.ViolationCount

	logEntry := build(count)
	e.history = append(e.history, logEntry)

	next := models.StateForCount(count, r.threshold)
	if next.Rank() > prev.Rank() {
		e.agent.State = next
	}

	v := violation{
		entry:     logEntry,
		prevState: prev,
	}
	switch e.agent.State {
	case models.AgentStateRevoked:
		if prev != models.AgentStateRevoked {
			now := time.Now().UTC()
			e.agent.RevokedAt = &now
			e.revoked.Store(true)
			e.directive = ""
			v.newlyDead = true
			v.history = append([]models.ViolationLogEntry(nil), e.history...)
			r.mu.RLock()
			v.listeners = append([]func(models.Agent){}, r.listeners...)
			r.mu.RUnlock()
		}
	default:
		e.directive = survivalNotice(e.agent, logEntry.Reason, r.threshold)
		v.directive = e.directive
	}
	v.agent = e.agent
	return v
}
