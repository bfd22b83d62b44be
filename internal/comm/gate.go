package comm

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ShayCichocki/colony/internal/alert"
	"github.com/ShayCichocki/colony/internal/errs"
	"github.com/ShayCichocki/colony/internal/logging"
	"github.com/ShayCichocki/colony/pkg/models"
)

// DecisionKind explains a gate decision.
type DecisionKind string

const (
	DecisionAllowed          DecisionKind = "allowed"
	DecisionException        DecisionKind = "exception"
	DecisionHierarchy        DecisionKind = "hierarchy_violation"
	DecisionSenderRevoked    DecisionKind = "sender_revoked"
	DecisionRecipientRevoked DecisionKind = "recipient_revoked"
	DecisionUnknownSender    DecisionKind = "unknown_sender"
	DecisionUnknownRecipient DecisionKind = "unknown_recipient"
)

// Decision is the gate's verdict on one send.
type Decision struct {
	Allowed   bool         `json:"allowed"`
	Kind      DecisionKind `json:"kind"`
	Reason    string       `json:"reason"`
	Sender    string       `json:"sender"`
	Recipient string       `json:"recipient"`
	Channel   string       `json:"channel"`
	// ViolationCount is the sender's count after this decision.
	ViolationCount int `json:"violation_count"`
	// Counted is true when this decision incremented the sender's counter.
	Counted bool `json:"counted"`
}

// Err converts a denial into the error taxonomy. Returns nil for ALLOW.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Kind {
	case DecisionSenderRevoked, DecisionRecipientRevoked:
		return fmt.Errorf("%s -> %s: %s: %w", d.Sender, d.Recipient, d.Reason, errs.ErrAgentRevoked)
	default:
		return fmt.Errorf("%s -> %s: %s: %w", d.Sender, d.Recipient, d.Reason, errs.ErrPolicyViolation)
	}
}

// ViolationLog is the append-only store for denied sends.
// AppendViolation must be idempotent by EventID.
type ViolationLog interface {
	AppendViolation(ctx context.Context, e models.ViolationLogEntry) error
}

// Deliverer is the transport the gate hands allowed messages to.
type Deliverer interface {
	Send(ctx context.Context, msg models.Message) error
}

// GateConfig wires a Gate.
type GateConfig struct {
	Graph     *PolicyGraph
	Registry  *Registry
	Log       ViolationLog
	Alerts    alert.Sink
	Transport Deliverer
	Logger    *logging.DebugLogger
	// CacheSize bounds the redelivery cache; defaults to 4096.
	CacheSize int
}

// Gate is the single choke point for inter-agent messages.
type Gate struct {
	graph     *PolicyGraph
	registry  *Registry
	log       ViolationLog
	alerts    alert.Sink
	logger    *logging.DebugLogger
	transport Deliverer

	// cache holds decisions by message ID so redeliveries have no new effects.
	cache   *lru.Cache[string, *pendingDecision]
	cacheMu sync.Mutex

	inFlightMu sync.RWMutex
	inFlight   func(agentID string) []string

	entriesMu sync.Mutex
	entries   []models.ViolationLogEntry
}

type pendingDecision struct {
	done chan struct{}
	d    Decision
}

// NewGate creates a gate. Graph and Registry are required.
func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("gate: registry required: %w", errs.ErrConfigInvalid)
	}
	if cfg.Graph == nil {
		cfg.Graph = DefaultPolicyGraph()
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 4096
	}
	cache, err := lru.New[string, *pendingDecision](size)
	if err != nil {
		return nil, fmt.Errorf("gate: decision cache: %w", err)
	}
	return &Gate{
		graph:     cfg.Graph,
		registry:  cfg.Registry,
		log:       cfg.Log,
		alerts:    cfg.Alerts,
		logger:    cfg.Logger.With("gate"),
		transport: cfg.Transport,
		cache:     cache,
	}, nil
}

// Registry returns the registry the gate consults.
func (g *Gate) Registry() *Registry {
	return g.registry
}

// SetInFlight installs the lookup used to report a revoked agent's
// in-flight slices.
func (g *Gate) SetInFlight(fn func(agentID string) []string) {
	g.inFlightMu.Lock()
	defer g.inFlightMu.Unlock()
	g.inFlight = fn
}

// SetTransport installs the transport used by Send and for notices.
func (g *Gate) SetTransport(d Deliverer) {
	g.inFlightMu.Lock()
	defer g.inFlightMu.Unlock()
	g.transport = d
}

func (g *Gate) deliverer() Deliverer {
	g.inFlightMu.RLock()
	defer g.inFlightMu.RUnlock()
	return g.transport
}

// Authorize decides whether sender may message recipient on channel.
// Every call is evaluated afresh; use Check for message-level idempotence.
func (g *Gate) Authorize(ctx context.Context, sender, recipient, channel string) Decision {
	return g.evaluate(ctx, sender, recipient, channel, "", "")
}

// Check authorizes a concrete message. A message ID seen before returns
// the original decision without repeating any side effect.
func (g *Gate) Check(ctx context.Context, msg models.Message) Decision {
	channel := msg.Channel
	if channel == "" {
		channel = models.ChannelDirect
	}
	if msg.ID == "" {
		return g.evaluate(ctx, msg.From, msg.To, channel, "", msg.Body)
	}

	g.cacheMu.Lock()
	if p, ok := g.cache.Get(msg.ID); ok {
		g.cacheMu.Unlock()
		<-p.done
		g.logger.Log("redelivered message %s: returning cached %s", msg.ID, p.d.Kind)
		return p.d
	}
	p := &pendingDecision{done: make(chan struct{})}
	g.cache.Add(msg.ID, p)
	g.cacheMu.Unlock()

	p.d = g.evaluate(ctx, msg.From, msg.To, channel, msg.ID, msg.Body)
	close(p.done)
	return p.d
}

// Send checks msg and hands it to the transport only when allowed.
func (g *Gate) Send(ctx context.Context, msg models.Message) (Decision, error) {
	d := g.Check(ctx, msg)
	if !d.Allowed {
		return d, d.Err()
	}
	t := g.deliverer()
	if t == nil {
		return d, nil
	}
	if msg.Channel == "" {
		msg.Channel = models.ChannelDirect
	}
	if err := t.Send(ctx, msg); err != nil {
		return d, fmt.Errorf("deliver %s: %w", msg.ID, err)
	}
	return d, nil
}

// Violations returns every violation recorded by this gate, in order.
func (g *Gate) Violations() []models.ViolationLogEntry {
	g.entriesMu.Lock()
	defer g.entriesMu.Unlock()
	return append([]models.ViolationLogEntry(nil), g.entries...)
}

func (g *Gate) evaluate(ctx context.Context, sender, recipient, channel, msgID, body string) Decision {
	d := Decision{Sender: sender, Recipient: recipient, Channel: channel}

	se := g.registry.lookup(sender)
	if se == nil {
		d.Kind = DecisionUnknownSender
		d.Reason = fmt.Sprintf("sender %q is not registered", sender)
		g.logger.Log("DENY %s -> %s: %s", sender, recipient, d.Reason)
		return d
	}
	re := g.registry.lookup(recipient)

	se.mu.Lock()
	d.ViolationCount = se.agent.ViolationCount
	switch {
	case se.revoked.Load():
		se.mu.Unlock()
		d.Kind = DecisionSenderRevoked
		d.Reason = fmt.Sprintf("sender %s is revoked", sender)
		g.logger.Log("DENY %s -> %s: %s", sender, recipient, d.Reason)
		return d
	case re == nil:
		// Unknown recipients are charged like hierarchy violations.
		d.Kind = DecisionUnknownRecipient
		return g.countViolation(ctx, se, d, fmt.Sprintf("recipient %q is not registered", recipient), msgID, body)
	case re.revoked.Load():
		se.mu.Unlock()
		d.Kind = DecisionRecipientRevoked
		d.Reason = fmt.Sprintf("recipient %s is revoked", recipient)
		g.logger.Log("DENY %s -> %s: %s", sender, recipient, d.Reason)
		return d
	}

	from, to := se.ep, re.ep
	if g.graph.Allows(from, to) {
		se.mu.Unlock()
		d.Allowed = true
		d.Kind = DecisionAllowed
		d.Reason = "permitted by hierarchy"
		return d
	}
	if rule, ok := exception(from, to, channel); ok {
		se.mu.Unlock()
		d.Allowed = true
		d.Kind = DecisionException
		d.Reason = rule
		return d
	}

	d.Kind = DecisionHierarchy
	return g.countViolation(ctx, se, d, fmt.Sprintf("%s cannot message %s", describe(from), describe(to)), msgID, body)
}

// countViolation charges the sender for a denied send. Callers must hold
// se.mu; it is released here.
func (g *Gate) countViolation(ctx context.Context, se *entry, d Decision, reason, msgID, body string) Decision {
	sender, recipient, channel := d.Sender, d.Recipient, d.Channel
	v := g.registry.recordViolation(se, func(count int) models.ViolationLogEntry {
		return models.ViolationLogEntry{
			EventID:        fmt.Sprintf("violation:%s:%d", sender, count),
			Timestamp:      time.Now().UTC(),
			Sender:         sender,
			Recipient:      recipient,
			Channel:        channel,
			Reason:         reason,
			Excerpt:        excerpt(body),
			ViolationCount: count,
		}
	})
	se.mu.Unlock()

	d.Reason = reason
	d.ViolationCount = v.agent.ViolationCount
	d.Counted = true

	g.entriesMu.Lock()
	g.entries = append(g.entries, v.entry)
	g.entriesMu.Unlock()

	g.logger.Log("VIOLATION %s -> %s msg=%s (count=%d, state=%s): %s", sender, recipient, msgID, v.agent.ViolationCount, v.agent.State, reason)
	if g.log != nil {
		if err := g.log.AppendViolation(ctx, v.entry); err != nil {
			g.logger.Log("append violation %s failed: %v", v.entry.EventID, err)
		}
	}
	if v.newlyDead {
		g.revoke(ctx, v)
	}
	return d
}

// revoke runs the side effects of a fresh revocation.
func (g *Gate) revoke(ctx context.Context, v violation) {
	a := v.agent
	g.logger.Log("REVOKED %s after %d violations", a.ID, a.ViolationCount)

	g.inFlightMu.RLock()
	inFlight := g.inFlight
	g.inFlightMu.RUnlock()
	var slices []string
	if inFlight != nil {
		slices = inFlight(a.ID)
	}

	pct, remaining := g.capacityImpact(a)
	if g.alerts != nil {
		alertMsg := fmt.Sprintf("Agent %s (%s) revoked after %d violations. %d in-flight slices affected.",
			a.ID, a.Role, a.ViolationCount, len(slices))
		if a.Domain != "" {
			alertMsg += fmt.Sprintf(" Domain %s capacity reduced by %.1f%% (%d workers remain).", a.Domain, pct, remaining)
		}
		err := g.alerts.Emit(ctx, models.HumanAlert{
			EventID:              "revoked:" + a.ID,
			Kind:                 models.AlertAgentRevoked,
			Severity:             models.SeverityCritical,
			AgentID:              a.ID,
			Domain:               a.Domain,
			ViolationHistory:     v.history,
			InFlightSlices:       slices,
			CapacityReductionPct: pct,
			Message:              alertMsg,
			NextSteps: []string{
				"Review the violation history for the revoked agent",
				"Check that in-flight slices were marked FAILED and re-dispatch if needed",
				"Register a replacement agent under a new ID to restore capacity",
			},
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			g.logger.Log("emit revocation alert for %s failed: %v", a.ID, err)
		}
		if belowUsable(a, remaining) {
			err := g.alerts.Emit(ctx, models.HumanAlert{
				EventID:  fmt.Sprintf("capacity-loss:%s:%d", a.Domain, remaining),
				Kind:     models.AlertCapacityLoss,
				Severity: models.SeverityCritical,
				AgentID:  a.ID,
				Domain:   a.Domain,
				Message: fmt.Sprintf("Domain %s is below usable capacity after revoking %s: %d of %d workers remain.",
					a.Domain, a.ID, remaining, models.SlicesPerTask),
				NextSteps: []string{
					"Register replacement agents under new IDs",
					"Route new tasks for this domain elsewhere until capacity is restored",
				},
				Timestamp: time.Now().UTC(),
			})
			if err != nil {
				g.logger.Log("emit capacity alert for %s failed: %v", a.Domain, err)
			}
		}
	}

	g.broadcastDeath(ctx, a)

	for _, fn := range v.listeners {
		fn(a)
	}
}

// capacityImpact returns the percentage of domain worker capacity lost by
// revoking a, and how many workers remain.
func (g *Gate) capacityImpact(a models.Agent) (float64, int) {
	if a.Domain == "" {
		return 0, 0
	}
	total, revoked := g.registry.WorkerCapacity(a.Domain)
	remaining := total - revoked
	switch a.Role {
	case models.RoleWorker:
		if total == 0 {
			return 0, 0
		}
		return 100 / float64(total), remaining
	case models.RoleOrchestrator:
		// Without its orchestrator the domain cannot dispatch at all.
		return 100, 0
	default:
		return 0, remaining
	}
}

// belowUsable reports whether a domain can no longer cover most of a
// task's slices: fewer than half its workers remain, or its orchestrator
// is gone.
func belowUsable(a models.Agent, remaining int) bool {
	if a.Domain == "" {
		return false
	}
	switch a.Role {
	case models.RoleWorker, models.RoleOrchestrator:
		return remaining*2 < models.SlicesPerTask
	}
	return false
}

func (g *Gate) broadcastDeath(ctx context.Context, dead models.Agent) {
	t := g.deliverer()
	if t == nil {
		return
	}
	body := deathNotice(dead, g.registry.Threshold())
	for _, a := range g.registry.Active() {
		if a.ID == dead.ID {
			continue
		}
		msg := models.Message{
			ID:        fmt.Sprintf("death:%s:%s", dead.ID, a.ID),
			From:      models.SystemSender,
			To:        a.ID,
			Channel:   models.ChannelSystem,
			Subject:   "AGENT REVOKED: " + dead.ID,
			Body:      body,
			Timestamp: time.Now().UTC(),
		}
		if err := t.Send(ctx, msg); err != nil {
			g.logger.Log("death notice to %s failed: %v", a.ID, err)
		}
	}
}

func describe(e Endpoint) string {
	if e.Domain == "" {
		return string(e.Role)
	}
	return fmt.Sprintf("%s(%s)", e.Role, e.Domain)
}

func excerpt(body string) string {
	const limit = 100
	r := []rune(body)
	if len(r) <= limit {
		return body
	}
	return string(r[:limit])
}
