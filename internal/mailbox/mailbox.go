// Package mailbox delivers gated messages to per-agent queues and exposes
// them over an authenticated HTTP API.
package mailbox

import (
	"context"
	"sync"

	"github.com/ShayCichocki/colony/internal/comm"
	"github.com/ShayCichocki/colony/internal/logging"
	"github.com/ShayCichocki/colony/pkg/models"
)

// Transport moves messages between agents. Send is only ever called with
// messages the gate allowed.
type Transport interface {
	Send(ctx context.Context, msg models.Message) error
	Poll(ctx context.Context, agentID string) ([]models.Message, error)
}

// DefaultQueueSize bounds each agent's queue.
const DefaultQueueSize = 256

// Mailbox is an in-memory Transport with one bounded FIFO per recipient.
// When a queue is full the oldest message is dropped.
type Mailbox struct {
	mu      sync.Mutex
	queues  map[string][]models.Message
	limit   int
	dropped int
	logger  *logging.DebugLogger
}

var (
	_ Transport      = (*Mailbox)(nil)
	_ comm.Deliverer = (*Mailbox)(nil)
)

// New creates a mailbox. limit <= 0 uses DefaultQueueSize.
func New(limit int, logger *logging.DebugLogger) *Mailbox {
	if limit <= 0 {
		limit = DefaultQueueSize
	}
	return &Mailbox{
		queues: make(map[string][]models.Message),
		limit:  limit,
		logger: logger.With("mailbox"),
	}
}

// Send enqueues msg for its recipient.
func (m *Mailbox) Send(_ context.Context, msg models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := append(m.queues[msg.To], msg)
	if len(q) > m.limit {
		m.dropped++
		m.logger.Log("queue for %s full: dropped %s", msg.To, q[0].ID)
		q = q[1:]
	}
	m.queues[msg.To] = q
	return nil
}

// Poll drains and returns the agent's queue, oldest first.
func (m *Mailbox) Poll(_ context.Context, agentID string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[agentID]
	delete(m.queues, agentID)
	return q, nil
}

// Pending returns the number of queued messages for the agent.
func (m *Mailbox) Pending(agentID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[agentID])
}

// Dropped returns how many messages were discarded by full queues.
func (m *Mailbox) Dropped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}
