package models

import (
	"fmt"
	"time"
)

// TaskStatus represents where a task is in the pipeline.
type TaskStatus string

const (
	// TaskStatusReceived indicates the task was accepted but not sliced.
	TaskStatusReceived TaskStatus = "RECEIVED"
	// TaskStatusSliced indicates the seven slices exist.
	TaskStatusSliced TaskStatus = "SLICED"
	// TaskStatusExecuting indicates slices are dispatched.
	TaskStatusExecuting TaskStatus = "EXECUTING"
	// TaskStatusValidating indicates outputs are being validated and merged.
	TaskStatusValidating TaskStatus = "VALIDATING"
	// TaskStatusScored indicates a QA report exists.
	TaskStatusScored TaskStatus = "SCORED"
	// TaskStatusEscalated indicates the commander was asked to intervene.
	TaskStatusEscalated TaskStatus = "ESCALATED"
	// TaskStatusDone indicates processing finished.
	TaskStatusDone TaskStatus = "DONE"
)

var taskStatusOrder = map[TaskStatus]int{
	TaskStatusReceived:   0,
	TaskStatusSliced:     1,
	TaskStatusExecuting:  2,
	TaskStatusValidating: 3,
	TaskStatusScored:     4,
	TaskStatusEscalated:  5,
	TaskStatusDone:       6,
}

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	_, ok := taskStatusOrder[s]
	return ok
}

// Task is a unit of work submitted to the colony.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Description is the free-text request.
	Description string `json:"description"`
	// Domain is the owning domain, resolved by classification when empty.
	Domain string `json:"domain,omitempty"`
	// Status is the current pipeline stage.
	Status TaskStatus `json:"status"`
	// CreatedAt is when the task was received.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is the time of the last status change.
	UpdatedAt time.Time `json:"updated_at"`
}

// Advance moves the task to next. Transitions are forward-only.
func (t *Task) Advance(next TaskStatus) error {
	cur, ok := taskStatusOrder[t.Status]
	if !ok {
		return fmt.Errorf("task %s: unknown status %q", t.ID, t.Status)
	}
	n, ok := taskStatusOrder[next]
	if !ok {
		return fmt.Errorf("task %s: unknown status %q", t.ID, next)
	}
	if n <= cur {
		return fmt.Errorf("task %s: cannot move from %s to %s", t.ID, t.Status, next)
	}
	t.Status = next
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// SliceStatus represents the lifecycle of a single slice.
type SliceStatus string

const (
	// SliceStatusDispatched indicates the slice was handed to its worker.
	SliceStatusDispatched SliceStatus = "DISPATCHED"
	// SliceStatusRunning indicates the executor is working on the slice.
	SliceStatusRunning SliceStatus = "RUNNING"
	// SliceStatusCompleted indicates the executor returned output.
	SliceStatusCompleted SliceStatus = "COMPLETED"
	// SliceStatusFailed indicates the executor failed or the owner was revoked.
	SliceStatusFailed SliceStatus = "FAILED"
	// SliceStatusTimedOut indicates the per-slice deadline passed.
	SliceStatusTimedOut SliceStatus = "TIMED_OUT"
)

// Valid returns true if the status is a known value.
func (s SliceStatus) Valid() bool {
	switch s {
	case SliceStatusDispatched, SliceStatusRunning, SliceStatusCompleted,
		SliceStatusFailed, SliceStatusTimedOut:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions are possible.
func (s SliceStatus) Terminal() bool {
	return s == SliceStatusCompleted || s == SliceStatusFailed || s == SliceStatusTimedOut
}

// SlicesPerTask is the fixed fan-out for every sliced task.
const SlicesPerTask = 7

// TaskSlice is one of the seven constrained sub-tasks of a Task.
type TaskSlice struct {
	// ID is the unique identifier for this slice.
	ID string `json:"id"`
	// TaskID is the parent task.
	TaskID string `json:"task_id"`
	// Domain is the parent task's domain.
	Domain string `json:"domain"`
	// WorkerOrdinal is the 1..7 position within the domain pool.
	WorkerOrdinal int `json:"worker_ordinal"`
	// WorkerID is the registered agent that owns the slice.
	WorkerID string `json:"worker_id"`
	// Description tells the worker what to produce.
	Description string `json:"description"`
	// Target is the single file or artifact the worker may produce.
	Target string `json:"target"`
	// Constraints is a snapshot copy taken at dispatch time.
	Constraints ConstraintEnvelope `json:"constraints"`
	// Context holds memory snippets relevant to the slice.
	Context []string `json:"context,omitempty"`
	// MemoryIDs are the memories Context was built from.
	MemoryIDs []string `json:"memory_ids,omitempty"`
	// Directive is a warning injected into the worker's instructions, if any.
	Directive string `json:"directive,omitempty"`
	// Status is the slice lifecycle state.
	Status SliceStatus `json:"status"`
	// Error describes why the slice failed or timed out.
	Error string `json:"error,omitempty"`
	// DispatchedAt is when the slice was handed to the executor.
	DispatchedAt time.Time `json:"dispatched_at,omitempty"`
	// CompletedAt is when the slice reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
