package orchestrator

import (
	"time"
)

// EventType represents the type of engine event.
type EventType string

const (
	// EventTaskReceived indicates a task was accepted.
	EventTaskReceived EventType = "task_received"
	// EventTaskClassified indicates a task was routed to a domain.
	EventTaskClassified EventType = "task_classified"
	// EventTaskSliced indicates the seven slices were created.
	EventTaskSliced EventType = "task_sliced"
	// EventSliceDispatched indicates a slice was handed to its executor.
	EventSliceDispatched EventType = "slice_dispatched"
	// EventSliceCompleted indicates a slice returned output.
	EventSliceCompleted EventType = "slice_completed"
	// EventSliceFailed indicates a slice failed or its owner was revoked.
	EventSliceFailed EventType = "slice_failed"
	// EventSliceTimedOut indicates a slice passed its deadline.
	EventSliceTimedOut EventType = "slice_timed_out"
	// EventTaskValidated indicates validation and merge finished.
	EventTaskValidated EventType = "task_validated"
	// EventTaskScored indicates a QA report was produced.
	EventTaskScored EventType = "task_scored"
	// EventProposalCreated indicates friction fired a rule proposal.
	EventProposalCreated EventType = "proposal_created"
	// EventTaskEscalated indicates the commander was asked to intervene.
	EventTaskEscalated EventType = "task_escalated"
	// EventTaskDone indicates the pipeline finished for a task.
	EventTaskDone EventType = "task_done"
	// EventAgentRevoked indicates an agent lost its ability to communicate.
	EventAgentRevoked EventType = "agent_revoked"
)

// Event is emitted by the engine as a task moves through the pipeline.
// The CLI renders these as progress lines.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// TaskID is the related task, if any.
	TaskID string
	// SliceID is the related slice, if any.
	SliceID string
	// Ordinal is the slice ordinal for slice events.
	Ordinal int
	// AgentID is the related agent, if any.
	AgentID string
	// Domain is the related domain, if any.
	Domain string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
