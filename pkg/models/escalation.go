package models

import "time"

// EscalationReason names what triggered an escalation.
type EscalationReason string

const (
	EscalationMajorProposal     EscalationReason = "major_proposal"
	EscalationToleranceExceeded EscalationReason = "violation_tolerance_exceeded"
	EscalationBlocked           EscalationReason = "blocked"
)

// EscalationAction is the commander's decision.
type EscalationAction string

const (
	// ActionApprove accepts the escalated proposal.
	ActionApprove EscalationAction = "approve"
	// ActionReject declines the escalated proposal.
	ActionReject EscalationAction = "reject"
	// ActionRedispatch re-runs a blocked slice with adjusted constraints.
	ActionRedispatch EscalationAction = "redispatch"
	// ActionHumanInput defers to an operator and always raises a human alert.
	ActionHumanInput EscalationAction = "human_input"
)

// Valid returns true if the action is a known value.
func (a EscalationAction) Valid() bool {
	switch a {
	case ActionApprove, ActionReject, ActionRedispatch, ActionHumanInput:
		return true
	default:
		return false
	}
}

// EscalationRequest is routed to the commander.
type EscalationRequest struct {
	ID         string                  `json:"id"`
	Domain     string                  `json:"domain"`
	TaskID     string                  `json:"task_id,omitempty"`
	Reason     EscalationReason        `json:"reason"`
	Detail     string                  `json:"detail"`
	Proposal   *RuleAdjustmentProposal `json:"proposal,omitempty"`
	Report     *QAReport               `json:"report,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
	Resolved   bool                    `json:"resolved"`
	Resolution *EscalationResolution   `json:"resolution,omitempty"`
}

// EscalationResolution is the commander's answer to a request.
type EscalationResolution struct {
	Action EscalationAction `json:"action"`
	// SliceOrdinal selects the slice to re-dispatch.
	SliceOrdinal int `json:"slice_ordinal,omitempty"`
	// CanDo is appended to the re-dispatched slice's snapshot.
	CanDo []string `json:"can_do,omitempty"`
	// DropCannotDo removes entries from the re-dispatched slice's snapshot.
	DropCannotDo []string  `json:"drop_cannot_do,omitempty"`
	Note         string    `json:"note,omitempty"`
	DecidedAt    time.Time `json:"decided_at"`
}
