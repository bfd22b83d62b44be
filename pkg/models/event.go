package models

import "time"

// Well-known message channels.
const (
	// ChannelDirect is the default channel for agent-to-agent traffic.
	ChannelDirect = "direct"
	// ChannelEscalation carries escalation requests to the commander.
	ChannelEscalation = "escalation"
	// ChannelSystem carries notices issued by the gate itself.
	ChannelSystem = "system"
)

// SystemSender is the sender ID used for gate-issued notices.
const SystemSender = "system"

// Message is the envelope carried by the mailbox transport.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Channel   string    `json:"channel"`
	Subject   string    `json:"subject,omitempty"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// ViolationLogEntry is one append-only record of a denied send.
type ViolationLogEntry struct {
	// EventID is deterministic so redelivered denials append once.
	EventID        string    `json:"event_id"`
	Timestamp      time.Time `json:"timestamp"`
	Sender         string    `json:"sender"`
	Recipient      string    `json:"recipient"`
	Channel        string    `json:"channel"`
	Reason         string    `json:"reason"`
	Excerpt        string    `json:"excerpt,omitempty"`
	ViolationCount int       `json:"violation_count"`
}

// AlertKind names the event behind a human alert.
type AlertKind string

const (
	AlertAgentRevoked       AlertKind = "agent_revoked"
	AlertHumanInput         AlertKind = "human_input"
	AlertCapacityLoss       AlertKind = "capacity_loss"
	AlertConfigInvalid      AlertKind = "config_invalid"
	AlertCollaboratorDown   AlertKind = "collaborator_down"
	AlertEscalationRequired AlertKind = "escalation_required"
	AlertLowQuality         AlertKind = "low_quality"
)

// HumanAlert is an operator-facing notification for critical events.
type HumanAlert struct {
	// EventID is deterministic so retried emissions write once.
	EventID  string    `json:"event_id"`
	Kind     AlertKind `json:"kind"`
	Severity Severity  `json:"severity"`
	AgentID  string    `json:"agent_id,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	TaskID   string    `json:"task_id,omitempty"`
	// ViolationHistory is populated for revocations.
	ViolationHistory []ViolationLogEntry `json:"violation_history,omitempty"`
	// InFlightSlices lists slices owned by the agent when it was revoked.
	InFlightSlices []string `json:"in_flight_slices,omitempty"`
	// CapacityReductionPct is the share of the domain pool lost, 0..100.
	CapacityReductionPct float64   `json:"capacity_reduction_pct,omitempty"`
	Message              string    `json:"message"`
	NextSteps            []string  `json:"next_steps,omitempty"`
	Timestamp            time.Time `json:"timestamp"`
}
