package models

import "time"

// Role is an agent's position in the hierarchy.
type Role string

const (
	// RoleCommander sits at the top of the hierarchy and resolves escalations.
	RoleCommander Role = "commander"
	// RoleOrchestrator owns a domain: slices tasks and dispatches workers.
	RoleOrchestrator Role = "orchestrator"
	// RoleWorker executes a single slice.
	RoleWorker Role = "worker"
	// RoleValidator checks and merges worker output for a domain.
	RoleValidator Role = "validator"
	// RoleReporter scores merged results.
	RoleReporter Role = "reporter"
	// RoleRecorder persists outcomes to memory.
	RoleRecorder Role = "recorder"
)

// Valid returns true if the role is a known value.
func (r Role) Valid() bool {
	switch r {
	case RoleCommander, RoleOrchestrator, RoleWorker, RoleValidator, RoleReporter, RoleRecorder:
		return true
	default:
		return false
	}
}

// DomainScoped reports whether agents of this role belong to a single domain.
func (r Role) DomainScoped() bool {
	switch r {
	case RoleOrchestrator, RoleWorker, RoleValidator:
		return true
	default:
		return false
	}
}

// AgentState is an agent's standing with the message gate.
// States only move forward; REVOKED is terminal.
type AgentState string

const (
	// AgentStateActive indicates no recorded violations.
	AgentStateActive AgentState = "ACTIVE"
	// AgentStateWarned indicates one recorded violation.
	AgentStateWarned AgentState = "WARNED"
	// AgentStateWarned2 indicates the agent is one step from revocation.
	AgentStateWarned2 AgentState = "WARNED2"
	// AgentStateRevoked indicates the agent can no longer send or receive.
	AgentStateRevoked AgentState = "REVOKED"
)

// Valid returns true if the state is a known value.
func (s AgentState) Valid() bool {
	switch s {
	case AgentStateActive, AgentStateWarned, AgentStateWarned2, AgentStateRevoked:
		return true
	default:
		return false
	}
}

// Rank orders states so callers can enforce forward-only transitions.
func (s AgentState) Rank() int {
	switch s {
	case AgentStateActive:
		return 0
	case AgentStateWarned:
		return 1
	case AgentStateWarned2:
		return 2
	case AgentStateRevoked:
		return 3
	default:
		return -1
	}
}

// StateForCount maps a violation count to the state it implies for the
// given revocation threshold.
func StateForCount(count, threshold int) AgentState {
	switch {
	case count >= threshold:
		return AgentStateRevoked
	case count <= 0:
		return AgentStateActive
	case count == 1:
		return AgentStateWarned
	default:
		return AgentStateWarned2
	}
}

// Agent is a registered participant in the colony.
type Agent struct {
	// ID is the unique identifier for this agent.
	ID string `json:"id"`
	// Role is the agent's position in the hierarchy.
	Role Role `json:"role"`
	// Domain is the owning domain; empty for unscoped roles.
	Domain string `json:"domain,omitempty"`
	// Ordinal is the worker's global ordinal; zero for non-workers.
	Ordinal int `json:"ordinal,omitempty"`
	// State is the agent's current standing.
	State AgentState `json:"state"`
	// ViolationCount only ever increases.
	ViolationCount int `json:"violation_count"`
	// RegisteredAt is when the agent joined the registry.
	RegisteredAt time.Time `json:"registered_at"`
	// RevokedAt is set once the agent is revoked.
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// IsRevoked reports whether the agent has been revoked.
func (a *Agent) IsRevoked() bool {
	return a != nil && a.State == AgentStateRevoked
}
