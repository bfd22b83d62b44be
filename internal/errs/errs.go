// Package errs defines the error taxonomy shared by colony components.
//
// Callers wrap these sentinels with fmt.Errorf("...: %w", err) and test
// with errors.Is. PolicyViolation and AgentRevoked are final judgments
// and must never be retried; only CollaboratorUnavailable is transient.
package errs

import "errors"

var (
	// ErrPolicyViolation is returned when the gate denies a send.
	ErrPolicyViolation = errors.New("policy violation")
	// ErrAgentRevoked is returned when a revoked agent is involved.
	ErrAgentRevoked = errors.New("agent revoked")
	// ErrSliceTimeout is recorded when a slice exceeds its deadline.
	ErrSliceTimeout = errors.New("slice timed out")
	// ErrSliceExecution is recorded when the executor fails a slice.
	ErrSliceExecution = errors.New("slice execution failed")
	// ErrConflictDetected is surfaced when merge retains conflicting variants.
	ErrConflictDetected = errors.New("conflict detected")
	// ErrEscalationRequired is returned when a task needs the commander.
	ErrEscalationRequired = errors.New("escalation required")
	// ErrConfigInvalid is fatal for the affected domain.
	ErrConfigInvalid = errors.New("invalid configuration")
	// ErrCollaboratorUnavailable marks transient executor, memory, or transport outages.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	// ErrInvalidDomain is returned when a task targets a domain with no worker pool.
	ErrInvalidDomain = errors.New("invalid domain")
	// ErrNotFound is returned by lookups that find nothing.
	ErrNotFound = errors.New("not found")
)

// Retryable reports whether err is worth retrying.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPolicyViolation) || errors.Is(err, ErrAgentRevoked) {
		return false
	}
	return errors.Is(err, ErrCollaboratorUnavailable)
}
