package models

import "time"

// ValidationStatus is the verdict on a single worker output.
type ValidationStatus string

const (
	// ValidationPassed indicates the output respected its envelope.
	ValidationPassed ValidationStatus = "PASSED"
	// ValidationFailed indicates there was no usable output.
	ValidationFailed ValidationStatus = "FAILED"
	// ValidationViolation indicates the output broke at least one rule.
	ValidationViolation ValidationStatus = "VIOLATION"
)

// Severity grades a violation.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Violation describes one broken rule.
type Violation struct {
	Rule        string   `json:"rule"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// ValidationResult is the validator's verdict for one slice.
type ValidationResult struct {
	SliceID       string           `json:"slice_id"`
	WorkerOrdinal int              `json:"worker_ordinal"`
	Status        ValidationStatus `json:"status"`
	Violations    []Violation      `json:"violations,omitempty"`
	Notes         []string         `json:"notes,omitempty"`
}

// Conflict records an incompatible collision on a single target.
type Conflict struct {
	// Target is the contested artifact key.
	Target string `json:"target"`
	// Ordinals lists every slice that wrote the target, ascending.
	Ordinals []int `json:"ordinals"`
	// Winner is the ordinal whose content kept the target key.
	Winner int `json:"winner"`
	// Retained lists the marker keys under which the losing variants were kept.
	Retained []string `json:"retained"`
}

// MergedResult is the deterministic union of a task's passed outputs.
type MergedResult struct {
	TaskID      string             `json:"task_id"`
	Domain      string             `json:"domain"`
	Outputs     []WorkerOutput     `json:"outputs"`
	Validations []ValidationResult `json:"validations"`
	Conflicts   []Conflict         `json:"conflicts,omitempty"`
	// Artifacts maps target to merged content. Keys are unique.
	Artifacts map[string]string `json:"artifacts"`
	// TotalViolations is the sum of violation list lengths.
	TotalViolations int `json:"total_violations"`
}

// QAStatus is the overall verdict for a task.
type QAStatus string

const (
	// QAPassed indicates score >= 0.8.
	QAPassed QAStatus = "PASSED"
	// QAPartial indicates 0.5 <= score < 0.8.
	QAPartial QAStatus = "PARTIAL"
	// QAFailed indicates score < 0.5.
	QAFailed QAStatus = "FAILED"
	// QABlocked indicates violations exceeded the hard cap, regardless of score.
	QABlocked QAStatus = "BLOCKED"
)

// Valid returns true if the status is a known value.
func (s QAStatus) Valid() bool {
	switch s {
	case QAPassed, QAPartial, QAFailed, QABlocked:
		return true
	default:
		return false
	}
}

// QAReport is the scored outcome of a task.
type QAReport struct {
	TaskID          string    `json:"task_id"`
	Domain          string    `json:"domain"`
	QualityScore    float64   `json:"quality_score"`
	Status          QAStatus  `json:"status"`
	CompletionRatio float64   `json:"completion_ratio"`
	ViolationRate   float64   `json:"violation_rate"`
	AvgConfidence   float64   `json:"avg_confidence"`
	Issues          []string  `json:"issues,omitempty"`
	Recommendations []string  `json:"recommendations,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
