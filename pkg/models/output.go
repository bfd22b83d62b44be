package models

import (
	"path"
	"strings"
	"time"
)

// FrictionType classifies why a worker felt blocked.
type FrictionType string

const (
	// FrictionRuleTooStrict indicates a cannot_do entry blocked necessary work.
	FrictionRuleTooStrict FrictionType = "rule_too_strict"
	// FrictionRuleUnclear indicates a rule could be read more than one way.
	FrictionRuleUnclear FrictionType = "rule_unclear"
	// FrictionMissingContext indicates the slice lacked needed information.
	FrictionMissingContext FrictionType = "missing_context"
	// FrictionWrongSlice indicates the work belonged to another slice.
	FrictionWrongSlice FrictionType = "wrong_slice"
	// FrictionDependencyIssue indicates the slice depended on another's output.
	FrictionDependencyIssue FrictionType = "dependency_issue"
	// FrictionToolingGap indicates a needed capability was not permitted.
	FrictionToolingGap FrictionType = "tooling_gap"
	// FrictionScopeTooBig indicates the slice was too large for one worker.
	FrictionScopeTooBig FrictionType = "scope_too_big"
	// FrictionScopeTooSmall indicates the slice was trivially small.
	FrictionScopeTooSmall FrictionType = "scope_too_small"
	// FrictionAmbiguousRequest indicates the task itself was ambiguous.
	FrictionAmbiguousRequest FrictionType = "ambiguous_request"
)

// Valid returns true if the friction type is a known value.
func (f FrictionType) Valid() bool {
	switch f {
	case FrictionRuleTooStrict, FrictionRuleUnclear, FrictionMissingContext,
		FrictionWrongSlice, FrictionDependencyIssue, FrictionToolingGap,
		FrictionScopeTooBig, FrictionScopeTooSmall, FrictionAmbiguousRequest:
		return true
	default:
		return false
	}
}

// FrictionRecord is a structured complaint from a worker.
type FrictionRecord struct {
	// ID identifies the record; duplicates by ID are ignored.
	ID string `json:"id"`
	// Type classifies the complaint.
	Type FrictionType `json:"type"`
	// Detail is the worker's description.
	Detail string `json:"detail,omitempty"`
	// BlockedByRule is the envelope entry that caused the friction, if any.
	BlockedByRule string `json:"blocked_by_rule,omitempty"`
	// Suggestion is the worker's proposed fix.
	Suggestion string `json:"suggestion,omitempty"`
	// Domain is the domain of the reporting slice.
	Domain string `json:"domain"`
	// WorkerOrdinal is the reporting slice's ordinal.
	WorkerOrdinal int `json:"worker_ordinal,omitempty"`
	// Timestamp is when the friction was reported.
	Timestamp time.Time `json:"timestamp"`
}

// Feedback is the self-assessment attached to every worker output.
type Feedback struct {
	Confidence     float64         `json:"confidence"`
	TaskFit        float64         `json:"task_fit"`
	Clarity        float64         `json:"clarity"`
	ContextQuality float64         `json:"context_quality"`
	Friction       *FrictionRecord `json:"friction,omitempty"`
}

// Artifact is one produced file or resource.
type Artifact struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Deliverable is the opaque payload produced by the work executor.
type Deliverable struct {
	// Target is the primary artifact the worker claims to have produced.
	Target string `json:"target"`
	// Content is the primary artifact's content.
	Content string `json:"content"`
	// Artifacts lists additional files the worker produced.
	Artifacts []Artifact `json:"artifacts,omitempty"`
	// Actions lists the actions the worker reports having taken.
	Actions []string `json:"actions,omitempty"`
}

// Files returns every artifact touched by the deliverable, primary first.
func (d Deliverable) Files() []Artifact {
	files := make([]Artifact, 0, len(d.Artifacts)+1)
	if d.Target != "" {
		files = append(files, Artifact{Path: d.Target, Content: d.Content})
	}
	return append(files, d.Artifacts...)
}

// CleanPath normalizes an artifact path so that "./web/a.ts" and
// "web/a.ts" name the same target. Blank paths stay empty.
func CleanPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	return strings.TrimPrefix(path.Clean(p), "./")
}

// WorkerOutput is produced once per completed slice and never modified.
type WorkerOutput struct {
	SliceID       string      `json:"slice_id"`
	TaskID        string      `json:"task_id"`
	WorkerOrdinal int         `json:"worker_ordinal"`
	WorkerID      string      `json:"worker_id"`
	Deliverable   Deliverable `json:"deliverable"`
	Feedback      Feedback    `json:"feedback"`
	// Outbound holds messages the worker asked to send; they pass the gate
	// before any delivery.
	Outbound  []Message `json:"outbound,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
