package models

import "time"

// ProposalScope classifies the blast radius of a rule change.
type ProposalScope string

const (
	// ScopeMinor changes touch a single envelope entry and auto-apply.
	ScopeMinor ProposalScope = "MINOR"
	// ScopeMajor changes are structural or cross-domain and need the commander.
	ScopeMajor ProposalScope = "MAJOR"
)

// ProposalStatus is the audit status of a proposal.
type ProposalStatus string

const (
	ProposalAutoApplied ProposalStatus = "AUTO_APPLIED"
	ProposalEscalated   ProposalStatus = "ESCALATED"
	ProposalApproved    ProposalStatus = "APPROVED"
	ProposalRejected    ProposalStatus = "REJECTED"
)

// Open reports whether the proposal still awaits a decision.
func (s ProposalStatus) Open() bool {
	return s == ProposalEscalated
}

// ChangeKind is the concrete edit a proposal makes to an envelope.
type ChangeKind string

const (
	// ChangeRemoveCannotDo drops a cannot_do entry, optionally adding NewRule in its place.
	ChangeRemoveCannotDo ChangeKind = "remove_cannot_do"
	// ChangeReplaceRule rewrites OldRule as NewRule in whichever list holds it.
	ChangeReplaceRule ChangeKind = "replace_rule"
	// ChangeAddCanDo appends NewRule to can_do.
	ChangeAddCanDo ChangeKind = "add_can_do"
	// ChangeStructural has no automatic envelope edit; the commander decides.
	ChangeStructural ChangeKind = "structural"
)

// RuleChange is the proposed edit.
type RuleChange struct {
	Kind      ChangeKind `json:"kind"`
	OldRule   string     `json:"old_rule,omitempty"`
	NewRule   string     `json:"new_rule,omitempty"`
	Rationale string     `json:"rationale"`
}

// FrictionKey groups friction records within a domain window.
type FrictionKey struct {
	Type          FrictionType `json:"type"`
	BlockedByRule string       `json:"blocked_by_rule"`
}

// RuleAdjustmentProposal is an auditable request to change an envelope.
type RuleAdjustmentProposal struct {
	ID       string           `json:"id"`
	Domain   string           `json:"domain"`
	Key      FrictionKey      `json:"key"`
	Evidence []FrictionRecord `json:"evidence"`
	Scope    ProposalScope    `json:"scope"`
	Change   RuleChange       `json:"change"`
	Status   ProposalStatus   `json:"status"`
	// AppliedVersion is the envelope version the change published, if any.
	AppliedVersion int `json:"applied_version,omitempty"`
	// Resolution holds the commander's note for escalated proposals.
	Resolution string     `json:"resolution,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// EvidenceIDs returns the IDs of the contributing friction records.
func (p *RuleAdjustmentProposal) EvidenceIDs() []string {
	ids := make([]string, len(p.Evidence))
	for i, f := range p.Evidence {
		ids[i] = f.ID
	}
	return ids
}
