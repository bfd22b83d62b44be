package adaptation

import (
	"fmt"

	"github.com/ShayCichocki/colony/pkg/models"
)

// Classify maps accumulated friction for one key to a proposal scope and
// change. The table is keyed on friction type only; the evidence supplies
// the suggestion text.
//
//	rule_too_strict                  MINOR  remove (or soften to the suggestion) the blocked cannot_do
//	rule_unclear, ambiguous_request  MINOR  replace the rule with the suggestion
//	missing_context                  MINOR  add can_do "request context: ..."
//	tooling_gap                      MINOR  add the suggested tool as can_do
//	wrong_slice, scope_*, dependency MAJOR  structural change, commander decides
//
// A MINOR rewrite with no suggestion anywhere in the evidence, or a
// rule_too_strict report naming no rule, cannot be written automatically
// and is escalated as MAJOR. Unclear or ambiguous reports naming no rule
// add the suggestion as guidance.
func Classify(key models.FrictionKey, evidence []models.FrictionRecord) (models.ProposalScope, models.RuleChange) {
	suggestion := topSuggestion(evidence)
	rationale := fmt.Sprintf("%d %s reports against %q", len(evidence), key.Type, key.BlockedByRule)

	switch key.Type {
	case models.FrictionRuleTooStrict:
		if key.BlockedByRule == "" {
			break
		}
		return models.ScopeMinor, models.RuleChange{
			Kind:      models.ChangeRemoveCannotDo,
			OldRule:   key.BlockedByRule,
			NewRule:   suggestion,
			Rationale: rationale,
		}

	case models.FrictionRuleUnclear, models.FrictionAmbiguousRequest:
		if suggestion == "" {
			break
		}
		if key.BlockedByRule == "" {
			return models.ScopeMinor, models.RuleChange{
				Kind:      models.ChangeAddCanDo,
				NewRule:   suggestion,
				Rationale: rationale,
			}
		}
		return models.ScopeMinor, models.RuleChange{
			Kind:      models.ChangeReplaceRule,
			OldRule:   key.BlockedByRule,
			NewRule:   suggestion,
			Rationale: rationale,
		}

	case models.FrictionMissingContext:
		what := suggestion
		if what == "" {
			what = firstNonEmpty(key.BlockedByRule, topDetail(evidence), "task background")
		}
		return models.ScopeMinor, models.RuleChange{
			Kind:      models.ChangeAddCanDo,
			NewRule:   "request context: " + what,
			Rationale: rationale,
		}

	case models.FrictionToolingGap:
		tool := firstNonEmpty(suggestion, topDetail(evidence))
		if tool == "" {
			break
		}
		return models.ScopeMinor, models.RuleChange{
			Kind:      models.ChangeAddCanDo,
			NewRule:   tool,
			Rationale: rationale,
		}
	}

	return models.ScopeMajor, models.RuleChange{
		Kind:      models.ChangeStructural,
		OldRule:   key.BlockedByRule,
		NewRule:   suggestion,
		Rationale: rationale,
	}
}

// topSuggestion returns the most frequent non-empty suggestion; ties go to
// the one seen first.
func topSuggestion(evidence []models.FrictionRecord) string {
	return mostFrequent(evidence, func(f models.FrictionRecord) string { return f.Suggestion })
}

func topDetail(evidence []models.FrictionRecord) string {
	return mostFrequent(evidence, func(f models.FrictionRecord) string { return f.Detail })
}

func mostFrequent(evidence []models.FrictionRecord, field func(models.FrictionRecord) string) string {
	counts := make(map[string]int)
	best, bestN := "", 0
	for _, f := range evidence {
		v := field(f)
		if v == "" {
			continue
		}
		counts[v]++
		if counts[v] > bestN {
			best, bestN = v, counts[v]
		}
	}
	return best
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
