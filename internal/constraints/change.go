package constraints

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ShayCichocki/colony/pkg/models"
)

// ErrRuleNotFound is returned when a change references a rule the envelope
// does not contain.
var ErrRuleNotFound = errors.New("rule not found in envelope")

// ApplyChange returns a copy of env with change applied. The version is
// left for the caller to set.
func ApplyChange(env models.ConstraintEnvelope, change models.RuleChange) (models.ConstraintEnvelope, error) {
	out := env.Clone()
	switch change.Kind {
	case models.ChangeRemoveCannotDo:
		i := indexOf(out.CannotDo, change.OldRule)
		if i < 0 {
			return env, fmt.Errorf("cannot_do %q: %w", change.OldRule, ErrRuleNotFound)
		}
		if change.NewRule != "" {
			out.CannotDo[i] = change.NewRule
		} else {
			out.CannotDo = append(out.CannotDo[:i], out.CannotDo[i+1:]...)
		}

	case models.ChangeReplaceRule:
		if change.NewRule == "" {
			return env, fmt.Errorf("replace %q: empty replacement", change.OldRule)
		}
		if i := indexOf(out.CannotDo, change.OldRule); i >= 0 {
			out.CannotDo[i] = change.NewRule
		} else if i := indexOf(out.CanDo, change.OldRule); i >= 0 {
			out.CanDo[i] = change.NewRule
		} else {
			return env, fmt.Errorf("rule %q: %w", change.OldRule, ErrRuleNotFound)
		}

	case models.ChangeAddCanDo:
		if change.NewRule == "" {
			return env, errors.New("add can_do: empty rule")
		}
		if indexOf(out.CanDo, change.NewRule) < 0 {
			out.CanDo = append(out.CanDo, change.NewRule)
		}

	case models.ChangeStructural:
		// Removes or rewrites the contested rule; with no rule named, the
		// new guidance is granted as a capability.
		oldInCannot := indexOf(out.CannotDo, change.OldRule)
		oldInCan := indexOf(out.CanDo, change.OldRule)
		switch {
		case change.OldRule != "" && oldInCannot >= 0 && change.NewRule != "":
			out.CannotDo[oldInCannot] = change.NewRule
		case change.OldRule != "" && oldInCannot >= 0:
			out.CannotDo = append(out.CannotDo[:oldInCannot], out.CannotDo[oldInCannot+1:]...)
		case change.OldRule != "" && oldInCan >= 0 && change.NewRule != "":
			out.CanDo[oldInCan] = change.NewRule
		case change.NewRule != "":
			if indexOf(out.CanDo, change.NewRule) < 0 {
				out.CanDo = append(out.CanDo, change.NewRule)
			}
		default:
			return env, fmt.Errorf("structural change on %q: %w", change.OldRule, ErrRuleNotFound)
		}

	default:
		return env, fmt.Errorf("unknown change kind %q", change.Kind)
	}
	return out, nil
}

// indexOf matches rules case-insensitively, ignoring surrounding space.
func indexOf(rules []string, rule string) int {
	want := normalize(rule)
	if want == "" {
		return -1
	}
	for i, r := range rules {
		if normalize(r) == want {
			return i
		}
	}
	return -1
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Matches reports whether action exercises rule: the normalized action
// equals the rule or contains it.
func Matches(action, rule string) bool {
	a, r := normalize(action), normalize(rule)
	if a == "" || r == "" {
		return false
	}
	return strings.Contains(a, r)
}
