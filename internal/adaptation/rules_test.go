package adaptation

import (
	"testing"

	"github.com/ShayCichocki/colony/pkg/models"
)

func TestClassify(t *testing.T) {
	ev := func(suggestions ...string) []models.FrictionRecord {
		out := make([]models.FrictionRecord, len(suggestions))
		for i, s := range suggestions {
			out[i] = models.FrictionRecord{Suggestion: s, Detail: "need jq"}
		}
		return out
	}
	tests := []struct {
		name      string
		key       models.FrictionKey
		evidence  []models.FrictionRecord
		wantScope models.ProposalScope
		wantKind  models.ChangeKind
		wantNew   string
	}{
		{"too strict", models.FrictionKey{Type: models.FrictionRuleTooStrict, BlockedByRule: "r"}, ev("", ""),
			models.ScopeMinor, models.ChangeRemoveCannotDo, ""},
		{"unclear with suggestion", models.FrictionKey{Type: models.FrictionRuleUnclear, BlockedByRule: "r"}, ev("a", "b", "b"),
			models.ScopeMinor, models.ChangeReplaceRule, "b"},
		{"unclear without suggestion", models.FrictionKey{Type: models.FrictionRuleUnclear, BlockedByRule: "r"}, ev("", ""),
			models.ScopeMajor, models.ChangeStructural, ""},
		{"ambiguous without rule", models.FrictionKey{Type: models.FrictionAmbiguousRequest}, ev("x"),
			models.ScopeMinor, models.ChangeAddCanDo, "x"},
		{"too strict without rule", models.FrictionKey{Type: models.FrictionRuleTooStrict}, ev("y"),
			models.ScopeMajor, models.ChangeStructural, "y"},
		{"missing context", models.FrictionKey{Type: models.FrictionMissingContext}, ev("api schema"),
			models.ScopeMinor, models.ChangeAddCanDo, "request context: api schema"},
		{"tooling gap falls back to detail", models.FrictionKey{Type: models.FrictionToolingGap}, ev(""),
			models.ScopeMinor, models.ChangeAddCanDo, "need jq"},
		{"wrong slice", models.FrictionKey{Type: models.FrictionWrongSlice}, ev("s"),
			models.ScopeMajor, models.ChangeStructural, "s"},
		{"scope too big", models.FrictionKey{Type: models.FrictionScopeTooBig}, ev(),
			models.ScopeMajor, models.ChangeStructural, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope, change := Classify(tt.key, tt.evidence)
			if scope != tt.wantScope || change.Kind != tt.wantKind || change.NewRule != tt.wantNew {
				t.Errorf("Classify() = %s %s %q, want %s %s %q",
					scope, change.Kind, change.NewRule, tt.wantScope, tt.wantKind, tt.wantNew)
			}
			if change.Rationale == "" {
				t.Error("empty rationale")
			}
		})
	}
}
