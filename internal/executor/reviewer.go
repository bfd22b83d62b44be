package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ShayCichocki/colony/internal/validation"
	"github.com/ShayCichocki/colony/pkg/models"
)

const reviewPrompt = `Review this deliverable against the forbidden actions.

File: %s
Content:
%s

Forbidden actions:
%s
Return ONLY a JSON object:
{"violations": [{"rule": "exact forbidden action text", "description": "where and how"}], "notes": "short summary"}
Report only clear breaches. Use an empty list when there are none.`

// Reviewer checks deliverable content for forbidden actions with a model.
type Reviewer struct {
	llm Completer
}

var _ validation.Reviewer = (*Reviewer)(nil)

// NewReviewer creates a model-backed content reviewer.
func NewReviewer(llm Completer) *Reviewer {
	return &Reviewer{llm: llm}
}

// Review reports breaches of the slice's cannot_do list. Rules the model
// invents are dropped.
func (r *Reviewer) Review(ctx context.Context, slice *models.TaskSlice, out *models.WorkerOutput) (validation.ReviewResult, error) {
	if len(slice.Constraints.CannotDo) == 0 {
		return validation.ReviewResult{}, nil
	}
	var body strings.Builder
	for _, f := range out.Deliverable.Files() {
		fmt.Fprintf(&body, "--- %s\n%s\n", f.Path, f.Content)
	}
	resp, err := r.llm.Complete(ctx, "", fmt.Sprintf(reviewPrompt, slice.Target, body.String(), bullets(slice.Constraints.CannotDo)))
	if err != nil {
		return validation.ReviewResult{}, err
	}
	raw, err := extractObject(resp)
	if err != nil {
		return validation.ReviewResult{}, err
	}

	known := make(map[string]string, len(slice.Constraints.CannotDo))
	for _, rule := range slice.Constraints.CannotDo {
		known[strings.ToLower(strings.TrimSpace(rule))] = rule
	}
	doc := gjson.Parse(raw)
	res := validation.ReviewResult{Notes: doc.Get("notes").String()}
	doc.Get("violations").ForEach(func(_, v gjson.Result) bool {
		rule, ok := known[strings.ToLower(strings.TrimSpace(v.Get("rule").String()))]
		if !ok {
			return true
		}
		res.Violations = append(res.Violations, models.Violation{
			Rule:        rule,
			Description: fmt.Sprintf("slice %d: %s", slice.WorkerOrdinal, v.Get("description").String()),
			Severity:    models.SeverityCritical,
		})
		return true
	})
	return res, nil
}
