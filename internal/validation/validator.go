// Package validation checks each worker output against the constraint
// snapshot its slice was dispatched with.
package validation

import (
	"context"
	"fmt"
	"sort"

	"github.com/ShayCichocki/colony/internal/constraints"
	"github.com/ShayCichocki/colony/internal/logging"
	"github.com/ShayCichocki/colony/pkg/models"
)

// RuleOutsideAssignment is the rule reported when a deliverable touches a
// file other than its assigned target or a shared target.
const RuleOutsideAssignment = "modify files outside assignment"

// ReviewResult is an optional content review of one output.
type ReviewResult struct {
	Violations []models.Violation
	Notes      string
}

// Reviewer inspects deliverable content for cannot_do breaches that the
// structural checks cannot see.
type Reviewer interface {
	Review(ctx context.Context, slice *models.TaskSlice, out *models.WorkerOutput) (ReviewResult, error)
}

// Validator produces ValidationResults.
type Validator struct {
	shared   map[string][]string
	reviewer Reviewer
	logger   *logging.DebugLogger
}

// New creates a Validator. reviewer may be nil.
func New(domains []models.DomainConfig, reviewer Reviewer, logger *logging.DebugLogger) *Validator {
	shared := make(map[string][]string, len(domains))
	for _, d := range domains {
		shared[d.Name] = append([]string(nil), d.SharedTargets...)
	}
	return &Validator{shared: shared, reviewer: reviewer, logger: logger.With("validation")}
}

// Validate checks out against slice. A nil output, or a slice that did not
// complete, is FAILED.
func (v *Validator) Validate(ctx context.Context, slice *models.TaskSlice, out *models.WorkerOutput) models.ValidationResult {
	res := Check(slice, out, v.shared[slice.Domain])
	if res.Status == models.ValidationFailed || v.reviewer == nil {
		return res
	}

	review, err := v.reviewer.Review(ctx, slice, out)
	if err != nil {
		v.logger.Log("review of slice %d (%s) failed: %v", slice.WorkerOrdinal, slice.ID, err)
		res.Notes = append(res.Notes, fmt.Sprintf("content review unavailable: %v", err))
		return res
	}
	res.Violations = append(res.Violations, review.Violations...)
	if review.Notes != "" {
		res.Notes = append(res.Notes, review.Notes)
	}
	if len(res.Violations) > 0 {
		res.Status = models.ValidationViolation
	}
	return res
}

// ValidateAll validates every slice and returns results sorted by ordinal.
// outputs is keyed by slice ID.
func (v *Validator) ValidateAll(ctx context.Context, slices []*models.TaskSlice, outputs map[string]*models.WorkerOutput) []models.ValidationResult {
	results := make([]models.ValidationResult, 0, len(slices))
	for _, s := range slices {
		results = append(results, v.Validate(ctx, s, outputs[s.ID]))
	}
	sort.Slice(results, func(i, j int) bool { return results[i].WorkerOrdinal < results[j].WorkerOrdinal })
	return results
}

// Check runs the structural checks: every file must be the slice's target
// or a shared target, and no declared action may match a cannot_do rule.
func Check(slice *models.TaskSlice, out *models.WorkerOutput, shared []string) models.ValidationResult {
	res := models.ValidationResult{
		SliceID:       slice.ID,
		WorkerOrdinal: slice.WorkerOrdinal,
	}

	if out == nil || slice.Status != models.SliceStatusCompleted {
		res.Status = models.ValidationFailed
		note := fmt.Sprintf("slice %d produced no output (status %s)", slice.WorkerOrdinal, slice.Status)
		if slice.Error != "" {
			note += ": " + slice.Error
		}
		res.Notes = append(res.Notes, note)
		return res
	}

	files := out.Deliverable.Files()
	if len(files) == 0 {
		res.Status = models.ValidationFailed
		res.Notes = append(res.Notes, fmt.Sprintf("slice %d returned an empty deliverable", slice.WorkerOrdinal))
		return res
	}

	target := models.CleanPath(slice.Target)
	for _, f := range files {
		p := models.CleanPath(f.Path)
		if p == target || isShared(p, shared) {
			continue
		}
		res.Violations = append(res.Violations, models.Violation{
			Rule:        RuleOutsideAssignment,
			Description: fmt.Sprintf("slice %d wrote %s; assigned target is %s", slice.WorkerOrdinal, f.Path, slice.Target),
			Severity:    models.SeverityError,
		})
	}

	for _, action := range out.Deliverable.Actions {
		for _, rule := range slice.Constraints.CannotDo {
			if constraints.Matches(action, rule) {
				res.Violations = append(res.Violations, models.Violation{
					Rule:        rule,
					Description: fmt.Sprintf("slice %d action %q is forbidden", slice.WorkerOrdinal, action),
					Severity:    models.SeverityCritical,
				})
			}
		}
	}

	if len(res.Violations) > 0 {
		res.Status = models.ValidationViolation
	} else {
		res.Status = models.ValidationPassed
	}
	return res
}

func isShared(p string, shared []string) bool {
	for _, s := range shared {
		if models.CleanPath(s) == p {
			return true
		}
	}
	return false
}
