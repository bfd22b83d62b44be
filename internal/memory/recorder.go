package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ShayCichocki/colony/internal/logging"
	"github.com/ShayCichocki/colony/pkg/models"
)

// Recorder closes the memory loop after a task: it remembers the outcome
// and rates the memories that were used to build slice context.
type Recorder struct {
	mem    Provider
	logger *logging.DebugLogger
}

// NewRecorder creates a recorder. A nil provider makes every call a no-op.
func NewRecorder(mem Provider, logger *logging.DebugLogger) *Recorder {
	return &Recorder{mem: mem, logger: logger.With("memory")}
}

// RecordOutcome remembers the task outcome and sends feedback for used.
// PASSED marks used memories helpful; FAILED and BLOCKED mark them unhelpful.
func (r *Recorder) RecordOutcome(ctx context.Context, task *models.Task, report *models.QAReport, used []string) error {
	if r == nil || r.mem == nil || task == nil || report == nil {
		return nil
	}

	var errList []error
	_, err := r.mem.Remember(ctx, Memory{
		Content:  outcomeContent(task, report),
		Category: CategoryOutcome,
		Tags:     []string{task.Domain, strings.ToLower(string(report.Status))},
		Source:   "colony",
		Quality:  report.QualityScore,
	})
	if err != nil && !errors.Is(err, ErrRejected) {
		errList = append(errList, fmt.Errorf("remember outcome: %w", err))
	}

	var helpful bool
	switch report.Status {
	case models.QAPassed:
		helpful = true
	case models.QAFailed, models.QABlocked:
		helpful = false
	default:
		return errors.Join(errList...)
	}
	for _, id := range used {
		if err := r.mem.Feedback(ctx, id, helpful); err != nil {
			r.logger.Log("feedback for %s failed: %v", id, err)
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

// RememberFriction stores a worker complaint so future slices can see it.
func (r *Recorder) RememberFriction(ctx context.Context, f models.FrictionRecord) {
	if r == nil || r.mem == nil {
		return
	}
	content := fmt.Sprintf("%s friction in %s: %s", f.Type, f.Domain, f.Detail)
	if f.Suggestion != "" {
		content += " Suggestion: " + f.Suggestion
	}
	_, err := r.mem.Remember(ctx, Memory{
		Content:  content,
		Category: CategoryFriction,
		Tags:     []string{f.Domain, string(f.Type)},
		Source:   fmt.Sprintf("worker-slice-%d", f.WorkerOrdinal),
		Quality:  1,
	})
	if err != nil && !errors.Is(err, ErrRejected) {
		r.logger.Log("remember friction %s failed: %v", f.ID, err)
	}
}

func outcomeContent(task *models.Task, report *models.QAReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task %q in %s finished %s with quality %.2f (completion %.2f, violation rate %.2f).",
		task.Description, task.Domain, report.Status, report.QualityScore, report.CompletionRatio, report.ViolationRate)
	for i, issue := range report.Issues {
		if i == 3 {
			break
		}
		b.WriteString(" Issue: ")
		b.WriteString(issue)
	}
	for i, rec := range report.Recommendations {
		if i == 3 {
			break
		}
		b.WriteString(" Recommendation: ")
		b.WriteString(rec)
	}
	return b.String()
}
