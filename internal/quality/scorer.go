// Package quality derives the composite quality score of a merged task.
package quality

import (
	"fmt"
	"math"
	"time"

	"github.com/ShayCichocki/colony/internal/orchestrator/policy"
	"github.com/ShayCichocki/colony/pkg/models"
)

// Scorer turns a MergedResult into a QAReport.
type Scorer struct {
	p policy.QualityPolicy
}

// NewScorer creates a scorer. Weights that do not sum to 1 are rejected
// with ErrConfigInvalid.
func NewScorer(p policy.QualityPolicy) (*Scorer, error) {
	if err := p.ValidateWeights(); err != nil {
		return nil, err
	}
	return &Scorer{p: p}, nil
}

// Score computes the report for m. Feedback is read from m.Outputs, which
// holds one output per completed slice.
func (s *Scorer) Score(m models.MergedResult) models.QAReport {
	passed := 0
	for _, v := range m.Validations {
		if v.Status == models.ValidationPassed {
			passed++
		}
	}

	completion := clamp01(float64(passed) / models.SlicesPerTask)
	violationRate := clamp01(float64(m.TotalViolations) / models.SlicesPerTask)

	var confSum float64
	for _, o := range m.Outputs {
		confSum += clamp01(o.Feedback.Confidence)
	}
	avgConf := 0.0
	if len(m.Outputs) > 0 {
		avgConf = confSum / float64(len(m.Outputs))
	}

	score := clamp01(s.p.CompletionWeight*completion +
		s.p.ComplianceWeight*(1-violationRate) +
		s.p.ConfidenceWeight*avgConf)

	return models.QAReport{
		TaskID:          m.TaskID,
		Domain:          m.Domain,
		QualityScore:    score,
		Status:          s.status(score, m.TotalViolations),
		CompletionRatio: completion,
		ViolationRate:   violationRate,
		AvgConfidence:   avgConf,
		Issues:          issues(m),
		Recommendations: recommendations(m),
		CreatedAt:       time.Now().UTC(),
	}
}

// status maps a score to a QA status; the violation hard cap overrides.
func (s *Scorer) status(score float64, totalViolations int) models.QAStatus {
	switch {
	case totalViolations > s.p.ViolationHardCap:
		return models.QABlocked
	case score >= s.p.PassThreshold:
		return models.QAPassed
	case score >= s.p.PartialThreshold:
		return models.QAPartial
	default:
		return models.QAFailed
	}
}

func issues(m models.MergedResult) []string {
	var out []string
	for _, v := range m.Validations {
		out = append(out, v.Notes...)
		for _, viol := range v.Violations {
			out = append(out, fmt.Sprintf("slice %d violated %q (%s): %s",
				v.WorkerOrdinal, viol.Rule, viol.Severity, viol.Description))
		}
	}
	for _, c := range m.Conflicts {
		out = append(out, fmt.Sprintf("conflict on %s between slices %v; slice %d kept, variants retained as %v",
			c.Target, c.Ordinals, c.Winner, c.Retained))
	}
	for _, o := range m.Outputs {
		f := o.Feedback.Friction
		if f == nil {
			continue
		}
		line := fmt.Sprintf("slice %d reported %s friction", o.WorkerOrdinal, f.Type)
		if f.BlockedByRule != "" {
			line += fmt.Sprintf(" on %q", f.BlockedByRule)
		}
		if f.Detail != "" {
			line += ": " + f.Detail
		}
		out = append(out, line)
	}
	return out
}

func recommendations(m models.MergedResult) []string {
	seen := make(map[string]bool)
	var out []string
	for _, o := range m.Outputs {
		f := o.Feedback.Friction
		if f == nil || f.Suggestion == "" || seen[f.Suggestion] {
			continue
		}
		seen[f.Suggestion] = true
		out = append(out, f.Suggestion)
	}
	return out
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Max(0, math.Min(1, x))
}
