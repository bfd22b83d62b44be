package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ShayCichocki/colony/internal/logging"
	"github.com/ShayCichocki/colony/pkg/models"
)

const workerSystem = `You are one of seven workers in a governed colony. You produce exactly one
artifact for your slice and report honestly on how well the slice fit.
Never perform a forbidden action. If a rule blocks necessary work, say so in
the friction field instead of breaking it.`

const workerPrompt = `Slice %d of task %s in the %s domain.

Instructions:
%s

Assigned file (the only file you may produce): %s

Permitted actions:
%s
Forbidden actions:
%s
%s%s
Return ONLY a JSON object with this exact structure (no other text):
{
  "target": "%s",
  "content": "full file content",
  "actions": ["each action you took, phrased like the permitted list"],
  "outbound": [{"to": "orch-%s", "body": "question, only if needed"}],
  "feedback": {
    "confidence": 0.0,
    "task_fit": 0.0,
    "clarity": 0.0,
    "context_quality": 0.0,
    "friction": {
      "type": "rule_too_strict|rule_unclear|missing_context|wrong_slice|dependency_issue|tooling_gap|scope_too_big|scope_too_small|ambiguous_request",
      "detail": "what blocked you",
      "blocked_by_rule": "the exact rule text, if a rule blocked you",
      "suggestion": "the rule change you would propose"
    }
  }
}

Scores are between 0 and 1. Omit "friction" and "outbound" when you have none.`

// Worker executes slices with a model.
type Worker struct {
	llm    Completer
	logger *logging.DebugLogger
}

// NewWorker creates a model-backed executor.
func NewWorker(llm Completer, logger *logging.DebugLogger) *Worker {
	return &Worker{llm: llm, logger: logger.With("executor")}
}

// Execute renders the slice prompt, calls the model and parses its answer.
func (w *Worker) Execute(ctx context.Context, s models.TaskSlice) (*models.WorkerOutput, error) {
	resp, err := w.llm.Complete(ctx, workerSystem, SlicePrompt(s))
	if err != nil {
		return nil, err
	}
	out, err := ParseWorkerOutput(resp)
	if err != nil {
		w.logger.Log("slice %s: unparseable response (%d bytes)", s.ID, len(resp))
		return nil, err
	}
	return out, nil
}

// SlicePrompt renders the instructions a worker sees for s.
func SlicePrompt(s models.TaskSlice) string {
	var ctxBlock, directive string
	if len(s.Context) > 0 {
		ctxBlock = "\nRelevant memories:\n" + bullets(s.Context)
	}
	if s.Directive != "" {
		directive = "\nWARNING FROM THE GATE:\n" + s.Directive + "\n"
	}
	return fmt.Sprintf(workerPrompt,
		s.WorkerOrdinal, s.TaskID, s.Domain,
		s.Description,
		s.Target,
		bullets(s.Constraints.CanDo),
		bullets(s.Constraints.CannotDo),
		ctxBlock, directive,
		s.Target,
		s.Domain,
	)
}

// ParseWorkerOutput reads the JSON object in a model response. Only the
// deliverable target is required; scores default to zero and are clamped.
func ParseWorkerOutput(response string) (*models.WorkerOutput, error) {
	raw, err := extractObject(response)
	if err != nil {
		return nil, err
	}
	doc := gjson.Parse(raw)

	target := strings.TrimSpace(doc.Get("target").String())
	if target == "" {
		return nil, fmt.Errorf("worker response has no target")
	}
	out := &models.WorkerOutput{
		Deliverable: models.Deliverable{
			Target:  target,
			Content: doc.Get("content").String(),
		},
	}
	doc.Get("actions").ForEach(func(_, v gjson.Result) bool {
		if a := strings.TrimSpace(v.String()); a != "" {
			out.Deliverable.Actions = append(out.Deliverable.Actions, a)
		}
		return true
	})
	doc.Get("artifacts").ForEach(func(_, v gjson.Result) bool {
		if p := v.Get("path").String(); p != "" {
			out.Deliverable.Artifacts = append(out.Deliverable.Artifacts,
				models.Artifact{Path: p, Content: v.Get("content").String()})
		}
		return true
	})
	doc.Get("outbound").ForEach(func(_, v gjson.Result) bool {
		to, body := v.Get("to").String(), v.Get("body").String()
		if to == "" || body == "" {
			return true
		}
		out.Outbound = append(out.Outbound, models.Message{
			To:      to,
			Body:    body,
			Channel: v.Get("channel").String(),
		})
		return true
	})

	fb := doc.Get("feedback")
	out.Feedback = models.Feedback{
		Confidence:     clamp01(fb.Get("confidence").Float()),
		TaskFit:        clamp01(fb.Get("task_fit").Float()),
		Clarity:        clamp01(fb.Get("clarity").Float()),
		ContextQuality: clamp01(fb.Get("context_quality").Float()),
	}
	if fr := fb.Get("friction"); fr.IsObject() {
		ft := models.FrictionType(fr.Get("type").String())
		if ft.Valid() {
			out.Feedback.Friction = &models.FrictionRecord{
				Type:          ft,
				Detail:        fr.Get("detail").String(),
				BlockedByRule: fr.Get("blocked_by_rule").String(),
				Suggestion:    fr.Get("suggestion").String(),
			}
		}
	}
	return out, nil
}

// extractObject returns the outermost JSON object in s.
func extractObject(s string) (string, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return "", fmt.Errorf("no JSON object in response: %s", preview(s))
	}
	raw := s[start : end+1]
	if !gjson.Valid(raw) {
		return "", fmt.Errorf("invalid JSON in response: %s", preview(raw))
	}
	return raw, nil
}

func preview(s string) string {
	if len(s) > 200 {
		return s[:200] + "... (truncated)"
	}
	return s
}

func bullets(items []string) string {
	if len(items) == 0 {
		return "- (none)\n"
	}
	var sb strings.Builder
	for _, it := range items {
		sb.WriteString("- ")
		sb.WriteString(it)
		sb.WriteString("\n")
	}
	return sb.String()
}

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
