package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ShayCichocki/colony/internal/decompose"
	"github.com/ShayCichocki/colony/internal/errs"
	"github.com/ShayCichocki/colony/pkg/models"
)

const classifyPrompt = `Route this task to exactly one domain.

Task:
%s

Domains:
%s
Return ONLY a JSON object: {"domain": "<name>"}`

// Classifier routes task descriptions with a model.
type Classifier struct {
	llm     Completer
	domains []models.DomainConfig
}

var _ decompose.Classifier = (*Classifier)(nil)

// NewClassifier creates a model-backed domain classifier.
func NewClassifier(llm Completer, domains []models.DomainConfig) *Classifier {
	return &Classifier{llm: llm, domains: domains}
}

// Classify returns the domain the model picked. An answer naming no
// configured domain is ErrInvalidDomain.
func (c *Classifier) Classify(ctx context.Context, description string) (string, error) {
	var sb strings.Builder
	for _, d := range c.domains {
		fmt.Fprintf(&sb, "- %s: %s\n", d.Name, d.Description)
	}
	resp, err := c.llm.Complete(ctx, "", fmt.Sprintf(classifyPrompt, description, sb.String()))
	if err != nil {
		return "", err
	}

	name := strings.TrimSpace(resp)
	if raw, err := extractObject(resp); err == nil {
		name = gjson.Get(raw, "domain").String()
	}
	name = strings.ToLower(strings.Trim(strings.TrimSpace(name), `"'.`))
	for _, d := range c.domains {
		if d.Name == name {
			return d.Name, nil
		}
	}
	return "", fmt.Errorf("classifier answered %q: %w", preview(name), errs.ErrInvalidDomain)
}
