package decompose

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ShayCichocki/colony/internal/errs"
	"github.com/ShayCichocki/colony/pkg/models"
)

// Classifier picks a domain for a task description.
type Classifier interface {
	Classify(ctx context.Context, description string) (string, error)
}

// KeywordClassifier routes by counting domain keywords in the description.
type KeywordClassifier struct {
	keywords map[string][]string
	names    []string
}

var _ Classifier = (*KeywordClassifier)(nil)

// NewKeywordClassifier builds a classifier from the domains' keyword lists.
func NewKeywordClassifier(domains []models.DomainConfig) *KeywordClassifier {
	k := &KeywordClassifier{keywords: make(map[string][]string, len(domains))}
	for _, d := range domains {
		kws := make([]string, 0, len(d.Keywords)+1)
		kws = append(kws, strings.ToLower(d.Name))
		for _, kw := range d.Keywords {
			kws = append(kws, strings.ToLower(kw))
		}
		k.keywords[d.Name] = kws
		k.names = append(k.names, d.Name)
	}
	sort.Strings(k.names)
	return k
}

var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

// Classify returns the domain with the most keyword hits. Ties go to the
// alphabetically first domain. No hits is ErrInvalidDomain.
func (k *KeywordClassifier) Classify(_ context.Context, description string) (string, error) {
	words := make(map[string]int)
	for _, w := range tokenRe.FindAllString(strings.ToLower(description), -1) {
		words[w]++
	}

	best, bestScore := "", 0
	for _, name := range k.names {
		score := 0
		for _, kw := range k.keywords[name] {
			score += words[kw]
		}
		if score > bestScore {
			best, bestScore = name, score
		}
	}
	if best == "" {
		return "", fmt.Errorf("classify %q: no domain keywords matched: %w", description, errs.ErrInvalidDomain)
	}
	return best, nil
}

// FallbackClassifier tries Primary and uses Secondary when it fails or
// names an unknown domain.
type FallbackClassifier struct {
	Primary   Classifier
	Secondary Classifier
	Known     func(domain string) bool
}

// Classify implements Classifier.
func (f *FallbackClassifier) Classify(ctx context.Context, description string) (string, error) {
	if f.Primary != nil {
		domain, err := f.Primary.Classify(ctx, description)
		if err == nil && (f.Known == nil || f.Known(domain)) {
			return domain, nil
		}
	}
	if f.Secondary == nil {
		return "", fmt.Errorf("classify %q: %w", description, errs.ErrInvalidDomain)
	}
	return f.Secondary.Classify(ctx, description)
}
