package decompose

import (
	"context"
	"errors"
	"testing"

	"github.com/ShayCichocki/colony/internal/errs"
	"github.com/ShayCichocki/colony/pkg/models"
)

func testDomains() []models.DomainConfig {
	return []models.DomainConfig{
		{Name: "web", Keywords: []string{"dashboard", "react", "ui"}},
		{Name: "ai", Keywords: []string{"rag", "embedding", "llm"}},
		{Name: "quant", Keywords: []string{"trading", "backtest"}},
	}
}

func TestKeywordClassifier(t *testing.T) {
	c := NewKeywordClassifier(testDomains())
	tests := []struct {
		desc    string
		want    string
		wantErr bool
	}{
		{"Build a React dashboard", "web", false},
		{"RAG pipeline with embedding search and an LLM", "ai", false},
		{"Backtest a trading strategy", "quant", false},
		{"a web thing", "web", false},
		{"llm dashboard", "ai", false}, // tie goes to alphabetically first
		{"write a poem", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got, err := c.Classify(context.Background(), tt.desc)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Classify() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, errs.ErrInvalidDomain) {
				t.Errorf("error = %v, want ErrInvalidDomain", err)
			}
			if got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

type fixedClassifier struct {
	domain string
	err    error
}

func (f fixedClassifier) Classify(context.Context, string) (string, error) {
	return f.domain, f.err
}

func TestFallbackClassifier(t *testing.T) {
	known := func(d string) bool { return d == "web" || d == "ai" }
	secondary := fixedClassifier{domain: "web"}

	tests := []struct {
		name    string
		primary Classifier
		want    string
	}{
		{"primary wins", fixedClassifier{domain: "ai"}, "ai"},
		{"primary error", fixedClassifier{err: errors.New("down")}, "web"},
		{"primary unknown domain", fixedClassifier{domain: "poetry"}, "web"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &FallbackClassifier{Primary: tt.primary, Secondary: secondary, Known: known}
			got, err := f.Classify(context.Background(), "x")
			if err != nil || got != tt.want {
				t.Errorf("Classify() = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}
