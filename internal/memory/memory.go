// Package memory provides the colony's long-term recall: memories are
// remembered after tasks, recalled to enrich slice context, and rated by
// feedback so useful memories rank higher over time.
package memory

import (
	"context"
	"errors"
	"time"
)

// ErrRejected is returned by Remember when a memory is below the quality bar.
var ErrRejected = errors.New("memory rejected")

// Category classifies a memory.
type Category string

const (
	CategoryPattern  Category = "pattern"
	CategoryOutcome  Category = "outcome"
	CategoryFriction Category = "friction"
	CategoryDecision Category = "decision"
)

// Memory is one remembered fact.
type Memory struct {
	ID       string
	Content  string
	Category Category
	// Tags scope recall; the domain name is always a tag.
	Tags    []string
	Source  string
	Quality float64
	// Helpful and Unhelpful count feedback events.
	Helpful   int
	Unhelpful int
	// Usefulness is the smoothed helpful ratio used for ranking.
	Usefulness float64
	CreatedAt  time.Time
}

// Provider is the memory contract used by the decomposer and recorder.
type Provider interface {
	// Recall returns up to limit memories relevant to query. When tags is
	// non-empty only memories carrying at least one tag are returned.
	Recall(ctx context.Context, query string, tags []string, limit int) ([]Memory, error)
	// Remember stores m and returns its ID.
	Remember(ctx context.Context, m Memory) (string, error)
	// Feedback rates a memory after it was used.
	Feedback(ctx context.Context, id string, helpful bool) error
}

// usefulness is the Laplace-smoothed helpful ratio.
func usefulness(helpful, unhelpful int) float64 {
	return float64(helpful+1) / float64(helpful+unhelpful+2)
}
