// Package alert delivers human-facing alerts for critical colony events.
package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ShayCichocki/colony/pkg/models"
)

// Sink receives human alerts. Emit must be idempotent by EventID.
type Sink interface {
	Emit(ctx context.Context, a models.HumanAlert) error
}

// FileSink writes one JSON file per alert into a directory.
// A file that already exists for an event ID is left untouched.
type FileSink struct {
	dir string
	mu  sync.Mutex
}

// NewFileSink creates the alert directory if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create alert directory: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// Dir returns the alert directory.
func (s *FileSink) Dir() string {
	return s.dir
}

// FileName returns the file name used for an alert.
func FileName(a models.HumanAlert) string {
	return strings.ToUpper(string(a.Kind)) + "_" + sanitize(a.EventID) + ".json"
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, id)
}

// Emit writes the alert unless a file for its event ID already exists.
func (s *FileSink) Emit(_ context.Context, a models.HumanAlert) error {
	if a.EventID == "" {
		return errors.New("alert missing event id")
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, FileName(a))
	tmp := path + ".tmp"
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write alert: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// ReadFile decodes a single alert file.
func ReadFile(path string) (models.HumanAlert, error) {
	var a models.HumanAlert
	data, err := os.ReadFile(path)
	if err != nil {
		return a, err
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return a, fmt.Errorf("decode alert %s: %w", filepath.Base(path), err)
	}
	return a, nil
}

// List returns every alert in dir, oldest first.
func List(dir string) ([]models.HumanAlert, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	alerts := make([]models.HumanAlert, 0, len(matches))
	for _, m := range matches {
		a, err := ReadFile(m)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Timestamp.Before(alerts[j].Timestamp)
	})
	return alerts, nil
}

// MemorySink keeps alerts in memory, deduplicated by event ID.
type MemorySink struct {
	mu     sync.Mutex
	seen   map[string]bool
	alerts []models.HumanAlert
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{seen: make(map[string]bool)}
}

// Emit records the alert once per event ID.
func (s *MemorySink) Emit(_ context.Context, a models.HumanAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[a.EventID] {
		return nil
	}
	s.seen[a.EventID] = true
	s.alerts = append(s.alerts, a)
	return nil
}

// Alerts returns a copy of the recorded alerts in emission order.
func (s *MemorySink) Alerts() []models.HumanAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.HumanAlert(nil), s.alerts...)
}

// MultiSink fans an alert out to several sinks.
type MultiSink []Sink

// Emit delivers to every sink and joins their errors.
func (m MultiSink) Emit(ctx context.Context, a models.HumanAlert) error {
	var errList []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, a); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}
