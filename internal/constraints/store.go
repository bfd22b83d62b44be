// Package constraints holds the versioned constraint envelope for every domain.
//
// Envelopes are immutable values. A change publishes a new version under a
// per-domain writer lock; readers always receive a deep copy of the version
// current at read time, so later changes never reach an earlier snapshot.
package constraints

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ShayCichocki/colony/internal/errs"
	"github.com/ShayCichocki/colony/pkg/models"
)

// Store is the single owner of domain constraint envelopes.
type Store struct {
	mu       sync.RWMutex
	current  map[string]models.ConstraintEnvelope
	history  map[string][]models.ConstraintEnvelope
	writers  map[string]*sync.Mutex
	handlers []func(models.ConstraintEnvelope)
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		current: make(map[string]models.ConstraintEnvelope),
		history: make(map[string][]models.ConstraintEnvelope),
		writers: make(map[string]*sync.Mutex),
	}
}

// OnPublish registers fn to observe every newly published version,
// including seeded ones.
func (s *Store) OnPublish(fn func(models.ConstraintEnvelope)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, fn)
}

// Seed publishes version 1 for the domain unless it already has an envelope.
func (s *Store) Seed(d models.DomainConfig) error {
	if d.Name == "" {
		return fmt.Errorf("seed constraints: empty domain name: %w", errs.ErrConfigInvalid)
	}
	s.mu.Lock()
	if _, ok := s.current[d.Name]; ok {
		s.mu.Unlock()
		return nil
	}
	env := models.ConstraintEnvelope{
		Domain:      d.Name,
		Version:     1,
		CanDo:       append([]string(nil), d.CanDo...),
		CannotDo:    append([]string(nil), d.CannotDo...),
		PublishedAt: time.Now().UTC(),
	}
	s.install(env)
	handlers := s.handlers
	s.mu.Unlock()

	notify(handlers, env)
	return nil
}

// Restore installs a persisted envelope if it is newer than the current one.
func (s *Store) Restore(env models.ConstraintEnvelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.current[env.Domain]; ok && cur.Version >= env.Version {
		return
	}
	s.install(env.Clone())
}

// install records env as current. Callers must hold s.mu.
func (s *Store) install(env models.ConstraintEnvelope) {
	s.current[env.Domain] = env
	s.history[env.Domain] = append(s.history[env.Domain], env)
	if _, ok := s.writers[env.Domain]; !ok {
		s.writers[env.Domain] = &sync.Mutex{}
	}
}

// Snapshot returns a deep copy of the domain's current envelope.
func (s *Store) Snapshot(domain string) (models.ConstraintEnvelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	env, ok := s.current[domain]
	if !ok {
		return models.ConstraintEnvelope{}, fmt.Errorf("constraints for %q: %w", domain, errs.ErrInvalidDomain)
	}
	return env.Clone(), nil
}

// Version returns the domain's current version, or 0 if unknown.
func (s *Store) Version(domain string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current[domain].Version
}

// History returns every published version for the domain, oldest first.
func (s *Store) History(domain string) []models.ConstraintEnvelope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ConstraintEnvelope, len(s.history[domain]))
	for i, env := range s.history[domain] {
		out[i] = env.Clone()
	}
	return out
}

// Domains returns the known domains in sorted order.
func (s *Store) Domains() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.current))
	for d := range s.current {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Apply publishes a new version of the domain's envelope with change applied.
// Writers for the same domain are serialized; readers are never blocked
// for longer than the final swap.
func (s *Store) Apply(domain string, change models.RuleChange) (models.ConstraintEnvelope, error) {
	s.mu.RLock()
	w, ok := s.writers[domain]
	s.mu.RUnlock()
	if !ok {
		return models.ConstraintEnvelope{}, fmt.Errorf("apply to %q: %w", domain, errs.ErrInvalidDomain)
	}

	w.Lock()
	defer w.Unlock()

	base, err := s.Snapshot(domain)
	if err != nil {
		return models.ConstraintEnvelope{}, err
	}
	next, err := ApplyChange(base, change)
	if err != nil {
		return models.ConstraintEnvelope{}, fmt.Errorf("apply to %q: %w", domain, err)
	}
	next.Version = base.Version + 1
	next.PublishedAt = time.Now().UTC()

	s.mu.Lock()
	s.install(next)
	handlers := s.handlers
	s.mu.Unlock()

	notify(handlers, next)
	return next.Clone(), nil
}

func notify(handlers []func(models.ConstraintEnvelope), env models.ConstraintEnvelope) {
	for _, fn := range handlers {
		fn(env.Clone())
	}
}
