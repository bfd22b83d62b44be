package models

import "time"

// ConstraintEnvelope bounds a worker's action space within a domain.
// Envelopes held by the constraint store are never mutated in place;
// a change publishes a new version.
type ConstraintEnvelope struct {
	// Domain is the domain the envelope governs.
	Domain string `json:"domain" yaml:"domain"`
	// Version increases by one on every published change.
	Version int `json:"version" yaml:"version"`
	// CanDo lists permitted actions, in order.
	CanDo []string `json:"can_do" yaml:"can_do"`
	// CannotDo lists forbidden actions, in order.
	CannotDo []string `json:"cannot_do" yaml:"cannot_do"`
	// PublishedAt is when this version was published.
	PublishedAt time.Time `json:"published_at" yaml:"-"`
}

// Clone returns a deep copy so callers cannot alias the store's slices.
func (e ConstraintEnvelope) Clone() ConstraintEnvelope {
	out := e
	out.CanDo = append([]string(nil), e.CanDo...)
	out.CannotDo = append([]string(nil), e.CannotDo...)
	return out
}

// DomainConfig describes one work vertical and its fixed worker pool.
type DomainConfig struct {
	// Name is the domain identifier (e.g. "web").
	Name string `json:"name" yaml:"name"`
	// Description is shown in agent directives and the CLI.
	Description string `json:"description,omitempty" yaml:"description"`
	// Workers lists the seven global worker ordinals that form the pool.
	// Slice ordinal i is owned by Workers[i-1].
	Workers []int `json:"workers" yaml:"workers"`
	// CanDo seeds version 1 of the domain's envelope.
	CanDo []string `json:"can_do" yaml:"can_do"`
	// CannotDo seeds version 1 of the domain's envelope.
	CannotDo []string `json:"cannot_do" yaml:"cannot_do"`
	// Specializations maps a slice ordinal (1..7) to the worker's focus area.
	Specializations map[int]string `json:"specializations,omitempty" yaml:"specializations"`
	// Targets maps a slice ordinal (1..7) to its default assigned artifact.
	Targets map[int]string `json:"targets,omitempty" yaml:"targets"`
	// SharedTargets are artifacts any slice may touch (barrel/index files).
	SharedTargets []string `json:"shared_targets,omitempty" yaml:"shared_targets"`
	// ViolationTolerance is the total_violations level above which a task escalates.
	ViolationTolerance int `json:"violation_tolerance" yaml:"violation_tolerance"`
	// Keywords help the keyword classifier route task descriptions.
	Keywords []string `json:"keywords,omitempty" yaml:"keywords"`
}

// WorkerFor returns the global worker ordinal owning the given slice ordinal.
func (d *DomainConfig) WorkerFor(sliceOrdinal int) (int, bool) {
	if sliceOrdinal < 1 || sliceOrdinal > len(d.Workers) {
		return 0, false
	}
	return d.Workers[sliceOrdinal-1], true
}

// IsSharedTarget reports whether target is shared across the pool.
func (d *DomainConfig) IsSharedTarget(target string) bool {
	for _, s := range d.SharedTargets {
		if s == target {
			return true
		}
	}
	return false
}
