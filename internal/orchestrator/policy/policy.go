// Package policy defines the tunable thresholds that govern the colony.
// Every magic number used by the gate, coordinator, scorer, and adaptation
// engine lives here so it can be configured and tested.
package policy

import (
	"fmt"
	"math"
	"time"

	"github.com/ShayCichocki/colony/internal/errs"
)

// Config contains all configurable policy parameters.
type Config struct {
	// Message gate policies
	Gate GatePolicy `mapstructure:"gate"`

	// Slice execution policies
	Execution ExecutionPolicy `mapstructure:"execution"`

	// Quality scoring policies
	Quality QualityPolicy `mapstructure:"quality"`

	// Rule adaptation policies
	Adaptation AdaptationPolicy `mapstructure:"adaptation"`

	// Event stream policies
	Events EventPolicy `mapstructure:"events"`
}

// GatePolicy controls violation accounting.
type GatePolicy struct {
	// RevocationThreshold is the violation count that revokes an agent.
	RevocationThreshold int `mapstructure:"revocation_threshold"`

	// Edges overrides the default hierarchy when non-empty,
	// e.g. "worker->orchestrator:same_domain".
	Edges []string `mapstructure:"edges"`

	// DecisionCacheSize bounds the redelivery cache.
	DecisionCacheSize int `mapstructure:"decision_cache_size"`
}

// ExecutionPolicy controls dispatch and join.
type ExecutionPolicy struct {
	// SliceTimeout bounds each slice; the join never waits longer.
	SliceTimeout time.Duration `mapstructure:"slice_timeout"`

	// MaxRetries bounds retries of CollaboratorUnavailable failures per slice.
	MaxRetries int `mapstructure:"max_retries"`

	// BackoffBase is the first retry delay; each retry doubles it.
	BackoffBase time.Duration `mapstructure:"backoff_base"`

	// BackoffMax caps a single retry delay.
	BackoffMax time.Duration `mapstructure:"backoff_max"`
}

// QualityPolicy controls composite scoring.
type QualityPolicy struct {
	// CompletionWeight, ComplianceWeight and ConfidenceWeight must sum to 1.
	CompletionWeight float64 `mapstructure:"completion_weight"`
	ComplianceWeight float64 `mapstructure:"compliance_weight"`
	ConfidenceWeight float64 `mapstructure:"confidence_weight"`

	// PassThreshold is the minimum score for PASSED.
	PassThreshold float64 `mapstructure:"pass_threshold"`

	// PartialThreshold is the minimum score for PARTIAL.
	PartialThreshold float64 `mapstructure:"partial_threshold"`

	// ViolationHardCap forces BLOCKED when total violations exceed it.
	ViolationHardCap int `mapstructure:"violation_hard_cap"`

	// LowQualityAlert raises a human alert below this score.
	LowQualityAlert float64 `mapstructure:"low_quality_alert"`
}

// AdaptationPolicy controls friction aggregation.
type AdaptationPolicy struct {
	// Threshold is the friction count for one key that fires a proposal.
	Threshold int `mapstructure:"threshold"`

	// Window is how long friction records stay in the rolling window.
	Window time.Duration `mapstructure:"window"`
}

// EventPolicy controls the engine event stream.
type EventPolicy struct {
	// BufferSize is the buffer size for the event channel.
	BufferSize int `mapstructure:"buffer_size"`
}

// Default returns the default policy configuration.
func Default() *Config {
	return &Config{
		Gate: GatePolicy{
			RevocationThreshold: 3,
			DecisionCacheSize:   4096,
		},
		Execution: ExecutionPolicy{
			SliceTimeout: 120 * time.Second,
			MaxRetries:   3,
			BackoffBase:  500 * time.Millisecond,
			BackoffMax:   10 * time.Second,
		},
		Quality: QualityPolicy{
			CompletionWeight: 0.4,
			ComplianceWeight: 0.3,
			ConfidenceWeight: 0.3,
			PassThreshold:    0.8,
			PartialThreshold: 0.5,
			ViolationHardCap: 7,
			LowQualityAlert:  0.5,
		},
		Adaptation: AdaptationPolicy{
			Threshold: 25,
			Window:    7 * 24 * time.Hour,
		},
		Events: EventPolicy{
			BufferSize: 256,
		},
	}
}

// Validate clamps out-of-range values back to defaults. Quality weights
// that do not sum to 1 cannot be repaired and return ErrConfigInvalid.
func (c *Config) Validate() error {
	if c.Gate.RevocationThreshold < 1 {
		c.Gate.RevocationThreshold = 3
	}
	if c.Gate.DecisionCacheSize < 1 {
		c.Gate.DecisionCacheSize = 4096
	}
	if c.Execution.SliceTimeout < 10*time.Millisecond {
		c.Execution.SliceTimeout = 120 * time.Second
	}
	if c.Execution.MaxRetries < 0 {
		c.Execution.MaxRetries = 3
	}
	if c.Execution.BackoffBase <= 0 {
		c.Execution.BackoffBase = 500 * time.Millisecond
	}
	if c.Execution.BackoffMax < c.Execution.BackoffBase {
		c.Execution.BackoffMax = c.Execution.BackoffBase
	}
	if c.Quality.PassThreshold <= 0 || c.Quality.PassThreshold > 1 {
		c.Quality.PassThreshold = 0.8
	}
	if c.Quality.PartialThreshold <= 0 || c.Quality.PartialThreshold > c.Quality.PassThreshold {
		c.Quality.PartialThreshold = 0.5
	}
	if c.Quality.ViolationHardCap < 0 {
		c.Quality.ViolationHardCap = 7
	}
	if c.Adaptation.Threshold < 1 {
		c.Adaptation.Threshold = 25
	}
	if c.Adaptation.Window <= 0 {
		c.Adaptation.Window = 7 * 24 * time.Hour
	}
	if c.Events.BufferSize < 1 {
		c.Events.BufferSize = 256
	}
	return c.Quality.ValidateWeights()
}

// ValidateWeights checks the scoring weights.
func (q QualityPolicy) ValidateWeights() error {
	w := []float64{q.CompletionWeight, q.ComplianceWeight, q.ConfidenceWeight}
	sum := 0.0
	for _, x := range w {
		if x < 0 {
			return fmt.Errorf("quality weights must be non-negative, got %v: %w", w, errs.ErrConfigInvalid)
		}
		sum += x
	}
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("quality weights must sum to 1, got %.4f: %w", sum, errs.ErrConfigInvalid)
	}
	return nil
}
