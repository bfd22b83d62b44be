package state

import (
	"context"
	"fmt"

	"github.com/ShayCichocki/colony/pkg/models"
)

// Snapshot is the persisted state the engine restores at startup so that
// tombstones, envelope versions, and open proposals survive a restart.
type Snapshot struct {
	// Envelopes holds the newest stored version per domain.
	Envelopes []models.ConstraintEnvelope
	Agents    []models.Agent
	// History maps agent ID to its violations, oldest first.
	History     map[string][]models.ViolationLogEntry
	Proposals   []models.RuleAdjustmentProposal
	Escalations []models.EscalationRequest
}

// LoadSnapshot reads the restorable state.
func (db *DB) LoadSnapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	envs, err := db.EnvelopeHistory(ctx, "")
	if err != nil {
		return snap, fmt.Errorf("load snapshot: %w", err)
	}
	latest := make(map[string]int)
	for _, env := range envs {
		i, ok := latest[env.Domain]
		if !ok {
			latest[env.Domain] = len(snap.Envelopes)
			snap.Envelopes = append(snap.Envelopes, env)
			continue
		}
		if env.Version > snap.Envelopes[i].Version {
			snap.Envelopes[i] = env
		}
	}

	if snap.Agents, err = db.ListAgents(ctx); err != nil {
		return snap, fmt.Errorf("load snapshot: %w", err)
	}

	violations, err := db.ListViolations(ctx, "", 0)
	if err != nil {
		return snap, fmt.Errorf("load snapshot: %w", err)
	}
	snap.History = make(map[string][]models.ViolationLogEntry)
	for _, v := range violations {
		snap.History[v.Sender] = append(snap.History[v.Sender], v)
	}

	if snap.Proposals, err = db.ListProposals(ctx, ""); err != nil {
		return snap, fmt.Errorf("load snapshot: %w", err)
	}
	if snap.Escalations, err = db.ListEscalations(ctx, false); err != nil {
		return snap, fmt.Errorf("load snapshot: %w", err)
	}
	return snap, nil
}
