package state

import (
	"context"
	"io"

	"github.com/ShayCichocki/colony/pkg/models"
)

// GovernanceStore persists the audit trail of the message gate and the
// rule adaptation engine.
type GovernanceStore interface {
	AppendViolation(ctx context.Context, e models.ViolationLogEntry) error
	Emit(ctx context.Context, a models.HumanAlert) error
	SaveAgent(ctx context.Context, a models.Agent) error
	SaveEnvelope(ctx context.Context, env models.ConstraintEnvelope) error
	SaveProposal(ctx context.Context, p models.RuleAdjustmentProposal) error
	SaveEscalation(ctx context.Context, req models.EscalationRequest) error
}

// PipelineStore persists tasks as they move through the pipeline.
type PipelineStore interface {
	SaveTask(ctx context.Context, t models.Task) error
	SaveSlices(ctx context.Context, slices []models.TaskSlice) error
	SaveReport(ctx context.Context, r models.QAReport) error
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Ledger is everything the engine writes. It allows the engine to work
// with any backend without depending on SQLite.
type Ledger interface {
	GovernanceStore
	PipelineStore
	// LoadSnapshot returns the persisted state needed to resume.
	LoadSnapshot(ctx context.Context) (Snapshot, error)
}

// StateStore is the full SQLite-backed store.
type StateStore interface {
	io.Closer
	Migrator
	Ledger
}

// Compile-time verification that DB implements all interfaces.
var (
	_ StateStore      = (*DB)(nil)
	_ GovernanceStore = (*DB)(nil)
	_ PipelineStore   = (*DB)(nil)
)
