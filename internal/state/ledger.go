package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/ShayCichocki/colony/internal/errs"
	"github.com/ShayCichocki/colony/pkg/models"
)

// Violations

// AppendViolation records a denied send. Entries are never updated;
// a repeated event ID is ignored.
func (db *DB) AppendViolation(ctx context.Context, e models.ViolationLogEntry) error {
	_, err := db.exec(ctx, `
		INSERT OR IGNORE INTO violations (event_id, ts, sender, recipient, channel, reason, excerpt, violation_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.EventID, formatTime(e.Timestamp), e.Sender, e.Recipient, e.Channel, e.Reason, nullString(e.Excerpt), e.ViolationCount)
	if err != nil {
		return fmt.Errorf("append violation %s: %w", e.EventID, err)
	}
	return nil
}

// ListViolations returns violations oldest first. A sender filters by agent;
// limit > 0 keeps only the newest entries.
func (db *DB) ListViolations(ctx context.Context, sender string, limit int) ([]models.ViolationLogEntry, error) {
	q := `SELECT event_id, ts, sender, recipient, channel, reason, excerpt, violation_count FROM violations`
	var args []any
	if sender != "" {
		q += ` WHERE sender = ?`
		args = append(args, sender)
	}
	q += ` ORDER BY ts DESC, violation_count DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}
	defer rows.Close()

	var out []models.ViolationLogEntry
	for rows.Next() {
		var e models.ViolationLogEntry
		var ts string
		var excerpt sql.NullString
		if err := rows.Scan(&e.EventID, &ts, &e.Sender, &e.Recipient, &e.Channel, &e.Reason, &excerpt, &e.ViolationCount); err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		e.Timestamp, _ = parseTime(ts)
		e.Excerpt = excerpt.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

// Alerts

// Emit stores a human alert. A repeated event ID is ignored, so the DB can
// sit behind an alert.MultiSink next to the file sink.
func (db *DB) Emit(ctx context.Context, a models.HumanAlert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alert %s: %w", a.EventID, err)
	}
	_, err = db.exec(ctx, `
		INSERT OR IGNORE INTO alerts (event_id, kind, severity, agent_id, domain, task_id, payload, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.EventID, string(a.Kind), string(a.Severity), nullString(a.AgentID), nullString(a.Domain), nullString(a.TaskID), string(payload), formatTime(a.Timestamp))
	if err != nil {
		return fmt.Errorf("store alert %s: %w", a.EventID, err)
	}
	return nil
}

// ListAlerts returns alerts oldest first.
func (db *DB) ListAlerts(ctx context.Context) ([]models.HumanAlert, error) {
	rows, err := db.query(ctx, `SELECT payload FROM alerts ORDER BY ts, event_id`)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()
	return scanJSON[models.HumanAlert](rows, "alert")
}

// Agents

// SaveAgent upserts an agent. A stored agent is only overwritten by a
// record with at least as many violations, so a stale write cannot undo
// a warning or a revocation.
func (db *DB) SaveAgent(ctx context.Context, a models.Agent) error {
	_, err := db.exec(ctx, `
		INSERT INTO agents (id, role, domain, ordinal, state, violation_count, registered_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			violation_count = excluded.violation_count,
			revoked_at = COALESCE(agents.revoked_at, excluded.revoked_at)
		WHERE excluded.violation_count >= agents.violation_count AND agents.state != 'REVOKED'
	`, a.ID, string(a.Role), nullString(a.Domain), a.Ordinal, string(a.State), a.ViolationCount,
		formatTime(a.RegisteredAt), nullableTime(a.RevokedAt))
	if err != nil {
		return fmt.Errorf("save agent %s: %w", a.ID, err)
	}
	return nil
}

// ListAgents returns every stored agent ordered by ID.
func (db *DB) ListAgents(ctx context.Context) ([]models.Agent, error) {
	rows, err := db.query(ctx, `
		SELECT id, role, domain, ordinal, state, violation_count, registered_at, revoked_at
		FROM agents ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []models.Agent
	for rows.Next() {
		var a models.Agent
		var domain, revokedAt sql.NullString
		var registeredAt string
		if err := rows.Scan(&a.ID, &a.Role, &domain, &a.Ordinal, &a.State, &a.ViolationCount, &registeredAt, &revokedAt); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		a.Domain = domain.String
		a.RegisteredAt, _ = parseTime(registeredAt)
		a.RevokedAt = parseNullableTime(revokedAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Envelopes

// SaveEnvelope records a published envelope version.
func (db *DB) SaveEnvelope(ctx context.Context, env models.ConstraintEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope %s v%d: %w", env.Domain, env.Version, err)
	}
	_, err = db.exec(ctx, `
		INSERT OR IGNORE INTO envelopes (domain, version, payload, published_at)
		VALUES (?, ?, ?, ?)
	`, env.Domain, env.Version, string(payload), formatTime(env.PublishedAt))
	if err != nil {
		return fmt.Errorf("save envelope %s v%d: %w", env.Domain, env.Version, err)
	}
	return nil
}

// EnvelopeHistory returns every stored version of a domain's envelope,
// oldest first. An empty domain returns all domains.
func (db *DB) EnvelopeHistory(ctx context.Context, domain string) ([]models.ConstraintEnvelope, error) {
	q := `SELECT payload FROM envelopes`
	var args []any
	if domain != "" {
		q += ` WHERE domain = ?`
		args = append(args, domain)
	}
	q += ` ORDER BY domain, version`
	rows, err := db.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("envelope history: %w", err)
	}
	defer rows.Close()
	return scanJSON[models.ConstraintEnvelope](rows, "envelope")
}

// Proposals

// SaveProposal upserts a rule adjustment proposal.
func (db *DB) SaveProposal(ctx context.Context, p models.RuleAdjustmentProposal) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode proposal %s: %w", p.ID, err)
	}
	_, err = db.exec(ctx, `
		INSERT INTO proposals (id, domain, friction_type, blocked_by_rule, scope, status, payload, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			payload = excluded.payload,
			resolved_at = excluded.resolved_at
	`, p.ID, p.Domain, string(p.Key.Type), nullString(p.Key.BlockedByRule), string(p.Scope), string(p.Status),
		string(payload), formatTime(p.CreatedAt), nullableTime(p.ResolvedAt))
	if err != nil {
		return fmt.Errorf("save proposal %s: %w", p.ID, err)
	}
	return nil
}

// ListProposals returns proposals oldest first, optionally filtered by status.
func (db *DB) ListProposals(ctx context.Context, status models.ProposalStatus) ([]models.RuleAdjustmentProposal, error) {
	q := `SELECT payload FROM proposals`
	var args []any
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, string(status))
	}
	q += ` ORDER BY created_at, id`
	rows, err := db.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()
	return scanJSON[models.RuleAdjustmentProposal](rows, "proposal")
}

// Escalations

// SaveEscalation upserts an escalation request.
func (db *DB) SaveEscalation(ctx context.Context, req models.EscalationRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode escalation %s: %w", req.ID, err)
	}
	_, err = db.exec(ctx, `
		INSERT INTO escalations (id, domain, task_id, reason, resolved, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			resolved = excluded.resolved,
			payload = excluded.payload
	`, req.ID, req.Domain, nullString(req.TaskID), string(req.Reason), boolInt(req.Resolved), string(payload), formatTime(req.CreatedAt))
	if err != nil {
		return fmt.Errorf("save escalation %s: %w", req.ID, err)
	}
	return nil
}

// ListEscalations returns escalations oldest first. pendingOnly drops
// resolved requests.
func (db *DB) ListEscalations(ctx context.Context, pendingOnly bool) ([]models.EscalationRequest, error) {
	q := `SELECT payload FROM escalations`
	if pendingOnly {
		q += ` WHERE resolved = 0`
	}
	q += ` ORDER BY created_at, id`
	rows, err := db.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	defer rows.Close()
	return scanJSON[models.EscalationRequest](rows, "escalation")
}

// Tasks, slices, reports

// SaveTask upserts a task.
func (db *DB) SaveTask(ctx context.Context, t models.Task) error {
	_, err := db.exec(ctx, `
		INSERT INTO tasks (id, description, domain, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			domain = excluded.domain,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, t.ID, t.Description, nullString(t.Domain), string(t.Status), formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	return nil
}

// GetTask returns a task by ID.
func (db *DB) GetTask(ctx context.Context, id string) (models.Task, error) {
	row := db.queryRow(ctx, `
		SELECT id, description, domain, status, created_at, updated_at FROM tasks WHERE id = ?
	`, id)
	var t models.Task
	var domain sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&t.ID, &t.Description, &domain, &t.Status, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, fmt.Errorf("task %s: %w", id, errs.ErrNotFound)
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("get task %s: %w", id, err)
	}
	t.Domain = domain.String
	t.CreatedAt, _ = parseTime(createdAt)
	t.UpdatedAt, _ = parseTime(updatedAt)
	return t, nil
}

// ListTasks returns the most recent tasks, newest first.
func (db *DB) ListTasks(ctx context.Context, limit int) ([]models.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.query(ctx, `
		SELECT id, description, domain, status, created_at, updated_at
		FROM tasks ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []models.Task
	for rows.Next() {
		var t models.Task
		var domain sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&t.ID, &t.Description, &domain, &t.Status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Domain = domain.String
		t.CreatedAt, _ = parseTime(createdAt)
		t.UpdatedAt, _ = parseTime(updatedAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

// SaveSlices upserts a task's slices in one transaction.
func (db *DB) SaveSlices(ctx context.Context, batch []models.TaskSlice) error {
	return db.Transaction(ctx, func(tx *sql.Tx) error {
		for _, s := range batch {
			payload, err := json.Marshal(s)
			if err != nil {
				return fmt.Errorf("encode slice %s: %w", s.ID, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO slices (id, task_id, ordinal, worker_id, status, payload)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					status = excluded.status,
					payload = excluded.payload
			`, s.ID, s.TaskID, s.WorkerOrdinal, s.WorkerID, string(s.Status), string(payload))
			if err != nil {
				return fmt.Errorf("save slice %s: %w", s.ID, err)
			}
		}
		return nil
	})
}

// SlicesForTask returns a task's slices ordered by ordinal.
func (db *DB) SlicesForTask(ctx context.Context, taskID string) ([]models.TaskSlice, error) {
	rows, err := db.query(ctx, `SELECT payload FROM slices WHERE task_id = ? ORDER BY ordinal`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list slices for %s: %w", taskID, err)
	}
	defer rows.Close()
	return scanJSON[models.TaskSlice](rows, "slice")
}

// SaveReport upserts a task's QA report.
func (db *DB) SaveReport(ctx context.Context, r models.QAReport) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", r.TaskID, err)
	}
	_, err = db.exec(ctx, `
		INSERT INTO reports (task_id, domain, quality_score, status, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			quality_score = excluded.quality_score,
			status = excluded.status,
			payload = excluded.payload
	`, r.TaskID, r.Domain, r.QualityScore, string(r.Status), string(payload), formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("save report %s: %w", r.TaskID, err)
	}
	return nil
}

// GetReport returns the QA report for a task.
func (db *DB) GetReport(ctx context.Context, taskID string) (models.QAReport, error) {
	var payload string
	err := db.queryRow(ctx, `SELECT payload FROM reports WHERE task_id = ?`, taskID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return models.QAReport{}, fmt.Errorf("report %s: %w", taskID, errs.ErrNotFound)
	}
	if err != nil {
		return models.QAReport{}, fmt.Errorf("get report %s: %w", taskID, err)
	}
	var r models.QAReport
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return models.QAReport{}, fmt.Errorf("decode report %s: %w", taskID, err)
	}
	return r, nil
}

func scanJSON[T any](rows *sql.Rows, what string) ([]T, error) {
	var out []T
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		var v T
		if err := json.Unmarshal([]byte(payload), &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", what, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
