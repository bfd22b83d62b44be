package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ShayCichocki/colony/internal/errs"
)

// Store is a SQLite-backed Provider with full-text recall.
type Store struct {
	db         *sql.DB
	dbPath     string
	minQuality float64
	mu         sync.RWMutex
}

var _ Provider = (*Store)(nil)

// NewStore opens (creating if needed) the memory database at dbPath and
// applies migrations. Memories with Quality below minQuality are rejected.
func NewStore(dbPath string, minQuality float64) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for concurrent reads
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: conn, dbPath: dbPath, minQuality: minQuality}
	if err := s.Migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate memory store: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the path to the database file.
func (s *Store) Path() string {
	return s.dbPath
}

// Remember stores m. An empty ID is assigned; content must be non-empty.
func (s *Store) Remember(ctx context.Context, m Memory) (string, error) {
	if strings.TrimSpace(m.Content) == "" {
		return "", fmt.Errorf("empty content: %w", ErrRejected)
	}
	if m.Quality < s.minQuality {
		return "", fmt.Errorf("quality %.2f below %.2f: %w", m.Quality, s.minQuality, ErrRejected)
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Category == "" {
		m.Category = CategoryPattern
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %v: %w", err, errs.ErrCollaboratorUnavailable)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memories (id, content, category, source, quality, helpful, unhelpful, usefulness, created_at)
		VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?)
	`, m.ID, m.Content, string(m.Category), nullString(m.Source), m.Quality, usefulness(0, 0), formatTime(m.CreatedAt))
	if err != nil {
		return "", fmt.Errorf("insert memory: %w", err)
	}
	for _, tag := range m.Tags {
		if tag == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO memory_tags (memory_id, tag) VALUES (?, ?)", m.ID, strings.ToLower(tag)); err != nil {
			return "", fmt.Errorf("insert tag: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit memory: %w", err)
	}
	return m.ID, nil
}

// Recall performs a full-text search ranked by relevance then usefulness.
func (s *Store) Recall(ctx context.Context, query string, tags []string, limit int) ([]Memory, error) {
	match := ftsQuery(query)
	if match == "" || limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	args := []interface{}{match}
	where := "memories_fts MATCH ?"
	if len(tags) > 0 {
		placeholders := make([]string, len(tags))
		for i, tag := range tags {
			placeholders[i] = "?"
			args = append(args, strings.ToLower(tag))
		}
		where += fmt.Sprintf(
			" AND EXISTS (SELECT 1 FROM memory_tags t WHERE t.memory_id = m.id AND t.tag IN (%s))",
			strings.Join(placeholders, ", "))
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT m.id, m.content, m.category, m.source, m.quality, m.helpful, m.unhelpful, m.usefulness, m.created_at
		FROM memories m
		JOIN memories_fts fts ON m.rowid = fts.rowid
		WHERE %s
		ORDER BY rank, m.usefulness DESC
		LIMIT ?
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("recall memories: %v: %w", err, errs.ErrCollaboratorUnavailable)
	}
	defer rows.Close()

	memories, err := scanMemories(rows)
	if err != nil {
		return nil, err
	}
	for _, m := range memories {
		m.Tags, err = s.tags(ctx, m.ID)
		if err != nil {
			return nil, err
		}
	}

	out := make([]Memory, len(memories))
	for i, m := range memories {
		out[i] = *m
	}
	return out, nil
}

// Feedback records whether a memory helped and updates its usefulness.
func (s *Store) Feedback(ctx context.Context, id string, helpful bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		res sql.Result
		err error
	)
	if helpful {
		res, err = s.db.ExecContext(ctx, `
			UPDATE memories
			SET helpful = helpful + 1,
			    usefulness = CAST(helpful + 2 AS REAL) / (helpful + unhelpful + 3)
			WHERE id = ?
		`, id)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE memories
			SET unhelpful = unhelpful + 1,
			    usefulness = CAST(helpful + 1 AS REAL) / (helpful + unhelpful + 3)
			WHERE id = ?
		`, id)
	}
	if err != nil {
		return fmt.Errorf("record feedback: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("memory %s: %w", id, errs.ErrNotFound)
	}
	return nil
}

// Get retrieves a memory by ID.
func (s *Store) Get(ctx context.Context, id string) (*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, category, source, quality, helpful, unhelpful, usefulness, created_at
		FROM memories WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	defer rows.Close()

	memories, err := scanMemories(rows)
	if err != nil {
		return nil, err
	}
	if len(memories) == 0 {
		return nil, fmt.Errorf("memory %s: %w", id, errs.ErrNotFound)
	}
	m := memories[0]
	m.Tags, err = s.tags(ctx, id)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Count returns the number of stored memories.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories").Scan(&n); err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	return n, nil
}

func (s *Store) tags(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT tag FROM memory_tags WHERE memory_id = ? ORDER BY tag", id)
	if err != nil {
		return nil, fmt.Errorf("load tags: %w", err)
	}
	defer rows.Close()
	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func scanMemories(rows *sql.Rows) ([]*Memory, error) {
	var out []*Memory
	for rows.Next() {
		var (
			m         Memory
			category  string
			source    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&m.ID, &m.Content, &category, &source, &m.Quality,
			&m.Helpful, &m.Unhelpful, &m.Usefulness, &createdAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		m.Category = Category(category)
		m.Source = source.String
		if t, err := parseTime(createdAt); err == nil {
			m.CreatedAt = t
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

var wordRe = regexp.MustCompile(`[A-Za-z0-9]+`)

// ftsQuery turns free text into an OR query of quoted terms so punctuation
// in task descriptions cannot break FTS5 syntax.
func ftsQuery(text string) string {
	const maxTerms = 12
	seen := make(map[string]bool)
	var terms []string
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if len(w) < 3 || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, `"`+w+`"`)
		if len(terms) == maxTerms {
			break
		}
	}
	return strings.Join(terms, " OR ")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
