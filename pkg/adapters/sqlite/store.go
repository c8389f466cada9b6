// Package sqlite provides an embedded, file-backed ports.OutboxStore.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bert-systems/canvas/pkg/domain"
)

//go:embed schema.sql
var schemaSQL string

//go:embed pragmas.sql
var pragmasSQL string

// Store implements ports.OutboxStore on SQLite.
type Store struct {
	conn *sql.DB
	path string
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// SQLite serializes writers anyway; one connection also keeps :memory: coherent.
	conn.SetMaxOpenConns(1)

	for _, pragma := range strings.Split(pragmasSQL, "\n") {
		pragma = strings.TrimSpace(pragma)
		if pragma == "" || strings.HasPrefix(pragma, "--") {
			continue
		}
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}

	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{conn: conn, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Save inserts or replaces the entry for a node.
func (s *Store) Save(ctx context.Context, entry domain.OutboxEntry) error {
	patch, err := json.Marshal(entry.Patch)
	if err != nil {
		return fmt.Errorf("marshal patch: %w", err)
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO outbox (node_id, patch, attempts, last_error, next_attempt, updated_at, dead_letter)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			patch = excluded.patch,
			attempts = excluded.attempts,
			last_error = excluded.last_error,
			next_attempt = excluded.next_attempt,
			updated_at = excluded.updated_at,
			dead_letter = excluded.dead_letter`,
		entry.NodeID, string(patch), entry.Attempts, entry.LastError,
		entry.NextAttempt.UnixMicro(), entry.UpdatedAt.UnixMicro(), entry.DeadLetter,
	)
	if err != nil {
		return fmt.Errorf("saving outbox entry: %w", err)
	}
	return nil
}

// Load retrieves the entry for a node.
func (s *Store) Load(ctx context.Context, nodeID string) (domain.OutboxEntry, error) {
	row := s.conn.QueryRowContext(ctx, selectEntry+` WHERE node_id = ?`, nodeID)
	entry, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.OutboxEntry{}, domain.ErrOutboxEntryNotFound
	}
	if err != nil {
		return domain.OutboxEntry{}, fmt.Errorf("querying outbox entry: %w", err)
	}
	return entry, nil
}

// Delete removes the entry for a node.
func (s *Store) Delete(ctx context.Context, nodeID string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM outbox WHERE node_id = ?`, nodeID); err != nil {
		return fmt.Errorf("deleting outbox entry: %w", err)
	}
	return nil
}

// List returns every entry ordered by node id.
func (s *Store) List(ctx context.Context) ([]domain.OutboxEntry, error) {
	rows, err := s.conn.QueryContext(ctx, selectEntry+` ORDER BY node_id`)
	if err != nil {
		return nil, fmt.Errorf("listing outbox: %w", err)
	}
	return collect(rows)
}

// Due returns live entries whose next attempt is not after now, oldest first.
func (s *Store) Due(ctx context.Context, now time.Time, limit int) ([]domain.OutboxEntry, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.conn.QueryContext(ctx,
		selectEntry+` WHERE dead_letter = 0 AND next_attempt <= ? ORDER BY next_attempt, node_id LIMIT ?`,
		now.UnixMicro(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying due entries: %w", err)
	}
	return collect(rows)
}

const selectEntry = `SELECT node_id, patch, attempts, last_error, next_attempt, updated_at, dead_letter FROM outbox`

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (domain.OutboxEntry, error) {
	var (
		entry      domain.OutboxEntry
		patch      string
		next, upd  int64
		deadLetter bool
	)
	if err := row.Scan(&entry.NodeID, &patch, &entry.Attempts, &entry.LastError, &next, &upd, &deadLetter); err != nil {
		return domain.OutboxEntry{}, err
	}
	if err := json.Unmarshal([]byte(patch), &entry.Patch); err != nil {
		return domain.OutboxEntry{}, fmt.Errorf("decoding patch of %q: %w", entry.NodeID, err)
	}
	entry.NextAttempt = time.UnixMicro(next).UTC()
	entry.UpdatedAt = time.UnixMicro(upd).UTC()
	entry.DeadLetter = deadLetter
	return entry, nil
}

func collect(rows *sql.Rows) ([]domain.OutboxEntry, error) {
	defer rows.Close()
	out := []domain.OutboxEntry{}
	for rows.Next() {
		entry, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
