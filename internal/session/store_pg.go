package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MigrationConsoleSessions is the DDL for the console_sessions table. It is
// also shipped as migrations/001_console_sessions.up.sql.
const MigrationConsoleSessions = `
CREATE TABLE IF NOT EXISTS console_sessions (
    id           TEXT PRIMARY KEY,
    record_json  JSONB NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    expires_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_console_sessions_expires_at
    ON console_sessions (expires_at);
`

// pgRow represents a single row returned by QueryRow.
type pgRow interface {
	Scan(dest ...any) error
}

// pgConn is the minimal database interface PGStore needs. *pgxpool.Pool is
// adapted by pgxPoolWrapper; tests use a mock.
type pgConn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgRow
	Exec(ctx context.Context, sql string, args ...any) error
}

// PGStore keeps session records in PostgreSQL as JSONB.
type PGStore struct {
	db pgConn
}

// NewPGStore creates a store over db.
func NewPGStore(db pgConn) *PGStore {
	return &PGStore{db: db}
}

// NewPGStoreFromPool creates a store from a pool.
func NewPGStoreFromPool(pool *pgxpool.Pool) *PGStore {
	return &PGStore{db: &pgxPoolWrapper{pool: pool}}
}

func (s *PGStore) Save(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return errors.New("session record id is required")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	const query = `INSERT INTO console_sessions (id, record_json, updated_at, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET record_json = EXCLUDED.record_json,
                                updated_at  = EXCLUDED.updated_at,
                                expires_at  = EXCLUDED.expires_at`

	if err := s.db.Exec(ctx, query, rec.ID, data, rec.UpdatedAt, rec.ExpiresAt); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id string) (*Record, error) {
	const query = `SELECT record_json FROM console_sessions
WHERE id = $1 AND expires_at > now()`

	var data []byte
	if err := s.db.QueryRow(ctx, query, id).Scan(&data); err != nil {
		if isNoRows(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &rec, nil
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	if err := s.db.Exec(ctx, `DELETE FROM console_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Cleanup deletes expired rows.
func (s *PGStore) Cleanup(ctx context.Context) error {
	if err := s.db.Exec(ctx, `DELETE FROM console_sessions WHERE expires_at <= now()`); err != nil {
		return fmt.Errorf("cleanup sessions: %w", err)
	}
	return nil
}

// isNoRows matches pgx.ErrNoRows and the mock used in tests.
func isNoRows(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "no rows")
}

// pgxPoolWrapper adapts *pgxpool.Pool, whose Exec also returns a command tag.
type pgxPoolWrapper struct {
	pool *pgxpool.Pool
}

func (w *pgxPoolWrapper) QueryRow(ctx context.Context, sql string, args ...any) pgRow {
	return w.pool.QueryRow(ctx, sql, args...)
}

func (w *pgxPoolWrapper) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := w.pool.Exec(ctx, sql, args...)
	return err
}
