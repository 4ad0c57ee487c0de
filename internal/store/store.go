// Package store persists the known-endpoint cache in SQLite: every
// endpoint a node has ever paired with, its last auth token (so a
// returning endpoint can be recognized without a fresh out-of-band
// check), and whether the user marked it trusted.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrEndpointNotFound is returned when no cache row exists for an id.
var ErrEndpointNotFound = errors.New("endpoint not found")

// KnownEndpoint is one cached pairing record.
type KnownEndpoint struct {
	EndpointID   string
	EndpointName string
	AuthToken    string
	LastMedium   string
	Trusted      bool
	LastSeenAt   time.Time
}

// Store persists node state in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database and runs migrations.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	st := &Store{db: db}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("sqlite store opened", "path", path)
	return st, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS known_endpoints (
	endpoint_id TEXT PRIMARY KEY,
	endpoint_name TEXT NOT NULL DEFAULT '',
	auth_token TEXT NOT NULL DEFAULT '',
	last_medium TEXT NOT NULL DEFAULT '',
	trusted INTEGER NOT NULL DEFAULT 0,
	last_seen_unix_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_known_endpoints_last_seen ON known_endpoints(last_seen_unix_ms);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("run sqlite migrations: %w", err)
	}
	slog.Debug("sqlite migrations applied")
	return nil
}

// Remember upserts a known-endpoint row, called once a connection to
// endpointID has been authenticated (spec §4.6's PENDING_AUTH → the
// client shows the user an auth token, the client then decides whether
// to trust it going forward).
func (s *Store) Remember(ctx context.Context, e KnownEndpoint) error {
	if strings.TrimSpace(e.EndpointID) == "" {
		return fmt.Errorf("endpoint id is required")
	}
	if e.LastSeenAt.IsZero() {
		e.LastSeenAt = time.Now().UTC()
	}

	const q = `
INSERT INTO known_endpoints (endpoint_id, endpoint_name, auth_token, last_medium, trusted, last_seen_unix_ms)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(endpoint_id) DO UPDATE SET
	endpoint_name = excluded.endpoint_name,
	auth_token = excluded.auth_token,
	last_medium = excluded.last_medium,
	trusted = excluded.trusted,
	last_seen_unix_ms = excluded.last_seen_unix_ms
`
	trusted := 0
	if e.Trusted {
		trusted = 1
	}
	_, err := s.db.ExecContext(ctx, q, e.EndpointID, e.EndpointName, e.AuthToken, e.LastMedium, trusted, e.LastSeenAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert known endpoint: %w", err)
	}
	slog.Debug("endpoint remembered", "endpoint_id", e.EndpointID, "trusted", e.Trusted)
	return nil
}

// SetTrusted updates just the trusted flag for an already-cached endpoint.
func (s *Store) SetTrusted(ctx context.Context, endpointID string, trusted bool) error {
	v := 0
	if trusted {
		v = 1
	}
	res, err := s.db.ExecContext(ctx, `UPDATE known_endpoints SET trusted = ? WHERE endpoint_id = ?`, v, endpointID)
	if err != nil {
		return fmt.Errorf("update endpoint trust: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrEndpointNotFound
	}
	return nil
}

// Get returns the cached record for endpointID.
func (s *Store) Get(ctx context.Context, endpointID string) (KnownEndpoint, error) {
	const q = `
SELECT endpoint_id, endpoint_name, auth_token, last_medium, trusted, last_seen_unix_ms
FROM known_endpoints WHERE endpoint_id = ?
`
	var (
		e             KnownEndpoint
		trusted       int
		lastSeenMilli int64
	)
	err := s.db.QueryRowContext(ctx, q, endpointID).Scan(&e.EndpointID, &e.EndpointName, &e.AuthToken, &e.LastMedium, &trusted, &lastSeenMilli)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return KnownEndpoint{}, ErrEndpointNotFound
		}
		return KnownEndpoint{}, fmt.Errorf("query known endpoint: %w", err)
	}
	e.Trusted = trusted != 0
	e.LastSeenAt = time.UnixMilli(lastSeenMilli).UTC()
	return e, nil
}

// List returns every cached endpoint, most recently seen first.
func (s *Store) List(ctx context.Context) ([]KnownEndpoint, error) {
	const q = `
SELECT endpoint_id, endpoint_name, auth_token, last_medium, trusted, last_seen_unix_ms
FROM known_endpoints ORDER BY last_seen_unix_ms DESC
`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query known endpoints: %w", err)
	}
	defer rows.Close()

	var out []KnownEndpoint
	for rows.Next() {
		var (
			e             KnownEndpoint
			trusted       int
			lastSeenMilli int64
		)
		if err := rows.Scan(&e.EndpointID, &e.EndpointName, &e.AuthToken, &e.LastMedium, &trusted, &lastSeenMilli); err != nil {
			return nil, fmt.Errorf("scan known endpoint: %w", err)
		}
		e.Trusted = trusted != 0
		e.LastSeenAt = time.UnixMilli(lastSeenMilli).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Forget removes a cached endpoint, e.g. after the user revokes trust.
func (s *Store) Forget(ctx context.Context, endpointID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM known_endpoints WHERE endpoint_id = ?`, endpointID)
	if err != nil {
		return fmt.Errorf("delete known endpoint: %w", err)
	}
	return nil
}
