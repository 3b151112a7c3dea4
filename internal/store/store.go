// Package store persists replanning sessions. Three backends: in-memory
// with JSON snapshot persistence (default), SQLite for single-node
// deployments, and PostgreSQL for anything shared.
package store

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/raincheck/raincheck/pkg/models"
)

// Store is the session storage interface. The session manager and the
// handlers depend on this, making it easy to swap between in-memory
// (tests, local dev) and SQL-backed implementations.
type Store interface {
	GetSession(ctx context.Context, id string) (*models.Session, error)
	PutSession(ctx context.Context, session *models.Session) error
	DeleteSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context, limit int) ([]models.Session, error)

	// Ping checks if the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// DefaultListLimit caps ListSessions when the caller passes no limit.
const DefaultListLimit = 100

// Options select and configure a backend.
type Options struct {
	Backend     string // memory, sqlite, postgres
	DataDir     string // memory snapshots and the default sqlite location
	SQLitePath  string
	PostgresURL string
}

// Open builds the store for the configured backend. An unknown backend
// name falls back to memory with a warning rather than refusing to boot.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", "memory":
		return NewMemoryStore(opts.DataDir), nil
	case "sqlite":
		return OpenSQLite(ctx, opts.SQLitePath, opts.DataDir)
	case "postgres":
		return OpenPostgres(ctx, opts.PostgresURL)
	default:
		log.Warn().Str("backend", opts.Backend).Msg("Unknown store backend, using memory")
		return NewMemoryStore(opts.DataDir), nil
	}
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested session does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}
