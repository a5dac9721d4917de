// Package remote talks to the central Postgres database, the authoritative
// system of record. Connections are deliberately short-lived: every
// operation dials, runs its queries, and closes, so no stale handle is held
// across the connectivity gaps this application is built to survive.
package remote

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// DefaultConnectTimeout bounds how long a single dial may take before the
// caller classifies the venue as offline.
const DefaultConnectTimeout = 2 * time.Second

// Store produces short-lived connections to the central database.
type Store struct {
	dsn     string
	timeout time.Duration
}

// New creates a Store for the given Postgres DSN. A non-positive timeout
// falls back to [DefaultConnectTimeout].
func New(dsn string, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	return &Store{dsn: dsn, timeout: timeout}
}

// Probe attempts to open and immediately close a connection. A nil return
// classifies the current operation as online; any error means offline. The
// result is advisory for a single call only and is not cached.
func (s *Store) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := pgx.Connect(ctx, s.dsn)
	if err != nil {
		return err
	}
	return conn.Close(ctx)
}

// connect dials with the configured timeout applied to the handshake only;
// the returned connection uses the caller's context for queries.
func (s *Store) connect(ctx context.Context) (*pgx.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return pgx.Connect(dialCtx, s.dsn)
}
