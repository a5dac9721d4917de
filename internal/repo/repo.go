// Package repo implements the data access layer the till UI talks to. Each
// repository fronts the same entity on two stores: the central Postgres
// database and the local SQLite mirror. Reads prefer the central database
// when it is reachable and silently fall back to the mirror; order mutations
// always land on the mirror first and are pushed out afterwards, so the till
// keeps taking orders through any outage.
package repo

import (
	"context"
	"log/slog"
)

// Prober reports whether the central database is reachable right now.
// Implemented by [remote.Store].
type Prober interface {
	Probe(ctx context.Context) error
}

// Settings exposes the operator preferences the repositories act on.
// Implemented by [settings.Store].
type Settings interface {
	ForceOffline() bool
}

// Pusher uploads pending orders. Implemented by [sync.Engine]; repositories
// call it best-effort after each order mutation so a healthy venue stays
// near-realtime without waiting for the background loop.
type Pusher interface {
	SyncOrders(ctx context.Context) (pushed, failed int, err error)
}

// selector makes the per-call online/offline decision shared by every
// repository.
type selector struct {
	settings Settings
	prober   Prober
	log      *slog.Logger
}

// online reports whether this call should go to the central database. The
// operator override short-circuits the probe entirely.
func (s *selector) online(ctx context.Context) bool {
	if s.settings.ForceOffline() {
		return false
	}
	if err := s.prober.Probe(ctx); err != nil {
		s.log.Debug("central DB unreachable, serving from mirror", "error", err)
		return false
	}
	return true
}

// fetch runs the remote read when online, falling back to the mirror both
// when offline and when the remote read itself fails mid-flight.
func fetch[T any](ctx context.Context, s *selector, op string,
	remote, local func(context.Context) (T, error)) (T, error) {
	if s.online(ctx) {
		v, err := remote(ctx)
		if err == nil {
			return v, nil
		}
		s.log.Warn("remote read failed, falling back to mirror", "op", op, "error", err)
	}
	return local(ctx)
}
