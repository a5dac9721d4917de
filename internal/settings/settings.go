// Package settings exposes the operator-controlled sync preferences: the
// "force offline" override, the auto-sync toggle, and the sync interval.
// Values persist across restarts as a JSON blob in the mirror's metadata
// table and are cached in memory so the hot-path ForceOffline check never
// touches the database.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const settingsKey = "settings"

// DefaultSyncInterval is used until the operator picks another interval.
const DefaultSyncInterval = 15 * time.Minute

// KV is the persistence surface the settings are stored behind.
// Implemented by [mirror.Store].
type KV interface {
	GetBlob(ctx context.Context, key string) (string, bool, error)
	SetBlob(ctx context.Context, key, value string) error
}

type persisted struct {
	ForceOffline bool          `json:"force_offline"`
	AutoSync     bool          `json:"auto_sync"`
	SyncInterval time.Duration `json:"sync_interval"`
}

// Store holds the current settings. Create one with [Load].
type Store struct {
	kv KV

	mu  sync.RWMutex
	cur persisted
}

// Load reads persisted settings from kv, falling back to defaults (online,
// auto-sync on, 15m interval) when nothing is stored or the blob does not
// parse.
func Load(ctx context.Context, kv KV) (*Store, error) {
	s := &Store{
		kv:  kv,
		cur: persisted{AutoSync: true, SyncInterval: DefaultSyncInterval},
	}

	raw, ok, err := kv.GetBlob(ctx, settingsKey)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	if ok {
		var p persisted
		if err := json.Unmarshal([]byte(raw), &p); err == nil {
			if p.SyncInterval <= 0 {
				p.SyncInterval = DefaultSyncInterval
			}
			s.cur = p
		}
	}
	return s, nil
}

// ForceOffline reports whether the operator has pinned the app offline.
// When set, repositories skip the connectivity probe entirely.
func (s *Store) ForceOffline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.ForceOffline
}

// SetForceOffline persists the offline override.
func (s *Store) SetForceOffline(ctx context.Context, v bool) error {
	return s.update(ctx, func(p *persisted) { p.ForceOffline = v })
}

// AutoSync reports whether the background sync loop should run.
func (s *Store) AutoSync() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.AutoSync
}

// SetAutoSync persists the auto-sync toggle.
func (s *Store) SetAutoSync(ctx context.Context, v bool) error {
	return s.update(ctx, func(p *persisted) { p.AutoSync = v })
}

// SyncInterval returns the background sync period.
func (s *Store) SyncInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.SyncInterval
}

// SetSyncInterval persists the background sync period. Non-positive values
// are rejected.
func (s *Store) SetSyncInterval(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("sync interval %v must be positive", d)
	}
	return s.update(ctx, func(p *persisted) { p.SyncInterval = d })
}

func (s *Store) update(ctx context.Context, mutate func(*persisted)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur
	mutate(&next)

	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := s.kv.SetBlob(ctx, settingsKey, string(raw)); err != nil {
		return fmt.Errorf("persisting settings: %w", err)
	}
	s.cur = next
	return nil
}
