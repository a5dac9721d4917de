// Package mirror manages the on-device SQLite database that shadows the
// central database: one table per remote entity, plus an is_synced flag on
// order rows and a generic key/value metadata table.
//
// Only this package may open or query the mirror database. All other
// packages receive a [*Store] and call its methods.
package mirror

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
    id              INTEGER PRIMARY KEY,
    name            TEXT    NOT NULL,
    alt_name        TEXT    NOT NULL DEFAULT '',
    price           REAL    NOT NULL DEFAULT 0,
    group_id        INTEGER NOT NULL,
    printer         TEXT    NOT NULL DEFAULT '',
    receipt_printer TEXT    NOT NULL DEFAULT '',
    favorite        INTEGER NOT NULL DEFAULT 0,
    course          INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS product_groups (
    id         INTEGER PRIMARY KEY,
    name       TEXT    NOT NULL,
    alt_name   TEXT    NOT NULL DEFAULT '',
    view_order INTEGER NOT NULL DEFAULT 0,
    is_sub     INTEGER NOT NULL DEFAULT 0,
    parent_id  INTEGER,
    has_sub    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS servicing_points (
    id              INTEGER PRIMARY KEY,
    name            TEXT    NOT NULL,
    number          INTEGER NOT NULL DEFAULT 0,
    area_id         INTEGER NOT NULL DEFAULT 0,
    active          INTEGER NOT NULL DEFAULT 0,
    reserved        INTEGER NOT NULL DEFAULT 0,
    active_order_id INTEGER
);

CREATE TABLE IF NOT EXISTS areas (
    id   INTEGER PRIMARY KEY,
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS modifiers (
    id    INTEGER PRIMARY KEY,
    name  TEXT NOT NULL,
    price REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS courses (
    id   INTEGER PRIMARY KEY,
    name TEXT    NOT NULL,
    rank INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS orders (
    id                   INTEGER PRIMARY KEY,
    created_at           TEXT    NOT NULL,
    clerk_id             INTEGER NOT NULL,
    total                REAL    NOT NULL DEFAULT 0,
    discount_percent     REAL    NOT NULL DEFAULT 0,
    discount_amount      REAL    NOT NULL DEFAULT 0,
    total_after_discount REAL    NOT NULL DEFAULT 0,
    closed               INTEGER NOT NULL DEFAULT 0,
    closed_at            TEXT    NOT NULL DEFAULT '',
    history              INTEGER NOT NULL DEFAULT 0,
    table_id             INTEGER,
    cash_amount          REAL    NOT NULL DEFAULT 0,
    card_amount          REAL    NOT NULL DEFAULT 0,
    voucher_amount       REAL    NOT NULL DEFAULT 0,
    rev                  INTEGER NOT NULL DEFAULT 0,
    is_synced            INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS order_items (
    sub_id     INTEGER PRIMARY KEY,
    order_id   INTEGER NOT NULL,
    product_id INTEGER NOT NULL,
    name       TEXT    NOT NULL DEFAULT '',
    quantity   INTEGER NOT NULL DEFAULT 0,
    price      REAL    NOT NULL DEFAULT 0,
    cancelled  INTEGER NOT NULL DEFAULT 0,
    printed    INTEGER NOT NULL DEFAULT 0,
    receipted  INTEGER NOT NULL DEFAULT 0,
    course     INTEGER NOT NULL DEFAULT 0,
    is_synced  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS order_extras (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    item_sub_id INTEGER NOT NULL,
    modifier_id INTEGER NOT NULL,
    quantity    INTEGER NOT NULL DEFAULT 1,
    prefix      TEXT    NOT NULL DEFAULT '',
    is_synced   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS metadata (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_products_group      ON products (group_id);
CREATE INDEX IF NOT EXISTS idx_points_area         ON servicing_points (area_id);
CREATE INDEX IF NOT EXISTS idx_items_order         ON order_items (order_id);
CREATE INDEX IF NOT EXISTS idx_extras_item         ON order_extras (item_sub_id);
CREATE INDEX IF NOT EXISTS idx_orders_unsynced     ON orders (is_synced);
`

// catalogueTables are the reference-data tables replaced wholesale by the
// pull phase, in clear order.
var catalogueTables = []string{
	"products", "product_groups", "servicing_points", "areas", "modifiers", "courses",
}

const lastSyncKey = "last_sync_time"

// Store is the SQLite-backed local mirror.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the default mirror location:
// ~/.local/share/tillsync/mirror.db
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "tillsync", "mirror.db"), nil
}

// Open opens (or creates) the mirror database at path, applies the schema
// idempotently, and configures WAL mode. Safe to call on every startup.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating mirror directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening mirror %q: %w", path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying mirror schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Clear wipes every mirrored table, order data, and metadata. Used for a
// full cache reset; the next sync repopulates everything.
func (s *Store) Clear(ctx context.Context) error {
	tables := append(append([]string{}, catalogueTables...),
		"orders", "order_items", "order_extras", "metadata")
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return nil
}

// --- Key/value metadata ------------------------------------------------------

// GetBlob returns the raw value stored under key, or ("", false, nil) when
// the key is absent.
func (s *Store) GetBlob(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading metadata %q: %w", key, err)
	}
	return value, true, nil
}

// SetBlob stores value under key, replacing any previous value.
func (s *Store) SetBlob(ctx context.Context, key, value string) error {
	const q = `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := s.db.ExecContext(ctx, q, key, value); err != nil {
		return fmt.Errorf("writing metadata %q: %w", key, err)
	}
	return nil
}

// LastSyncTime returns the timestamp of the last fully successful sync, or
// the zero time if no sync has completed yet.
func (s *Store) LastSyncTime(ctx context.Context) (time.Time, error) {
	raw, ok, err := s.GetBlob(ctx, lastSyncKey)
	if err != nil || !ok {
		return time.Time{}, err
	}
	return parseTime(raw)
}

// SetLastSyncTime records the completion time of a fully successful sync.
func (s *Store) SetLastSyncTime(ctx context.Context, t time.Time) error {
	return s.SetBlob(ctx, lastSyncKey, formatTime(t))
}

// --- Local id allocation -----------------------------------------------------

// NextOrderID allocates a new order id. The counter lives in the metadata
// table and never moves backwards past existing order rows, so ids stay
// stable across restarts and survive a pull that reseeds the mirror.
func (s *Store) NextOrderID(ctx context.Context) (int64, error) {
	return s.nextSeq(ctx, "seq:order", "SELECT COALESCE(MAX(id), 0) FROM orders")
}

// NextItemID allocates a new order-item sub id from the shared item
// namespace.
func (s *Store) NextItemID(ctx context.Context) (int64, error) {
	return s.nextSeq(ctx, "seq:item", "SELECT COALESCE(MAX(sub_id), 0) FROM order_items")
}

func (s *Store) nextSeq(ctx context.Context, key, maxQuery string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("allocating %s: %w", key, err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int64
	var raw string
	err = tx.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
		current = 0
	case err != nil:
		return 0, fmt.Errorf("reading %s: %w", key, err)
	default:
		if _, err := fmt.Sscanf(raw, "%d", &current); err != nil {
			return 0, fmt.Errorf("parsing %s value %q: %w", key, raw, err)
		}
	}

	var highWater int64
	if err := tx.QueryRowContext(ctx, maxQuery).Scan(&highWater); err != nil {
		return 0, fmt.Errorf("reading high-water mark for %s: %w", key, err)
	}
	if highWater > current {
		current = highWater
	}
	next := current + 1

	const q = `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := tx.ExecContext(ctx, q, key, fmt.Sprintf("%d", next)); err != nil {
		return 0, fmt.Errorf("storing %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing %s: %w", key, err)
	}
	return next, nil
}

// --- helpers -----------------------------------------------------------------

// scanner matches both *sql.Row and *sql.Rows so row mappers can be shared.
type scanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
