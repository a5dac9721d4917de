package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/okoumis/tillsync/internal/mirror"
	"github.com/okoumis/tillsync/internal/model"
)

var errUnreachable = errors.New("connection refused")

// mockRemote stands in for the central database.
type mockRemote struct {
	probeErr error

	products  []model.Product
	groups    []model.ProductGroup
	points    []model.ServicingPoint
	areas     []model.Area
	modifiers []model.Modifier
	courses   []model.Course

	productsErr error
	groupsErr   error

	changed    bool
	clearCalls int

	pushErr   map[int64]error
	pushedIDs []int64

	// onPush, when set, runs while an order upload is in flight. Tests use
	// it to interleave mirror writes with the push phase.
	onPush func(o *model.Order)
}

func (m *mockRemote) Probe(context.Context) error { return m.probeErr }

func (m *mockRemote) Products(context.Context) ([]model.Product, error) {
	return m.products, m.productsErr
}

func (m *mockRemote) Groups(context.Context) ([]model.ProductGroup, error) {
	return m.groups, m.groupsErr
}

func (m *mockRemote) ServicingPoints(context.Context) ([]model.ServicingPoint, error) {
	return m.points, nil
}

func (m *mockRemote) Areas(context.Context) ([]model.Area, error) { return m.areas, nil }

func (m *mockRemote) Modifiers(context.Context) ([]model.Modifier, error) {
	return m.modifiers, nil
}

func (m *mockRemote) Courses(context.Context) ([]model.Course, error) { return m.courses, nil }

func (m *mockRemote) PushOrder(_ context.Context, o *model.Order) error {
	if err := m.pushErr[o.ID]; err != nil {
		return err
	}
	if m.onPush != nil {
		m.onPush(o)
	}
	m.pushedIDs = append(m.pushedIDs, o.ID)
	return nil
}

func (m *mockRemote) CatalogueChanged(context.Context) (bool, error) { return m.changed, nil }

func (m *mockRemote) ClearCatalogueChanged(context.Context) error {
	m.clearCalls++
	m.changed = false
	return nil
}

type mockSettings struct {
	offline  bool
	autoSync bool
	interval time.Duration
}

func (m *mockSettings) ForceOffline() bool          { return m.offline }
func (m *mockSettings) AutoSync() bool              { return m.autoSync }
func (m *mockSettings) SyncInterval() time.Duration { return m.interval }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestMirror(t *testing.T) *mirror.Store {
	t.Helper()
	store, err := mirror.Open(filepath.Join(t.TempDir(), "mirror.db"))
	if err != nil {
		t.Fatalf("opening test mirror: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// seedPendingOrder writes one unsynced order with a single line into the
// mirror.
func seedPendingOrder(t *testing.T, store *mirror.Store, id int64) {
	t.Helper()
	ctx := context.Background()
	o := &model.Order{ID: id, CreatedAt: time.Now(), ClerkID: 1}
	it := model.OrderItem{SubID: id * 100, OrderID: id, ProductID: 10, Name: "Espresso", Quantity: 1, Price: 2.50}
	o.Items = append(o.Items, it)
	o.RecalculateTotal()
	if err := store.UpsertOrder(ctx, o); err != nil {
		t.Fatalf("seeding order %d: %v", id, err)
	}
	if err := store.UpsertItem(ctx, &o.Items[0]); err != nil {
		t.Fatalf("seeding item of order %d: %v", id, err)
	}
}
