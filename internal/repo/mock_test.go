package repo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/okoumis/tillsync/internal/mirror"
	"github.com/okoumis/tillsync/internal/model"
)

var errRemoteDown = errors.New("connection refused")

type mockSettings struct {
	offline bool
}

func (m *mockSettings) ForceOffline() bool { return m.offline }

type mockProber struct {
	err    error
	probes int
}

func (m *mockProber) Probe(context.Context) error {
	m.probes++
	return m.err
}

type mockPusher struct {
	calls  int
	pushed int
	failed int
	err    error
}

func (m *mockPusher) SyncOrders(context.Context) (int, int, error) {
	m.calls++
	return m.pushed, m.failed, m.err
}

// mockProducts serves canned products, or fails every call when err is set.
type mockProducts struct {
	products []model.Product
	err      error
	calls    int
}

func (m *mockProducts) Products(context.Context) ([]model.Product, error) {
	m.calls++
	return m.products, m.err
}

func (m *mockProducts) ProductByID(_ context.Context, id int64) (*model.Product, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.products {
		if m.products[i].ID == id {
			return &m.products[i], nil
		}
	}
	return nil, nil
}

func (m *mockProducts) ProductsByGroup(_ context.Context, groupID int64) ([]model.Product, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var out []model.Product
	for _, p := range m.products {
		if p.GroupID == groupID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockProducts) FavoriteProducts(context.Context) ([]model.Product, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var out []model.Product
	for _, p := range m.products {
		if p.Favorite {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockProducts) SearchProducts(context.Context, string) ([]model.Product, error) {
	m.calls++
	return m.products, m.err
}

// seedProducts returns one product named after its origin store, so tests
// can tell which side served a read.
func seedProducts(name string) []model.Product {
	return []model.Product{{ID: 1, Name: name, Price: 1}}
}

// mockGroups serves canned groups, or fails every call when err is set.
type mockGroups struct {
	groups []model.ProductGroup
	err    error
}

func (m *mockGroups) Groups(context.Context) ([]model.ProductGroup, error) {
	return m.groups, m.err
}

func (m *mockGroups) GroupByID(_ context.Context, id int64) (*model.ProductGroup, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.groups {
		if m.groups[i].ID == id {
			return &m.groups[i], nil
		}
	}
	return nil, nil
}

// failOrders is a remote order reader that must not be reached.
type failOrders struct{}

func (failOrders) Orders(context.Context) ([]model.Order, error) { return nil, errRemoteDown }
func (failOrders) ActiveOrders(context.Context) ([]model.Order, error) {
	return nil, errRemoteDown
}
func (failOrders) OrdersByClerk(context.Context, int64) ([]model.Order, error) {
	return nil, errRemoteDown
}
func (failOrders) OrdersByTable(context.Context, int64) ([]model.Order, error) {
	return nil, errRemoteDown
}
func (failOrders) OrderByID(context.Context, int64) (*model.Order, error) {
	return nil, errRemoteDown
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openTestMirror opens a fresh mirror in a temp dir and seeds the catalogue
// rows the order tests need.
func openTestMirror(t *testing.T) *mirror.Store {
	t.Helper()
	store, err := mirror.Open(filepath.Join(t.TempDir(), "mirror.db"))
	if err != nil {
		t.Fatalf("opening test mirror: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	products := []model.Product{
		{ID: 10, Name: "Espresso", Price: 2.50, GroupID: 1, Course: 1},
		{ID: 11, Name: "Carbonara", Price: 11.90, GroupID: 2, Favorite: true, Course: 2},
	}
	if err := store.ReplaceProducts(ctx, products); err != nil {
		t.Fatalf("seeding products: %v", err)
	}
	points := []model.ServicingPoint{
		{ID: 5, Name: "Table 5", Number: 5, AreaID: 1},
		{ID: 6, Name: "Table 6", Number: 6, AreaID: 1},
	}
	if err := store.ReplaceServicingPoints(ctx, points); err != nil {
		t.Fatalf("seeding servicing points: %v", err)
	}
	return store
}

// offlineOrders builds an order repository over a fresh mirror with the
// remote unreachable.
func offlineOrders(t *testing.T) (*Orders, *mirror.Store) {
	t.Helper()
	store := openTestMirror(t)
	products := NewProducts(&mockProducts{err: errRemoteDown}, store,
		&mockSettings{}, &mockProber{err: errRemoteDown}, testLogger())
	orders := NewOrders(failOrders{}, store, products,
		&mockSettings{}, &mockProber{err: errRemoteDown}, testLogger())
	return orders, store
}
