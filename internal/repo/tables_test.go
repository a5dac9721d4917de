package repo

import (
	"context"
	"testing"

	"github.com/okoumis/tillsync/internal/model"
)

type mockRemoteTables struct {
	points      []model.ServicingPoint
	updateCalls int
	updateErr   error
}

func (m *mockRemoteTables) ServicingPoints(context.Context) ([]model.ServicingPoint, error) {
	return m.points, nil
}

func (m *mockRemoteTables) PointsByArea(context.Context, int64) ([]model.ServicingPoint, error) {
	return m.points, nil
}

func (m *mockRemoteTables) PointByID(_ context.Context, id int64) (*model.ServicingPoint, error) {
	for i := range m.points {
		if m.points[i].ID == id {
			return &m.points[i], nil
		}
	}
	return nil, nil
}

func (m *mockRemoteTables) UpdateTableStatus(context.Context, int64, bool, bool, *int64) error {
	m.updateCalls++
	return m.updateErr
}

func TestSetStatusOfflineUpdatesMirrorOnly(t *testing.T) {
	store := openTestMirror(t)
	remote := &mockRemoteTables{}
	tables := NewTables(remote, store, &mockSettings{offline: true}, &mockProber{}, testLogger())

	ctx := context.Background()
	orderID := int64(42)
	if err := tables.SetStatus(ctx, 5, true, false, &orderID); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	pt, err := store.PointByID(ctx, 5)
	if err != nil {
		t.Fatalf("PointByID: %v", err)
	}
	if !pt.Active || pt.ActiveOrderID == nil || *pt.ActiveOrderID != 42 {
		t.Errorf("mirror occupancy not recorded: %+v", pt)
	}
	if remote.updateCalls != 0 {
		t.Errorf("remote updated %d times while forced offline", remote.updateCalls)
	}
}

func TestSetStatusOnlineUpdatesBothSides(t *testing.T) {
	store := openTestMirror(t)
	remote := &mockRemoteTables{}
	tables := NewTables(remote, store, &mockSettings{}, &mockProber{}, testLogger())

	if err := tables.SetStatus(context.Background(), 5, true, true, nil); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if remote.updateCalls != 1 {
		t.Errorf("remote update calls = %d, want 1", remote.updateCalls)
	}
}

func TestSetStatusToleratesRemoteFailure(t *testing.T) {
	store := openTestMirror(t)
	remote := &mockRemoteTables{updateErr: errRemoteDown}
	tables := NewTables(remote, store, &mockSettings{}, &mockProber{}, testLogger())

	// The mirror write succeeded; the remote side converges via the order
	// push, so the call must not fail.
	if err := tables.SetStatus(context.Background(), 5, false, false, nil); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
}

func TestSetStatusUnknownPoint(t *testing.T) {
	store := openTestMirror(t)
	tables := NewTables(&mockRemoteTables{}, store, &mockSettings{offline: true}, &mockProber{}, testLogger())

	if err := tables.SetStatus(context.Background(), 404, true, false, nil); err == nil {
		t.Fatal("expected error for unknown servicing point")
	}
}
