package repo

import (
	"context"
	"log/slog"

	"github.com/okoumis/tillsync/internal/model"
)

// TableSource is the servicing-point read surface shared by [remote.Store]
// and [mirror.Store].
type TableSource interface {
	ServicingPoints(ctx context.Context) ([]model.ServicingPoint, error)
	PointsByArea(ctx context.Context, areaID int64) ([]model.ServicingPoint, error)
	PointByID(ctx context.Context, id int64) (*model.ServicingPoint, error)
}

// RemoteTables adds the central-DB occupancy write to the read surface.
type RemoteTables interface {
	TableSource
	UpdateTableStatus(ctx context.Context, id int64, active, reserved bool, activeOrderID *int64) error
}

// LocalTables adds the mirror occupancy write to the read surface.
type LocalTables interface {
	TableSource
	SetPointStatus(ctx context.Context, id int64, active, reserved bool, activeOrderID *int64) error
}

// Tables serves the floor plan: servicing points and their occupancy.
type Tables struct {
	sel    *selector
	remote RemoteTables
	local  LocalTables
}

// NewTables builds the servicing-point repository over a remote/local store
// pair.
func NewTables(remote RemoteTables, local LocalTables, settings Settings, prober Prober, log *slog.Logger) *Tables {
	return &Tables{
		sel:    &selector{settings: settings, prober: prober, log: log},
		remote: remote,
		local:  local,
	}
}

// GetAll returns every servicing point.
func (t *Tables) GetAll(ctx context.Context) ([]model.ServicingPoint, error) {
	return fetch(ctx, t.sel, "tables.get_all",
		t.remote.ServicingPoints, t.local.ServicingPoints)
}

// GetByArea returns the servicing points of one floor area.
func (t *Tables) GetByArea(ctx context.Context, areaID int64) ([]model.ServicingPoint, error) {
	return fetch(ctx, t.sel, "tables.get_by_area",
		func(ctx context.Context) ([]model.ServicingPoint, error) { return t.remote.PointsByArea(ctx, areaID) },
		func(ctx context.Context) ([]model.ServicingPoint, error) { return t.local.PointsByArea(ctx, areaID) })
}

// GetByID returns one servicing point, or (nil, nil) when absent.
func (t *Tables) GetByID(ctx context.Context, id int64) (*model.ServicingPoint, error) {
	return fetch(ctx, t.sel, "tables.get_by_id",
		func(ctx context.Context) (*model.ServicingPoint, error) { return t.remote.PointByID(ctx, id) },
		func(ctx context.Context) (*model.ServicingPoint, error) { return t.local.PointByID(ctx, id) })
}

// SetStatus updates occupancy on the mirror first, then best-effort on the
// central database. A remote failure is logged, not returned: the order push
// replays table occupancy inside its own transaction, so the central DB
// converges on the next successful sync.
func (t *Tables) SetStatus(ctx context.Context, id int64, active, reserved bool, activeOrderID *int64) error {
	if err := t.local.SetPointStatus(ctx, id, active, reserved, activeOrderID); err != nil {
		return err
	}
	if t.sel.online(ctx) {
		if err := t.remote.UpdateTableStatus(ctx, id, active, reserved, activeOrderID); err != nil {
			t.sel.log.Warn("central table-status update failed, mirror retains truth",
				"table_id", id, "error", err)
		}
	}
	return nil
}
