// Package sync implements the pull/push engine that keeps the local mirror
// and the central database converged. A full sync pulls the catalogue
// wholesale (products, groups, tables, reference data) into the mirror, then
// pushes every pending order in its own remote transaction, so one bad order
// never blocks the rest.
//
// The package contains two entry points:
//
//   - [Engine.SyncAll] runs one full pull+push pass.
//   - [Engine.Run] is the background loop driven by the operator settings.
package sync

import (
	"context"
	"time"

	"github.com/okoumis/tillsync/internal/model"
)

// RemoteStore is everything the engine needs from the central database.
// Implemented by [remote.Store].
type RemoteStore interface {
	Probe(ctx context.Context) error

	Products(ctx context.Context) ([]model.Product, error)
	Groups(ctx context.Context) ([]model.ProductGroup, error)
	ServicingPoints(ctx context.Context) ([]model.ServicingPoint, error)
	Areas(ctx context.Context) ([]model.Area, error)
	Modifiers(ctx context.Context) ([]model.Modifier, error)
	Courses(ctx context.Context) ([]model.Course, error)

	PushOrder(ctx context.Context, o *model.Order) error
	CatalogueChanged(ctx context.Context) (bool, error)
	ClearCatalogueChanged(ctx context.Context) error
}

// MirrorStore is the engine's local side. Implemented by [mirror.Store].
type MirrorStore interface {
	ReplaceProducts(ctx context.Context, products []model.Product) error
	ReplaceGroups(ctx context.Context, groups []model.ProductGroup) error
	ReplaceServicingPoints(ctx context.Context, points []model.ServicingPoint) error
	ReplaceAreas(ctx context.Context, areas []model.Area) error
	ReplaceModifiers(ctx context.Context, mods []model.Modifier) error
	ReplaceCourses(ctx context.Context, courses []model.Course) error

	UnsyncedOrders(ctx context.Context) ([]model.Order, error)
	MarkOrderSynced(ctx context.Context, orderID, rev int64) (bool, error)
	PendingOrderCount(ctx context.Context) (int, error)
	SetLastSyncTime(ctx context.Context, t time.Time) error
}

// Settings exposes the operator preferences the background loop honors.
// Implemented by [settings.Store].
type Settings interface {
	ForceOffline() bool
	AutoSync() bool
	SyncInterval() time.Duration
}
