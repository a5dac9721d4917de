package repo

import (
	"context"
	"log/slog"

	"github.com/okoumis/tillsync/internal/model"
)

// GroupSource is the product-group read surface shared by [remote.Store] and
// [mirror.Store].
type GroupSource interface {
	Groups(ctx context.Context) ([]model.ProductGroup, error)
	GroupByID(ctx context.Context, id int64) (*model.ProductGroup, error)
}

// Groups serves the catalogue group hierarchy.
type Groups struct {
	sel    *selector
	remote GroupSource
	local  GroupSource
}

// NewGroups builds the group repository over a remote/local store pair.
func NewGroups(remote, local GroupSource, settings Settings, prober Prober, log *slog.Logger) *Groups {
	return &Groups{
		sel:    &selector{settings: settings, prober: prober, log: log},
		remote: remote,
		local:  local,
	}
}

// GetAll returns every group as a flat list.
func (g *Groups) GetAll(ctx context.Context) ([]model.ProductGroup, error) {
	return fetch(ctx, g.sel, "groups.get_all", g.remote.Groups, g.local.Groups)
}

// GetTree returns the root groups with their subgroups nested, ready for
// menu navigation.
func (g *Groups) GetTree(ctx context.Context) ([]*model.ProductGroup, error) {
	flat, err := g.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return model.BuildGroupTree(flat), nil
}

// GetByID returns one group, or (nil, nil) when no such group exists.
func (g *Groups) GetByID(ctx context.Context, id int64) (*model.ProductGroup, error) {
	return fetch(ctx, g.sel, "groups.get_by_id",
		func(ctx context.Context) (*model.ProductGroup, error) { return g.remote.GroupByID(ctx, id) },
		func(ctx context.Context) (*model.ProductGroup, error) { return g.local.GroupByID(ctx, id) })
}
