package repo

import (
	"context"
	"log/slog"

	"github.com/okoumis/tillsync/internal/model"
)

// ProductSource is the product read surface shared by [remote.Store] and
// [mirror.Store].
type ProductSource interface {
	Products(ctx context.Context) ([]model.Product, error)
	ProductByID(ctx context.Context, id int64) (*model.Product, error)
	ProductsByGroup(ctx context.Context, groupID int64) ([]model.Product, error)
	FavoriteProducts(ctx context.Context) ([]model.Product, error)
	SearchProducts(ctx context.Context, query string) ([]model.Product, error)
}

// Products serves the sellable catalogue.
type Products struct {
	sel    *selector
	remote ProductSource
	local  ProductSource
}

// NewProducts builds the product repository over a remote/local store pair.
func NewProducts(remote, local ProductSource, settings Settings, prober Prober, log *slog.Logger) *Products {
	return &Products{
		sel:    &selector{settings: settings, prober: prober, log: log},
		remote: remote,
		local:  local,
	}
}

// GetAll returns every product.
func (p *Products) GetAll(ctx context.Context) ([]model.Product, error) {
	return fetch(ctx, p.sel, "products.get_all", p.remote.Products, p.local.Products)
}

// GetByID returns one product, or (nil, nil) when no such product exists.
func (p *Products) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	return fetch(ctx, p.sel, "products.get_by_id",
		func(ctx context.Context) (*model.Product, error) { return p.remote.ProductByID(ctx, id) },
		func(ctx context.Context) (*model.Product, error) { return p.local.ProductByID(ctx, id) })
}

// GetByGroup returns the products of one catalogue group.
func (p *Products) GetByGroup(ctx context.Context, groupID int64) ([]model.Product, error) {
	return fetch(ctx, p.sel, "products.get_by_group",
		func(ctx context.Context) ([]model.Product, error) { return p.remote.ProductsByGroup(ctx, groupID) },
		func(ctx context.Context) ([]model.Product, error) { return p.local.ProductsByGroup(ctx, groupID) })
}

// GetFavorites returns the products flagged for the quick-access panel.
func (p *Products) GetFavorites(ctx context.Context) ([]model.Product, error) {
	return fetch(ctx, p.sel, "products.get_favorites",
		p.remote.FavoriteProducts, p.local.FavoriteProducts)
}

// Search returns products whose name or alternate name contains the query,
// case-insensitively.
func (p *Products) Search(ctx context.Context, query string) ([]model.Product, error) {
	return fetch(ctx, p.sel, "products.search",
		func(ctx context.Context) ([]model.Product, error) { return p.remote.SearchProducts(ctx, query) },
		func(ctx context.Context) ([]model.Product, error) { return p.local.SearchProducts(ctx, query) })
}
