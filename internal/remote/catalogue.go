package remote

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/okoumis/tillsync/internal/model"
)

// Catalogue reads. The same queries back both the repositories' online read
// path and the sync engine's pull phase: reference data is read-mostly and
// always fetched whole.

const productColumns = `id, name, alt_name, price, group_id, printer, receipt_printer, favorite, course`

// Products returns every product.
func (s *Store) Products(ctx context.Context) ([]model.Product, error) {
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
}

// ProductByID returns one product, or (nil, nil) when absent.
func (s *Store) ProductByID(ctx context.Context, id int64) (*model.Product, error) {
	products, err := s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, nil
	}
	return &products[0], nil
}

// ProductsByGroup returns the products of one catalogue group.
func (s *Store) ProductsByGroup(ctx context.Context, groupID int64) ([]model.Product, error) {
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE group_id = $1 ORDER BY id`, groupID)
}

// FavoriteProducts returns the products flagged as favorites.
func (s *Store) FavoriteProducts(ctx context.Context) ([]model.Product, error) {
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE favorite ORDER BY id`)
}

// SearchProducts returns products whose name or alternate name contains the
// query, case-insensitively.
func (s *Store) SearchProducts(ctx context.Context, query string) ([]model.Product, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products
		 WHERE lower(name) LIKE $1 OR lower(alt_name) LIKE $1 ORDER BY id`, pattern)
}

func (s *Store) queryProducts(ctx context.Context, q string, args ...any) ([]model.Product, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to central DB: %w", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	rows, err := conn.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.AltName, &p.Price, &p.GroupID,
			&p.Printer, &p.ReceiptPrinter, &p.Favorite, &p.Course); err != nil {
			return nil, fmt.Errorf("scanning product row: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// Groups returns every product group, flat.
func (s *Store) Groups(ctx context.Context) ([]model.ProductGroup, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to central DB: %w", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	rows, err := conn.Query(ctx,
		`SELECT id, name, alt_name, view_order, is_sub, parent_id, has_sub
		 FROM product_groups ORDER BY view_order, id`)
	if err != nil {
		return nil, fmt.Errorf("querying product groups: %w", err)
	}
	defer rows.Close()

	var groups []model.ProductGroup
	for rows.Next() {
		var g model.ProductGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.AltName, &g.ViewOrder,
			&g.IsSub, &g.ParentID, &g.HasSub); err != nil {
			return nil, fmt.Errorf("scanning group row: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// GroupByID returns one product group, or (nil, nil) when absent.
func (s *Store) GroupByID(ctx context.Context, id int64) (*model.ProductGroup, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to central DB: %w", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	var g model.ProductGroup
	err = conn.QueryRow(ctx,
		`SELECT id, name, alt_name, view_order, is_sub, parent_id, has_sub
		 FROM product_groups WHERE id = $1`, id).
		Scan(&g.ID, &g.Name, &g.AltName, &g.ViewOrder, &g.IsSub, &g.ParentID, &g.HasSub)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading group %d: %w", id, err)
	}
	return &g, nil
}

const pointColumns = `id, name, number, area_id, active, reserved, active_order_id`

// ServicingPoints returns every servicing point.
func (s *Store) ServicingPoints(ctx context.Context) ([]model.ServicingPoint, error) {
	return s.queryPoints(ctx, `SELECT `+pointColumns+` FROM servicing_points ORDER BY number`)
}

// PointsByArea returns the servicing points of one floor area.
func (s *Store) PointsByArea(ctx context.Context, areaID int64) ([]model.ServicingPoint, error) {
	return s.queryPoints(ctx,
		`SELECT `+pointColumns+` FROM servicing_points WHERE area_id = $1 ORDER BY number`, areaID)
}

// PointByID returns one servicing point, or (nil, nil) when absent.
func (s *Store) PointByID(ctx context.Context, id int64) (*model.ServicingPoint, error) {
	points, err := s.queryPoints(ctx,
		`SELECT `+pointColumns+` FROM servicing_points WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, nil
	}
	return &points[0], nil
}

func (s *Store) queryPoints(ctx context.Context, q string, args ...any) ([]model.ServicingPoint, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to central DB: %w", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	rows, err := conn.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying servicing points: %w", err)
	}
	defer rows.Close()

	var points []model.ServicingPoint
	for rows.Next() {
		var p model.ServicingPoint
		if err := rows.Scan(&p.ID, &p.Name, &p.Number, &p.AreaID,
			&p.Active, &p.Reserved, &p.ActiveOrderID); err != nil {
			return nil, fmt.Errorf("scanning servicing point row: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// UpdateTableStatus marks a servicing point occupied or free. Occupying
// records the open order; releasing clears the reference.
func (s *Store) UpdateTableStatus(ctx context.Context, id int64, active, reserved bool, activeOrderID *int64) error {
	conn, err := s.connect(ctx)
	if err != nil {
		return fmt.Errorf("connecting to central DB: %w", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	var orderID *int64
	if active {
		orderID = activeOrderID
	}
	tag, err := conn.Exec(ctx,
		`UPDATE servicing_points SET active = $1, reserved = $2, active_order_id = $3 WHERE id = $4`,
		active, reserved, orderID, id)
	if err != nil {
		return fmt.Errorf("updating servicing point %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("servicing point %d not found", id)
	}
	return nil
}

// Areas returns every floor area.
func (s *Store) Areas(ctx context.Context) ([]model.Area, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to central DB: %w", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	rows, err := conn.Query(ctx, `SELECT id, name FROM areas ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying areas: %w", err)
	}
	defer rows.Close()

	var areas []model.Area
	for rows.Next() {
		var a model.Area
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, fmt.Errorf("scanning area row: %w", err)
		}
		areas = append(areas, a)
	}
	return areas, rows.Err()
}

// Modifiers returns every modifier.
func (s *Store) Modifiers(ctx context.Context) ([]model.Modifier, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to central DB: %w", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	rows, err := conn.Query(ctx, `SELECT id, name, price FROM modifiers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying modifiers: %w", err)
	}
	defer rows.Close()

	var mods []model.Modifier
	for rows.Next() {
		var m model.Modifier
		if err := rows.Scan(&m.ID, &m.Name, &m.Price); err != nil {
			return nil, fmt.Errorf("scanning modifier row: %w", err)
		}
		mods = append(mods, m)
	}
	return mods, rows.Err()
}

// Courses returns every serving course.
func (s *Store) Courses(ctx context.Context) ([]model.Course, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to central DB: %w", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	rows, err := conn.Query(ctx, `SELECT id, name, rank FROM courses ORDER BY rank, id`)
	if err != nil {
		return nil, fmt.Errorf("querying courses: %w", err)
	}
	defer rows.Close()

	var courses []model.Course
	for rows.Next() {
		var c model.Course
		if err := rows.Scan(&c.ID, &c.Name, &c.Rank); err != nil {
			return nil, fmt.Errorf("scanning course row: %w", err)
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

// CatalogueChanged reports the back-office "menu changed" signal the sync
// trigger polls.
func (s *Store) CatalogueChanged(ctx context.Context) (bool, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return false, fmt.Errorf("connecting to central DB: %w", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	var changed bool
	err = conn.QueryRow(ctx, `SELECT changed FROM menu_changes LIMIT 1`).Scan(&changed)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading menu-changed signal: %w", err)
	}
	return changed, nil
}

// ClearCatalogueChanged resets the signal after a fully successful pull.
func (s *Store) ClearCatalogueChanged(ctx context.Context) error {
	conn, err := s.connect(ctx)
	if err != nil {
		return fmt.Errorf("connecting to central DB: %w", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	if _, err := conn.Exec(ctx, `UPDATE menu_changes SET changed = false`); err != nil {
		return fmt.Errorf("clearing menu-changed signal: %w", err)
	}
	return nil
}
