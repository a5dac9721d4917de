package mirror

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/okoumis/tillsync/internal/model"
)

// Catalogue reads and wholesale replacement. The pull phase replaces each
// table delete-all-then-insert inside one transaction, so readers never see
// a half-empty table; the repositories read these tables whenever the
// remote store is unreachable.

const productColumns = `id, name, alt_name, price, group_id, printer, receipt_printer, favorite, course`

// Products returns every mirrored product.
func (s *Store) Products(ctx context.Context) ([]model.Product, error) {
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
}

// ProductByID returns the product with the given id, or (nil, nil) if it is
// not mirrored.
func (s *Store) ProductByID(ctx context.Context, id int64) (*model.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading product %d: %w", id, err)
	}
	return p, nil
}

// ProductsByGroup returns the products belonging to one catalogue group.
func (s *Store) ProductsByGroup(ctx context.Context, groupID int64) ([]model.Product, error) {
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE group_id = ? ORDER BY id`, groupID)
}

// FavoriteProducts returns the products flagged as favorites.
func (s *Store) FavoriteProducts(ctx context.Context) ([]model.Product, error) {
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE favorite = 1 ORDER BY id`)
}

// SearchProducts returns products whose name or alternate name contains the
// query, case-insensitively.
func (s *Store) SearchProducts(ctx context.Context, query string) ([]model.Product, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products
		 WHERE lower(name) LIKE ? OR lower(alt_name) LIKE ? ORDER BY id`,
		pattern, pattern)
}

func (s *Store) queryProducts(ctx context.Context, q string, args ...any) ([]model.Product, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning product row: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func scanProduct(sc scanner) (*model.Product, error) {
	var p model.Product
	err := sc.Scan(&p.ID, &p.Name, &p.AltName, &p.Price, &p.GroupID,
		&p.Printer, &p.ReceiptPrinter, &p.Favorite, &p.Course)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ReplaceProducts swaps the full product table for the given set.
func (s *Store) ReplaceProducts(ctx context.Context, products []model.Product) error {
	return s.replaceTable(ctx, "products", func(tx *sql.Tx) error {
		const q = `
			INSERT INTO products (` + productColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
		for _, p := range products {
			if _, err := tx.ExecContext(ctx, q, p.ID, p.Name, p.AltName, p.Price,
				p.GroupID, p.Printer, p.ReceiptPrinter, p.Favorite, p.Course); err != nil {
				return fmt.Errorf("inserting product %d: %w", p.ID, err)
			}
		}
		return nil
	})
}

// Groups returns every mirrored product group, flat. Tree derivation is the
// caller's job via [model.BuildGroupTree].
func (s *Store) Groups(ctx context.Context) ([]model.ProductGroup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, alt_name, view_order, is_sub, parent_id, has_sub
		 FROM product_groups ORDER BY view_order, id`)
	if err != nil {
		return nil, fmt.Errorf("querying product groups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var groups []model.ProductGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning group row: %w", err)
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

// GroupByID returns one product group, or (nil, nil) when absent.
func (s *Store) GroupByID(ctx context.Context, id int64) (*model.ProductGroup, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, alt_name, view_order, is_sub, parent_id, has_sub
		 FROM product_groups WHERE id = ?`, id)
	g, err := scanGroup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading group %d: %w", id, err)
	}
	return g, nil
}

func scanGroup(sc scanner) (*model.ProductGroup, error) {
	var g model.ProductGroup
	var parent sql.NullInt64
	err := sc.Scan(&g.ID, &g.Name, &g.AltName, &g.ViewOrder, &g.IsSub, &parent, &g.HasSub)
	if err != nil {
		return nil, err
	}
	if parent.Valid {
		g.ParentID = &parent.Int64
	}
	return &g, nil
}

// ReplaceGroups swaps the full product-group table for the given set.
func (s *Store) ReplaceGroups(ctx context.Context, groups []model.ProductGroup) error {
	return s.replaceTable(ctx, "product_groups", func(tx *sql.Tx) error {
		const q = `
			INSERT INTO product_groups (id, name, alt_name, view_order, is_sub, parent_id, has_sub)
			VALUES (?, ?, ?, ?, ?, ?, ?)`
		for _, g := range groups {
			var parent any
			if g.ParentID != nil {
				parent = *g.ParentID
			}
			if _, err := tx.ExecContext(ctx, q, g.ID, g.Name, g.AltName,
				g.ViewOrder, g.IsSub, parent, g.HasSub); err != nil {
				return fmt.Errorf("inserting group %d: %w", g.ID, err)
			}
		}
		return nil
	})
}

const pointColumns = `id, name, number, area_id, active, reserved, active_order_id`

// ServicingPoints returns every mirrored servicing point.
func (s *Store) ServicingPoints(ctx context.Context) ([]model.ServicingPoint, error) {
	return s.queryPoints(ctx, `SELECT `+pointColumns+` FROM servicing_points ORDER BY number`)
}

// PointsByArea returns the servicing points of one floor area.
func (s *Store) PointsByArea(ctx context.Context, areaID int64) ([]model.ServicingPoint, error) {
	return s.queryPoints(ctx,
		`SELECT `+pointColumns+` FROM servicing_points WHERE area_id = ? ORDER BY number`, areaID)
}

// PointByID returns one servicing point, or (nil, nil) when absent.
func (s *Store) PointByID(ctx context.Context, id int64) (*model.ServicingPoint, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pointColumns+` FROM servicing_points WHERE id = ?`, id)
	p, err := scanPoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading servicing point %d: %w", id, err)
	}
	return p, nil
}

// SetPointStatus updates occupancy on a mirrored servicing point. Marking a
// point active records the order open on it; releasing clears the reference.
func (s *Store) SetPointStatus(ctx context.Context, id int64, active, reserved bool, activeOrderID *int64) error {
	var orderID any
	if active && activeOrderID != nil {
		orderID = *activeOrderID
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE servicing_points SET active = ?, reserved = ?, active_order_id = ? WHERE id = ?`,
		active, reserved, orderID, id)
	if err != nil {
		return fmt.Errorf("updating servicing point %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("servicing point %d not found", id)
	}
	return nil
}

func (s *Store) queryPoints(ctx context.Context, q string, args ...any) ([]model.ServicingPoint, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying servicing points: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var points []model.ServicingPoint
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning servicing point row: %w", err)
		}
		points = append(points, *p)
	}
	return points, rows.Err()
}

func scanPoint(sc scanner) (*model.ServicingPoint, error) {
	var p model.ServicingPoint
	var orderID sql.NullInt64
	err := sc.Scan(&p.ID, &p.Name, &p.Number, &p.AreaID, &p.Active, &p.Reserved, &orderID)
	if err != nil {
		return nil, err
	}
	if orderID.Valid {
		p.ActiveOrderID = &orderID.Int64
	}
	return &p, nil
}

// ReplaceServicingPoints swaps the full servicing-point table for the given set.
func (s *Store) ReplaceServicingPoints(ctx context.Context, points []model.ServicingPoint) error {
	return s.replaceTable(ctx, "servicing_points", func(tx *sql.Tx) error {
		const q = `
			INSERT INTO servicing_points (` + pointColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?)`
		for _, p := range points {
			var orderID any
			if p.ActiveOrderID != nil {
				orderID = *p.ActiveOrderID
			}
			if _, err := tx.ExecContext(ctx, q, p.ID, p.Name, p.Number, p.AreaID,
				p.Active, p.Reserved, orderID); err != nil {
				return fmt.Errorf("inserting servicing point %d: %w", p.ID, err)
			}
		}
		return nil
	})
}

// Areas returns every mirrored floor area.
func (s *Store) Areas(ctx context.Context) ([]model.Area, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM areas ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying areas: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

// ReplaceAreas swaps the full area table for the given set.
func (s *Store) ReplaceAreas(ctx context.Context, areas []model.Area) error {
	return s.replaceTable(ctx, "areas", func(tx *sql.Tx) error {
		for _, a := range areas {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO areas (id, name) VALUES (?, ?)`, a.ID, a.Name); err != nil {
				return fmt.Errorf("inserting area %d: %w", a.ID, err)
			}
		}
		return nil
	})
}

// Modifiers returns every mirrored modifier.
func (s *Store) Modifiers(ctx context.Context) ([]model.Modifier, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, price FROM modifiers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying modifiers: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

// ReplaceModifiers swaps the full modifier table for the given set.
func (s *Store) ReplaceModifiers(ctx context.Context, mods []model.Modifier) error {
	return s.replaceTable(ctx, "modifiers", func(tx *sql.Tx) error {
		for _, m := range mods {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO modifiers (id, name, price) VALUES (?, ?, ?)`,
				m.ID, m.Name, m.Price); err != nil {
				return fmt.Errorf("inserting modifier %d: %w", m.ID, err)
			}
		}
		return nil
	})
}

// Courses returns every mirrored serving course, in serving order.
func (s *Store) Courses(ctx context.Context) ([]model.Course, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, rank FROM courses ORDER BY rank, id`)
	if err != nil {
		return nil, fmt.Errorf("querying courses: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

// ReplaceCourses swaps the full course table for the given set.
func (s *Store) ReplaceCourses(ctx context.Context, courses []model.Course) error {
	return s.replaceTable(ctx, "courses", func(tx *sql.Tx) error {
		for _, c := range courses {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO courses (id, name, rank) VALUES (?, ?, ?)`,
				c.ID, c.Name, c.Rank); err != nil {
				return fmt.Errorf("inserting course %d: %w", c.ID, err)
			}
		}
		return nil
	})
}

// replaceTable runs delete-all plus the given inserts in one transaction.
func (s *Store) replaceTable(ctx context.Context, table string, insert func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replacing %s: %w", table, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("clearing %s: %w", table, err)
	}
	if err := insert(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing %s replacement: %w", table, err)
	}
	return nil
}
