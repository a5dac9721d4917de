package mirror

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/okoumis/tillsync/internal/model"
)

// Order aggregate persistence. Every mutating call lands here first, resets
// is_synced on the rows it touches and bumps the order's rev counter; the
// push phase is the only code that sets is_synced back to true, and only
// after the remote transaction for that order has committed and the rev it
// pushed is still current.

const orderColumns = `id, created_at, clerk_id, total, discount_percent, discount_amount,
	total_after_discount, closed, closed_at, history, table_id,
	cash_amount, card_amount, voucher_amount, rev`

// Orders returns every mirrored order with its items and extras.
func (s *Store) Orders(ctx context.Context) ([]model.Order, error) {
	return s.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY id`)
}

// ActiveOrders returns the orders still open (not closed, not archived).
func (s *Store) ActiveOrders(ctx context.Context) ([]model.Order, error) {
	return s.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE closed = 0 AND history = 0 ORDER BY id`)
}

// OrdersByClerk returns the orders opened by one staff member.
func (s *Store) OrdersByClerk(ctx context.Context, clerkID int64) ([]model.Order, error) {
	return s.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE clerk_id = ? ORDER BY id`, clerkID)
}

// OrdersByTable returns the orders attached to one servicing point.
func (s *Store) OrdersByTable(ctx context.Context, tableID int64) ([]model.Order, error) {
	return s.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE table_id = ? ORDER BY id`, tableID)
}

// OrderByID returns one order with its items and extras, or (nil, nil) when
// absent.
func (s *Store) OrderByID(ctx context.Context, id int64) (*model.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading order %d: %w", id, err)
	}
	if err := s.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// UnsyncedOrders returns every order whose local state has not been
// confirmed remotely, with items and extras loaded, in id order.
func (s *Store) UnsyncedOrders(ctx context.Context) ([]model.Order, error) {
	return s.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE is_synced = 0 ORDER BY id`)
}

// UpsertOrder writes the order header, inserting or updating by id, and
// flags it pending. Items are persisted separately via [Store.UpsertItem].
func (s *Store) UpsertOrder(ctx context.Context, o *model.Order) error {
	var tableID any
	if o.TableID != nil {
		tableID = *o.TableID
	}
	const q = `
		INSERT INTO orders (` + orderColumns + `, is_synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 0)
		ON CONFLICT(id) DO UPDATE SET
		    total                = excluded.total,
		    discount_percent     = excluded.discount_percent,
		    discount_amount      = excluded.discount_amount,
		    total_after_discount = excluded.total_after_discount,
		    closed               = excluded.closed,
		    closed_at            = excluded.closed_at,
		    history              = excluded.history,
		    table_id             = excluded.table_id,
		    cash_amount          = excluded.cash_amount,
		    card_amount          = excluded.card_amount,
		    voucher_amount       = excluded.voucher_amount,
		    rev                  = rev + 1,
		    is_synced            = 0`

	var closedAt string
	if o.ClosedAt != nil {
		closedAt = formatTime(*o.ClosedAt)
	}
	_, err := s.db.ExecContext(ctx, q,
		o.ID, formatTime(o.CreatedAt), o.ClerkID,
		o.Total, o.DiscountPercent, o.DiscountAmount, o.TotalAfterDiscount,
		o.Closed, closedAt, o.History, tableID,
		o.Payment.Cash, o.Payment.Card, o.Payment.Voucher)
	if err != nil {
		return fmt.Errorf("upserting order %d: %w", o.ID, err)
	}
	return nil
}

// UpsertItem writes one order line, inserting or updating by sub id, flags
// it pending, and replaces its extras with the ones on the item.
func (s *Store) UpsertItem(ctx context.Context, it *model.OrderItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upserting item %d: %w", it.SubID, err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
		INSERT INTO order_items
		    (sub_id, order_id, product_id, name, quantity, price,
		     cancelled, printed, receipted, course, is_synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(sub_id) DO UPDATE SET
		    quantity  = excluded.quantity,
		    price     = excluded.price,
		    cancelled = excluded.cancelled,
		    printed   = excluded.printed,
		    receipted = excluded.receipted,
		    course    = excluded.course,
		    is_synced = 0`
	if _, err := tx.ExecContext(ctx, q, it.SubID, it.OrderID, it.ProductID, it.Name,
		it.Quantity, it.Price, it.Cancelled, it.Printed, it.Receipted, it.Course); err != nil {
		return fmt.Errorf("upserting item %d: %w", it.SubID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM order_extras WHERE item_sub_id = ?`, it.SubID); err != nil {
		return fmt.Errorf("clearing extras for item %d: %w", it.SubID, err)
	}
	for _, ex := range it.Extras {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO order_extras (item_sub_id, modifier_id, quantity, prefix, is_synced)
			 VALUES (?, ?, ?, ?, 0)`,
			it.SubID, ex.ModifierID, ex.Quantity, ex.Prefix); err != nil {
			return fmt.Errorf("inserting extra for item %d: %w", it.SubID, err)
		}
	}

	// An item write changes the aggregate even before the caller rewrites the
	// header, so the parent order must leave the synced state here, not later.
	if _, err := tx.ExecContext(ctx,
		`UPDATE orders SET rev = rev + 1, is_synced = 0 WHERE id = ?`, it.OrderID); err != nil {
		return fmt.Errorf("flagging order %d of item %d: %w", it.OrderID, it.SubID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing item %d: %w", it.SubID, err)
	}
	return nil
}

// MarkOrderSynced flips is_synced on the order and all its rows after the
// remote transaction for that order has committed, but only when the order is
// still at the revision the caller pushed. Returns false when a mutation has
// landed in between: the order stays pending and the next push picks up the
// newer state.
func (s *Store) MarkOrderSynced(ctx context.Context, orderID, rev int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("marking order %d synced: %w", orderID, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET is_synced = 1 WHERE id = ? AND rev = ?`, orderID, rev)
	if err != nil {
		return false, fmt.Errorf("marking order %d synced: %w", orderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("marking order %d synced: %w", orderID, err)
	}
	if n == 0 {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE order_items SET is_synced = 1 WHERE order_id = ?`, orderID); err != nil {
		return false, fmt.Errorf("marking items of order %d synced: %w", orderID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE order_extras SET is_synced = 1
		 WHERE item_sub_id IN (SELECT sub_id FROM order_items WHERE order_id = ?)`,
		orderID); err != nil {
		return false, fmt.Errorf("marking extras of order %d synced: %w", orderID, err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// OrderSynced reports the is_synced flag of one order.
func (s *Store) OrderSynced(ctx context.Context, orderID int64) (bool, error) {
	var synced bool
	err := s.db.QueryRowContext(ctx,
		`SELECT is_synced FROM orders WHERE id = ?`, orderID).Scan(&synced)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("order %d not found", orderID)
	}
	if err != nil {
		return false, fmt.Errorf("reading sync flag of order %d: %w", orderID, err)
	}
	return synced, nil
}

// PendingOrderCount returns how many orders await a push.
func (s *Store) PendingOrderCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE is_synced = 0`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting pending orders: %w", err)
	}
	return n, nil
}

func (s *Store) queryOrders(ctx context.Context, q string, args ...any) ([]model.Order, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order row: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		if err := s.loadItems(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *Store) loadItems(ctx context.Context, o *model.Order) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sub_id, order_id, product_id, name, quantity, price,
		        cancelled, printed, receipted, course
		 FROM order_items WHERE order_id = ? ORDER BY sub_id`, o.ID)
	if err != nil {
		return fmt.Errorf("querying items of order %d: %w", o.ID, err)
	}
	defer func() { _ = rows.Close() }()

	o.Items = nil
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.SubID, &it.OrderID, &it.ProductID, &it.Name,
			&it.Quantity, &it.Price, &it.Cancelled, &it.Printed, &it.Receipted,
			&it.Course); err != nil {
			return fmt.Errorf("scanning item row: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range o.Items {
		if err := s.loadExtras(ctx, &o.Items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) loadExtras(ctx context.Context, it *model.OrderItem) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, item_sub_id, modifier_id, quantity, prefix
		 FROM order_extras WHERE item_sub_id = ? ORDER BY id`, it.SubID)
	if err != nil {
		return fmt.Errorf("querying extras of item %d: %w", it.SubID, err)
	}
	defer func() { _ = rows.Close() }()

	it.Extras = nil
	for rows.Next() {
		var ex model.OrderExtra
		if err := rows.Scan(&ex.ID, &ex.ItemSubID, &ex.ModifierID, &ex.Quantity, &ex.Prefix); err != nil {
			return fmt.Errorf("scanning extra row: %w", err)
		}
		it.Extras = append(it.Extras, ex)
	}
	return rows.Err()
}

func scanOrder(sc scanner) (*model.Order, error) {
	var o model.Order
	var createdAt, closedAt string
	var tableID sql.NullInt64
	err := sc.Scan(&o.ID, &createdAt, &o.ClerkID,
		&o.Total, &o.DiscountPercent, &o.DiscountAmount, &o.TotalAfterDiscount,
		&o.Closed, &closedAt, &o.History, &tableID,
		&o.Payment.Cash, &o.Payment.Card, &o.Payment.Voucher, &o.Rev)
	if err != nil {
		return nil, err
	}
	o.CreatedAt, _ = parseTime(createdAt)
	if t, err := parseTime(closedAt); err == nil && !t.IsZero() {
		o.ClosedAt = &t
	}
	if tableID.Valid {
		o.TableID = &tableID.Int64
	}
	return &o, nil
}
