package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/okoumis/tillsync/internal/model"
)

const orderColumns = `id, created_at, clerk_id, total, discount_percent, discount_amount,
	total_after_discount, closed, closed_at, history, table_id,
	cash_amount, card_amount, voucher_amount`

// Orders returns every order with items and extras.
func (s *Store) Orders(ctx context.Context) ([]model.Order, error) {
	return s.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY id`)
}

// ActiveOrders returns the orders still open.
func (s *Store) ActiveOrders(ctx context.Context) ([]model.Order, error) {
	return s.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE NOT closed AND NOT history ORDER BY id`)
}

// OrdersByClerk returns the orders opened by one staff member.
func (s *Store) OrdersByClerk(ctx context.Context, clerkID int64) ([]model.Order, error) {
	return s.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE clerk_id = $1 ORDER BY id`, clerkID)
}

// OrdersByTable returns the orders attached to one servicing point.
func (s *Store) OrdersByTable(ctx context.Context, tableID int64) ([]model.Order, error) {
	return s.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE table_id = $1 ORDER BY id`, tableID)
}

// OrderByID returns one order with items and extras, or (nil, nil) when
// absent.
func (s *Store) OrderByID(ctx context.Context, id int64) (*model.Order, error) {
	orders, err := s.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[0], nil
}

func (s *Store) queryOrders(ctx context.Context, q string, args ...any) ([]model.Order, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to central DB: %w", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	rows, err := conn.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var closedAt *time.Time
		if err := rows.Scan(&o.ID, &o.CreatedAt, &o.ClerkID,
			&o.Total, &o.DiscountPercent, &o.DiscountAmount, &o.TotalAfterDiscount,
			&o.Closed, &closedAt, &o.History, &o.TableID,
			&o.Payment.Cash, &o.Payment.Card, &o.Payment.Voucher); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning order row: %w", err)
		}
		o.ClosedAt = closedAt
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		if err := s.loadItems(ctx, conn, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *Store) loadItems(ctx context.Context, conn *pgx.Conn, o *model.Order) error {
	rows, err := conn.Query(ctx,
		`SELECT sub_id, order_id, product_id, name, quantity, price,
		        cancelled, printed, receipted, course
		 FROM order_items WHERE order_id = $1 ORDER BY sub_id`, o.ID)
	if err != nil {
		return fmt.Errorf("querying items of order %d: %w", o.ID, err)
	}

	o.Items = nil
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.SubID, &it.OrderID, &it.ProductID, &it.Name,
			&it.Quantity, &it.Price, &it.Cancelled, &it.Printed, &it.Receipted,
			&it.Course); err != nil {
			rows.Close()
			return fmt.Errorf("scanning item row: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range o.Items {
		it := &o.Items[i]
		exRows, err := conn.Query(ctx,
			`SELECT id, item_sub_id, modifier_id, quantity, prefix
			 FROM order_extras WHERE item_sub_id = $1 ORDER BY id`, it.SubID)
		if err != nil {
			return fmt.Errorf("querying extras of item %d: %w", it.SubID, err)
		}
		it.Extras = nil
		for exRows.Next() {
			var ex model.OrderExtra
			if err := exRows.Scan(&ex.ID, &ex.ItemSubID, &ex.ModifierID, &ex.Quantity, &ex.Prefix); err != nil {
				exRows.Close()
				return fmt.Errorf("scanning extra row: %w", err)
			}
			it.Extras = append(it.Extras, ex)
		}
		exRows.Close()
		if err := exRows.Err(); err != nil {
			return err
		}
	}
	return nil
}

// PushOrder uploads one pending order inside a single transaction: the
// order row, every item row, every extra row, and the table-occupancy side
// effect. Each write is an upsert keyed by the entity's natural id, so
// pushing the same order twice is idempotent. Any failure rolls the whole
// order back; the caller decides whether to continue with other orders.
func (s *Store) PushOrder(ctx context.Context, o *model.Order) error {
	conn, err := s.connect(ctx)
	if err != nil {
		return fmt.Errorf("connecting to central DB: %w", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning push of order %d: %w", o.ID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const orderQ = `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
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
		    voucher_amount       = excluded.voucher_amount`
	if _, err := tx.Exec(ctx, orderQ, o.ID, o.CreatedAt, o.ClerkID,
		o.Total, o.DiscountPercent, o.DiscountAmount, o.TotalAfterDiscount,
		o.Closed, o.ClosedAt, o.History, o.TableID,
		o.Payment.Cash, o.Payment.Card, o.Payment.Voucher); err != nil {
		return fmt.Errorf("upserting order %d: %w", o.ID, err)
	}

	const itemQ = `
		INSERT INTO order_items
		    (sub_id, order_id, product_id, name, quantity, price,
		     cancelled, printed, receipted, course)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (sub_id) DO UPDATE SET
		    quantity  = excluded.quantity,
		    price     = excluded.price,
		    cancelled = excluded.cancelled,
		    printed   = excluded.printed,
		    receipted = excluded.receipted,
		    course    = excluded.course`
	const extraQ = `
		INSERT INTO order_extras (item_sub_id, modifier_id, quantity, prefix)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (item_sub_id, modifier_id) DO UPDATE SET
		    quantity = excluded.quantity,
		    prefix   = excluded.prefix`

	for i := range o.Items {
		it := &o.Items[i]
		if _, err := tx.Exec(ctx, itemQ, it.SubID, it.OrderID, it.ProductID, it.Name,
			it.Quantity, it.Price, it.Cancelled, it.Printed, it.Receipted, it.Course); err != nil {
			return fmt.Errorf("upserting item %d of order %d: %w", it.SubID, o.ID, err)
		}
		for _, ex := range it.Extras {
			if _, err := tx.Exec(ctx, extraQ, it.SubID, ex.ModifierID, ex.Quantity, ex.Prefix); err != nil {
				return fmt.Errorf("upserting extra of item %d: %w", it.SubID, err)
			}
		}
	}

	if o.TableID != nil {
		if o.Closed {
			// Paying releases the table.
			if _, err := tx.Exec(ctx,
				`UPDATE servicing_points SET active = false, active_order_id = NULL
				 WHERE id = $1 AND active_order_id = $2`, *o.TableID, o.ID); err != nil {
				return fmt.Errorf("releasing table %d: %w", *o.TableID, err)
			}
		} else {
			if _, err := tx.Exec(ctx,
				`UPDATE servicing_points SET active = true, active_order_id = $1
				 WHERE id = $2`, o.ID, *o.TableID); err != nil {
				return fmt.Errorf("occupying table %d: %w", *o.TableID, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing push of order %d: %w", o.ID, err)
	}
	return nil
}
