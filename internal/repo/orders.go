package repo

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/okoumis/tillsync/internal/model"
)

// OrderReader is the order read surface shared by [remote.Store] and
// [mirror.Store].
type OrderReader interface {
	Orders(ctx context.Context) ([]model.Order, error)
	ActiveOrders(ctx context.Context) ([]model.Order, error)
	OrdersByClerk(ctx context.Context, clerkID int64) ([]model.Order, error)
	OrdersByTable(ctx context.Context, tableID int64) ([]model.Order, error)
	OrderByID(ctx context.Context, id int64) (*model.Order, error)
}

// LocalOrders is everything an order mutation needs from the mirror: the
// read surface plus upserts, occupancy, and id allocation.
type LocalOrders interface {
	OrderReader
	UpsertOrder(ctx context.Context, o *model.Order) error
	UpsertItem(ctx context.Context, it *model.OrderItem) error
	SetPointStatus(ctx context.Context, id int64, active, reserved bool, activeOrderID *int64) error
	NextOrderID(ctx context.Context) (int64, error)
	NextItemID(ctx context.Context) (int64, error)
}

// ProductFinder resolves a product for a new order line. Satisfied by
// [Products].
type ProductFinder interface {
	GetByID(ctx context.Context, id int64) (*model.Product, error)
}

// Orders is the write-local-first order repository. Reads follow the usual
// remote-preferred path; every mutation is a read-modify-write against the
// mirror, leaving the order flagged unsynced, followed by a best-effort push.
type Orders struct {
	sel      *selector
	remote   OrderReader
	local    LocalOrders
	products ProductFinder

	pusherMu sync.RWMutex
	pusher   Pusher

	// locks serializes concurrent mutations of the same order. The map only
	// grows; a till produces a few hundred orders a day.
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewOrders builds the order repository. The pusher is attached later via
// [Orders.SetPusher] because the sync engine is constructed after the
// repositories it serves.
func NewOrders(remote OrderReader, local LocalOrders, products ProductFinder,
	settings Settings, prober Prober, log *slog.Logger) *Orders {
	return &Orders{
		sel:      &selector{settings: settings, prober: prober, log: log},
		remote:   remote,
		local:    local,
		products: products,
		locks:    make(map[int64]*sync.Mutex),
	}
}

// SetPusher attaches the sync engine used for best-effort pushes after each
// mutation. Without one, mutations stay local until the next full sync.
func (r *Orders) SetPusher(p Pusher) {
	r.pusherMu.Lock()
	r.pusher = p
	r.pusherMu.Unlock()
}

// GetAll returns every order.
func (r *Orders) GetAll(ctx context.Context) ([]model.Order, error) {
	return fetch(ctx, r.sel, "orders.get_all", r.remote.Orders, r.local.Orders)
}

// GetActive returns the orders still open.
func (r *Orders) GetActive(ctx context.Context) ([]model.Order, error) {
	return fetch(ctx, r.sel, "orders.get_active", r.remote.ActiveOrders, r.local.ActiveOrders)
}

// GetByClerk returns the orders opened by one staff member.
func (r *Orders) GetByClerk(ctx context.Context, clerkID int64) ([]model.Order, error) {
	return fetch(ctx, r.sel, "orders.get_by_clerk",
		func(ctx context.Context) ([]model.Order, error) { return r.remote.OrdersByClerk(ctx, clerkID) },
		func(ctx context.Context) ([]model.Order, error) { return r.local.OrdersByClerk(ctx, clerkID) })
}

// GetByTable returns the orders attached to one servicing point.
func (r *Orders) GetByTable(ctx context.Context, tableID int64) ([]model.Order, error) {
	return fetch(ctx, r.sel, "orders.get_by_table",
		func(ctx context.Context) ([]model.Order, error) { return r.remote.OrdersByTable(ctx, tableID) },
		func(ctx context.Context) ([]model.Order, error) { return r.local.OrdersByTable(ctx, tableID) })
}

// GetByID returns one order, or (nil, nil) when absent.
func (r *Orders) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	return fetch(ctx, r.sel, "orders.get_by_id",
		func(ctx context.Context) (*model.Order, error) { return r.remote.OrderByID(ctx, id) },
		func(ctx context.Context) (*model.Order, error) { return r.local.OrderByID(ctx, id) })
}

// Create opens a new order for the given session, optionally bound to a
// servicing point. The order id is allocated locally so creation works with
// the central database unreachable.
func (r *Orders) Create(ctx context.Context, session model.Session, tableID *int64) (*model.Order, error) {
	if session.ClerkID <= 0 {
		return nil, fmt.Errorf("creating order: session has no clerk")
	}

	id, err := r.local.NextOrderID(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}

	o := &model.Order{
		ID:        id,
		CreatedAt: time.Now(),
		ClerkID:   session.ClerkID,
		TableID:   tableID,
	}
	o.RecalculateTotal()

	if err := r.local.UpsertOrder(ctx, o); err != nil {
		return nil, err
	}
	if tableID != nil {
		if err := r.local.SetPointStatus(ctx, *tableID, true, false, &o.ID); err != nil {
			return nil, fmt.Errorf("occupying table %d for order %d: %w", *tableID, o.ID, err)
		}
	}

	r.pushPending(ctx)
	return o, nil
}

// AddItem appends one order line, priced from the product at the time of
// ordering. Unknown order or product is a hard error, not a silent skip.
func (r *Orders) AddItem(ctx context.Context, orderID, productID int64, quantity int, extras []model.OrderExtra) (*model.OrderItem, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("adding item to order %d: quantity %d must be positive", orderID, quantity)
	}

	unlock := r.lockOrder(orderID)
	defer unlock()

	o, err := r.mutableOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	p, err := r.products.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("resolving product %d: %w", productID, err)
	}
	if p == nil {
		return nil, fmt.Errorf("adding item to order %d: product %d not found", orderID, productID)
	}

	subID, err := r.local.NextItemID(ctx)
	if err != nil {
		return nil, fmt.Errorf("adding item to order %d: %w", orderID, err)
	}

	it := model.OrderItem{
		SubID:     subID,
		OrderID:   orderID,
		ProductID: p.ID,
		Name:      p.Name,
		Quantity:  quantity,
		Price:     p.Price,
		Course:    p.Course,
	}
	for _, ex := range extras {
		ex.ItemSubID = subID
		it.Extras = append(it.Extras, ex)
	}

	o.Items = append(o.Items, it)
	o.RecalculateTotal()

	stored := &o.Items[len(o.Items)-1]
	if err := r.persistItem(ctx, o, stored); err != nil {
		return nil, err
	}
	r.pushPending(ctx)
	return stored, nil
}

// UpdateItemQuantity changes the quantity of one line and reprices the
// order. Use [Orders.CancelItem] to remove a line; zero is rejected here.
func (r *Orders) UpdateItemQuantity(ctx context.Context, orderID, subID int64, quantity int) (*model.Order, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("updating item %d: quantity %d must be positive", subID, quantity)
	}

	unlock := r.lockOrder(orderID)
	defer unlock()

	o, it, err := r.mutableItem(ctx, orderID, subID)
	if err != nil {
		return nil, err
	}

	it.Quantity = quantity
	o.RecalculateTotal()

	if err := r.persistItem(ctx, o, it); err != nil {
		return nil, err
	}
	r.pushPending(ctx)
	return o, nil
}

// CancelItem voids one line. The row stays on the order for the audit trail
// but no longer counts toward the total.
func (r *Orders) CancelItem(ctx context.Context, orderID, subID int64) (*model.Order, error) {
	unlock := r.lockOrder(orderID)
	defer unlock()

	o, it, err := r.mutableItem(ctx, orderID, subID)
	if err != nil {
		return nil, err
	}

	it.Cancelled = true
	o.RecalculateTotal()

	if err := r.persistItem(ctx, o, it); err != nil {
		return nil, err
	}
	r.pushPending(ctx)
	return o, nil
}

// ApplyDiscount sets the order-level discount percentage and reprices.
func (r *Orders) ApplyDiscount(ctx context.Context, orderID int64, percent float64) (*model.Order, error) {
	if percent < 0 || percent > 100 {
		return nil, fmt.Errorf("discount %.2f%% out of range", percent)
	}

	unlock := r.lockOrder(orderID)
	defer unlock()

	o, err := r.mutableOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	o.DiscountPercent = percent
	o.RecalculateTotal()

	if err := r.local.UpsertOrder(ctx, o); err != nil {
		return nil, err
	}
	r.pushPending(ctx)
	return o, nil
}

// CloseOrder settles the order. Payment must cover the discounted total.
// Closing releases the servicing point on the mirror; the central side
// converges via the order push.
func (r *Orders) CloseOrder(ctx context.Context, orderID int64, payment model.Payment) (*model.Order, error) {
	unlock := r.lockOrder(orderID)
	defer unlock()

	o, err := r.mutableOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	o.RecalculateTotal()
	paid := payment.Cash + payment.Card + payment.Voucher
	if paid < o.TotalAfterDiscount-0.005 {
		return nil, fmt.Errorf("payment %.2f does not cover order %d total %.2f",
			paid, orderID, o.TotalAfterDiscount)
	}

	now := time.Now()
	o.Payment = payment
	o.Closed = true
	o.ClosedAt = &now
	o.History = true

	if err := r.local.UpsertOrder(ctx, o); err != nil {
		return nil, err
	}
	if o.TableID != nil {
		if err := r.local.SetPointStatus(ctx, *o.TableID, false, false, nil); err != nil {
			return nil, fmt.Errorf("releasing table %d: %w", *o.TableID, err)
		}
	}

	r.pushPending(ctx)
	return o, nil
}

// mutableOrder loads the order from the mirror and rejects mutations of
// closed orders.
func (r *Orders) mutableOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	o, err := r.local.OrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("order %d not found", orderID)
	}
	if o.Closed {
		return nil, fmt.Errorf("order %d is closed", orderID)
	}
	return o, nil
}

func (r *Orders) mutableItem(ctx context.Context, orderID, subID int64) (*model.Order, *model.OrderItem, error) {
	o, err := r.mutableOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	it := o.ItemBySubID(subID)
	if it == nil {
		return nil, nil, fmt.Errorf("order %d has no item %d", orderID, subID)
	}
	if it.Cancelled {
		return nil, nil, fmt.Errorf("item %d of order %d is cancelled", subID, orderID)
	}
	return o, it, nil
}

// persistItem writes the mutated line and the repriced order header in that
// order; both land with is_synced reset.
func (r *Orders) persistItem(ctx context.Context, o *model.Order, it *model.OrderItem) error {
	if err := r.local.UpsertItem(ctx, it); err != nil {
		return err
	}
	return r.local.UpsertOrder(ctx, o)
}

// pushPending uploads unsynced orders when a pusher is attached and the
// venue is online. Failures are logged and swallowed: the mutation already
// succeeded locally and the background loop will retry.
func (r *Orders) pushPending(ctx context.Context) {
	r.pusherMu.RLock()
	p := r.pusher
	r.pusherMu.RUnlock()
	if p == nil || !r.sel.online(ctx) {
		return
	}
	if _, failed, err := p.SyncOrders(ctx); err != nil {
		r.sel.log.Debug("best-effort order push failed", "error", err)
	} else if failed > 0 {
		r.sel.log.Debug("best-effort order push left orders pending", "failed", failed)
	}
}

func (r *Orders) lockOrder(orderID int64) func() {
	r.mu.Lock()
	l, ok := r.locks[orderID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[orderID] = l
	}
	r.mu.Unlock()
	l.Lock()
	return l.Unlock
}
