// Package model defines the domain types shared by the repositories, the
// local mirror, the remote store, and the sync engine.
//
// Catalogue entities (Product, ProductGroup, ServicingPoint, Area, Modifier,
// Course) are owned by back-office software: this application only reads and
// mirrors them, with the single exception of servicing-point occupancy.
// Order and its children are the write side.
package model

import (
	"math"
	"sort"
	"time"
)

// Product is a sellable menu item.
type Product struct {
	ID      int64
	Name    string
	AltName string
	Price   float64
	GroupID int64

	// Printer and ReceiptPrinter are routing tags consumed by the print
	// collaborator; they are carried as data only.
	Printer        string
	ReceiptPrinter string

	Favorite bool
	Course   int64

	// Quantity is the amount currently picked in the order-entry session.
	// It is never persisted and never synced.
	Quantity int
}

// ProductGroup is a node in the menu category tree. The tree itself is not
// persisted: Subgroups is rebuilt from ParentID references by
// [BuildGroupTree] every time groups are loaded.
type ProductGroup struct {
	ID        int64
	Name      string
	AltName   string
	ViewOrder int64
	IsSub     bool
	ParentID  *int64
	HasSub    bool

	Subgroups []*ProductGroup
}

// ServicingPoint is a physical table (or counter position) orders are
// attached to. Active means occupied; an active point always references the
// order currently open on it, and releasing the point clears that reference.
type ServicingPoint struct {
	ID            int64
	Name          string
	Number        int64
	AreaID        int64
	Active        bool
	Reserved      bool
	ActiveOrderID *int64
}

// Area groups servicing points into floor sections.
type Area struct {
	ID   int64
	Name string
}

// Modifier is an extra that can be attached to an order item ("no onions",
// "extra cheese").
type Modifier struct {
	ID    int64
	Name  string
	Price float64
}

// Course is a serving-course tag ("starter", "main").
type Course struct {
	ID   int64
	Name string
	Rank int64
}

// Payment is the settlement breakdown recorded when an order is closed.
type Payment struct {
	Cash    float64
	Card    float64
	Voucher float64
}

// Order is the aggregate root for a guest check. Orders are never hard
// deleted: closing is a terminal state transition, cancellation happens at
// item level.
type Order struct {
	ID        int64
	CreatedAt time.Time
	ClerkID   int64

	Total              float64
	DiscountPercent    float64
	DiscountAmount     float64
	TotalAfterDiscount float64

	Closed   bool
	ClosedAt *time.Time
	History  bool
	TableID  *int64
	Payment  Payment

	// Rev is the mirror's local revision of this order, bumped on every
	// mutation. The push phase uses it to detect a mutation that landed
	// between selecting the order and confirming its upload. Zero on
	// orders read from the central database.
	Rev int64

	Items []OrderItem
}

// OrderItem is a single line on an order. SubID is unique across all items
// of all orders (one id namespace, matching the remote schema), so an item
// can be addressed without its parent id.
type OrderItem struct {
	SubID     int64
	OrderID   int64
	ProductID int64
	Name      string
	Quantity  int
	Price     float64
	Cancelled bool
	Printed   bool
	Receipted bool
	Course    int64

	Extras []OrderExtra
}

// OrderExtra attaches a modifier to an order item, optionally with a
// free-text prefix ("without", "double").
type OrderExtra struct {
	ID         int64
	ItemSubID  int64
	ModifierID int64
	Quantity   int
	Prefix     string
}

// Session identifies the staff member driving the current operation. It is
// passed explicitly into order-creating calls instead of living in ambient
// process state.
type Session struct {
	ClerkID int64
}

// RecalculateTotal recomputes the order total as the sum of price × quantity
// over all non-cancelled items, then rederives the discount fields from the
// stored discount percentage. Called after every item mutation, never lazily.
func (o *Order) RecalculateTotal() {
	var total float64
	for _, it := range o.Items {
		if it.Cancelled {
			continue
		}
		total += it.Price * float64(it.Quantity)
	}
	o.Total = roundCents(total)
	if o.DiscountPercent > 0 {
		o.DiscountAmount = roundCents(o.Total * o.DiscountPercent / 100)
		o.TotalAfterDiscount = roundCents(o.Total - o.DiscountAmount)
	} else {
		o.DiscountAmount = 0
		o.TotalAfterDiscount = o.Total
	}
}

// ItemBySubID returns the item with the given sub id, or nil.
func (o *Order) ItemBySubID(subID int64) *OrderItem {
	for i := range o.Items {
		if o.Items[i].SubID == subID {
			return &o.Items[i]
		}
	}
	return nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// BuildGroupTree derives the category tree from a flat group list. Subgroups
// attach to whichever group their ParentID names, at any depth, so a chain
// root → sub → sub-sub comes out nested rather than flattened under the
// root. Groups flagged as subgroups are never returned as roots; a subgroup
// whose parent is missing from the input is dropped rather than promoted.
// Siblings are ordered by ViewOrder, then ID.
func BuildGroupTree(groups []ProductGroup) []*ProductGroup {
	byID := make(map[int64]*ProductGroup, len(groups))
	nodes := make([]*ProductGroup, 0, len(groups))
	for i := range groups {
		g := groups[i] // copy: the derived tree owns its nodes
		g.Subgroups = nil
		byID[g.ID] = &g
		nodes = append(nodes, &g)
	}

	var roots []*ProductGroup
	for _, g := range nodes {
		if g.IsSub && g.ParentID != nil {
			parent, ok := byID[*g.ParentID]
			if !ok {
				continue
			}
			parent.Subgroups = append(parent.Subgroups, g)
			continue
		}
		if !g.IsSub {
			roots = append(roots, g)
		}
	}

	sortGroups(roots)
	for _, g := range nodes {
		sortGroups(g.Subgroups)
	}
	return roots
}

func sortGroups(gs []*ProductGroup) {
	sort.Slice(gs, func(i, j int) bool {
		if gs[i].ViewOrder != gs[j].ViewOrder {
			return gs[i].ViewOrder < gs[j].ViewOrder
		}
		return gs[i].ID < gs[j].ID
	})
}
