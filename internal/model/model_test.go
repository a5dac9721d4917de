package model

import (
	"testing"
	"time"
)

func int64p(v int64) *int64 { return &v }

func TestBuildGroupTree_NestsGrandchildren(t *testing.T) {
	groups := []ProductGroup{
		{ID: 1, Name: "Drinks"},
		{ID: 2, Name: "Beer", IsSub: true, ParentID: int64p(1)},
		{ID: 3, Name: "Craft", IsSub: true, ParentID: int64p(2)},
	}

	roots := BuildGroupTree(groups)
	if len(roots) != 1 {
		t.Fatalf("got %d roots, want 1", len(roots))
	}
	if roots[0].ID != 1 {
		t.Fatalf("root = %d, want 1", roots[0].ID)
	}
	if len(roots[0].Subgroups) != 1 || roots[0].Subgroups[0].ID != 2 {
		t.Fatalf("group 2 not attached under group 1: %+v", roots[0].Subgroups)
	}
	beer := roots[0].Subgroups[0]
	if len(beer.Subgroups) != 1 || beer.Subgroups[0].ID != 3 {
		t.Errorf("group 3 should nest under group 2, got %+v", beer.Subgroups)
	}
}

func TestBuildGroupTree_SubgroupIsNeverRoot(t *testing.T) {
	groups := []ProductGroup{
		{ID: 1, Name: "Food"},
		{ID: 2, Name: "Orphan", IsSub: true, ParentID: int64p(99)},
	}

	roots := BuildGroupTree(groups)
	if len(roots) != 1 {
		t.Fatalf("got %d roots, want 1 (orphan subgroup must not be promoted)", len(roots))
	}
	if roots[0].ID != 1 {
		t.Errorf("root = %d, want 1", roots[0].ID)
	}
}

func TestBuildGroupTree_SiblingOrder(t *testing.T) {
	groups := []ProductGroup{
		{ID: 5, Name: "Last", ViewOrder: 3},
		{ID: 1, Name: "First", ViewOrder: 1},
		{ID: 9, Name: "Mid", ViewOrder: 2},
	}

	roots := BuildGroupTree(groups)
	want := []int64{1, 9, 5}
	for i, r := range roots {
		if r.ID != want[i] {
			t.Errorf("roots[%d] = %d, want %d", i, r.ID, want[i])
		}
	}
}

func TestBuildGroupTree_DoesNotMutateInput(t *testing.T) {
	groups := []ProductGroup{
		{ID: 1},
		{ID: 2, IsSub: true, ParentID: int64p(1)},
	}
	_ = BuildGroupTree(groups)
	if groups[0].Subgroups != nil {
		t.Error("input slice was mutated")
	}
}

func TestRecalculateTotal_SkipsCancelled(t *testing.T) {
	o := Order{
		Items: []OrderItem{
			{SubID: 1, Quantity: 2, Price: 4.50},
			{SubID: 2, Quantity: 1, Price: 12.00, Cancelled: true},
			{SubID: 3, Quantity: 3, Price: 2.20},
		},
	}
	o.RecalculateTotal()

	if o.Total != 15.60 {
		t.Errorf("Total = %v, want 15.60", o.Total)
	}
	if o.TotalAfterDiscount != 15.60 {
		t.Errorf("TotalAfterDiscount = %v, want 15.60 with no discount", o.TotalAfterDiscount)
	}
}

func TestRecalculateTotal_Discount(t *testing.T) {
	o := Order{
		DiscountPercent: 10,
		Items: []OrderItem{
			{SubID: 1, Quantity: 2, Price: 10.00},
		},
	}
	o.RecalculateTotal()

	if o.Total != 20.00 {
		t.Fatalf("Total = %v, want 20.00", o.Total)
	}
	if o.DiscountAmount != 2.00 {
		t.Errorf("DiscountAmount = %v, want 2.00", o.DiscountAmount)
	}
	if o.TotalAfterDiscount != 18.00 {
		t.Errorf("TotalAfterDiscount = %v, want 18.00", o.TotalAfterDiscount)
	}
}

func TestRecalculateTotal_RoundsToCents(t *testing.T) {
	o := Order{
		Items: []OrderItem{
			{SubID: 1, Quantity: 3, Price: 1.115}, // 3.345 → 3.35 after rounding
		},
	}
	o.RecalculateTotal()
	if o.Total != 3.35 {
		t.Errorf("Total = %v, want 3.35", o.Total)
	}
}

func TestRecalculateTotal_ClearsStaleDiscount(t *testing.T) {
	o := Order{
		DiscountAmount:     5,
		TotalAfterDiscount: 1,
		Items:              []OrderItem{{SubID: 1, Quantity: 1, Price: 8}},
	}
	o.RecalculateTotal()
	if o.DiscountAmount != 0 || o.TotalAfterDiscount != 8 {
		t.Errorf("stale discount fields not cleared: %+v", o)
	}
}

func TestItemBySubID(t *testing.T) {
	o := Order{
		ID:        7,
		CreatedAt: time.Now(),
		Items: []OrderItem{
			{SubID: 10}, {SubID: 11},
		},
	}
	if it := o.ItemBySubID(11); it == nil || it.SubID != 11 {
		t.Errorf("ItemBySubID(11) = %+v", it)
	}
	if it := o.ItemBySubID(99); it != nil {
		t.Errorf("ItemBySubID(99) = %+v, want nil", it)
	}
}
