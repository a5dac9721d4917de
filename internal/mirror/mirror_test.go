package mirror

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/okoumis/tillsync/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-mirror.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleProducts() []model.Product {
	return []model.Product{
		{ID: 1, Name: "Espresso", AltName: "Single Shot", Price: 2.50, GroupID: 1, Printer: "bar", Course: 1},
		{ID: 2, Name: "Cappuccino", Price: 3.20, GroupID: 1, Favorite: true, Course: 1},
		{ID: 3, Name: "Carbonara", Price: 11.90, GroupID: 2, Printer: "kitchen", ReceiptPrinter: "front", Course: 2},
	}
}

func TestOpen_CreatesSchema(t *testing.T) {
	s := openTestStore(t)
	// Products queries the schema — wrong DDL fails here.
	products, err := s.Products(context.Background())
	if err != nil {
		t.Fatalf("Products after open: %v", err)
	}
	if len(products) != 0 {
		t.Errorf("expected empty mirror after open, got %d products", len(products))
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirror.db")
	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	ctx := context.Background()
	if err := s1.ReplaceProducts(ctx, sampleProducts()); err != nil {
		t.Fatalf("ReplaceProducts: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("s1.Close: %v", err)
	}

	// Re-opening the same file must not fail or wipe data.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s2.Close()
	products, err := s2.Products(ctx)
	if err != nil {
		t.Fatalf("Products after reopen: %v", err)
	}
	if len(products) != 3 {
		t.Errorf("product count after reopen = %d, want 3", len(products))
	}
}

func TestReplaceProductsWholesale(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.ReplaceProducts(ctx, sampleProducts()); err != nil {
		t.Fatalf("first ReplaceProducts: %v", err)
	}
	replacement := []model.Product{{ID: 9, Name: "Negroni", Price: 9.00, GroupID: 3}}
	if err := s.ReplaceProducts(ctx, replacement); err != nil {
		t.Fatalf("second ReplaceProducts: %v", err)
	}

	products, err := s.Products(ctx)
	if err != nil {
		t.Fatalf("Products: %v", err)
	}
	if len(products) != 1 || products[0].Name != "Negroni" {
		t.Errorf("replace was not wholesale: %+v", products)
	}
}

func TestProductQueries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.ReplaceProducts(ctx, sampleProducts()); err != nil {
		t.Fatalf("ReplaceProducts: %v", err)
	}

	p, err := s.ProductByID(ctx, 3)
	if err != nil {
		t.Fatalf("ProductByID: %v", err)
	}
	if p == nil || p.Name != "Carbonara" || p.ReceiptPrinter != "front" {
		t.Errorf("ProductByID(3) = %+v", p)
	}

	missing, err := s.ProductByID(ctx, 404)
	if err != nil {
		t.Fatalf("ProductByID missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing product, got %+v", missing)
	}

	drinks, err := s.ProductsByGroup(ctx, 1)
	if err != nil {
		t.Fatalf("ProductsByGroup: %v", err)
	}
	if len(drinks) != 2 {
		t.Errorf("group 1 count = %d, want 2", len(drinks))
	}

	favs, err := s.FavoriteProducts(ctx)
	if err != nil {
		t.Fatalf("FavoriteProducts: %v", err)
	}
	if len(favs) != 1 || favs[0].Name != "Cappuccino" {
		t.Errorf("favorites = %+v", favs)
	}
}

func TestSearchProductsCaseInsensitive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.ReplaceProducts(ctx, sampleProducts()); err != nil {
		t.Fatalf("ReplaceProducts: %v", err)
	}

	hits, err := s.SearchProducts(ctx, "CARB")
	if err != nil {
		t.Fatalf("SearchProducts: %v", err)
	}
	if len(hits) != 1 || hits[0].Name != "Carbonara" {
		t.Errorf("search CARB = %+v", hits)
	}

	// Alternate names are searched too.
	hits, err = s.SearchProducts(ctx, "single shot")
	if err != nil {
		t.Fatalf("SearchProducts alt: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != 1 {
		t.Errorf("search by alt name = %+v", hits)
	}
}

func TestGroupsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	parent := int64(1)
	groups := []model.ProductGroup{
		{ID: 1, Name: "Drinks", ViewOrder: 1, HasSub: true},
		{ID: 2, Name: "Hot Drinks", ViewOrder: 1, IsSub: true, ParentID: &parent},
	}
	if err := s.ReplaceGroups(ctx, groups); err != nil {
		t.Fatalf("ReplaceGroups: %v", err)
	}

	got, err := s.Groups(ctx)
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("group count = %d, want 2", len(got))
	}

	sub, err := s.GroupByID(ctx, 2)
	if err != nil {
		t.Fatalf("GroupByID: %v", err)
	}
	if sub == nil || !sub.IsSub || sub.ParentID == nil || *sub.ParentID != 1 {
		t.Errorf("subgroup parent not preserved: %+v", sub)
	}

	root, err := s.GroupByID(ctx, 1)
	if err != nil {
		t.Fatalf("GroupByID root: %v", err)
	}
	if root.ParentID != nil {
		t.Errorf("root group has parent %v", *root.ParentID)
	}
}

func TestServicingPointStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	points := []model.ServicingPoint{
		{ID: 5, Name: "Table 5", Number: 5, AreaID: 1},
		{ID: 6, Name: "Terrace 1", Number: 1, AreaID: 2},
	}
	if err := s.ReplaceServicingPoints(ctx, points); err != nil {
		t.Fatalf("ReplaceServicingPoints: %v", err)
	}

	orderID := int64(42)
	if err := s.SetPointStatus(ctx, 5, true, false, &orderID); err != nil {
		t.Fatalf("SetPointStatus occupy: %v", err)
	}
	pt, err := s.PointByID(ctx, 5)
	if err != nil {
		t.Fatalf("PointByID: %v", err)
	}
	if !pt.Active || pt.ActiveOrderID == nil || *pt.ActiveOrderID != 42 {
		t.Errorf("occupy not recorded: %+v", pt)
	}

	if err := s.SetPointStatus(ctx, 5, false, false, nil); err != nil {
		t.Fatalf("SetPointStatus release: %v", err)
	}
	pt, _ = s.PointByID(ctx, 5)
	if pt.Active || pt.ActiveOrderID != nil {
		t.Errorf("release not recorded: %+v", pt)
	}

	if err := s.SetPointStatus(ctx, 404, true, false, nil); err == nil {
		t.Error("expected error for unknown servicing point")
	}

	area2, err := s.PointsByArea(ctx, 2)
	if err != nil {
		t.Fatalf("PointsByArea: %v", err)
	}
	if len(area2) != 1 || area2[0].Name != "Terrace 1" {
		t.Errorf("area 2 points = %+v", area2)
	}
}

func TestReferenceTables(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.ReplaceAreas(ctx, []model.Area{{ID: 1, Name: "Main Room"}}); err != nil {
		t.Fatalf("ReplaceAreas: %v", err)
	}
	if err := s.ReplaceModifiers(ctx, []model.Modifier{{ID: 7, Name: "Oat Milk", Price: 0.40}}); err != nil {
		t.Fatalf("ReplaceModifiers: %v", err)
	}
	courses := []model.Course{
		{ID: 2, Name: "Mains", Rank: 2},
		{ID: 1, Name: "Starters", Rank: 1},
	}
	if err := s.ReplaceCourses(ctx, courses); err != nil {
		t.Fatalf("ReplaceCourses: %v", err)
	}

	areas, err := s.Areas(ctx)
	if err != nil {
		t.Fatalf("Areas: %v", err)
	}
	if len(areas) != 1 || areas[0].Name != "Main Room" {
		t.Errorf("areas = %+v", areas)
	}

	mods, err := s.Modifiers(ctx)
	if err != nil {
		t.Fatalf("Modifiers: %v", err)
	}
	if len(mods) != 1 || mods[0].Price != 0.40 {
		t.Errorf("modifiers = %+v", mods)
	}

	got, err := s.Courses(ctx)
	if err != nil {
		t.Fatalf("Courses: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Starters" {
		t.Errorf("courses not in rank order: %+v", got)
	}
}

func TestBlobRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetBlob(ctx, "settings")
	if err != nil {
		t.Fatalf("GetBlob: %v", err)
	}
	if ok {
		t.Error("expected missing blob in fresh mirror")
	}

	if err := s.SetBlob(ctx, "settings", `{"auto_sync":true}`); err != nil {
		t.Fatalf("SetBlob: %v", err)
	}
	v, ok, err := s.GetBlob(ctx, "settings")
	if err != nil {
		t.Fatalf("GetBlob after set: %v", err)
	}
	if !ok || v != `{"auto_sync":true}` {
		t.Errorf("blob = %q ok=%v", v, ok)
	}

	// Overwrite wins.
	if err := s.SetBlob(ctx, "settings", `{}`); err != nil {
		t.Fatalf("SetBlob overwrite: %v", err)
	}
	v, _, _ = s.GetBlob(ctx, "settings")
	if v != `{}` {
		t.Errorf("overwritten blob = %q", v)
	}
}

func TestLastSyncTime(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	zero, err := s.LastSyncTime(ctx)
	if err != nil {
		t.Fatalf("LastSyncTime: %v", err)
	}
	if !zero.IsZero() {
		t.Errorf("fresh mirror reports last sync %v", zero)
	}

	stamp := time.Date(2026, 8, 30, 22, 15, 0, 0, time.UTC)
	if err := s.SetLastSyncTime(ctx, stamp); err != nil {
		t.Fatalf("SetLastSyncTime: %v", err)
	}
	got, err := s.LastSyncTime(ctx)
	if err != nil {
		t.Fatalf("LastSyncTime after set: %v", err)
	}
	if !got.Equal(stamp) {
		t.Errorf("last sync = %v, want %v", got, stamp)
	}
}

func TestNextIDsMonotonicAndSeeded(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.NextOrderID(ctx)
	if err != nil {
		t.Fatalf("NextOrderID: %v", err)
	}
	b, err := s.NextOrderID(ctx)
	if err != nil {
		t.Fatalf("NextOrderID: %v", err)
	}
	if b != a+1 {
		t.Errorf("order ids %d then %d, want consecutive", a, b)
	}

	// A pulled order with a higher id moves the high-water mark: fresh
	// allocations must never collide with mirrored rows.
	o := &model.Order{ID: 500, CreatedAt: time.Now(), ClerkID: 1}
	if err := s.UpsertOrder(ctx, o); err != nil {
		t.Fatalf("UpsertOrder: %v", err)
	}
	c, err := s.NextOrderID(ctx)
	if err != nil {
		t.Fatalf("NextOrderID after upsert: %v", err)
	}
	if c <= 500 {
		t.Errorf("order id %d did not clear the high-water mark 500", c)
	}

	i1, err := s.NextItemID(ctx)
	if err != nil {
		t.Fatalf("NextItemID: %v", err)
	}
	i2, err := s.NextItemID(ctx)
	if err != nil {
		t.Fatalf("NextItemID: %v", err)
	}
	if i2 != i1+1 {
		t.Errorf("item ids %d then %d, want consecutive", i1, i2)
	}
}

func TestClearEmptiesCatalogueKeepsNothing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.ReplaceProducts(ctx, sampleProducts()); err != nil {
		t.Fatalf("ReplaceProducts: %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	products, err := s.Products(ctx)
	if err != nil {
		t.Fatalf("Products after clear: %v", err)
	}
	if len(products) != 0 {
		t.Errorf("catalogue survived Clear: %+v", products)
	}
}
