package bunstore

import (
	"context"
	"testing"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-entity-cache/entitycache"
)

type item struct {
	bun.BaseModel     `bun:"table:items"`
	entitycache.Slots `bun:"-" msgpack:"-"`

	ID   string `bun:"id,pk" msgpack:"id"`
	Name string `bun:"name" msgpack:"name"`
	SKU  string `bun:"sku" msgpack:"sku"`
}

func (i *item) EntityType() string { return "item" }
func (i *item) EntityID() string   { return i.ID }

func (i *item) EntityFields() map[string]any {
	return map[string]any{"id": i.ID, "name": i.Name, "sku": i.SKU}
}

type part struct {
	bun.BaseModel     `bun:"table:parts"`
	entitycache.Slots `bun:"-" msgpack:"-"`

	ID     string `bun:"id,pk" msgpack:"id"`
	ItemID string `bun:"item_id" msgpack:"item_id"`
	Label  string `bun:"label" msgpack:"label"`
}

func (p *part) EntityType() string { return "part" }
func (p *part) EntityID() string   { return p.ID }

func (p *part) EntityFields() map[string]any {
	return map[string]any{"id": p.ID, "item_id": p.ItemID, "label": p.Label}
}

var partsRel = entitycache.RelationshipSpec{
	Name: "parts", Kind: entitycache.HasMany, Mode: entitycache.Embedded,
	Target: "part", ForeignKey: "item_id",
}

func newTestRegistry() *entitycache.Registry {
	registry := entitycache.NewRegistry()
	registry.MustRegister(entitycache.TypeSpec{
		Name:          "item",
		New:           func() entitycache.Record { return &item{} },
		Relationships: []entitycache.RelationshipSpec{partsRel},
	})
	registry.MustRegister(entitycache.TypeSpec{
		Name: "part",
		New:  func() entitycache.Record { return &part{} },
	})
	return registry
}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := OpenSQLite("file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	for _, model := range []any{(*item)(nil), (*part)(nil)} {
		if _, err := db.NewCreateTable().Model(model).Exec(ctx); err != nil {
			t.Fatalf("create table failed: %v", err)
		}
	}

	rows := []any{
		&item{ID: "i1", Name: "Keyboard", SKU: "kb-101"},
		&item{ID: "i2", Name: "Mouse", SKU: "ms-202"},
		&part{ID: "p2", ItemID: "i1", Label: "cable"},
		&part{ID: "p1", ItemID: "i1", Label: "keycap"},
		&part{ID: "p3", ItemID: "i2", Label: "wheel"},
	}
	for _, row := range rows {
		if _, err := db.NewInsert().Model(row).Exec(ctx); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	store := New(db, newTestRegistry())
	Bind[item](store, "item")
	Bind[part](store, "part")
	return store
}

func relatedParts(t *testing.T, rec entitycache.Record) []entitycache.Record {
	t.Helper()
	v, ok := rec.AssociationSlots().Related("parts")
	if !ok {
		t.Fatalf("parts slot of %s not populated", rec.EntityID())
	}
	return v.([]entitycache.Record)
}

func TestStore_LoadOne(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec, err := store.LoadOne(ctx, "item", "i1", nil)
	if err != nil {
		t.Fatalf("LoadOne() failed: %v", err)
	}
	got, ok := rec.(*item)
	if !ok {
		t.Fatalf("LoadOne() returned %T, want *item", rec)
	}
	if got.Name != "Keyboard" || got.SKU != "kb-101" {
		t.Errorf("loaded item = %+v, want Keyboard/kb-101", got)
	}

	missing, err := store.LoadOne(ctx, "item", "ghost", nil)
	if err != nil {
		t.Fatalf("LoadOne(ghost) failed: %v", err)
	}
	if missing != nil {
		t.Errorf("LoadOne(ghost) = %v, want nil", missing)
	}
}

func TestStore_LoadBulkAlignment(t *testing.T) {
	store := newTestStore(t)

	records, err := store.LoadBulk(context.Background(), "item", []string{"i2", "ghost", "i1"}, nil)
	if err != nil {
		t.Fatalf("LoadBulk() failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("LoadBulk() returned %d records, want 3", len(records))
	}
	if records[0] == nil || records[0].EntityID() != "i2" {
		t.Errorf("records[0] = %v, want i2", records[0])
	}
	if records[1] != nil {
		t.Errorf("records[1] = %v, want nil hole for missing id", records[1])
	}
	if records[2] == nil || records[2].EntityID() != "i1" {
		t.Errorf("records[2] = %v, want i1", records[2])
	}
}

func TestStore_LoadOneAppliesIncludes(t *testing.T) {
	store := newTestStore(t)

	rec, err := store.LoadOne(context.Background(), "item", "i1", entitycache.Includes{"parts": nil})
	if err != nil {
		t.Fatalf("LoadOne() failed: %v", err)
	}
	parts := relatedParts(t, rec)
	if len(parts) != 2 || parts[0].EntityID() != "p1" || parts[1].EntityID() != "p2" {
		t.Errorf("preloaded parts = %v, want [p1 p2]", parts)
	}
}

func TestStore_LoadBulkAppliesIncludes(t *testing.T) {
	store := newTestStore(t)

	records, err := store.LoadBulk(context.Background(), "item",
		[]string{"i1", "ghost", "i2"}, entitycache.Includes{"parts": nil})
	if err != nil {
		t.Fatalf("LoadBulk() failed: %v", err)
	}
	if len(records) != 3 || records[1] != nil {
		t.Fatalf("LoadBulk() = %v, want [i1 nil i2]", records)
	}

	// One children query covers the whole batch and distributes per parent.
	i1Parts := relatedParts(t, records[0])
	if len(i1Parts) != 2 || i1Parts[0].EntityID() != "p1" || i1Parts[1].EntityID() != "p2" {
		t.Errorf("i1 parts = %v, want [p1 p2]", i1Parts)
	}
	i2Parts := relatedParts(t, records[2])
	if len(i2Parts) != 1 || i2Parts[0].EntityID() != "p3" {
		t.Errorf("i2 parts = %v, want [p3]", i2Parts)
	}
}

func TestStore_LoadBulkUnknownInclude(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LoadBulk(context.Background(), "item",
		[]string{"i1"}, entitycache.Includes{"widgets": nil})
	if err == nil {
		t.Error("LoadBulk(unknown include) should fail")
	}
}

func TestStore_LoadRelated(t *testing.T) {
	store := newTestStore(t)
	parent := &item{ID: "i1"}

	children, err := store.LoadRelated(context.Background(), parent, partsRel)
	if err != nil {
		t.Fatalf("LoadRelated() failed: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("LoadRelated() returned %d parts, want 2", len(children))
	}
	// Ordered by id regardless of insertion order.
	if children[0].EntityID() != "p1" || children[1].EntityID() != "p2" {
		t.Errorf("part order = %s, %s; want p1, p2", children[0].EntityID(), children[1].EntityID())
	}
}

func TestStore_LoadRelatedIDs(t *testing.T) {
	store := newTestStore(t)

	ids, err := store.LoadRelatedIDs(context.Background(), &item{ID: "i1"}, partsRel)
	if err != nil {
		t.Fatalf("LoadRelatedIDs() failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "p1" || ids[1] != "p2" {
		t.Errorf("LoadRelatedIDs() = %v, want [p1 p2]", ids)
	}
}

func TestStore_BelongsTo(t *testing.T) {
	store := newTestStore(t)
	rel := entitycache.RelationshipSpec{
		Name: "item", Kind: entitycache.BelongsTo, Mode: entitycache.Referenced,
		Target: "item", ForeignKey: "item_id",
	}

	parents, err := store.LoadRelated(context.Background(), &part{ID: "p1", ItemID: "i1"}, rel)
	if err != nil {
		t.Fatalf("LoadRelated(belongs_to) failed: %v", err)
	}
	if len(parents) != 1 || parents[0].EntityID() != "i1" {
		t.Errorf("LoadRelated(belongs_to) = %v, want [i1]", parents)
	}
}

func TestStore_LoadIDsByIndex(t *testing.T) {
	store := newTestStore(t)

	ids, err := store.LoadIDsByIndex(context.Background(), "item", []string{"sku"}, []any{"ms-202"})
	if err != nil {
		t.Fatalf("LoadIDsByIndex() failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "i2" {
		t.Errorf("LoadIDsByIndex(sku=ms-202) = %v, want [i2]", ids)
	}

	none, err := store.LoadIDsByIndex(context.Background(), "item", []string{"sku"}, []any{"nope"})
	if err != nil {
		t.Fatalf("LoadIDsByIndex(nope) failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("LoadIDsByIndex(sku=nope) = %v, want empty", none)
	}
}

func TestStore_LoadAttribute(t *testing.T) {
	store := newTestStore(t)
	attr := entitycache.AttributeSpec{Name: "name", Fields: []string{"sku"}}

	name, err := store.LoadAttribute(context.Background(), "item", attr, []any{"kb-101"})
	if err != nil {
		t.Fatalf("LoadAttribute() failed: %v", err)
	}
	if name != "Keyboard" {
		t.Errorf("LoadAttribute(name, sku=kb-101) = %v, want Keyboard", name)
	}

	missing, err := store.LoadAttribute(context.Background(), "item", attr, []any{"nope"})
	if err != nil {
		t.Fatalf("LoadAttribute(missing) failed: %v", err)
	}
	if missing != nil {
		t.Errorf("LoadAttribute(sku=nope) = %v, want nil", missing)
	}
}

func TestStore_Exists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ok, err := store.Exists(ctx, "item", "i1")
	if err != nil {
		t.Fatalf("Exists() failed: %v", err)
	}
	if !ok {
		t.Error("Exists(i1) = false, want true")
	}

	ok, err = store.Exists(ctx, "item", "ghost")
	if err != nil {
		t.Fatalf("Exists(ghost) failed: %v", err)
	}
	if ok {
		t.Error("Exists(ghost) = true, want false")
	}
}

func TestStore_UnboundType(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.LoadOne(context.Background(), "widget", "w1", nil); err == nil {
		t.Error("LoadOne(unbound type) should fail")
	}
}
