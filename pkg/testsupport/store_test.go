package testsupport

import (
	"context"
	"testing"

	"github.com/goliatone/go-entity-cache/entitycache"
)

func seededStore() *FixtureStore {
	store := NewFixtureStore()
	store.AddAuthor(&Author{ID: "a1", Name: "Ada"})
	store.AddBlog(&Blog{ID: "b1", Title: "Hello", Slug: "hello", AuthorID: "a1"})
	store.AddComment(&Comment{ID: "c2", BlogID: "b1", Body: "second"})
	store.AddComment(&Comment{ID: "c1", BlogID: "b1", Body: "first"})
	return store
}

func TestFixtureStore_LoadOneReturnsCopies(t *testing.T) {
	store := seededStore()
	ctx := context.Background()

	first, err := store.LoadOne(ctx, "blog", "b1", nil)
	if err != nil {
		t.Fatalf("LoadOne() failed: %v", err)
	}
	second, err := store.LoadOne(ctx, "blog", "b1", nil)
	if err != nil {
		t.Fatalf("LoadOne() failed: %v", err)
	}
	if first == second {
		t.Error("LoadOne() returned the same instance twice")
	}

	// Slot state on one copy must not leak into the next load.
	first.AssociationSlots().SetRelatedIDs("author", []string{"a1"})
	if _, ok := second.AssociationSlots().RelatedIDs("author"); ok {
		t.Error("slot state leaked between loaded copies")
	}
	if store.LoadOneCalls != 2 {
		t.Errorf("LoadOneCalls = %d, want 2", store.LoadOneCalls)
	}
}

func TestFixtureStore_LoadBulkAlignment(t *testing.T) {
	store := seededStore()

	records, err := store.LoadBulk(context.Background(), "blog", []string{"missing", "b1"}, nil)
	if err != nil {
		t.Fatalf("LoadBulk() failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("LoadBulk() returned %d records, want 2", len(records))
	}
	if records[0] != nil {
		t.Error("missing id should leave a nil hole")
	}
	if records[1] == nil || records[1].EntityID() != "b1" {
		t.Errorf("records[1] = %v, want b1", records[1])
	}
}

func TestFixtureStore_LoadAppliesIncludes(t *testing.T) {
	store := seededStore()
	includes := entitycache.Includes{"comments": nil}

	rec, err := store.LoadOne(context.Background(), "blog", "b1", includes)
	if err != nil {
		t.Fatalf("LoadOne() failed: %v", err)
	}
	v, ok := rec.AssociationSlots().Related("comments")
	if !ok {
		t.Fatal("comments slot was not preloaded")
	}
	comments := v.([]entitycache.Record)
	if len(comments) != 2 || comments[0].EntityID() != "c1" || comments[1].EntityID() != "c2" {
		t.Errorf("preloaded comments = %v, want [c1 c2]", comments)
	}

	records, err := store.LoadBulk(context.Background(), "blog", []string{"missing", "b1"}, includes)
	if err != nil {
		t.Fatalf("LoadBulk() failed: %v", err)
	}
	if records[0] != nil {
		t.Error("missing id should leave a nil hole")
	}
	if _, ok := records[1].AssociationSlots().Related("comments"); !ok {
		t.Error("comments slot was not preloaded on the bulk path")
	}

	if _, err := store.LoadOne(context.Background(), "blog", "b1", entitycache.Includes{"widgets": nil}); err == nil {
		t.Error("LoadOne(unknown include) should fail")
	}
}

func TestFixtureStore_ChildrenAreOrdered(t *testing.T) {
	store := seededStore()
	rel := entitycache.RelationshipSpec{
		Name: "comments", Kind: entitycache.HasMany, Mode: entitycache.Embedded,
		Target: "comment", ForeignKey: "blog_id",
	}
	parent := &Blog{ID: "b1"}

	children, err := store.LoadRelated(context.Background(), parent, rel)
	if err != nil {
		t.Fatalf("LoadRelated() failed: %v", err)
	}
	if len(children) != 2 || children[0].EntityID() != "c1" || children[1].EntityID() != "c2" {
		t.Errorf("children = %v, want [c1 c2] regardless of insertion order", children)
	}

	ids, err := store.LoadRelatedIDs(context.Background(), parent, rel)
	if err != nil {
		t.Fatalf("LoadRelatedIDs() failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "c1" || ids[1] != "c2" {
		t.Errorf("ids = %v, want [c1 c2]", ids)
	}
}

func TestFixtureStore_IndexAndAttribute(t *testing.T) {
	store := seededStore()
	ctx := context.Background()

	ids, err := store.LoadIDsByIndex(ctx, "blog", []string{"slug"}, []any{"hello"})
	if err != nil {
		t.Fatalf("LoadIDsByIndex() failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "b1" {
		t.Errorf("LoadIDsByIndex(slug=hello) = %v, want [b1]", ids)
	}

	title, err := store.LoadAttribute(ctx, "blog", entitycache.AttributeSpec{
		Name: "title", Fields: []string{"slug"},
	}, []any{"hello"})
	if err != nil {
		t.Fatalf("LoadAttribute() failed: %v", err)
	}
	if title != "Hello" {
		t.Errorf("LoadAttribute(title, slug=hello) = %v, want Hello", title)
	}

	missing, err := store.LoadAttribute(ctx, "blog", entitycache.AttributeSpec{
		Name: "title", Fields: []string{"slug"},
	}, []any{"nope"})
	if err != nil {
		t.Fatalf("LoadAttribute(missing) failed: %v", err)
	}
	if missing != nil {
		t.Errorf("LoadAttribute(slug=nope) = %v, want nil", missing)
	}
}
