package entitycache_test

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-entity-cache/entitycache"
	"github.com/goliatone/go-entity-cache/pkg/testsupport"
)

func TestFetchRelated_EmbeddedFromSlot(t *testing.T) {
	c, _, store := newFixtureCache(t, entitycache.Embedded)
	seedBlogGraph(store)
	ctx := context.Background()

	rec, err := c.FetchByID(ctx, "blog", "b1")
	if err != nil {
		t.Fatalf("FetchByID() failed: %v", err)
	}
	relatedCalls := store.LoadRelatedCalls

	v, err := c.FetchRelated(ctx, rec, "comments")
	if err != nil {
		t.Fatalf("FetchRelated() failed: %v", err)
	}
	comments, ok := v.([]entitycache.Record)
	if !ok {
		t.Fatalf("FetchRelated(comments) returned %T, want []Record", v)
	}
	if len(comments) != 2 || comments[0].EntityID() != "c1" {
		t.Errorf("FetchRelated(comments) = %v, want [c1 c2]", comments)
	}

	// The populated slot answered; no extra store round trip.
	if store.LoadRelatedCalls != relatedCalls {
		t.Errorf("LoadRelated ran %d extra times for a populated slot", store.LoadRelatedCalls-relatedCalls)
	}
}

func TestFetchRelated_ReferencedHasMany(t *testing.T) {
	c, _, store := newFixtureCache(t, entitycache.Referenced)
	seedBlogGraph(store)
	ctx := context.Background()

	rec, err := c.FetchByID(ctx, "blog", "b1")
	if err != nil {
		t.Fatalf("FetchByID() failed: %v", err)
	}

	// Materialization stored only the id list.
	ids, ok := rec.AssociationSlots().RelatedIDs("comments")
	if !ok || len(ids) != 2 {
		t.Fatalf("referenced comments ids = (%v, %v), want ([c1 c2], true)", ids, ok)
	}

	v, err := c.FetchRelated(ctx, rec, "comments")
	if err != nil {
		t.Fatalf("FetchRelated() failed: %v", err)
	}
	comments := v.([]entitycache.Record)
	if len(comments) != 2 || comments[0].EntityID() != "c1" || comments[1].EntityID() != "c2" {
		t.Fatalf("FetchRelated(comments) = %v, want [c1 c2]", comments)
	}

	// The comments resolved through the primary cache: one bulk load, and
	// they are now cached for everyone.
	if store.LoadBulkCalls != 1 {
		t.Errorf("LoadBulk ran %d times, want 1", store.LoadBulkCalls)
	}
	if _, err := c.FetchByID(ctx, "comment", "c1"); err != nil {
		t.Fatalf("FetchByID(comment) failed: %v", err)
	}
	if store.LoadOneCalls != 1 {
		t.Errorf("LoadOne ran %d times, want comment c1 served from cache", store.LoadOneCalls)
	}
}

func TestFetchRelated_BelongsTo(t *testing.T) {
	c, _, store := newFixtureCache(t, entitycache.Embedded)
	seedBlogGraph(store)
	ctx := context.Background()

	rec, err := c.FetchByID(ctx, "blog", "b1")
	if err != nil {
		t.Fatalf("FetchByID() failed: %v", err)
	}

	v, err := c.FetchRelated(ctx, rec, "author")
	if err != nil {
		t.Fatalf("FetchRelated(author) failed: %v", err)
	}
	author, ok := v.(entitycache.Record)
	if !ok || author == nil {
		t.Fatalf("FetchRelated(author) = %v, want a single record", v)
	}
	if author.EntityID() != "a1" {
		t.Errorf("author id = %q, want a1", author.EntityID())
	}

	// Memoized into the slot; a second call costs nothing.
	bulkCalls := store.LoadBulkCalls
	if _, err := c.FetchRelated(ctx, rec, "author"); err != nil {
		t.Fatalf("second FetchRelated(author) failed: %v", err)
	}
	if store.LoadBulkCalls != bulkCalls {
		t.Error("second FetchRelated(author) hit the store again")
	}
}

func TestFetchRelated_BelongsToEmptyForeignKey(t *testing.T) {
	c, _, store := newFixtureCache(t, entitycache.Embedded)
	store.AddBlog(&testsupport.Blog{ID: "b9", Title: "Orphan", Slug: "orphan"})
	ctx := context.Background()

	rec, err := c.FetchByID(ctx, "blog", "b9")
	if err != nil {
		t.Fatalf("FetchByID() failed: %v", err)
	}

	v, err := c.FetchRelated(ctx, rec, "author")
	if err != nil {
		t.Fatalf("FetchRelated(author) failed: %v", err)
	}
	if v != nil {
		t.Errorf("FetchRelated(author) = %v, want nil for an empty foreign key", v)
	}
}

func TestFetchRelated_UnknownRelationship(t *testing.T) {
	c, _, store := newFixtureCache(t, entitycache.Embedded)
	seedBlogGraph(store)
	ctx := context.Background()

	rec, err := c.FetchByID(ctx, "blog", "b1")
	if err != nil {
		t.Fatalf("FetchByID() failed: %v", err)
	}

	_, err = c.FetchRelated(ctx, rec, "reactions")
	var usage *entitycache.UsageError
	if !errors.As(err, &usage) {
		t.Fatalf("error = %v, want UsageError", err)
	}
}

func TestPrefetch_ReferencedBelongsTo(t *testing.T) {
	c, backend, store := newFixtureCache(t, entitycache.Embedded)
	seedBlogGraph(store)
	ctx := context.Background()

	byID, err := c.FetchMulti(ctx, "blog", []string{"b1", "b2"})
	if err != nil {
		t.Fatalf("FetchMulti() failed: %v", err)
	}
	records := []entitycache.Record{byID["b1"], byID["b2"]}
	multiReads := backend.MultiReads

	err = c.Prefetch(ctx, "blog", entitycache.Includes{"author": nil}, records)
	if err != nil {
		t.Fatalf("Prefetch() failed: %v", err)
	}

	// Both authors resolved in one batched fetch, not one per parent.
	if backend.MultiReads != multiReads+1 {
		t.Errorf("prefetch cost %d multi-reads, want 1", backend.MultiReads-multiReads)
	}
	if store.LoadBulkCalls != 2 {
		t.Errorf("LoadBulk ran %d times, want 2 (blogs, then authors)", store.LoadBulkCalls)
	}

	// Slots are warm; FetchRelated is free.
	loadCalls := store.LoadBulkCalls
	for i, want := range []string{"a1", "a2"} {
		v, err := c.FetchRelated(ctx, records[i], "author")
		if err != nil {
			t.Fatalf("FetchRelated() failed: %v", err)
		}
		if v.(entitycache.Record).EntityID() != want {
			t.Errorf("record %d author = %q, want %q", i, v.(entitycache.Record).EntityID(), want)
		}
	}
	if store.LoadBulkCalls != loadCalls {
		t.Error("FetchRelated hit the store after prefetch")
	}
}

func TestPrefetch_ReferencedHasMany(t *testing.T) {
	c, _, store := newFixtureCache(t, entitycache.Referenced)
	seedBlogGraph(store)
	ctx := context.Background()

	byID, err := c.FetchMulti(ctx, "blog", []string{"b1", "b2"})
	if err != nil {
		t.Fatalf("FetchMulti() failed: %v", err)
	}
	records := []entitycache.Record{byID["b1"], byID["b2"]}
	bulkCalls := store.LoadBulkCalls

	err = c.Prefetch(ctx, "blog", entitycache.Includes{"comments": nil}, records)
	if err != nil {
		t.Fatalf("Prefetch() failed: %v", err)
	}

	// All three comments across both parents resolve in one bulk load.
	if store.LoadBulkCalls != bulkCalls+1 {
		t.Errorf("prefetch cost %d bulk loads, want 1", store.LoadBulkCalls-bulkCalls)
	}

	v, ok := records[0].AssociationSlots().Related("comments")
	if !ok {
		t.Fatal("prefetch left b1's comments slot empty")
	}
	if got := v.([]entitycache.Record); len(got) != 2 {
		t.Errorf("b1 prefetched %d comments, want 2", len(got))
	}
	v, ok = records[1].AssociationSlots().Related("comments")
	if !ok {
		t.Fatal("prefetch left b2's comments slot empty")
	}
	if got := v.([]entitycache.Record); len(got) != 1 || got[0].EntityID() != "c3" {
		t.Errorf("b2 prefetched comments = %v, want [c3]", v)
	}
}

func TestPrefetch_NestedIncludes(t *testing.T) {
	c, _, store := newFixtureCache(t, entitycache.Embedded)
	seedBlogGraph(store)
	ctx := context.Background()

	rec, err := c.FetchByID(ctx, "author", "a1")
	if err != nil {
		t.Fatalf("FetchByID(author) failed: %v", err)
	}

	// author -> blogs (referenced has-many) -> author (referenced belongs-to).
	err = c.Prefetch(ctx, "author", entitycache.Includes{
		"blogs": {"author": nil},
	}, []entitycache.Record{rec})
	if err != nil {
		t.Fatalf("Prefetch() failed: %v", err)
	}

	v, ok := rec.AssociationSlots().Related("blogs")
	if !ok {
		t.Fatal("prefetch left the blogs slot empty")
	}
	blogs := v.([]entitycache.Record)
	if len(blogs) != 1 || blogs[0].EntityID() != "b1" {
		t.Fatalf("prefetched blogs = %v, want [b1]", blogs)
	}

	// The nested hop warmed the blog's author slot too.
	loadCalls := store.LoadBulkCalls + store.LoadOneCalls
	v, err = c.FetchRelated(ctx, blogs[0], "author")
	if err != nil {
		t.Fatalf("FetchRelated() failed: %v", err)
	}
	if v.(entitycache.Record).EntityID() != "a1" {
		t.Errorf("nested author = %q, want a1", v.(entitycache.Record).EntityID())
	}
	if store.LoadBulkCalls+store.LoadOneCalls != loadCalls {
		t.Error("nested FetchRelated hit the store after prefetch")
	}
}

func TestPrefetch_UnknownRelationship(t *testing.T) {
	c, _, store := newFixtureCache(t, entitycache.Embedded)
	seedBlogGraph(store)
	ctx := context.Background()

	rec, err := c.FetchByID(ctx, "blog", "b1")
	if err != nil {
		t.Fatalf("FetchByID() failed: %v", err)
	}

	err = c.Prefetch(ctx, "blog", entitycache.Includes{"reactions": nil}, []entitycache.Record{rec})
	var usage *entitycache.UsageError
	if !errors.As(err, &usage) {
		t.Fatalf("error = %v, want UsageError", err)
	}
}

func TestPrefetch_UnsupportedShapes(t *testing.T) {
	c, _, _ := newFixtureCache(t, entitycache.Embedded)
	c.Registry().MustRegister(entitycache.TypeSpec{
		Name: "user",
		New:  func() entitycache.Record { return &testsupport.Author{} },
		Relationships: []entitycache.RelationshipSpec{
			{Name: "profile", Kind: entitycache.HasOne, Mode: entitycache.Referenced, Target: "author", ForeignKey: "user_id"},
			{Name: "team", Kind: entitycache.BelongsTo, Mode: entitycache.Embedded, Target: "author", ForeignKey: "team_id"},
		},
	})
	ctx := context.Background()
	records := []entitycache.Record{&testsupport.Author{ID: "u1"}}

	var usage *entitycache.UsageError
	err := c.Prefetch(ctx, "user", entitycache.Includes{"profile": nil}, records)
	if !errors.As(err, &usage) {
		t.Errorf("referenced has_one prefetch error = %v, want UsageError", err)
	}

	err = c.Prefetch(ctx, "user", entitycache.Includes{"team": nil}, records)
	if !errors.As(err, &usage) {
		t.Errorf("embedded belongs_to prefetch error = %v, want UsageError", err)
	}
}
