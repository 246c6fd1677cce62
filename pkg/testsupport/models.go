package testsupport

import (
	"github.com/goliatone/go-entity-cache/entitycache"
)

// Blog is the fixture parent type: embedded (or referenced, depending on
// the registry) comments plus a referenced author.
type Blog struct {
	entitycache.Slots `msgpack:"-"`

	ID       string `msgpack:"id"`
	Title    string `msgpack:"title"`
	Slug     string `msgpack:"slug"`
	AuthorID string `msgpack:"author_id"`
}

func (b *Blog) EntityType() string { return "blog" }
func (b *Blog) EntityID() string   { return b.ID }

func (b *Blog) EntityFields() map[string]any {
	return map[string]any{
		"id":        b.ID,
		"title":     b.Title,
		"slug":      b.Slug,
		"author_id": b.AuthorID,
	}
}

// Comment is the fixture child type.
type Comment struct {
	entitycache.Slots `msgpack:"-"`

	ID     string `msgpack:"id"`
	BlogID string `msgpack:"blog_id"`
	Body   string `msgpack:"body"`
}

func (c *Comment) EntityType() string { return "comment" }
func (c *Comment) EntityID() string   { return c.ID }

func (c *Comment) EntityFields() map[string]any {
	return map[string]any{
		"id":      c.ID,
		"blog_id": c.BlogID,
		"body":    c.Body,
	}
}

// Author is the fixture parent of blogs, reached through a referenced
// belongs-to from Blog and a referenced has-many from Author.
type Author struct {
	entitycache.Slots `msgpack:"-"`

	ID   string `msgpack:"id"`
	Name string `msgpack:"name"`
}

func (a *Author) EntityType() string { return "author" }
func (a *Author) EntityID() string   { return a.ID }

func (a *Author) EntityFields() map[string]any {
	return map[string]any{
		"id":   a.ID,
		"name": a.Name,
	}
}

// NewFixtureRegistry builds the registry for the fixture graph. The
// commentsMode parameter switches the blog→comments relationship between
// Embedded and Referenced so tests can cover both population paths with the
// same fixtures.
func NewFixtureRegistry(commentsMode entitycache.Mode) *entitycache.Registry {
	registry := entitycache.NewRegistry()

	registry.MustRegister(entitycache.TypeSpec{
		Name:    "blog",
		New:     func() entitycache.Record { return &Blog{} },
		Indexes: [][]string{{"slug"}},
		Attributes: []entitycache.AttributeSpec{
			{Name: "title", Fields: []string{"slug"}},
		},
		Relationships: []entitycache.RelationshipSpec{
			{
				Name:       "comments",
				Kind:       entitycache.HasMany,
				Mode:       commentsMode,
				Target:     "comment",
				ForeignKey: "blog_id",
			},
			{
				Name:       "author",
				Kind:       entitycache.BelongsTo,
				Mode:       entitycache.Referenced,
				Target:     "author",
				ForeignKey: "author_id",
			},
		},
	})

	registry.MustRegister(entitycache.TypeSpec{
		Name: "comment",
		New:  func() entitycache.Record { return &Comment{} },
	})

	registry.MustRegister(entitycache.TypeSpec{
		Name: "author",
		New:  func() entitycache.Record { return &Author{} },
		Relationships: []entitycache.RelationshipSpec{
			{
				Name:       "blogs",
				Kind:       entitycache.HasMany,
				Mode:       entitycache.Referenced,
				Target:     "blog",
				ForeignKey: "author_id",
			},
		},
	})

	return registry
}
