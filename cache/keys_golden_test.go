package cache_test

import (
	"strings"
	"testing"

	"github.com/goliatone/go-entity-cache/cache"
	"github.com/goliatone/go-entity-cache/pkg/testsupport"
)

// TestKeyLayoutGolden pins the key grammar against a golden file. Cache keys
// are a persistence format: an accidental change orphans every entry already
// stored, so any diff here must be deliberate.
func TestKeyLayoutGolden(t *testing.T) {
	codec := cache.NewKeyCodec("testapp")

	keys := []string{
		codec.PrimaryKey("Blog", "42"),
		codec.PrimaryKey("blog", "a:b/c"),
		codec.SecondaryKey("blog", []string{"slug"}, []any{"hello-world"}),
		codec.SecondaryKey("blog", []string{"author_id", "slug"}, []any{"a1", "hello"}),
		codec.SecondaryKey("blog", []string{"slug"}, []any{nil}),
		codec.SecondaryKey("blog", []string{"ids"}, []any{[]string{"a", "b"}}),
		codec.AttributeKey("blog", "title", []string{"slug"}, []any{"hello"}),
	}

	actual := strings.Join(keys, "\n") + "\n"
	testsupport.CompareWithGolden(t, testsupport.GoldenPath("keys.txt"), []byte(actual))
}
