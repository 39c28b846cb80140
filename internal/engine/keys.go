package engine

import (
	"fmt"
	"strings"
)

// Cache keys are namespaced per artifact kind so unrelated artifacts
// never collide: content slugs are used bare, synthetic keys carry a
// double-underscore prefix (slugs never start with an underscore).
const (
	keyIndexPrefix = "__index_"
	keyTagPrefix   = "__tag_"

	// KeyNotFound caches the rendered 404 page.
	KeyNotFound = "__404"
)

// KeyContent returns the cache key for a content slug.
func KeyContent(slug string) string { return slug }

// KeyIndex returns the cache key for listing page n.
func KeyIndex(n int) string { return fmt.Sprintf("%s%d", keyIndexPrefix, n) }

// KeyTag returns the cache key for a tag listing.
func KeyTag(tag string) string { return keyTagPrefix + tag }

// KeyKind discriminates the artifact kind a cache key refers to.
type KeyKind int

const (
	KindContent KeyKind = iota
	KindIndex
	KindTag
	KindNotFound
)

// ParseKey splits a cache key into its kind and argument: the slug
// for content, the page number string for listings, the tag name for
// tag listings.
func ParseKey(key string) (KeyKind, string) {
	switch {
	case key == KeyNotFound:
		return KindNotFound, ""
	case strings.HasPrefix(key, keyIndexPrefix):
		return KindIndex, strings.TrimPrefix(key, keyIndexPrefix)
	case strings.HasPrefix(key, keyTagPrefix):
		return KindTag, strings.TrimPrefix(key, keyTagPrefix)
	}
	return KindContent, key
}
