// Package engine implements the multi-tier response cache: a
// precompressed byte tier, a rendered-HTML tier and a fresh-render
// fallback, plus a separate dynamic-artifact map and a bounded static
// asset cache. One Engine instance owns all tiers; it is constructed
// per server instance and shared by the HTTP handler and the rebuild
// coordinator.
package engine

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zeebo/blake3"
)

// Entry is one rendered artifact: its bytes and content-hash ETag.
type Entry struct {
	Body []byte
	ETag string
}

// ETagFor computes the quoted content-hash ETag for a body.
func ETagFor(body []byte) string {
	sum := blake3.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// RenderFunc is the tier-3 fallback: render the artifact for a key
// from scratch.
type RenderFunc func(key string) ([]byte, error)

// Engine owns all cache tiers. Handlers call Resolve; the rebuild
// coordinator is the only writer in the steady state.
type Engine struct {
	logger *slog.Logger

	mu         sync.RWMutex
	rendered   map[string]*Entry
	compressed map[string]map[Encoding][]byte
	dynamic    map[string]*Entry

	assets *AssetCache

	renderFn RenderFunc
}

// New creates an engine with the given static-asset byte budget.
func New(assetBudget int64, renderFn RenderFunc, logger *slog.Logger) *Engine {
	return &Engine{
		logger:     logger,
		rendered:   make(map[string]*Entry),
		compressed: make(map[string]map[Encoding][]byte),
		dynamic:    make(map[string]*Entry),
		assets:     newAssetCache(assetBudget),
		renderFn:   renderFn,
	}
}

// Response is the outcome of a cache resolution.
type Response struct {
	Status   int // 200, 304 or 500
	Body     []byte
	ETag     string
	Encoding Encoding
	// Negotiated is true when encoding negotiation occurred, so the
	// caller must emit Vary: Accept-Encoding.
	Negotiated bool
}

// Resolve answers a request for a cache key. Tier order, first hit
// wins: precompressed bytes, rendered bytes, fresh render. Only the
// fresh-render path populates anything, and it populates the rendered
// tier alone: eager population of both tiers is the coordinator's job,
// which keeps renders at one per content change instead of one per
// request.
func (e *Engine) Resolve(key, acceptEncoding, ifNoneMatch string) Response {
	preferred := NegotiateEncoding(acceptEncoding)

	e.mu.RLock()
	entry := e.rendered[key]
	var pre []byte
	if preferred != EncIdentity && entry != nil {
		pre = e.compressed[key][preferred]
	}
	e.mu.RUnlock()

	if entry != nil {
		if ifNoneMatch != "" && ifNoneMatch == entry.ETag {
			return Response{Status: 304, ETag: entry.ETag, Negotiated: preferred != EncIdentity}
		}
		if pre != nil {
			return Response{Status: 200, Body: pre, ETag: entry.ETag, Encoding: preferred, Negotiated: true}
		}
		return e.respond(entry, preferred)
	}

	// Tier 3: render fresh. Rare in steady state, only between a
	// content change and the coordinator's eager re-population.
	body, err := e.renderFn(key)
	if err != nil {
		return Response{Status: 500, Body: []byte("500 - render failed")}
	}
	fresh := e.SetRendered(key, body)
	if ifNoneMatch != "" && ifNoneMatch == fresh.ETag {
		return Response{Status: 304, ETag: fresh.ETag, Negotiated: preferred != EncIdentity}
	}
	return e.respond(fresh, preferred)
}

// respond serves a rendered entry, compressing on the fly when the
// client prefers an encoding but no precompressed bytes exist. The
// result is not stored: the precompressed tier holds only bytes the
// coordinator derived from the rendered tier.
func (e *Engine) respond(entry *Entry, preferred Encoding) Response {
	if preferred == EncIdentity || len(entry.Body) < minCompressSize {
		return Response{Status: 200, Body: entry.Body, ETag: entry.ETag, Negotiated: preferred != EncIdentity}
	}
	enc, err := encode(preferred, entry.Body)
	if err != nil {
		e.logger.Warn("on-the-fly compression failed", "encoding", preferred, "error", err)
		return Response{Status: 200, Body: entry.Body, ETag: entry.ETag, Negotiated: true}
	}
	return Response{Status: 200, Body: enc, ETag: entry.ETag, Encoding: preferred, Negotiated: true}
}

// SetRendered stores bytes in the rendered tier. Any precompressed
// bytes for the key are dropped first: an entry in the compressed tier
// must always derive from exactly the rendered bytes for its key.
func (e *Engine) SetRendered(key string, body []byte) *Entry {
	entry := &Entry{Body: body, ETag: ETagFor(body)}
	e.mu.Lock()
	delete(e.compressed, key)
	e.rendered[key] = entry
	e.mu.Unlock()
	return entry
}

// Compress populates the precompressed tier for a key from the bytes
// currently in the rendered tier.
func (e *Engine) Compress(key string) error {
	e.mu.RLock()
	entry := e.rendered[key]
	e.mu.RUnlock()
	if entry == nil {
		return fmt.Errorf("engine: no rendered entry for %q", key)
	}

	br, err := encodeBrotli(entry.Body)
	if err != nil {
		return err
	}
	gz, err := encodeGzip(entry.Body)
	if err != nil {
		return err
	}

	e.mu.Lock()
	// The rendered entry may have been replaced while encoding ran;
	// only install bytes that still match.
	if e.rendered[key] == entry {
		e.compressed[key] = map[Encoding][]byte{EncBrotli: br, EncGzip: gz}
	}
	e.mu.Unlock()
	return nil
}

// Rendered returns the current rendered-tier entry for a key.
func (e *Engine) Rendered(key string) (*Entry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.rendered[key]
	return entry, ok
}

// Compressed returns the precompressed bytes for (key, enc), if any.
func (e *Engine) Compressed(key string, enc Encoding) ([]byte, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.compressed[key][enc]
	return b, ok
}

// Invalidate drops a key from both page tiers.
func (e *Engine) Invalidate(key string) {
	e.mu.Lock()
	delete(e.rendered, key)
	delete(e.compressed, key)
	e.mu.Unlock()
}

// InvalidatePrefix drops every key with the given prefix from both
// page tiers.
func (e *Engine) InvalidatePrefix(prefix string) {
	e.mu.Lock()
	for key := range e.rendered {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(e.rendered, key)
			delete(e.compressed, key)
		}
	}
	e.mu.Unlock()
}

// SetDynamic caches an aggregate artifact (search index, feeds) in the
// dynamic map, keyed by artifact name.
func (e *Engine) SetDynamic(name string, body []byte) *Entry {
	entry := &Entry{Body: body, ETag: ETagFor(body)}
	e.mu.Lock()
	e.dynamic[name] = entry
	e.mu.Unlock()
	return entry
}

// Dynamic returns a cached aggregate artifact.
func (e *Engine) Dynamic(name string) (*Entry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.dynamic[name]
	return entry, ok
}

// ResolveDynamic answers a request for an aggregate artifact. Misses
// fall through to the supplied render function and populate the
// dynamic map; compression is always on the fly because aggregates
// are re-rendered on every content change anyway.
func (e *Engine) ResolveDynamic(name, acceptEncoding, ifNoneMatch string, render func() ([]byte, error)) Response {
	e.mu.RLock()
	entry := e.dynamic[name]
	e.mu.RUnlock()

	if entry == nil {
		body, err := render()
		if err != nil {
			return Response{Status: 500, Body: []byte("500 - render failed")}
		}
		entry = e.SetDynamic(name, body)
	}

	preferred := NegotiateEncoding(acceptEncoding)
	if ifNoneMatch != "" && ifNoneMatch == entry.ETag {
		return Response{Status: 304, ETag: entry.ETag, Negotiated: preferred != EncIdentity}
	}
	return e.respond(entry, preferred)
}

// InvalidateDynamic drops every aggregate artifact. Aggregates depend
// on the whole content store, so any content change invalidates them
// all.
func (e *Engine) InvalidateDynamic() {
	e.mu.Lock()
	e.dynamic = make(map[string]*Entry)
	e.mu.Unlock()
}

// Assets returns the bounded static asset cache.
func (e *Engine) Assets() *AssetCache { return e.assets }

// Clear empties every tier and returns the number of entries freed.
func (e *Engine) Clear() int {
	e.mu.Lock()
	n := len(e.rendered) + len(e.dynamic)
	for _, m := range e.compressed {
		n += len(m)
	}
	e.rendered = make(map[string]*Entry)
	e.compressed = make(map[string]map[Encoding][]byte)
	e.dynamic = make(map[string]*Entry)
	e.mu.Unlock()
	n += e.assets.Clear()
	return n
}
