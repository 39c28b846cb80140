package engine

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// largeBody is comfortably over the on-the-fly compression floor.
func largeBody(seed string) []byte {
	return []byte(strings.Repeat(seed+" ", 200))
}

func newTestEngine(t *testing.T, render RenderFunc) *Engine {
	t.Helper()
	if render == nil {
		render = func(key string) ([]byte, error) {
			return nil, errors.New("no render function in this test")
		}
	}
	return New(1024*1024, render, testLogger())
}

func TestResolve_TierOrder(t *testing.T) {
	renders := 0
	eng := newTestEngine(t, func(key string) ([]byte, error) {
		renders++
		return largeBody("fresh " + key), nil
	})

	// Tier 3: nothing cached, render runs and populates the rendered tier.
	resp := eng.Resolve("page", "", "")
	if resp.Status != 200 || renders != 1 {
		t.Fatalf("tier-3 resolve: status=%d renders=%d", resp.Status, renders)
	}
	if _, ok := eng.Rendered("page"); !ok {
		t.Fatal("fresh render did not populate the rendered tier")
	}

	// Tier 2: rendered entry present, render must not run again.
	resp = eng.Resolve("page", "", "")
	if resp.Status != 200 || renders != 1 {
		t.Fatalf("tier-2 resolve re-rendered: status=%d renders=%d", resp.Status, renders)
	}
	if resp.Encoding != EncIdentity {
		t.Errorf("identity request got encoding %q", resp.Encoding)
	}

	// Tier 1: after Compress, a brotli client gets precompressed bytes.
	if err := eng.Compress("page"); err != nil {
		t.Fatalf("Compress: %v", err)
	}
	resp = eng.Resolve("page", "br, gzip", "")
	if resp.Status != 200 || resp.Encoding != EncBrotli || !resp.Negotiated {
		t.Fatalf("tier-1 resolve: %+v", resp)
	}
	pre, ok := eng.Compressed("page", EncBrotli)
	if !ok || !bytes.Equal(pre, resp.Body) {
		t.Error("tier-1 body is not the stored precompressed bytes")
	}
	if renders != 1 {
		t.Errorf("renders = %d, want 1", renders)
	}
}

func TestResolve_ETagMatchBothTiers(t *testing.T) {
	eng := newTestEngine(t, nil)
	entry := eng.SetRendered("page", largeBody("body"))

	// Rendered tier.
	resp := eng.Resolve("page", "", entry.ETag)
	if resp.Status != 304 || resp.Body != nil {
		t.Fatalf("rendered-tier conditional: %+v", resp)
	}

	// Precompressed tier: 304 must win over serving compressed bytes.
	if err := eng.Compress("page"); err != nil {
		t.Fatalf("Compress: %v", err)
	}
	resp = eng.Resolve("page", "br", entry.ETag)
	if resp.Status != 304 || resp.Body != nil {
		t.Fatalf("precompressed-tier conditional: %+v", resp)
	}
	if !resp.Negotiated {
		t.Error("encoding was negotiated, Vary flag missing")
	}
}

// Decompressing the precompressed tier must yield exactly the rendered
// bytes for the same key.
func TestCompressedDerivesFromRendered(t *testing.T) {
	eng := newTestEngine(t, nil)
	body := largeBody("<html>stable content</html>")
	eng.SetRendered("page", body)
	if err := eng.Compress("page"); err != nil {
		t.Fatalf("Compress: %v", err)
	}

	br, ok := eng.Compressed("page", EncBrotli)
	if !ok {
		t.Fatal("no brotli bytes")
	}
	decoded, err := io.ReadAll(brotli.NewReader(bytes.NewReader(br)))
	if err != nil {
		t.Fatalf("brotli decode: %v", err)
	}
	if !bytes.Equal(decoded, body) {
		t.Error("brotli bytes do not decode to the rendered body")
	}

	gz, ok := eng.Compressed("page", EncGzip)
	if !ok {
		t.Fatal("no gzip bytes")
	}
	zr, err := gzip.NewReader(bytes.NewReader(gz))
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	decoded, err = io.ReadAll(zr)
	if err != nil {
		t.Fatalf("gzip decode: %v", err)
	}
	if !bytes.Equal(decoded, body) {
		t.Error("gzip bytes do not decode to the rendered body")
	}
}

func TestSetRenderedDropsCompressed(t *testing.T) {
	eng := newTestEngine(t, nil)
	eng.SetRendered("page", largeBody("v1"))
	if err := eng.Compress("page"); err != nil {
		t.Fatalf("Compress: %v", err)
	}

	eng.SetRendered("page", largeBody("v2"))
	if _, ok := eng.Compressed("page", EncBrotli); ok {
		t.Error("stale precompressed bytes survived SetRendered")
	}
	if _, ok := eng.Compressed("page", EncGzip); ok {
		t.Error("stale gzip bytes survived SetRendered")
	}
}

func TestResolve_OnTheFlyNotStored(t *testing.T) {
	eng := newTestEngine(t, nil)
	eng.SetRendered("page", largeBody("body"))

	resp := eng.Resolve("page", "gzip", "")
	if resp.Status != 200 || resp.Encoding != EncGzip {
		t.Fatalf("on-the-fly response: %+v", resp)
	}
	if _, ok := eng.Compressed("page", EncGzip); ok {
		t.Error("on-the-fly compression leaked into the precompressed tier")
	}
}

func TestResolve_SmallBodyStaysIdentity(t *testing.T) {
	eng := newTestEngine(t, nil)
	eng.SetRendered("tiny", []byte("ok"))

	resp := eng.Resolve("tiny", "br", "")
	if resp.Encoding != EncIdentity {
		t.Errorf("tiny body compressed: %+v", resp)
	}
}

func TestResolve_RenderFailure(t *testing.T) {
	eng := newTestEngine(t, func(key string) ([]byte, error) {
		return nil, errors.New("boom")
	})
	resp := eng.Resolve("missing", "", "")
	if resp.Status != 500 {
		t.Errorf("Status = %d, want 500", resp.Status)
	}
	if _, ok := eng.Rendered("missing"); ok {
		t.Error("failed render populated the cache")
	}
}

func TestInvalidatePrefix(t *testing.T) {
	eng := newTestEngine(t, nil)
	eng.SetRendered(KeyIndex(1), largeBody("i1"))
	eng.SetRendered(KeyIndex(2), largeBody("i2"))
	eng.SetRendered(KeyContent("welcome"), largeBody("w"))

	eng.InvalidatePrefix(keyIndexPrefix)
	if _, ok := eng.Rendered(KeyIndex(1)); ok {
		t.Error("index page 1 survived prefix invalidation")
	}
	if _, ok := eng.Rendered(KeyIndex(2)); ok {
		t.Error("index page 2 survived prefix invalidation")
	}
	if _, ok := eng.Rendered(KeyContent("welcome")); !ok {
		t.Error("content key was wrongly invalidated")
	}
}

func TestResolveDynamic(t *testing.T) {
	eng := newTestEngine(t, nil)
	renders := 0
	render := func() ([]byte, error) {
		renders++
		return largeBody("[]"), nil
	}

	resp := eng.ResolveDynamic("search.json", "", "", render)
	if resp.Status != 200 || renders != 1 {
		t.Fatalf("miss: status=%d renders=%d", resp.Status, renders)
	}
	etag := resp.ETag

	// Hit: no re-render, and the conditional path works.
	resp = eng.ResolveDynamic("search.json", "", etag, render)
	if resp.Status != 304 || renders != 1 {
		t.Fatalf("conditional hit: status=%d renders=%d", resp.Status, renders)
	}

	eng.InvalidateDynamic()
	resp = eng.ResolveDynamic("search.json", "", "", render)
	if resp.Status != 200 || renders != 2 {
		t.Fatalf("post-invalidation: status=%d renders=%d", resp.Status, renders)
	}
}

func TestClearCountsEverything(t *testing.T) {
	eng := newTestEngine(t, nil)
	eng.SetRendered("a", largeBody("a"))
	eng.SetRendered("b", largeBody("b"))
	if err := eng.Compress("a"); err != nil {
		t.Fatalf("Compress: %v", err)
	}
	eng.SetDynamic("rss.xml", largeBody("<rss/>"))
	eng.Assets().Set("theme/style.css", []byte("body{}"))

	// 2 rendered + 2 compressed encodings + 1 dynamic + 1 asset.
	if freed := eng.Clear(); freed != 6 {
		t.Errorf("Clear() = %d, want 6", freed)
	}
	if _, ok := eng.Rendered("a"); ok {
		t.Error("rendered tier not empty after Clear")
	}
	if eng.Assets().Len() != 0 {
		t.Error("asset cache not empty after Clear")
	}
}

func TestETagForIsQuoted(t *testing.T) {
	etag := ETagFor([]byte("x"))
	if len(etag) != 34 || etag[0] != '"' || etag[len(etag)-1] != '"' {
		t.Errorf("ETagFor = %q, want quoted 32-hex-digit tag", etag)
	}
	if etag == ETagFor([]byte("y")) {
		t.Error("distinct bodies share an ETag")
	}
}

func TestNegotiateEncoding(t *testing.T) {
	cases := []struct {
		header string
		want   Encoding
	}{
		{"", EncIdentity},
		{"gzip", EncGzip},
		{"br", EncBrotli},
		{"gzip, deflate, br", EncBrotli},
		{"gzip, deflate", EncGzip},
		{"identity", EncIdentity},
	}
	for _, tc := range cases {
		if got := NegotiateEncoding(tc.header); got != tc.want {
			t.Errorf("NegotiateEncoding(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}
