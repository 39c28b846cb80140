package server

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vellum-dev/vellum/internal/engine"
	"github.com/vellum-dev/vellum/internal/render"
)

// Cache-Control policies by response class.
const (
	ccHTML      = "public, max-age=0, must-revalidate"
	ccDynamic   = "public, max-age=60"
	ccImmutable = "public, max-age=31536000, immutable"
	ccAsset     = "public, max-age=3600"
)

func assetCacheControl(ext string) string {
	switch strings.ToLower(ext) {
	case ".woff", ".woff2", ".ttf", ".otf",
		".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".ico":
		return ccImmutable
	default:
		return ccAsset
	}
}

// writeResponse emits an engine response with the HTTP caching
// contract: content-hash ETag, If-None-Match yielding a bodiless 304,
// Vary when encoding negotiation occurred.
func (s *Server) writeResponse(w http.ResponseWriter, resp engine.Response, contentType, cacheControl string, overrideStatus int) {
	h := w.Header()
	if resp.ETag != "" {
		h.Set("ETag", resp.ETag)
	}
	if cacheControl != "" {
		h.Set("Cache-Control", cacheControl)
	}
	if resp.Negotiated {
		h.Set("Vary", "Accept-Encoding")
	}

	switch resp.Status {
	case 304:
		w.WriteHeader(http.StatusNotModified)
		return
	case 500:
		http.Error(w, string(resp.Body), http.StatusInternalServerError)
		return
	}

	h.Set("Content-Type", contentType)
	if resp.Encoding != engine.EncIdentity {
		h.Set("Content-Encoding", string(resp.Encoding))
	}
	h.Set("Content-Length", strconv.Itoa(len(resp.Body)))

	status := http.StatusOK
	if overrideStatus != 0 {
		status = overrideStatus
	}
	w.WriteHeader(status)
	_, _ = w.Write(resp.Body)
}

// handlePage routes everything that resolves through the page tiers:
// the homepage, listing pages, tag pages and content slugs.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "405 - Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.Trim(r.URL.Path, "/")
	key, notFound := s.routeKey(path)

	status := 0
	if notFound {
		key = engine.KeyNotFound
		status = http.StatusNotFound
	}

	resp := s.engine.Resolve(key, r.Header.Get("Accept-Encoding"), r.Header.Get("If-None-Match"))
	s.writeResponse(w, resp, "text/html; charset=utf-8", ccHTML, status)
}

// routeKey maps a trimmed request path to a cache key. Homepage
// resolution: the configured index slug, then a literal "index" slug,
// then the first listing page.
//
// The top-level names "page", "tag", "assets", "images", "events" and
// "admin", plus the artifact filenames (search.json, rss.xml,
// sitemap.xml, robots.txt, llms.txt), are reserved routes; a content
// slug shadowed by one of them is unreachable. r.URL.Path arrives
// percent-decoded, so escaped tag URLs resolve here unescaped.
func (s *Server) routeKey(path string) (key string, notFound bool) {
	switch {
	case path == "":
		if s.cfg.IndexSlug != "" {
			if _, ok := s.store.Get(s.cfg.IndexSlug); ok {
				return engine.KeyContent(s.cfg.IndexSlug), false
			}
		}
		if _, ok := s.store.Get("index"); ok {
			return engine.KeyContent("index"), false
		}
		return engine.KeyIndex(1), false

	case strings.HasPrefix(path, "page/"):
		n, err := strconv.Atoi(strings.TrimPrefix(path, "page/"))
		if err != nil || n < 1 || n > s.renderer.TotalPages() {
			return "", true
		}
		return engine.KeyIndex(n), false

	case strings.HasPrefix(path, "tag/"):
		tag := strings.TrimPrefix(path, "tag/")
		if len(s.store.ByTag(tag)) == 0 {
			return "", true
		}
		return engine.KeyTag(tag), false
	}

	if _, ok := s.store.Get(path); ok {
		return engine.KeyContent(path), false
	}
	return "", true
}

// handleArtifact serves one aggregate artifact from the dynamic map.
func (s *Server) handleArtifact(name string) http.HandlerFunc {
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		resp := s.engine.ResolveDynamic(name, r.Header.Get("Accept-Encoding"), r.Header.Get("If-None-Match"), func() ([]byte, error) {
			return s.renderer.Artifact(name)
		})
		s.writeResponse(w, resp, contentType, ccDynamic, 0)
	}
}

// handleAsset serves theme assets through the bounded asset cache.
func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(r.URL.Path, "/assets/")
	if rel == "" || strings.Contains(rel, "..") {
		http.Error(w, "403 - Forbidden", http.StatusForbidden)
		return
	}

	entry, ok := s.engine.Assets().Get("theme/" + rel)
	if !ok {
		body, err := s.themes.Asset(rel)
		if err != nil {
			s.notFoundPage(w, r)
			return
		}
		entry = s.engine.Assets().Set("theme/"+rel, body)
	}
	s.serveAssetEntry(w, r, entry, rel)
}

// handleImage serves optimized derivatives from disk through the
// asset cache. Filenames embed a content hash, so responses are
// immutable.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(r.URL.Path, render.ImagePrefix)
	if rel == "" || strings.Contains(rel, "..") {
		http.Error(w, "403 - Forbidden", http.StatusForbidden)
		return
	}

	key := "image/" + rel
	entry, ok := s.engine.Assets().Get(key)
	if !ok {
		body, err := os.ReadFile(filepath.Join(s.pipeline.DerivativeDir(), filepath.FromSlash(rel)))
		if err != nil {
			s.notFoundPage(w, r)
			return
		}
		entry = s.engine.Assets().Set(key, body)
	}

	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == entry.ETag {
		s.writeResponse(w, engine.Response{Status: 304, ETag: entry.ETag}, "", ccImmutable, 0)
		return
	}
	resp := engine.Response{Status: 200, Body: entry.Body, ETag: entry.ETag}
	s.writeResponse(w, resp, "image/webp", ccImmutable, 0)
}

func (s *Server) serveAssetEntry(w http.ResponseWriter, r *http.Request, entry *engine.Entry, rel string) {
	ext := filepath.Ext(rel)
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == entry.ETag {
		s.writeResponse(w, engine.Response{Status: 304, ETag: entry.ETag}, "", assetCacheControl(ext), 0)
		return
	}
	resp := engine.Response{Status: 200, Body: entry.Body, ETag: entry.ETag}
	s.writeResponse(w, resp, contentType, assetCacheControl(ext), 0)
}

// notFoundPage serves the cached 404 route.
func (s *Server) notFoundPage(w http.ResponseWriter, r *http.Request) {
	resp := s.engine.Resolve(engine.KeyNotFound, r.Header.Get("Accept-Encoding"), "")
	s.writeResponse(w, resp, "text/html; charset=utf-8", ccHTML, http.StatusNotFound)
}

// handleAdminBuild triggers a full static export. Requires the
// external authorization predicate.
func (s *Server) handleAdminBuild(w http.ResponseWriter, r *http.Request) {
	if !s.adminOK(w, r) {
		return
	}
	if err := s.exporter.Build(r.Context()); err != nil {
		s.logger.Error("admin build failed", "error", err)
		http.Error(w, fmt.Sprintf("build failed: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"status": "built"})
}

// handleAdminClear clears every cache tier, reports the freed entry
// count, and eagerly repopulates so the next request is still fast.
func (s *Server) handleAdminClear(w http.ResponseWriter, r *http.Request) {
	if !s.adminOK(w, r) {
		return
	}
	freed := s.coord.RebuildAll()
	writeJSON(w, map[string]any{"freed": freed})
}

func (s *Server) adminOK(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "405 - Method Not Allowed", http.StatusMethodNotAllowed)
		return false
	}
	if !s.authorize(r) {
		http.Error(w, "403 - Forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(v)
}
