package content

import (
	"encoding/hex"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"math"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"github.com/yuin/goldmark"
	"github.com/zeebo/blake3"

	"github.com/vellum-dev/vellum/internal/config"
)

const wordsPerMinute = 120

// Store is the in-memory content store. After startup it is mutated
// only by the rebuild coordinator; HTTP handlers read through the
// accessor methods.
type Store struct {
	fs     afero.Fs
	root   string
	cfg    *config.Site
	md     goldmark.Markdown
	logger *slog.Logger

	mu       sync.RWMutex
	records  map[string]*Record
	byPath   map[string]string // relPath -> slug
	warnings []string
}

// NewStore creates a store over the given filesystem and content root.
func NewStore(fsys afero.Fs, cfg *config.Site, logger *slog.Logger) *Store {
	return &Store{
		fs:      fsys,
		root:    cfg.ContentDir,
		cfg:     cfg,
		md:      newMarkdown(),
		logger:  logger,
		records: make(map[string]*Record),
		byPath:  make(map[string]string),
	}
}

// contentExt reports whether ext belongs to a content source file.
func contentType(ext string) (Type, bool) {
	switch strings.ToLower(ext) {
	case ".md", ".markdown":
		return TypeMarkdown, true
	case ".txt":
		return TypeText, true
	case ".html", ".htm":
		return TypeRawHTML, true
	}
	return 0, false
}

// isDraftPath reports whether any path segment marks the file a draft:
// a dot prefix or a "drafts" folder.
func isDraftPath(relPath string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(relPath), "/") {
		if seg == "" {
			continue
		}
		if strings.HasPrefix(seg, ".") || seg == "drafts" {
			return true
		}
	}
	return false
}

// Scan walks the content root, loading every non-draft content file.
// It replaces the record set wholesale and returns the navigation
// hash of the resulting slug set.
func (s *Store) Scan() (string, error) {
	records := make(map[string]*Record)
	byPath := make(map[string]string)
	var warnings []string

	err := afero.Walk(s.fs, s.root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if _, ok := contentType(path.Ext(rel)); !ok {
			return nil
		}
		rec, warns, err := s.loadOne(rel)
		warnings = append(warnings, warns...)
		if err != nil {
			s.logger.Warn("skipping unparsable content file", "path", rel, "error", err)
			return nil
		}
		if rec == nil {
			return nil // draft
		}
		if prev, dup := records[rec.Slug]; dup {
			s.logger.Warn("duplicate slug, keeping first", "slug", rec.Slug, "kept", prev.RelPath, "skipped", rel)
			return nil
		}
		records[rec.Slug] = rec
		byPath[rel] = rec.Slug
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scan content root %s: %w", s.root, err)
	}

	s.mu.Lock()
	s.records = records
	s.byPath = byPath
	s.warnings = warnings
	s.mu.Unlock()

	return s.NavigationHash(), nil
}

// LoadOne loads a single file by content-root-relative path. A nil
// record with nil error signals a draft.
func (s *Store) LoadOne(relPath string) (*Record, error) {
	rec, warns, err := s.loadOne(filepath.ToSlash(relPath))
	if len(warns) > 0 {
		s.mu.Lock()
		s.warnings = append(s.warnings, warns...)
		s.mu.Unlock()
	}
	return rec, err
}

func (s *Store) loadOne(relPath string) (*Record, []string, error) {
	if isDraftPath(relPath) {
		return nil, nil, nil
	}
	typ, ok := contentType(path.Ext(relPath))
	if !ok {
		return nil, nil, fmt.Errorf("not a content file: %s", relPath)
	}

	full := filepath.Join(s.root, filepath.FromSlash(relPath))
	source, err := afero.ReadFile(s.fs, full)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", relPath, err)
	}
	info, err := s.fs.Stat(full)
	if err != nil {
		return nil, nil, fmt.Errorf("stat %s: %w", relPath, err)
	}

	slug := Slugify(relPath, s.cfg.URLMode)
	rec := &Record{
		Slug:    slug,
		URL:     s.cfg.PageURL(slug),
		RelPath: relPath,
		Type:    typ,
	}

	var warnings []string
	switch typ {
	case TypeMarkdown:
		conv, err := convertMarkdown(s.md, source)
		if err != nil {
			return nil, nil, err
		}
		if metaBool(conv.meta, "draft") {
			return nil, nil, nil
		}
		rec.Body = htmlFragment(conv.html)
		rec.Meta = conv.meta
		rec.Tags = metaTags(conv.meta)
		rec.Title = resolveTitle(conv.meta, conv.firstH1, relPath)
		rec.Summary = metaString(conv.meta, "description")
		if rec.Summary == "" {
			rec.Summary = excerpt(conv.plainText, 160)
		}
		rec.CreatedAt, rec.UpdatedAt = resolveDates(conv.meta, relPath, info.ModTime())
		rec.WordCount = len(strings.Fields(conv.plainText))
		rec.Images, warnings = s.resolveImages(relPath, conv.imageDests)
	case TypeText:
		text := string(source)
		rec.Body = htmlFragment([]byte("<article class=\"plain\"><pre>" + html.EscapeString(text) + "</pre></article>"))
		rec.Title = resolveTitle(nil, "", relPath)
		rec.Summary = excerpt(text, 160)
		rec.CreatedAt, rec.UpdatedAt = resolveDates(nil, relPath, info.ModTime())
		rec.WordCount = len(strings.Fields(text))
	case TypeRawHTML:
		rec.RenderedHTML = source
		rec.Title = resolveTitle(nil, "", relPath)
		rec.CreatedAt, rec.UpdatedAt = resolveDates(nil, relPath, info.ModTime())
		rec.WordCount = len(strings.Fields(string(source)))
	}
	rec.ReadingTime = int(math.Ceil(float64(rec.WordCount) / wordsPerMinute))
	if rec.ReadingTime < 1 {
		rec.ReadingTime = 1
	}
	return rec, warnings, nil
}

// resolveImages normalizes image destinations to content-root-relative
// forward-slash paths and hashes existing sources. Missing files are
// reported as warnings, never errors.
func (s *Store) resolveImages(relPath string, dests []string) ([]ImageReference, []string) {
	var refs []ImageReference
	var warnings []string
	seen := make(map[string]struct{})
	docDir := path.Dir(relPath)

	for _, dest := range dests {
		if dest == "" || strings.HasPrefix(dest, "http://") ||
			strings.HasPrefix(dest, "https://") || strings.HasPrefix(dest, "data:") {
			continue
		}
		cleaned := filepath.ToSlash(dest)
		var resolved string
		if strings.HasPrefix(cleaned, "/") {
			resolved = path.Clean(strings.TrimPrefix(cleaned, "/"))
		} else {
			resolved = path.Clean(path.Join(docDir, cleaned))
		}
		if strings.HasPrefix(resolved, "..") {
			warnings = append(warnings, fmt.Sprintf("%s: image escapes content root: %s", relPath, dest))
			continue
		}
		if _, dup := seen[resolved]; dup {
			continue
		}
		seen[resolved] = struct{}{}

		data, err := afero.ReadFile(s.fs, filepath.Join(s.root, filepath.FromSlash(resolved)))
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: broken image reference: %s", relPath, dest))
			continue
		}
		sum := blake3.Sum256(data)
		hash := hex.EncodeToString(sum[:])
		base := strings.TrimSuffix(path.Base(resolved), path.Ext(resolved))
		refs = append(refs, ImageReference{
			SourcePath:     dest,
			ResolvedPath:   resolved,
			OutputBasename: base + "-" + hash[:8],
			ContentHash:    hash,
		})
	}
	return refs, warnings
}

// Insert adds or replaces a record, keyed by slug.
func (s *Store) Insert(rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byPath[rec.RelPath]; ok && old != rec.Slug {
		delete(s.records, old)
	}
	s.records[rec.Slug] = rec
	s.byPath[rec.RelPath] = rec.Slug
}

// Remove drops the record for a relative path, returning the slug it
// occupied, if any.
func (s *Store) Remove(relPath string) (string, bool) {
	relPath = filepath.ToSlash(relPath)
	s.mu.Lock()
	defer s.mu.Unlock()
	slug, ok := s.byPath[relPath]
	if !ok {
		return "", false
	}
	delete(s.byPath, relPath)
	delete(s.records, slug)
	return slug, true
}

// Get returns the record for a slug.
func (s *Store) Get(slug string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[slug]
	return rec, ok
}

// All returns every record sorted newest first, ties broken by slug.
func (s *Store) All() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Slug < out[j].Slug
	})
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Tag is one entry of the tag index.
type Tag struct {
	Name  string
	Count int
}

// AllTags returns the tag index in first-seen order over the
// newest-first record ordering.
func (s *Store) AllTags() []Tag {
	counts := make(map[string]int)
	var order []string
	for _, rec := range s.All() {
		for _, t := range rec.Tags {
			if counts[t] == 0 {
				order = append(order, t)
			}
			counts[t]++
		}
	}
	tags := make([]Tag, 0, len(order))
	for _, name := range order {
		tags = append(tags, Tag{Name: name, Count: counts[name]})
	}
	return tags
}

// ByTag returns the records carrying a tag, newest first.
func (s *Store) ByTag(tag string) []*Record {
	var out []*Record
	for _, rec := range s.All() {
		for _, t := range rec.Tags {
			if t == tag {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}

// AllImages returns the union of image references across all records.
func (s *Store) AllImages() []ImageReference {
	seen := make(map[string]struct{})
	var out []ImageReference
	for _, rec := range s.All() {
		for _, ref := range rec.Images {
			if _, dup := seen[ref.ResolvedPath]; dup {
				continue
			}
			seen[ref.ResolvedPath] = struct{}{}
			out = append(out, ref)
		}
	}
	return out
}

// UpdateImageSizes publishes the derivative widths and natural pixel
// widths the image pipeline generated, keyed by resolved source path,
// so subsequent renders can emit srcset attributes. Published records
// are never mutated in place: affected records are cloned and swapped
// under the lock, so a render holding a previously fetched record
// keeps a consistent snapshot.
func (s *Store) UpdateImageSizes(sizes map[string][]int, natural map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for slug, rec := range s.records {
		touched := false
		for _, ref := range rec.Images {
			if _, ok := sizes[ref.ResolvedPath]; ok {
				touched = true
				break
			}
		}
		if !touched {
			continue
		}

		clone := *rec
		clone.Images = make([]ImageReference, len(rec.Images))
		copy(clone.Images, rec.Images)
		for i := range clone.Images {
			if ws, ok := sizes[clone.Images[i].ResolvedPath]; ok {
				clone.Images[i].Sizes = append([]int(nil), ws...)
				clone.Images[i].NaturalWidth = natural[clone.Images[i].ResolvedPath]
			}
		}
		s.records[slug] = &clone
	}
}

// Warnings returns accumulated diagnostics (broken image references).
func (s *Store) Warnings() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.warnings))
	copy(out, s.warnings)
	return out
}

// NavigationHash hashes the sorted slug set. Navigation is rebuilt
// only when this changes.
func (s *Store) NavigationHash() string {
	s.mu.RLock()
	slugs := make([]string, 0, len(s.records))
	for slug := range s.records {
		slugs = append(slugs, slug)
	}
	s.mu.RUnlock()
	sort.Strings(slugs)

	h := blake3.New()
	for _, slug := range slugs {
		_, _ = h.Write([]byte(slug))
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}
