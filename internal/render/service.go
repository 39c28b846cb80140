// Package render combines content records, templates, navigation and
// site configuration into final HTML and derived artifacts. The same
// functions back both the live server and the static exporter, so a
// live response and its exported file are byte-identical.
package render

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/tdewolff/minify/v2"
	mhtml "github.com/tdewolff/minify/v2/html"

	"github.com/vellum-dev/vellum/internal/config"
	"github.com/vellum-dev/vellum/internal/content"
	"github.com/vellum-dev/vellum/internal/nav"
	"github.com/vellum-dev/vellum/internal/theme"
)

// Service renders pages and artifacts. It is safe for concurrent use;
// the navigation index is swapped atomically by the coordinator.
type Service struct {
	cfg    *config.Site
	store  *content.Store
	themes *theme.Registry
	logger *slog.Logger
	min    *minify.M

	mu  sync.RWMutex
	nav *nav.Index
}

func NewService(cfg *config.Site, store *content.Store, themes *theme.Registry, logger *slog.Logger) *Service {
	m := minify.New()
	m.Add("text/html", &mhtml.Minifier{
		KeepDocumentTags: true,
		KeepEndTags:      true,
		KeepQuotes:       true,
	})
	return &Service{
		cfg:    cfg,
		store:  store,
		themes: themes,
		logger: logger,
		min:    m,
	}
}

// SetNav swaps in a rebuilt navigation index.
func (s *Service) SetNav(idx *nav.Index) {
	s.mu.Lock()
	s.nav = idx
	s.mu.Unlock()
}

// Nav returns the current navigation roots.
func (s *Service) Nav() []*nav.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.nav == nil {
		return nil
	}
	return s.nav.Roots
}

func (s *Service) base(title string) PageData {
	tab := title
	if s.cfg.Title != "" && title != s.cfg.Title {
		tab = title + " | " + s.cfg.Title
	}
	return PageData{
		Title:       title,
		TabTitle:    tab,
		Description: s.cfg.Description,
		BaseURL:     s.cfg.BaseURL,
		AllTags:     s.store.AllTags(),
		Nav:         s.Nav(),
		Config:      s.cfg,
	}
}

func (s *Service) finish(raw []byte, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := s.min.Minify("text/html", &buf, bytes.NewReader(raw)); err != nil {
		// Minification is best-effort; serve the unminified bytes.
		return raw, nil
	}
	return buf.Bytes(), nil
}

// Page renders one content record. Records with pre-rendered HTML are
// returned verbatim with no templating.
func (s *Service) Page(rec *content.Record) ([]byte, error) {
	if rec.RenderedHTML != nil {
		return rec.RenderedHTML, nil
	}
	data := s.base(rec.Title)
	data.Description = rec.Summary
	data.Permalink = rec.URL
	data.Content = rewriteImages(rec)
	data.Meta = rec.Meta
	data.Record = rec
	return s.finish(s.themes.Execute(theme.TmplPage, data))
}

// Index renders one page of the newest-first content listing. Pages
// are 1-based.
func (s *Service) Index(page int) ([]byte, error) {
	all := s.store.All()
	total := s.TotalPages()
	if page < 1 || page > total {
		return nil, fmt.Errorf("render index: page %d out of range 1..%d", page, total)
	}
	lo := (page - 1) * s.cfg.PageSize
	hi := lo + s.cfg.PageSize
	if hi > len(all) {
		hi = len(all)
	}

	data := s.base(s.cfg.Title)
	data.IsIndex = true
	data.Posts = all[lo:hi]
	data.Permalink = s.cfg.BaseURL + indexPath(page)
	data.Paginator = s.paginator(page, total)
	return s.finish(s.themes.Execute(theme.TmplIndex, data))
}

// Tag renders the listing for one tag.
func (s *Service) Tag(tag string) ([]byte, error) {
	posts := s.store.ByTag(tag)
	if len(posts) == 0 {
		return nil, fmt.Errorf("render tag: no posts tagged %q", tag)
	}
	data := s.base("Tagged: " + tag)
	data.Tag = tag
	data.Posts = posts
	data.Permalink = s.tagURL(tag)
	return s.finish(s.themes.Execute(theme.TmplTag, data))
}

// tagURL builds the listing URL for a tag. Tag names come from front
// matter and may hold any character, so the path segment is escaped.
func (s *Service) tagURL(tag string) string {
	return s.cfg.BaseURL + "/tag/" + url.PathEscape(tag) + "/"
}

// NotFound renders the 404 page, degrading to a plain body when the
// theme has no 404 template.
func (s *Service) NotFound() ([]byte, error) {
	if _, ok := s.themes.Lookup(theme.TmplNotFound); !ok {
		return []byte("<!doctype html><title>404</title><h1>404 - Page Not Found</h1>"), nil
	}
	data := s.base("Page Not Found")
	return s.finish(s.themes.Execute(theme.TmplNotFound, data))
}

// TotalPages returns the number of listing pages, at least one.
func (s *Service) TotalPages() int {
	n := s.store.Len()
	pages := (n + s.cfg.PageSize - 1) / s.cfg.PageSize
	if pages < 1 {
		pages = 1
	}
	return pages
}

func indexPath(page int) string {
	if page == 1 {
		return "/"
	}
	return fmt.Sprintf("/page/%d/", page)
}

func (s *Service) paginator(page, total int) Paginator {
	p := Paginator{CurrentPage: page, TotalPages: total}
	if page > 1 {
		p.HasPrev = true
		p.PrevURL = s.cfg.BaseURL + indexPath(page-1)
	}
	if page < total {
		p.HasNext = true
		p.NextURL = s.cfg.BaseURL + indexPath(page+1)
	}
	return p
}

