package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/vellum-dev/vellum/internal/config"
	"github.com/vellum-dev/vellum/internal/content"
	"github.com/vellum-dev/vellum/internal/nav"
	"github.com/vellum-dev/vellum/internal/render"
	"github.com/vellum-dev/vellum/internal/theme"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	exporter *Exporter
	renderer *render.Service
	store    *content.Store
	cfg      *config.Site
	fs       afero.Fs
}

func newFixture(t *testing.T, withIndexTemplate bool) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	cfg := config.Default()
	cfg.Title = "Export Fixture"
	cfg.BaseURL = "https://example.com"

	write := func(path, body string) {
		t.Helper()
		if err := afero.WriteFile(fs, path, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}

	if withIndexTemplate {
		write("theme/templates/index.html",
			`<!doctype html><html><body><h1>{{.Title}}</h1><ul>{{range .Posts}}<li><a href="{{.URL}}">{{.Title}}</a></li>{{end}}</ul></body></html>`)
	}
	write("theme/templates/page.html",
		`<!doctype html><html><body><article>{{.Content}}</article></body></html>`)
	write("theme/templates/tag.html",
		`<!doctype html><html><body><h1>{{.Tag}}</h1>{{range .Posts}}<p>{{.Title}}</p>{{end}}</body></html>`)
	write("theme/assets/style.css", "body{color:#222}")

	write("content/2024-01-01-welcome.md",
		"---\ntitle: Welcome\ntags:\n  - a\n---\n\nThe welcome body.\n")
	write("content/about.md", "# About\n\nAbout body.\n")

	logger := testLogger()
	store := content.NewStore(fs, cfg, logger)
	themes := theme.NewRegistry(fs, cfg, logger)
	renderer := render.NewService(cfg, store, themes, logger)

	if withIndexTemplate {
		if err := themes.Reload(); err != nil {
			t.Fatalf("theme reload: %v", err)
		}
	}
	hash, err := store.Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	renderer.SetNav(nav.Build(store.All(), hash))

	return &fixture{
		exporter: New(cfg, store, themes, renderer, nil, fs, logger),
		renderer: renderer,
		store:    store,
		cfg:      cfg,
		fs:       fs,
	}
}

func (f *fixture) read(t *testing.T, rel string) []byte {
	t.Helper()
	data, err := afero.ReadFile(f.fs, filepath.Join(f.cfg.OutputDir, rel))
	if err != nil {
		t.Fatalf("read exported %s: %v", rel, err)
	}
	return data
}

func TestBuild_FullTree(t *testing.T) {
	f := newFixture(t, true)
	if err := f.exporter.Build(context.Background()); err != nil {
		t.Fatalf("Build: %v", err)
	}

	for _, rel := range []string{
		"index.html",
		"welcome/index.html",
		"about/index.html",
		"page/1/index.html",
		"tag/a/index.html",
		"search.json",
		"rss.xml",
		"sitemap.xml",
		"robots.txt",
		"llms.txt",
		"404.html",
		"assets/style.css",
	} {
		if ok, _ := afero.Exists(f.fs, filepath.Join(f.cfg.OutputDir, rel)); !ok {
			t.Errorf("exported tree missing %s", rel)
		}
	}

	home := string(f.read(t, "index.html"))
	if !strings.Contains(home, "/welcome/") {
		t.Errorf("homepage missing welcome link: %q", home)
	}
}

// An exported page must be byte-identical to what the render service
// hands the live server for the same slug.
func TestBuild_MatchesLiveRender(t *testing.T) {
	f := newFixture(t, true)
	if err := f.exporter.Build(context.Background()); err != nil {
		t.Fatalf("Build: %v", err)
	}

	rec, ok := f.store.Get("welcome")
	if !ok {
		t.Fatal("welcome missing from store")
	}
	live, err := f.renderer.Page(rec)
	if err != nil {
		t.Fatalf("live render: %v", err)
	}
	if exported := f.read(t, "welcome/index.html"); !bytes.Equal(live, exported) {
		t.Error("exported page differs from the live render")
	}

	liveHome, err := f.renderer.Index(1)
	if err != nil {
		t.Fatalf("live index: %v", err)
	}
	if exported := f.read(t, "index.html"); !bytes.Equal(liveHome, exported) {
		t.Error("exported homepage differs from the live render")
	}
}

func TestBuild_MissingIndexTemplateAborts(t *testing.T) {
	f := newFixture(t, false)
	err := f.exporter.Build(context.Background())
	if err == nil {
		t.Fatal("Build succeeded without an index template")
	}
	if !errors.Is(err, theme.ErrMissingIndex) {
		t.Errorf("error = %v, want ErrMissingIndex", err)
	}
	if ok, _ := afero.DirExists(f.fs, f.cfg.OutputDir); ok {
		t.Error("output directory created despite structural failure")
	}
}

func TestBuild_IndexSlugHomepage(t *testing.T) {
	f := newFixture(t, true)
	f.cfg.IndexSlug = "about"
	if err := f.exporter.Build(context.Background()); err != nil {
		t.Fatalf("Build: %v", err)
	}
	home := string(f.read(t, "index.html"))
	if !strings.Contains(home, "About body") {
		t.Errorf("homepage did not use the configured index slug: %q", home)
	}
}

func TestBuild_ReplacesStaleOutput(t *testing.T) {
	f := newFixture(t, true)
	stale := filepath.Join(f.cfg.OutputDir, "stale", "index.html")
	if err := afero.WriteFile(f.fs, stale, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := f.exporter.Build(context.Background()); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if ok, _ := afero.Exists(f.fs, stale); ok {
		t.Error("stale file survived a rebuild")
	}
}

func TestBuild_CancelledContext(t *testing.T) {
	f := newFixture(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.exporter.Build(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
