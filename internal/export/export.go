// Package export materializes the whole site as a static file tree.
// It reuses the live server's render service, so an exported file and
// the corresponding live response are byte-identical.
package export

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/vellum-dev/vellum/internal/config"
	"github.com/vellum-dev/vellum/internal/content"
	"github.com/vellum-dev/vellum/internal/images"
	"github.com/vellum-dev/vellum/internal/render"
	"github.com/vellum-dev/vellum/internal/theme"
)

// Exporter writes every route into the output directory.
type Exporter struct {
	cfg      *config.Site
	store    *content.Store
	themes   *theme.Registry
	renderer *render.Service
	pipeline *images.Pipeline
	destFs   afero.Fs
	logger   *slog.Logger
}

func New(cfg *config.Site, store *content.Store, themes *theme.Registry,
	renderer *render.Service, pipeline *images.Pipeline, destFs afero.Fs, logger *slog.Logger) *Exporter {
	return &Exporter{
		cfg:      cfg,
		store:    store,
		themes:   themes,
		renderer: renderer,
		pipeline: pipeline,
		destFs:   destFs,
		logger:   logger,
	}
}

// Build exports the site into a clean output directory. A missing
// index template aborts the build; optional artifacts degrade to
// warnings.
func (e *Exporter) Build(ctx context.Context) error {
	if _, ok := e.themes.Lookup(theme.TmplIndex); !ok {
		return theme.ErrMissingIndex
	}

	out := e.cfg.OutputDir
	if err := e.destFs.RemoveAll(out); err != nil {
		return fmt.Errorf("clean output dir: %w", err)
	}
	if err := e.destFs.MkdirAll(out, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	if err := e.writePages(ctx); err != nil {
		return err
	}
	if err := e.writeListings(ctx); err != nil {
		return err
	}
	e.writeArtifacts()
	e.writeNotFound()
	e.writeAssets()
	e.writeImages()

	for _, w := range e.store.Warnings() {
		e.logger.Warn("build diagnostic", "warning", w)
	}
	e.logger.Info("static build complete", "pages", e.store.Len(), "output", out)
	return nil
}

func (e *Exporter) writeFile(rel string, body []byte) error {
	dest := filepath.Join(e.cfg.OutputDir, filepath.FromSlash(rel))
	if err := e.destFs.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("create dir for %s: %w", rel, err)
	}
	if err := afero.WriteFile(e.destFs, dest, body, 0644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

// writePages exports every content record. A failing page is logged
// and skipped; it never aborts the rest of the build.
func (e *Exporter) writePages(ctx context.Context) error {
	for _, rec := range e.store.All() {
		if err := ctx.Err(); err != nil {
			return err
		}
		body, err := e.renderer.Page(rec)
		if err != nil {
			e.logger.Warn("page render failed, skipping", "slug", rec.Slug, "error", err)
			continue
		}
		if err := e.writeFile(rec.Slug+"/index.html", body); err != nil {
			e.logger.Warn("page write failed, skipping", "slug", rec.Slug, "error", err)
		}
	}
	return nil
}

// writeListings exports the homepage, paginated listing and tag pages.
func (e *Exporter) writeListings(ctx context.Context) error {
	home, err := e.homepage()
	if err != nil {
		return fmt.Errorf("render homepage: %w", err)
	}
	if err := e.writeFile("index.html", home); err != nil {
		return err
	}

	for n := 1; n <= e.renderer.TotalPages(); n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		body, err := e.renderer.Index(n)
		if err != nil {
			e.logger.Warn("listing render failed, skipping", "page", n, "error", err)
			continue
		}
		if err := e.writeFile(fmt.Sprintf("page/%d/index.html", n), body); err != nil {
			return err
		}
	}

	for _, tag := range e.store.AllTags() {
		body, err := e.renderer.Tag(tag.Name)
		if err != nil {
			e.logger.Warn("tag render failed, skipping", "tag", tag.Name, "error", err)
			continue
		}
		if err := e.writeFile("tag/"+tag.Name+"/index.html", body); err != nil {
			return err
		}
	}
	return nil
}

// homepage follows the same resolution order as the live server.
func (e *Exporter) homepage() ([]byte, error) {
	if e.cfg.IndexSlug != "" {
		if rec, ok := e.store.Get(e.cfg.IndexSlug); ok {
			return e.renderer.Page(rec)
		}
	}
	if rec, ok := e.store.Get("index"); ok {
		return e.renderer.Page(rec)
	}
	return e.renderer.Index(1)
}

// writeArtifacts exports the aggregate artifacts. These are optional:
// failures warn and the build continues.
func (e *Exporter) writeArtifacts() {
	for _, name := range render.Artifacts() {
		body, err := e.renderer.Artifact(name)
		if err != nil {
			e.logger.Warn("artifact render failed, skipping", "artifact", name, "error", err)
			continue
		}
		if err := e.writeFile(name, body); err != nil {
			e.logger.Warn("artifact write failed, skipping", "artifact", name, "error", err)
		}
	}
}

func (e *Exporter) writeNotFound() {
	body, err := e.renderer.NotFound()
	if err != nil {
		e.logger.Warn("404 render failed, skipping", "error", err)
		return
	}
	if err := e.writeFile("404.html", body); err != nil {
		e.logger.Warn("404 write failed, skipping", "error", err)
	}
}

func (e *Exporter) writeAssets() {
	assets, err := e.themes.Assets()
	if err != nil {
		e.logger.Warn("theme asset listing failed, skipping", "error", err)
		return
	}
	for _, rel := range assets {
		body, err := e.themes.Asset(rel)
		if err != nil {
			e.logger.Warn("asset read failed, skipping", "asset", rel, "error", err)
			continue
		}
		if err := e.writeFile("assets/"+rel, body); err != nil {
			e.logger.Warn("asset write failed, skipping", "asset", rel, "error", err)
		}
	}
}

// writeImages copies the optimized derivatives into the export tree.
func (e *Exporter) writeImages() {
	if e.pipeline == nil {
		return
	}
	root := e.pipeline.DerivativeDir()
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		body, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return e.writeFile("images/"+filepath.ToSlash(rel), body)
	})
	if err != nil && !os.IsNotExist(err) {
		e.logger.Warn("image export incomplete", "error", err)
	}
}
