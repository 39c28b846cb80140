// Package theme manages the compiled template set and theme assets
// for the active theme.
package theme

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/vellum-dev/vellum/internal/config"
)

// Template names looked up in <theme>/templates.
const (
	TmplLayout   = "layout.html"
	TmplIndex    = "index.html"
	TmplPage     = "page.html"
	TmplTag      = "tag.html"
	TmplNotFound = "404.html"
)

// templatedAssetExts are asset extensions executed as templates with
// the site config as context before serving.
var templatedAssetExts = map[string]bool{
	".css": true,
	".js":  true,
	".txt": true,
}

// ErrMissingIndex is the structural failure for a theme without an
// index template. Builds must abort on it.
var ErrMissingIndex = fmt.Errorf("theme: missing required template %s", TmplIndex)

// Registry holds the compiled template set and asset listing for the
// active theme. Reload recompiles everything; readers hold the lock
// only for map lookups.
type Registry struct {
	fs     afero.Fs
	cfg    *config.Site
	logger *slog.Logger

	mu        sync.RWMutex
	templates map[string]*template.Template
}

func NewRegistry(fsys afero.Fs, cfg *config.Site, logger *slog.Logger) *Registry {
	return &Registry{
		fs:        fsys,
		cfg:       cfg,
		logger:    logger,
		templates: make(map[string]*template.Template),
	}
}

func (r *Registry) templateDir() string { return filepath.Join(r.cfg.ThemeDir, "templates") }
func (r *Registry) assetDir() string    { return filepath.Join(r.cfg.ThemeDir, "assets") }

func funcMap() template.FuncMap {
	return template.FuncMap{
		"formatDate": func(t time.Time) string { return t.Format("Jan 2, 2006") },
		"isoDate":    func(t time.Time) string { return t.Format("2006-01-02") },
		"safeHTML":   func(s string) template.HTML { return template.HTML(s) },
		"lower":      strings.ToLower,
	}
}

// Reload recompiles the template set. A missing index template is a
// structural error; page and tag templates fall back to index, and a
// missing 404 template degrades to a plain-text not-found body.
func (r *Registry) Reload() error {
	layout, err := r.readTemplate(TmplLayout)
	if err != nil {
		layout = "" // themes may inline everything per page template
	}

	compile := func(name string) (*template.Template, error) {
		src, err := r.readTemplate(name)
		if err != nil {
			return nil, err
		}
		t := template.New(name).Funcs(funcMap())
		if layout != "" {
			if _, err := t.Parse(layout); err != nil {
				return nil, fmt.Errorf("parse %s: %w", TmplLayout, err)
			}
		}
		if _, err := t.New(name).Parse(src); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		return t, nil
	}

	next := make(map[string]*template.Template)

	idx, err := compile(TmplIndex)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMissingIndex, err)
	}
	next[TmplIndex] = idx

	for _, name := range []string{TmplPage, TmplTag} {
		t, err := compile(name)
		if err != nil {
			r.logger.Warn("template missing, falling back to index", "template", name)
			t = idx
		}
		next[name] = t
	}

	if t, err := compile(TmplNotFound); err == nil {
		next[TmplNotFound] = t
	} else {
		r.logger.Warn("no 404 template, using plain fallback")
	}

	r.mu.Lock()
	r.templates = next
	r.mu.Unlock()
	return nil
}

func (r *Registry) readTemplate(name string) (string, error) {
	data, err := afero.ReadFile(r.fs, filepath.Join(r.templateDir(), name))
	if err != nil {
		return "", fmt.Errorf("read template %s: %w", name, err)
	}
	return string(data), nil
}

// Lookup returns a compiled template by name.
func (r *Registry) Lookup(name string) (*template.Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[name]
	return t, ok
}

// Execute runs the named template into w.
func (r *Registry) Execute(name string, data interface{}) ([]byte, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("theme: no template %s", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("execute template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// Assets lists the theme's asset files relative to the asset root.
func (r *Registry) Assets() ([]string, error) {
	var out []string
	dir := r.assetDir()
	err := afero.Walk(r.fs, dir, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk theme assets: %w", err)
	}
	return out, nil
}

// Asset reads one theme asset. Templated extensions are executed with
// the site config as context; everything else is returned verbatim.
func (r *Registry) Asset(rel string) ([]byte, error) {
	data, err := afero.ReadFile(r.fs, filepath.Join(r.assetDir(), filepath.FromSlash(rel)))
	if err != nil {
		return nil, fmt.Errorf("read asset %s: %w", rel, err)
	}
	if !templatedAssetExts[strings.ToLower(filepath.Ext(rel))] {
		return data, nil
	}
	t, err := template.New(rel).Funcs(funcMap()).Parse(string(data))
	if err != nil {
		// Not every css file is a valid template. Serve it raw.
		return data, nil
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, map[string]interface{}{"Config": r.cfg}); err != nil {
		return data, nil
	}
	return buf.Bytes(), nil
}
