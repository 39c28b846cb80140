// Package coordinator reacts to filesystem change notifications and
// keeps the content store, navigation index and cache tiers
// consistent. It is the sole writer of the rendered and precompressed
// tiers after startup; HTTP handlers only read.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/vellum-dev/vellum/internal/config"
	"github.com/vellum-dev/vellum/internal/content"
	"github.com/vellum-dev/vellum/internal/engine"
	"github.com/vellum-dev/vellum/internal/images"
	"github.com/vellum-dev/vellum/internal/nav"
	"github.com/vellum-dev/vellum/internal/render"
)

// Coordinator classifies filesystem events and runs the minimal
// invalidation plus eager re-population for each.
type Coordinator struct {
	cfg        *config.Site
	configPath string
	store      *content.Store
	themes     themeReloader
	renderer   *render.Service
	engine     *engine.Engine
	pipeline   *images.Pipeline
	logger     *slog.Logger

	// OnReload, when set, is called after every completed pass (for
	// live-reload broadcasting).
	OnReload func()

	imageDebounce *Debouncer
	optimizing    atomic.Bool

	// mu serializes coordinator passes: at most one writer mutates
	// the store and cache tiers at a time.
	mu      sync.Mutex
	navHash string
}

// themeReloader is the slice of the theme registry the coordinator
// needs.
type themeReloader interface {
	Reload() error
}

func New(cfg *config.Site, configPath string, store *content.Store, themes themeReloader,
	renderer *render.Service, eng *engine.Engine, pipeline *images.Pipeline,
	clock Clock, logger *slog.Logger) *Coordinator {

	c := &Coordinator{
		cfg:        cfg,
		configPath: configPath,
		store:      store,
		themes:     themes,
		renderer:   renderer,
		engine:     eng,
		pipeline:   pipeline,
		logger:     logger,
	}
	c.imageDebounce = NewDebouncer(clock, cfg.Debounce, c.optimizeImages)
	return c
}

// RenderKey builds the engine's tier-3 fallback over a render service.
func RenderKey(svc *render.Service, store *content.Store) engine.RenderFunc {
	return func(key string) ([]byte, error) {
		kind, arg := engine.ParseKey(key)
		switch kind {
		case engine.KindNotFound:
			return svc.NotFound()
		case engine.KindIndex:
			n, err := strconv.Atoi(arg)
			if err != nil {
				return nil, fmt.Errorf("bad index key %q: %w", key, err)
			}
			return svc.Index(n)
		case engine.KindTag:
			return svc.Tag(arg)
		}
		rec, ok := store.Get(arg)
		if !ok {
			return nil, fmt.Errorf("no content for slug %q", arg)
		}
		return svc.Page(rec)
	}
}

// Bootstrap performs the startup scan: load all content, build
// navigation, compile templates, optimize images, then eagerly render
// and compress every route so the first request hits tier 1.
func (c *Coordinator) Bootstrap(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.themes.Reload(); err != nil {
		return err
	}
	hash, err := c.store.Scan()
	if err != nil {
		return err
	}
	c.navHash = hash
	c.renderer.SetNav(nav.Build(c.store.All(), hash))

	if c.pipeline != nil {
		res, err := c.pipeline.Optimize(ctx, c.store.AllImages())
		if err != nil {
			return err
		}
		c.store.UpdateImageSizes(res.Sizes, res.Natural)
		if _, err := c.pipeline.Sweep(c.store.AllImages()); err != nil {
			c.logger.Warn("orphan sweep failed", "error", err)
		}
	}

	for _, w := range c.store.Warnings() {
		c.logger.Warn("content diagnostic", "warning", w)
	}

	c.repopulateAllLocked()
	return nil
}

// HandleEvent classifies and dispatches one filesystem event. Called
// from the watch loop; never panics the loop, never blocks requests.
func (c *Coordinator) HandleEvent(ev fsnotify.Event) {
	class, rel := Classify(c.cfg, c.configPath, ev)
	if class == EvIgnore {
		return
	}
	c.logger.Debug("filesystem event", "class", class.String(), "path", rel)

	switch class {
	case EvContentChange:
		c.contentChange(rel)
	case EvContentRenameIn:
		c.contentRenameIn(rel)
	case EvContentRenameOut:
		c.contentRenameOut(rel)
	case EvThemeChange, EvConfigChange:
		c.themeOrConfigChange()
	case EvImageChange:
		c.imageDebounce.Trigger()
	}

	if class != EvImageChange && c.OnReload != nil {
		c.OnReload()
	}
}

// contentChange reloads a single file in place and re-populates only
// its cache entries plus the aggregate artifacts.
func (c *Coordinator) contentChange(rel string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.store.LoadOne(rel)
	if err != nil {
		c.logger.Warn("reload failed, skipping", "path", rel, "error", err)
		return
	}
	if rec == nil {
		// The file became a draft: treat as a removal.
		if slug, ok := c.store.Remove(rel); ok {
			c.engine.Invalidate(engine.KeyContent(slug))
			c.refreshNavLocked()
			c.repopulateSharedLocked()
		}
		return
	}

	c.store.Insert(rec)
	key := engine.KeyContent(rec.Slug)
	c.engine.Invalidate(key)
	c.populateKeyLocked(key)

	c.refreshNavLocked()
	c.repopulateSharedLocked()

	if len(rec.Images) > 0 {
		c.imageDebounce.Trigger()
	}
}

// contentRenameIn handles a file appearing at a path: full store
// delta, then one site-wide re-render to restore the tier-1 steady
// state.
func (c *Coordinator) contentRenameIn(rel string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.store.LoadOne(rel)
	if err != nil {
		c.logger.Warn("load failed, skipping", "path", rel, "error", err)
		return
	}
	if rec == nil {
		return // draft
	}
	c.store.Insert(rec)
	c.refreshNavLocked()
	c.repopulateAllLocked()

	if len(rec.Images) > 0 {
		c.imageDebounce.Trigger()
	}
}

// contentRenameOut handles a file disappearing from a path: the slug
// leaves the store, both cache tiers and the tag index in one pass.
func (c *Coordinator) contentRenameOut(rel string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slug, ok := c.store.Remove(rel)
	if !ok {
		return
	}
	c.engine.Invalidate(engine.KeyContent(slug))
	c.refreshNavLocked()
	c.repopulateAllLocked()
}

// themeOrConfigChange invalidates everything: templates affect every
// page.
func (c *Coordinator) themeOrConfigChange() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.themes.Reload(); err != nil {
		c.logger.Error("template reload failed, keeping previous set", "error", err)
		return
	}
	c.engine.Clear()
	c.repopulateAllLocked()
}

// RebuildAll clears every tier and re-populates them. Used by the
// admin cache-clear endpoint so the next request is still fast.
func (c *Coordinator) RebuildAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	freed := c.engine.Clear()
	c.repopulateAllLocked()
	return freed
}

// refreshNavLocked rebuilds the navigation index only when the slug
// set hash changed.
func (c *Coordinator) refreshNavLocked() {
	hash := c.store.NavigationHash()
	if hash == c.navHash {
		return
	}
	c.navHash = hash
	c.renderer.SetNav(nav.Build(c.store.All(), hash))
}

// populateKeyLocked renders one key into the rendered tier and
// precompresses it. A render failure is logged and the key left
// absent; the next request falls through to tier 3.
func (c *Coordinator) populateKeyLocked(key string) {
	renderFn := RenderKey(c.renderer, c.store)
	body, err := renderFn(key)
	if err != nil {
		c.logger.Warn("render failed, skipping", "key", key, "error", err)
		return
	}
	c.engine.SetRendered(key, body)
	if err := c.engine.Compress(key); err != nil {
		c.logger.Warn("precompression failed", "key", key, "error", err)
	}
}

// repopulateSharedLocked refreshes the artifacts that aggregate over
// all content: listing pages, the 404 page and the dynamic artifacts.
// These are invalidated pessimistically on any content change.
func (c *Coordinator) repopulateSharedLocked() {
	// Listing pages beyond the current count are dropped, the rest
	// re-rendered.
	c.engine.InvalidatePrefix("__index_")
	for n := 1; n <= c.renderer.TotalPages(); n++ {
		c.populateKeyLocked(engine.KeyIndex(n))
	}
	c.engine.InvalidatePrefix("__tag_")
	for _, tag := range c.store.AllTags() {
		c.populateKeyLocked(engine.KeyTag(tag.Name))
	}
	c.populateKeyLocked(engine.KeyNotFound)

	c.engine.InvalidateDynamic()
	for _, name := range render.Artifacts() {
		body, err := c.renderer.Artifact(name)
		if err != nil {
			c.logger.Warn("artifact render failed, skipping", "artifact", name, "error", err)
			continue
		}
		c.engine.SetDynamic(name, body)
	}
}

// repopulateAllLocked renders every route once: content pages, then
// the shared artifacts.
func (c *Coordinator) repopulateAllLocked() {
	for _, rec := range c.store.All() {
		c.populateKeyLocked(engine.KeyContent(rec.Slug))
	}
	c.repopulateSharedLocked()
}

// optimizeImages is the debounced image pass. The in-flight guard
// drops overlapping triggers instead of queueing them: the next
// filesystem event re-arms the debouncer naturally.
func (c *Coordinator) optimizeImages() {
	if c.pipeline == nil {
		return
	}
	if !c.optimizing.CompareAndSwap(false, true) {
		c.logger.Debug("image optimization already in flight, dropping trigger")
		return
	}
	defer c.optimizing.Store(false)

	refs := c.store.AllImages()
	res, err := c.pipeline.Optimize(context.Background(), refs)
	if err != nil {
		c.logger.Warn("image optimization pass failed", "error", err)
		return
	}
	c.store.UpdateImageSizes(res.Sizes, res.Natural)
	if _, err := c.pipeline.Sweep(c.store.AllImages()); err != nil {
		c.logger.Warn("orphan sweep failed", "error", err)
	}

	if res.Written > 0 {
		// Derivative sets changed; srcset attributes may differ.
		c.mu.Lock()
		c.repopulateAllLocked()
		c.mu.Unlock()
		if c.OnReload != nil {
			c.OnReload()
		}
	}
	c.logger.Info("image optimization pass complete", "sources", len(refs), "written", res.Written)
}

// FlushImages runs any pending image pass immediately. Used by tests
// and the one-shot build path.
func (c *Coordinator) FlushImages() {
	c.imageDebounce.Stop()
	c.optimizeImages()
}
