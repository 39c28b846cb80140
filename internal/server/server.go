// Package server is the live development server: it serves the cache
// engine's tiers over HTTP, streams reload events, and feeds
// filesystem notifications to the rebuild coordinator.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/vellum-dev/vellum/internal/config"
	"github.com/vellum-dev/vellum/internal/content"
	"github.com/vellum-dev/vellum/internal/coordinator"
	"github.com/vellum-dev/vellum/internal/engine"
	"github.com/vellum-dev/vellum/internal/images"
	"github.com/vellum-dev/vellum/internal/render"
	"github.com/vellum-dev/vellum/internal/theme"
)

const shutdownTimeout = 5 * time.Second

// Authorizer gates the admin routes. The authentication subsystem
// itself lives outside this package; the server only needs the
// predicate.
type Authorizer func(*http.Request) bool

// Server wires the cache engine, renderer and coordinator behind an
// HTTP listener.
type Server struct {
	cfg      *config.Site
	store    *content.Store
	themes   *theme.Registry
	renderer *render.Service
	engine   *engine.Engine
	coord    *coordinator.Coordinator
	pipeline *images.Pipeline
	exporter Exporter
	logger   *slog.Logger

	authorize Authorizer

	clientMu sync.Mutex
	clients  map[chan struct{}]struct{}
}

// Exporter is the slice of the static exporter the admin build route
// needs.
type Exporter interface {
	Build(ctx context.Context) error
}

type Options struct {
	Config    *config.Site
	Store     *content.Store
	Themes    *theme.Registry
	Renderer  *render.Service
	Engine    *engine.Engine
	Coord     *coordinator.Coordinator
	Pipeline  *images.Pipeline
	Exporter  Exporter
	Authorize Authorizer
	Logger    *slog.Logger
}

func New(opts Options) *Server {
	s := &Server{
		cfg:       opts.Config,
		store:     opts.Store,
		themes:    opts.Themes,
		renderer:  opts.Renderer,
		engine:    opts.Engine,
		coord:     opts.Coord,
		pipeline:  opts.Pipeline,
		exporter:  opts.Exporter,
		authorize: opts.Authorize,
		logger:    opts.Logger,
		clients:   make(map[chan struct{}]struct{}),
	}
	if s.authorize == nil {
		s.authorize = func(*http.Request) bool { return false }
	}
	if s.coord != nil {
		s.coord.OnReload = s.broadcastReload
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleSSE)
	mux.HandleFunc("/assets/", s.handleAsset)
	mux.HandleFunc(render.ImagePrefix, s.handleImage)
	for _, name := range render.Artifacts() {
		mux.HandleFunc("/"+name, s.handleArtifact(name))
	}
	mux.HandleFunc("/admin/build", s.handleAdminBuild)
	mux.HandleFunc("/admin/cache/clear", s.handleAdminClear)
	mux.HandleFunc("/", s.handlePage)
	return mux
}

// Run serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http shutdown", "error", err)
		}
	}()

	s.logger.Info("serving", "addr", fmt.Sprintf("http://%s", addr))
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return nil
}
