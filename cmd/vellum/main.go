package main

import (
	"context"
	"crypto/subtle"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/afero"

	"github.com/vellum-dev/vellum/internal/config"
	"github.com/vellum-dev/vellum/internal/content"
	"github.com/vellum-dev/vellum/internal/coordinator"
	"github.com/vellum-dev/vellum/internal/engine"
	"github.com/vellum-dev/vellum/internal/export"
	"github.com/vellum-dev/vellum/internal/images"
	"github.com/vellum-dev/vellum/internal/render"
	"github.com/vellum-dev/vellum/internal/server"
	"github.com/vellum-dev/vellum/internal/theme"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "serve":
		runServe(args)
	case "build":
		runBuild(args)
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: vellum <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  serve          Start the live development server")
	fmt.Println("  build          Export the site as static files")
	fmt.Println("  help           Show this help message")
}

// site holds everything the two commands share.
type site struct {
	cfg      *config.Site
	cfgPath  string
	store    *content.Store
	themes   *theme.Registry
	renderer *render.Service
	engine   *engine.Engine
	pipeline *images.Pipeline
	coord    *coordinator.Coordinator
	exporter *export.Exporter
	logger   *slog.Logger
}

func bootstrap(ctx context.Context, cfgPath string) (*site, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.ContentDir); err != nil {
		return nil, fmt.Errorf("content root %s unreadable: %w", cfg.ContentDir, err)
	}

	osFs := afero.NewOsFs()
	store := content.NewStore(osFs, cfg, logger)
	themes := theme.NewRegistry(osFs, cfg, logger)
	renderer := render.NewService(cfg, store, themes, logger)
	eng := engine.New(cfg.AssetCacheBudget, coordinator.RenderKey(renderer, store), logger)

	pipeline, err := images.NewPipeline(cfg, logger)
	if err != nil {
		return nil, err
	}

	coord := coordinator.New(cfg, cfgPath, store, themes, renderer, eng, pipeline,
		coordinator.NewRealClock(), logger)
	if err := coord.Bootstrap(ctx); err != nil {
		return nil, err
	}

	return &site{
		cfg:      cfg,
		cfgPath:  cfgPath,
		store:    store,
		themes:   themes,
		renderer: renderer,
		engine:   eng,
		pipeline: pipeline,
		coord:    coord,
		exporter: export.New(cfg, store, themes, renderer, pipeline, osFs, logger),
		logger:   logger,
	}, nil
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	host := fs.String("host", "localhost", "The host/IP to bind to")
	port := fs.String("port", "8421", "The port to listen on")
	cfgPath := fs.String("config", "vellum.yaml", "Path to the site config")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := bootstrap(ctx, *cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = st.pipeline.Close() }()

	srv := server.New(server.Options{
		Config:    st.cfg,
		Store:     st.store,
		Themes:    st.themes,
		Renderer:  st.renderer,
		Engine:    st.engine,
		Coord:     st.coord,
		Pipeline:  st.pipeline,
		Exporter:  st.exporter,
		Authorize: tokenAuthorizer(os.Getenv("VELLUM_ADMIN_TOKEN")),
		Logger:    st.logger,
	})

	go func() {
		if err := srv.Watch(ctx, st.cfgPath, st.cfg.ContentDir, st.cfg.ThemeDir); err != nil {
			st.logger.Error("watcher stopped", "error", err)
		}
	}()

	addr := fmt.Sprintf("%s:%s", *host, *port)
	if err := srv.Run(ctx, addr); err != nil {
		fmt.Fprintf(os.Stderr, "server failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Server stopped.")
}

func runBuild(args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	cfgPath := fs.String("config", "vellum.yaml", "Path to the site config")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := bootstrap(ctx, *cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = st.pipeline.Close() }()

	// Make sure no image pass is pending before the tree is written.
	st.coord.FlushImages()

	if err := st.exporter.Build(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Site built into %s\n", st.cfg.OutputDir)
}

// tokenAuthorizer implements the external authorization seam with a
// bearer token. An empty token denies everything.
func tokenAuthorizer(token string) server.Authorizer {
	return func(r *http.Request) bool {
		if token == "" {
			return false
		}
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
	}
}
