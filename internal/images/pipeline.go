// Package images derives resized webp copies of referenced source
// images, with on-disk staleness checks and bounded worker
// concurrency.
package images

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/vellum-dev/vellum/internal/config"
	"github.com/vellum-dev/vellum/internal/content"
)

const webpQuality = 80

// Pipeline turns source images into hashed webp derivatives under the
// derivative directory.
type Pipeline struct {
	cfg      *config.Site
	derivDir string
	manifest *Manifest
	logger   *slog.Logger
	workers  int
}

// NewPipeline opens the derivative manifest and prepares the output
// directory.
func NewPipeline(cfg *config.Site, logger *slog.Logger) (*Pipeline, error) {
	derivDir := filepath.Join(cfg.CacheDir, "images")
	if err := os.MkdirAll(derivDir, 0755); err != nil {
		return nil, fmt.Errorf("create derivative dir: %w", err)
	}
	manifest, err := OpenManifest(cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	workers := runtime.NumCPU() * cfg.ImageWorkerFraction / 100
	if workers < 2 {
		workers = 2
	}
	return &Pipeline{
		cfg:      cfg,
		derivDir: derivDir,
		manifest: manifest,
		logger:   logger,
		workers:  workers,
	}, nil
}

// DerivativeDir returns the directory derivatives are written to.
func (p *Pipeline) DerivativeDir() string { return p.derivDir }

func (p *Pipeline) Close() error { return p.manifest.Close() }

// Result summarizes one optimization pass.
type Result struct {
	// Written counts derivative files actually (re)generated.
	Written int
	// Sizes maps resolved source path to the srcset widths available
	// for it, ascending. The natural width closes each list.
	Sizes map[string][]int
	// Natural maps resolved source path to the source's pixel width,
	// whose derivative carries no width suffix.
	Natural map[string]int
}

// targetWidths filters the configured breakpoints to those below the
// natural width. The natural width itself is always generated (as the
// unsuffixed derivative) and closes the srcset.
func (p *Pipeline) targetWidths(natural int) []int {
	var widths []int
	for _, w := range p.cfg.Breakpoints {
		if w < natural {
			widths = append(widths, w)
		}
	}
	widths = append(widths, natural)
	sort.Ints(widths)
	return widths
}

// Optimize generates missing or stale derivatives for every unique
// referenced source. Work runs in batches capped at the worker count;
// each batch is awaited before the next starts, bounding peak memory.
// A failed source is logged and skipped, never fatal.
func (p *Pipeline) Optimize(ctx context.Context, refs []content.ImageReference) (*Result, error) {
	res := &Result{Sizes: make(map[string][]int), Natural: make(map[string]int)}

	type job struct {
		ref     content.ImageReference
		srcPath string
	}
	var jobs []job
	seen := make(map[string]struct{})
	for _, ref := range refs {
		if _, dup := seen[ref.ResolvedPath]; dup {
			continue
		}
		seen[ref.ResolvedPath] = struct{}{}
		jobs = append(jobs, job{
			ref:     ref,
			srcPath: filepath.Join(p.cfg.ContentDir, filepath.FromSlash(ref.ResolvedPath)),
		})
	}

	type outcome struct {
		ref     content.ImageReference
		sizes   []int
		written int
		rec     *manifestRecord
		err     error
	}

	for start := 0; start < len(jobs); start += p.workers {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := start + p.workers
		if end > len(jobs) {
			end = len(jobs)
		}
		batch := jobs[start:end]
		outcomes := make([]outcome, len(batch))

		var wg sync.WaitGroup
		for i, j := range batch {
			wg.Add(1)
			go func(i int, j job) {
				defer wg.Done()
				sizes, written, rec, err := p.optimizeOne(j.ref, j.srcPath)
				outcomes[i] = outcome{ref: j.ref, sizes: sizes, written: written, rec: rec, err: err}
			}(i, j)
		}
		wg.Wait()

		// Manifest writes are serialized after each batch completes.
		for _, o := range outcomes {
			if o.err != nil {
				p.logger.Warn("image optimization failed", "image", o.ref.ResolvedPath, "error", o.err)
				continue
			}
			res.Written += o.written
			res.Sizes[o.ref.ResolvedPath] = o.sizes
			if o.rec != nil {
				res.Natural[o.ref.ResolvedPath] = o.rec.NaturalWidth
				if err := p.manifest.put(o.ref.ResolvedPath, o.rec); err != nil {
					p.logger.Warn("manifest write failed", "image", o.ref.ResolvedPath, "error", err)
				}
			}
		}
	}
	return res, nil
}

// optimizeOne brings every derivative of one source up to date.
func (p *Pipeline) optimizeOne(ref content.ImageReference, srcPath string) (sizes []int, written int, rec *manifestRecord, err error) {
	srcInfo, err := os.Stat(srcPath)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("stat source: %w", err)
	}

	natural, err := p.naturalWidth(ref, srcPath)
	if err != nil {
		return nil, 0, nil, err
	}
	widths := p.targetWidths(natural)

	var stale []int
	for _, w := range widths {
		outW := w
		if w == natural {
			outW = 0 // natural derivative carries no width suffix
		}
		out := filepath.Join(p.derivDir, derivativeName(ref, outW))
		outInfo, err := os.Stat(out)
		if err != nil || srcInfo.ModTime().After(outInfo.ModTime()) {
			stale = append(stale, w)
		}
	}

	if len(stale) > 0 {
		src, err := os.Open(srcPath)
		if err != nil {
			return nil, 0, nil, fmt.Errorf("open source: %w", err)
		}
		img, err := imaging.Decode(src)
		cerr := src.Close()
		if err != nil {
			return nil, 0, nil, fmt.Errorf("decode %s: %w", ref.ResolvedPath, err)
		}
		if cerr != nil {
			return nil, 0, nil, cerr
		}

		for _, w := range stale {
			scaled := img
			if w < natural {
				scaled = imaging.Resize(img, w, 0, imaging.Lanczos)
			}
			outW := w
			if w == natural {
				outW = 0
			}
			out := filepath.Join(p.derivDir, derivativeName(ref, outW))
			if err := writeWebp(out, scaled); err != nil {
				return nil, 0, nil, err
			}
			written++
		}
	}

	rec = &manifestRecord{
		ContentHash:  ref.ContentHash,
		NaturalWidth: natural,
		Sizes:        widths,
		UpdatedAt:    time.Now().Unix(),
	}
	return widths, written, rec, nil
}

// naturalWidth returns the source's pixel width, consulting the
// manifest first so unchanged images skip the probe decode.
func (p *Pipeline) naturalWidth(ref content.ImageReference, srcPath string) (int, error) {
	if rec, err := p.manifest.get(ref.ResolvedPath); err == nil && rec != nil {
		if rec.ContentHash == ref.ContentHash && rec.NaturalWidth > 0 {
			return rec.NaturalWidth, nil
		}
	}
	f, err := os.Open(srcPath)
	if err != nil {
		return 0, fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = f.Close() }()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", ref.ResolvedPath, err)
	}
	return cfg.Width, nil
}

func writeWebp(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create derivative dir: %w", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create derivative: %w", err)
	}
	if err := webp.Encode(out, img, &webp.Options{Lossless: false, Quality: webpQuality}); err != nil {
		_ = out.Close()
		return fmt.Errorf("encode webp %s: %w", path, err)
	}
	return out.Close()
}

// derivativeName must agree with render.DerivativeName: the renderer
// emits these filenames into srcset attributes. Width zero is the
// natural-size derivative.
func derivativeName(ref content.ImageReference, width int) string {
	if width == 0 {
		return ref.OutputBasename + ".webp"
	}
	return fmt.Sprintf("%s-%d.webp", ref.OutputBasename, width)
}
