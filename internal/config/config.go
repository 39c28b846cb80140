// Package config loads and validates the site configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// URLMode controls how slugs are derived from file paths.
type URLMode string

const (
	// URLModePlain strips a leading YYYY-MM-DD- date prefix from filenames.
	URLModePlain URLMode = "plain"
	// URLModeDate keeps the date prefix in the slug.
	URLModeDate URLMode = "date"
)

// Site is the top-level configuration loaded from vellum.yaml.
type Site struct {
	Title       string  `yaml:"title"`
	Description string  `yaml:"description"`
	Author      string  `yaml:"author"`
	BaseURL     string  `yaml:"baseURL"`
	ContentDir  string  `yaml:"contentDir"`
	ThemeDir    string  `yaml:"themeDir"`
	OutputDir   string  `yaml:"outputDir"`
	CacheDir    string  `yaml:"cacheDir"`
	IndexSlug   string  `yaml:"indexSlug"`
	URLMode     URLMode `yaml:"urlMode"`
	PageSize    int     `yaml:"pageSize"`

	// RobotsExtra is appended verbatim to the generated robots.txt.
	RobotsExtra string `yaml:"robotsExtra"`

	// AssetCacheBudget bounds the in-memory static asset cache, in bytes.
	AssetCacheBudget int64 `yaml:"assetCacheBudget"`

	// Breakpoints are the candidate derivative widths for images.
	Breakpoints []int `yaml:"breakpoints"`

	// Debounce is the quiet window before coalesced image optimization runs.
	Debounce time.Duration `yaml:"debounce"`

	// ImageWorkerFraction scales worker count against available CPUs,
	// expressed as a percentage. Minimum of two workers always applies.
	ImageWorkerFraction int `yaml:"imageWorkerFraction"`
}

// Default returns a configuration with all tunables set to sane values.
func Default() *Site {
	return &Site{
		Title:               "Vellum Site",
		BaseURL:             "",
		ContentDir:          "content",
		ThemeDir:            "theme",
		OutputDir:           "public",
		CacheDir:            ".vellum-cache",
		URLMode:             URLModePlain,
		PageSize:            10,
		AssetCacheBudget:    32 * 1024 * 1024,
		Breakpoints:         []int{320, 640, 960, 1280, 1920},
		Debounce:            500 * time.Millisecond,
		ImageWorkerFraction: 75,
	}
}

// Load reads the YAML config at path, applying defaults for anything
// unset. A missing file is not an error: defaults are returned.
func Load(path string) (*Site, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.validate()
	return cfg, nil
}

// validate clamps values to usable bounds.
func (c *Site) validate() {
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if c.URLMode != URLModePlain && c.URLMode != URLModeDate {
		c.URLMode = URLModePlain
	}
	if c.PageSize < 1 {
		c.PageSize = 10
	}
	if c.PageSize > 100 {
		c.PageSize = 100
	}
	if c.AssetCacheBudget < 1024*1024 {
		c.AssetCacheBudget = 1024 * 1024
	}
	if c.Debounce < 50*time.Millisecond {
		c.Debounce = 50 * time.Millisecond
	}
	if c.Debounce > 5*time.Second {
		c.Debounce = 5 * time.Second
	}
	if c.ImageWorkerFraction < 1 || c.ImageWorkerFraction > 100 {
		c.ImageWorkerFraction = 75
	}
	if len(c.Breakpoints) == 0 {
		c.Breakpoints = []int{320, 640, 960, 1280, 1920}
	}
	if c.ContentDir == "" {
		c.ContentDir = "content"
	}
	if c.ThemeDir == "" {
		c.ThemeDir = "theme"
	}
	if c.OutputDir == "" {
		c.OutputDir = "public"
	}
	if c.CacheDir == "" {
		c.CacheDir = ".vellum-cache"
	}
}

// PageURL returns the absolute URL for a content slug.
func (c *Site) PageURL(slug string) string {
	return c.BaseURL + "/" + slug + "/"
}
