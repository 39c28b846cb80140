package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ContentDir != "content" || cfg.PageSize != 10 || cfg.URLMode != URLModePlain {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestLoad_ParsesAndValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vellum.yaml")
	src := `
title: My Site
baseURL: https://example.com/
pageSize: 500
debounce: 10ms
urlMode: bogus
imageWorkerFraction: 0
assetCacheBudget: 12
`
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Title != "My Site" {
		t.Errorf("Title = %q", cfg.Title)
	}
	if cfg.BaseURL != "https://example.com" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", cfg.BaseURL)
	}
	if cfg.PageSize != 100 {
		t.Errorf("PageSize = %d, want clamped to 100", cfg.PageSize)
	}
	if cfg.Debounce != 50*time.Millisecond {
		t.Errorf("Debounce = %v, want clamped to the 50ms floor", cfg.Debounce)
	}
	if cfg.URLMode != URLModePlain {
		t.Errorf("URLMode = %q, want fallback to plain", cfg.URLMode)
	}
	if cfg.ImageWorkerFraction != 75 {
		t.Errorf("ImageWorkerFraction = %d, want fallback 75", cfg.ImageWorkerFraction)
	}
	if cfg.AssetCacheBudget != 1024*1024 {
		t.Errorf("AssetCacheBudget = %d, want the 1MiB floor", cfg.AssetCacheBudget)
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vellum.yaml")
	if err := os.WriteFile(path, []byte("title: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load accepted malformed YAML")
	}
}

func TestPageURL(t *testing.T) {
	cfg := Default()
	cfg.BaseURL = "https://example.com"
	if got := cfg.PageURL("guides/setup"); got != "https://example.com/guides/setup/" {
		t.Errorf("PageURL = %q", got)
	}
}
