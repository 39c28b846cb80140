package coordinator

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/vellum-dev/vellum/internal/config"
)

// EventClass is the coordinator's classification of one filesystem
// event.
type EventClass int

const (
	EvIgnore EventClass = iota
	EvContentChange
	EvContentRenameIn
	EvContentRenameOut
	EvThemeChange
	EvConfigChange
	EvImageChange
)

func (c EventClass) String() string {
	switch c {
	case EvContentChange:
		return "content-change"
	case EvContentRenameIn:
		return "content-rename-in"
	case EvContentRenameOut:
		return "content-rename-out"
	case EvThemeChange:
		return "theme-change"
	case EvConfigChange:
		return "config-change"
	case EvImageChange:
		return "image-change"
	}
	return "ignore"
}

func isContentExt(ext string) bool {
	switch strings.ToLower(ext) {
	case ".md", ".markdown", ".txt", ".html", ".htm":
		return true
	}
	return false
}

func isImageExt(ext string) bool {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	}
	return false
}

func underDir(path, dir string) (string, bool) {
	rel, err := filepath.Rel(dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Classify maps a raw fsnotify event to an event class and, for
// content and image events, the path relative to the content root.
// Existence decides rename direction: the watch API's event op alone
// is not trusted, only what stat observes now.
func Classify(cfg *config.Site, configPath string, ev fsnotify.Event) (EventClass, string) {
	if ev.Op&fsnotify.Chmod != 0 {
		return EvIgnore, ""
	}

	path := filepath.Clean(ev.Name)
	if configPath != "" && path == filepath.Clean(configPath) {
		return EvConfigChange, ""
	}
	if _, ok := underDir(path, cfg.ThemeDir); ok {
		return EvThemeChange, ""
	}

	rel, ok := underDir(path, cfg.ContentDir)
	if !ok {
		return EvIgnore, ""
	}
	ext := filepath.Ext(rel)

	if isImageExt(ext) {
		return EvImageChange, rel
	}
	if !isContentExt(ext) {
		return EvIgnore, ""
	}

	info, err := os.Stat(path)
	exists := err == nil && !info.IsDir()

	switch {
	case !exists:
		return EvContentRenameOut, rel
	case ev.Op&(fsnotify.Create|fsnotify.Rename) != 0:
		return EvContentRenameIn, rel
	default:
		return EvContentChange, rel
	}
}
