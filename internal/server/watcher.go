package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch subscribes the coordinator to filesystem events under the
// given roots, adding directories recursively and picking up new
// subdirectories as they appear. The config file's directory is
// watched non-recursively. Blocks until the context is cancelled.
func (s *Server) Watch(ctx context.Context, configPath string, roots ...string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if configPath != "" {
		if err := watcher.Add(filepath.Dir(configPath)); err != nil {
			s.logger.Warn("cannot watch config directory", "path", configPath, "error", err)
		}
	}

	for _, root := range roots {
		if _, err := os.Stat(root); os.IsNotExist(err) {
			continue
		}
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				if filepath.Base(path)[0] == '.' && path != "." {
					return filepath.SkipDir
				}
				return watcher.Add(path)
			}
			return nil
		})
		if err != nil {
			s.logger.Warn("watch setup incomplete", "root", root, "error", err)
		}
	}

	s.logger.Info("watching for changes", "roots", roots)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Chmod != 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
					continue
				}
			}
			s.coord.HandleEvent(event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watcher error", "error", err)
		}
	}
}
