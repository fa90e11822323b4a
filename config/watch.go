package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the file at path whenever it is written and passes the new
// config to onChange. It blocks until ctx is done. A reload that fails to
// parse or validate is logged and skipped.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	// watch the directory: atomic saves replace the file inode
	target := filepath.Clean(path)
	if err = watcher.Add(filepath.Dir(target)); err != nil {
		return err
	}

	logger.Info("config watcher is running", "path", target)
	defer logger.Info("config watcher is stopped", "path", target)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := LoadConfig(target)
			if err != nil {
				logger.Error("config reload failed, keeping previous config", "path", target, "err", err)
				continue
			}
			logger.Info("config reloaded", "path", target)
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("config watcher error", "err", err)
		}
	}
}
