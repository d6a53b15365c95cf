package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"

	"github.com/goosecore/agentcore/internal/logging"
)

// Watch watches path for writes and re-loads it on every one, calling
// onReload with the freshly parsed Config. A reload that fails validation
// is logged and skipped; the last good Config keeps running. The returned
// function stops the watcher.
func Watch(path string, onReload func(*Config), log *slog.Logger) (func() error, error) {
	if log == nil {
		log = logging.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					log.Warn("config reload failed, keeping previous config", "path", path, "error", err)
					continue
				}
				onReload(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("config watcher error", "error", err)
			}
		}
	}()

	return watcher.Close, nil
}
