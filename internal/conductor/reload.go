package conductor

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"jdaemon/internal/core"
)

// WatchConfig watches the optional HCL config file for changes and
// reloads Config under a short debounce, grounded on the teacher's
// watchConfig() (internal/daemon/server.go): editors writing atomically
// remove-then-recreate the file, so the watcher re-adds itself after
// Rename/Remove/Create rather than assuming the original inode persists.
// A change only affects workers spawned after the reload; live workers
// keep whatever defaults they started with, per spec.md §5's "no shared
// mutable state between sessions beyond the pool and cache".
func (d *Daemon) WatchConfig(path string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("config watcher unavailable", "err", err)
		return
	}

	if err := watcher.Add(path); err != nil {
		slog.Debug("config file not present, skipping watch", "path", path, "err", err)
		watcher.Close()
		return
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-d.ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Rename|fsnotify.Remove|fsnotify.Create) != 0 {
					go reAddWithBackoff(watcher, path)
				}

				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(200*time.Millisecond, func() {
					d.reloadConfig(path)
				})
				mu.Unlock()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "err", err)
			}
		}
	}()
}

func reAddWithBackoff(watcher *fsnotify.Watcher, path string) {
	delay := 10 * time.Millisecond
	for i := 0; i < 5; i++ {
		time.Sleep(delay)
		if err := watcher.Add(path); err == nil {
			return
		}
		delay *= 2
	}
}

func (d *Daemon) reloadConfig(path string) {
	cfg, err := core.LoadWorkerDefaults(path)
	if err != nil {
		slog.Warn("config reload failed", "path", path, "err", err)
		return
	}
	d.Config = cfg
	slog.Info("config reloaded", "path", path)
}
