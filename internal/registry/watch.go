// Copyright 2025 James Ross
package registry

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch hot-reloads the registry whenever its services/references/config
// directories change on disk, debounced so a burst of writes (e.g. an
// operator copying several stub files at once) triggers one reload.
// Grounded on the fsnotify + debounce-timer pattern used for
// configuration-directory watching in the example pack.
func (r *Registry) Watch(ctx context.Context) error {
	if !r.cfg.HotReload {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	for _, dir := range []string{r.cfg.ServicesDir, r.cfg.ReferencesDir, r.cfg.ConfigDir} {
		if dir == "" {
			continue
		}
		if err := watcher.Add(dir); err != nil && r.log != nil {
			r.log.Warn("registry: could not watch directory", zap.String("dir", dir), zap.Error(err))
		}
	}

	debounce := r.cfg.ReloadDebounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	go func() {
		defer watcher.Close()
		var timer *time.Timer
		var timerC <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if r.log != nil {
					r.log.Debug("registry: fs event", zap.String("path", event.Name), zap.String("op", event.Op.String()))
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.NewTimer(debounce)
				timerC = timer.C
			case <-timerC:
				timerC = nil
				if err := r.Reload(); err != nil && r.log != nil {
					r.log.Warn("registry: hot reload failed", zap.Error(err))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if r.log != nil {
					r.log.Warn("registry: watcher error", zap.Error(err))
				}
			}
		}
	}()
	return nil
}
