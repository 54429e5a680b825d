package meta

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDelay coalesces the burst of events an editor produces on save.
const reloadDelay = 200 * time.Millisecond

// Watch reloads the registry from dir whenever a *.cue file changes. It
// blocks until ctx is cancelled. A reload that fails validation is logged
// and the previous schemas stay in place.
func Watch(ctx context.Context, dir string, loader *Loader, reg *Registry, log *zap.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(ev.Name) != ".cue" {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDelay)
			} else {
				timer.Reset(reloadDelay)
			}
			fire = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("schema watcher error", zap.Error(err))
		case <-fire:
			fire = nil
			schemas, err := loader.LoadAll(dir)
			if err != nil {
				log.Error("schema reload failed", zap.String("dir", dir), zap.Error(err))
				continue
			}
			if err := reg.Replace(schemas); err != nil {
				log.Error("schema reload rejected", zap.String("dir", dir), zap.Error(err))
				continue
			}
			log.Info("schemas reloaded", zap.String("dir", dir), zap.Int("count", len(schemas)))
		}
	}
}
