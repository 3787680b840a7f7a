package msgcat

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/park285/cheese-matchd/internal/obslog"
	"go.uber.org/zap"
)

// Watch reloads the catalog whenever a YAML file in dir changes, until ctx
// ends. A broken edit is logged and the previous messages stay in effect.
func (c *Catalog) Watch(ctx context.Context, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				switch strings.ToLower(filepath.Ext(ev.Name)) {
				case ".yaml", ".yml":
				default:
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				c.reload(dir)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				obslog.L().Warn("msgcat_watch_error", zap.Error(err))
			}
		}
	}()
	return nil
}

func (c *Catalog) reload(dir string) {
	fresh, err := New(dir)
	if err != nil {
		obslog.L().Warn("msgcat_reload_error", zap.String("dir", dir), zap.Error(err))
		return
	}
	c.mu.Lock()
	c.data = fresh.data
	c.mu.Unlock()
	obslog.L().Info("msgcat_reloaded", zap.String("dir", dir), zap.Int("keys", len(fresh.data)))
}
