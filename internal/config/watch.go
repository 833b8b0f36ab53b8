package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// debounceWindow absorbs editor write bursts (truncate+write, tmp+rename)
// so a save triggers one reload, not several.
const debounceWindow = 200 * time.Millisecond

// Watch hot-reloads the config file via Viper's fsnotify watcher until ctx
// is cancelled. Run in a goroutine. A successful reload swaps the
// in-memory config and notifies RegisterOnReload callbacks; a broken file
// is logged and the previous config stays active.
func Watch(ctx context.Context) {
	path := Path()
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		slog.Warn("config watch disabled, initial read failed", "path", path, "error", err)
		return
	}

	var debounce *time.Timer
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		if filepath.Clean(e.Name) != filepath.Clean(path) {
			return
		}
		if debounce != nil {
			debounce.Stop()
		}
		debounce = time.AfterFunc(debounceWindow, func() { reload(path) })
	})

	slog.Info("config watch started", "path", path)
	<-ctx.Done()
}

func reload(path string) {
	cfg, err := Load(path)
	if err != nil {
		slog.Warn("config hot-reload failed, keeping previous config", "path", path, "error", err)
		return
	}
	Set(cfg)
	notifyReload(cfg)
	slog.Info("config hot-reloaded", "path", path)
}
