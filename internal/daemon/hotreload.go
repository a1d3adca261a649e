package daemon

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jmylchreest/campusbell/internal/config"
)

// DefaultConfigPollInterval is how often ConfigWatcher checks the file.
const DefaultConfigPollInterval = time.Second

// fileStamp identifies one version of a file on disk.
type fileStamp struct {
	modTime time.Time
	size    int64
}

func stampOf(info os.FileInfo) fileStamp {
	return fileStamp{modTime: info.ModTime(), size: info.Size()}
}

// ConfigWatcher polls the daemon config file and hands every new, valid
// config to the reload callback. Files that fail to load are reported to the
// error callback and the previous config stays current.
type ConfigWatcher struct {
	logger   *slog.Logger
	path     string
	interval time.Duration

	mu       sync.RWMutex
	current  *config.DaemonConfig
	stamp    fileStamp
	onReload func(*config.DaemonConfig)
	onError  func(error)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewConfigWatcher creates a watcher for the config file at path.
func NewConfigWatcher(path string, logger *slog.Logger) *ConfigWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigWatcher{
		logger:   logger,
		path:     path,
		interval: DefaultConfigPollInterval,
	}
}

// SetPollInterval changes the polling interval. It applies from the next Start.
func (w *ConfigWatcher) SetPollInterval(interval time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if interval > 0 {
		w.interval = interval
	}
}

// SetReloadCallback sets the function receiving each reloaded config.
func (w *ConfigWatcher) SetReloadCallback(fn func(*config.DaemonConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = fn
}

// SetErrorCallback sets the function receiving load and validation errors.
func (w *ConfigWatcher) SetErrorCallback(fn func(error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = fn
}

// Start begins polling with initial as the current config. It is a no-op
// while already running.
func (w *ConfigWatcher) Start(ctx context.Context, initial *config.DaemonConfig) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return nil
	}

	w.current = initial
	w.stamp = fileStamp{}
	if info, err := os.Stat(w.path); err == nil {
		w.stamp = stampOf(info)
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.run(ctx, w.interval, w.done)

	w.logger.Debug("config watcher started", "path", w.path, "interval", w.interval)
	return nil
}

// Stop ends polling and waits for the poll loop to exit.
func (w *ConfigWatcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	w.logger.Debug("config watcher stopped")
}

// GetCurrentConfig returns the last valid configuration.
func (w *ConfigWatcher) GetCurrentConfig() *config.DaemonConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *ConfigWatcher) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

// poll reloads the file when its stamp changed since the last look.
func (w *ConfigWatcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Debug("failed to stat config file", "path", w.path, "error", err)
		}
		return
	}

	stamp := stampOf(info)
	w.mu.Lock()
	if stamp == w.stamp {
		w.mu.Unlock()
		return
	}
	w.stamp = stamp
	w.mu.Unlock()

	w.logger.Debug("config file changed", "path", w.path, "mod_time", stamp.modTime)

	cfg, err := config.LoadDaemonConfigFrom(w.path)

	w.mu.Lock()
	onReload, onError := w.onReload, w.onError
	if err == nil {
		w.current = cfg
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Warn("config file changed but failed to load, keeping current config", "error", err)
		if onError != nil {
			onError(err)
		}
		return
	}

	w.logger.Info("config reloaded", "path", w.path)
	if onReload != nil {
		onReload(cfg)
	}
}
