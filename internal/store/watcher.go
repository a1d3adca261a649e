package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// StateWatcher watches the shared state file and reloads it on change.
type StateWatcher struct {
	mu       sync.Mutex
	logger   *slog.Logger
	filePath string
	onChange func(*SharedState)

	watcher *fsnotify.Watcher
	done    chan struct{}
	running bool
}

// NewStateWatcher creates a watcher for the state file at path. onChange
// receives every successfully reloaded state.
func NewStateWatcher(path string, onChange func(*SharedState), logger *slog.Logger) *StateWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateWatcher{
		logger:   logger,
		filePath: path,
		onChange: onChange,
	}
}

// Start begins watching the file. The directory is created if missing.
func (sw *StateWatcher) Start(ctx context.Context) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.running {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory containing the file (more reliable for atomic renames)
	dir := filepath.Dir(sw.filePath)
	if err := ensureDir(dir); err != nil {
		_ = watcher.Close()
		return err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}

	sw.watcher = watcher
	sw.done = make(chan struct{})
	sw.running = true

	go sw.watch(ctx, watcher, sw.done)

	sw.logger.Debug("state watcher started", "path", sw.filePath)
	return nil
}

// Stop stops the watcher.
func (sw *StateWatcher) Stop() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if !sw.running {
		return nil
	}

	sw.running = false
	close(sw.done)
	return sw.watcher.Close()
}

func (sw *StateWatcher) watch(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	filename := filepath.Base(sw.filePath)

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			// Only care about our file
			if filepath.Base(event.Name) != filename {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				sw.reload()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			sw.logger.Warn("state watcher error", "error", err)
		}
	}
}

func (sw *StateWatcher) reload() {
	state, err := LoadSharedStateFrom(sw.filePath)
	if err != nil {
		sw.logger.Warn("failed to reload shared state", "error", err)
		return
	}
	sw.logger.Debug("shared state changed",
		"sound_muted", state.SoundMuted,
		"toasts_muted", state.ToastsMuted,
	)
	if sw.onChange != nil {
		sw.onChange(state)
	}
}
