package audio

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// SoundWatcher watches custom sound files and drops their decoded buffers
// when they change on disk.
type SoundWatcher struct {
	mu     sync.Mutex
	logger *slog.Logger

	onChange func(path string)

	// Watched files and the directories registered with fsnotify
	paths map[string]bool
	dirs  map[string]bool

	watcher *fsnotify.Watcher
	done    chan struct{}
	running bool
}

// NewSoundWatcher creates a watcher that calls onChange with the path of
// every modified, replaced or removed sound file.
func NewSoundWatcher(onChange func(path string), logger *slog.Logger) *SoundWatcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &SoundWatcher{
		logger:   logger,
		onChange: onChange,
		paths:    make(map[string]bool),
		dirs:     make(map[string]bool),
	}
}

// Watch adds a file to the watch list.
func (w *SoundWatcher) Watch(path string) {
	if path == "" {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.paths[path] {
		return
	}
	w.paths[path] = true

	if w.running {
		w.addDirLocked(filepath.Dir(path))
	}
}

// Start begins watching. Files registered before Start are picked up.
func (w *SoundWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	w.watcher = watcher
	w.done = make(chan struct{})
	w.dirs = make(map[string]bool)
	w.running = true

	// Watch directories rather than files so atomic replaces are seen
	for path := range w.paths {
		w.addDirLocked(filepath.Dir(path))
	}

	go w.loop(ctx, watcher, w.done)

	w.logger.Debug("sound watcher started", "files", len(w.paths))
	return nil
}

// Stop stops watching.
func (w *SoundWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	w.running = false
	close(w.done)
	if err := w.watcher.Close(); err != nil {
		w.logger.Debug("failed to close sound watcher", "error", err)
	}
	w.logger.Debug("sound watcher stopped")
}

// IsRunning returns whether the watcher is currently running.
func (w *SoundWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *SoundWatcher) addDirLocked(dir string) {
	if w.dirs[dir] {
		return
	}
	if err := w.watcher.Add(dir); err != nil {
		w.logger.Warn("failed to watch sound directory", "dir", dir, "error", err)
		return
	}
	w.dirs[dir] = true
}

func (w *SoundWatcher) loop(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
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
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}

			w.mu.Lock()
			watched := w.paths[event.Name]
			w.mu.Unlock()

			if watched && w.onChange != nil {
				w.logger.Debug("sound file changed, invalidating cache", "path", event.Name)
				w.onChange(event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("sound watcher error", "error", err)
		}
	}
}
