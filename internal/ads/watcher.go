package ads

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stwalsh4118/marquee/internal/logger"
)

const (
	defaultPollInterval = 2 * time.Second
	debounceWindow      = 250 * time.Millisecond
)

// ReloadObserver is notified after every reload attempt
type ReloadObserver func(ok bool)

// Watcher reloads a Catalog when its file changes. It watches the parent
// directory so that editors which replace the file atomically are seen.
type Watcher struct {
	catalog      *Catalog
	pollInterval time.Duration
	onReload     ReloadObserver

	fsnotifyWatcher *fsnotify.Watcher
	stopChan        chan struct{}
	done            chan struct{}

	mu       sync.Mutex
	started  bool
	stopped  bool
	pending  bool
	lastSeen time.Time
}

// NewWatcher creates a watcher for catalog. onReload may be nil.
func NewWatcher(catalog *Catalog, pollInterval time.Duration, onReload ReloadObserver) (*Watcher, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog cannot be nil")
	}
	if catalog.Path() == "" {
		return nil, fmt.Errorf("catalog path cannot be empty")
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	return &Watcher{
		catalog:      catalog,
		pollInterval: pollInterval,
		onReload:     onReload,
		stopChan:     make(chan struct{}),
		done:         make(chan struct{}),
	}, nil
}

// Start begins watching. It falls back to polling the file's modification
// time when fsnotify is unavailable.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return fmt.Errorf("watcher has been stopped")
	}
	if w.started {
		return nil
	}

	dir := filepath.Dir(w.catalog.Path())
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Log.Warn().
			Err(err).
			Str("dir", dir).
			Msg("Failed to create fsnotify watcher, falling back to polling")
	} else if err := watcher.Add(dir); err != nil {
		logger.Log.Warn().
			Err(err).
			Str("dir", dir).
			Msg("Failed to add directory to fsnotify watcher, falling back to polling")
		_ = watcher.Close()
	} else {
		w.fsnotifyWatcher = watcher
	}

	w.started = true
	go w.run()

	logger.Log.Info().
		Str("path", w.catalog.Path()).
		Bool("using_fsnotify", w.fsnotifyWatcher != nil).
		Msg("Ad catalog watcher started")

	return nil
}

// Stop stops the watcher and waits for its goroutine to exit
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	started := w.started
	w.mu.Unlock()

	close(w.stopChan)

	if w.fsnotifyWatcher != nil {
		if err := w.fsnotifyWatcher.Close(); err != nil {
			logger.Log.Warn().Err(err).Msg("Error closing fsnotify watcher")
		}
	}

	if started {
		<-w.done
	}

	logger.Log.Debug().Str("path", w.catalog.Path()).Msg("Ad catalog watcher stopped")
	return nil
}

func (w *Watcher) run() {
	defer close(w.done)

	if w.fsnotifyWatcher != nil {
		w.watch()
	} else {
		w.poll()
	}
}

func (w *Watcher) watch() {
	ticker := time.NewTicker(debounceWindow)
	defer ticker.Stop()

	target := filepath.Clean(w.catalog.Path())

	for {
		select {
		case <-w.stopChan:
			return
		case event, ok := <-w.fsnotifyWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
				event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				w.mu.Lock()
				w.pending = true
				w.mu.Unlock()
			}
		case err, ok := <-w.fsnotifyWatcher.Errors:
			if !ok {
				return
			}
			logger.Log.Warn().Err(err).Msg("fsnotify error, continuing")
		case <-ticker.C:
			w.mu.Lock()
			pending := w.pending
			w.pending = false
			w.mu.Unlock()
			if pending {
				w.reload()
			}
		}
	}
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.lastSeen = modTime(w.catalog.Path())

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			current := modTime(w.catalog.Path())
			if !current.Equal(w.lastSeen) {
				w.lastSeen = current
				w.reload()
			}
		}
	}
}

func (w *Watcher) reload() {
	err := w.catalog.Load()
	if err != nil {
		logger.Log.Warn().
			Err(err).
			Str("path", w.catalog.Path()).
			Msg("Ad catalog reload failed, keeping previous slots")
	}
	if w.onReload != nil {
		w.onReload(err == nil)
	}
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
