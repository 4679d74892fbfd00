package config

import (
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"keyrelay/internal/domain"
)

// debounceDelay coalesces the burst of events an editor produces on save into one reload.
var debounceDelay = 100 * time.Millisecond

// newWatcherFunc creates an fsnotify watcher; tests may replace it to inject errors.
type newWatcherFunc func() (*fsnotify.Watcher, error)

// Watcher reloads a config file whenever it changes on disk and hands the new
// config to a callback. Documents that fail to load are logged and skipped, so
// the callback only ever sees valid configs.
type Watcher struct {
	path         string
	logger       *slog.Logger
	watcher      *fsnotify.Watcher
	done         chan struct{}
	mu           sync.Mutex
	running      bool
	newWatcherFn newWatcherFunc // nil means fsnotify.NewWatcher
	loadFn       func(string) (*domain.Config, error)
}

// NewWatcher creates a watcher for the config file at path. A nil logger uses slog.Default().
func NewWatcher(path string, logger *slog.Logger) *Watcher {
	return &Watcher{path: path, logger: logger, loadFn: Load}
}

func (w *Watcher) log() *slog.Logger {
	if w.logger != nil {
		return w.logger
	}
	return slog.Default()
}

// Start begins watching. callback runs on its own goroutine after each
// successful reload. Start must not be called twice without Stop.
func (w *Watcher) Start(callback func(*domain.Config)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if callback == nil {
		return errors.New("config watcher: callback must not be nil")
	}
	if w.running {
		return errors.New("config watcher: already started")
	}

	// Watch the directory: editors often replace the file instead of writing it.
	newWatcher := fsnotify.NewWatcher
	if w.newWatcherFn != nil {
		newWatcher = w.newWatcherFn
	}
	watcher, err := newWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return err
	}

	w.watcher = watcher
	w.done = make(chan struct{})
	w.running = true
	go w.eventLoop(w.watcher, w.done, callback)
	return nil
}

// Stop ceases watching. Safe to call when not started.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	close(w.done)
	err := w.watcher.Close()
	w.running = false
	return err
}

func (w *Watcher) eventLoop(watcher *fsnotify.Watcher, done chan struct{}, callback func(*domain.Config)) {
	target := filepath.Base(w.path)
	var debounceTimer *time.Timer

	for {
		select {
		case <-done:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, func() {
				select {
				case <-done:
					return
				default:
				}
				cfg, err := w.loadFn(w.path)
				if err != nil {
					w.log().Error("config reload failed; keeping current config", "path", w.path, "error", err)
					return
				}
				w.log().Info("config reloaded", "path", w.path)
				callback(cfg)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.log().Warn("config watcher error", "error", err)
		}
	}
}
