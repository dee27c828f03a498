package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadEvent is emitted when config.yaml changes on disk and parses cleanly.
type ReloadEvent struct {
	Config Config
}

// Watcher watches config.yaml and emits a ReloadEvent after each change.
// Editors tend to fire several filesystem events per save, so changes are
// debounced before reloading.
type Watcher struct {
	path     string
	logger   *slog.Logger
	events   chan ReloadEvent
	debounce time.Duration

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWatcher creates a watcher for config.yaml under homeDir.
func NewWatcher(homeDir string, logger *slog.Logger) *Watcher {
	return &Watcher{
		path:     ConfigPath(homeDir),
		logger:   logger,
		events:   make(chan ReloadEvent, 4),
		debounce: 250 * time.Millisecond,
	}
}

// Events returns the reload event channel.
func (w *Watcher) Events() <-chan ReloadEvent { return w.events }

// Start begins watching. The parent directory is watched rather than the
// file itself so atomic saves (write temp, rename) are still observed.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.loop(ctx, fw)
	return nil
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	defer close(w.done)
	defer fw.Close()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load()
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous config", "error", err)
		return
	}
	w.logger.Info("config reloaded", "fingerprint", cfg.Fingerprint())
	select {
	case w.events <- ReloadEvent{Config: cfg}:
	default:
		// Consumer is behind; it will pick up the next change.
	}
}

// Stop halts the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped || w.cancel == nil {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done
}
