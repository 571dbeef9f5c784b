package loader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is the quiet period used when none is configured.
const DefaultDebounce = 100 * time.Millisecond

// Watcher watches a ruleset directory and calls a reload callback after a
// burst of changes to rule files has settled.
type Watcher struct {
	dir      string
	log      zerolog.Logger
	fs       *fsnotify.Watcher
	debounce *Debouncer

	mu      sync.Mutex
	running bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a watcher for dir. A zero debounce uses DefaultDebounce.
func NewWatcher(dir string, debounce time.Duration, log zerolog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		dir:      dir,
		log:      log.With().Str("component", "watcher").Str("dir", dir).Logger(),
		fs:       fs,
		debounce: NewDebouncer(debounce),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Watch blocks until ctx is cancelled or Stop is called. Reload failures are
// logged and watching continues.
func (w *Watcher) Watch(ctx context.Context, onReload func() error) error {
	w.mu.Lock()
	if w.running || w.stopped {
		w.mu.Unlock()
		return errors.New("watcher already running or stopped")
	}
	w.running = true
	w.mu.Unlock()

	defer close(w.doneCh)
	defer w.shutdown()

	if err := w.fs.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.log.Info().Dur("debounce", w.debounce.interval).Msg("watching ruleset")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("watcher stopped (context cancelled)")
			return nil
		case <-w.stopCh:
			w.log.Info().Msg("watcher stopped")
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if !relevant(event) {
				continue
			}
			w.log.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("file event")
			w.debounce.Trigger(func() {
				w.log.Info().Str("path", event.Name).Msg("reloading ruleset")
				if err := onReload(); err != nil {
					w.log.Error().Err(err).Msg("ruleset reload failed")
				}
			})
		case err, ok := <-w.fs.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			w.log.Error().Err(err).Msg("watcher error")
		}
	}
}

// Stop ends Watch and releases the underlying watcher. It is safe to call
// more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	running := w.running
	w.mu.Unlock()

	close(w.stopCh)
	if running {
		<-w.doneCh
		return nil
	}
	return w.fs.Close()
}

func (w *Watcher) shutdown() {
	w.debounce.Stop()
	if err := w.fs.Close(); err != nil {
		w.log.Warn().Err(err).Msg("closing fsnotify watcher")
	}
}

func relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	return IsRuleFile(event.Name)
}

// Debouncer runs the most recent callback once no new trigger has arrived
// for the interval. Callbacks never overlap.
type Debouncer struct {
	interval time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	callback func()
	stopped  bool
	run      sync.Mutex
}

// NewDebouncer creates a debouncer with the given quiet period.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Trigger replaces the pending callback and restarts the quiet period.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.callback = callback
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.fire)
}

func (d *Debouncer) fire() {
	d.run.Lock()
	defer d.run.Unlock()

	// Checked after taking run so a Stop that returned first wins.
	d.mu.Lock()
	cb := d.callback
	stopped := d.stopped
	d.callback = nil
	d.mu.Unlock()
	if stopped || cb == nil {
		return
	}
	cb()
}

// Stop cancels any pending callback and waits for a running one to finish.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	d.run.Lock()
	defer d.run.Unlock()
}
