package server

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"cellar/internal/logging"
)

// ConfigWatcher watches the config file and invokes a reload callback when it
// settles after a change. Editors replace files on save, so it watches the
// parent directory and filters events by name.
type ConfigWatcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	configPath  string
	onReload    func() error
	pendingAt   time.Time
	pending     bool
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewConfigWatcher creates a watcher for configPath that calls onReload after
// each settled change.
func NewConfigWatcher(configPath string, onReload func() error) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &ConfigWatcher{
		watcher:     watcher,
		configPath:  filepath.Clean(configPath),
		onReload:    onReload,
		debounceDur: 500 * time.Millisecond, // Debounce rapid saves
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the watcher runs in a goroutine until
// Stop is called or ctx is cancelled.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	cw.mu.Lock()
	if cw.running {
		cw.mu.Unlock()
		return nil // Already running
	}
	cw.running = true
	cw.mu.Unlock()

	dir := filepath.Dir(cw.configPath)
	if err := cw.watcher.Add(dir); err != nil {
		cw.mu.Lock()
		cw.running = false
		cw.mu.Unlock()
		// Stop early-returns when not running, so release the fsnotify
		// handle here or nothing will.
		if cerr := cw.watcher.Close(); cerr != nil {
			logging.BootError("Config watcher: error closing: %v", cerr)
		}
		return err
	}
	logging.Boot("Config watcher: watching %s", cw.configPath)

	go cw.run(ctx)
	return nil
}

// Stop stops the watcher and waits for cleanup.
func (cw *ConfigWatcher) Stop() {
	cw.mu.Lock()
	if !cw.running {
		cw.mu.Unlock()
		return
	}
	cw.running = false
	cw.mu.Unlock()

	close(cw.stopCh)
	<-cw.doneCh

	if err := cw.watcher.Close(); err != nil {
		logging.BootError("Config watcher: error closing: %v", err)
	}
	logging.Boot("Config watcher: stopped")
}

func (cw *ConfigWatcher) run(ctx context.Context) {
	defer close(cw.doneCh)

	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-cw.stopCh:
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			cw.handleEvent(event)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			logging.BootError("Config watcher error: %v", err)

		case <-debounceTicker.C:
			cw.maybeReload()
		}
	}
}

func (cw *ConfigWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != cw.configPath {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return // Ignore chmod, remove, etc.
	}

	logging.BootDebug("Config watcher: change detected on %s", event.Name)

	cw.mu.Lock()
	cw.pending = true
	cw.pendingAt = time.Now()
	cw.mu.Unlock()
}

// maybeReload fires the callback once a change has settled past the debounce
// window.
func (cw *ConfigWatcher) maybeReload() {
	cw.mu.Lock()
	ready := cw.pending && time.Since(cw.pendingAt) >= cw.debounceDur
	if ready {
		cw.pending = false
	}
	cw.mu.Unlock()

	if !ready {
		return
	}

	if err := cw.onReload(); err != nil {
		logging.BootError("Config reload failed: %v", err)
		return
	}
	logging.Boot("Config reloaded from %s", cw.configPath)
}
