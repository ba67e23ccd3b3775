package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func newTestWatcher(t *testing.T, dir string) (*ConfigWatcher, *atomic.Int64) {
	t.Helper()

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("name: cellar\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	var reloads atomic.Int64
	cw, err := NewConfigWatcher(path, func() error {
		reloads.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("NewConfigWatcher failed: %v", err)
	}
	if err := cw.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(cw.Stop)

	return cw, &reloads
}

func waitForReloads(t *testing.T, reloads *atomic.Int64, want int64) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for reloads.Load() < want {
		if time.Now().After(deadline) {
			t.Fatalf("reloads = %d, want %d within 3s", reloads.Load(), want)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestConfigWatcherCoalescesRapidSaves(t *testing.T) {
	dir := t.TempDir()
	cw, reloads := newTestWatcher(t, dir)

	// A burst of saves inside one debounce window
	for i := 0; i < 3; i++ {
		content := fmt.Sprintf("name: cellar\n# rev %d\n", i)
		if err := os.WriteFile(cw.configPath, []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	waitForReloads(t, reloads, 1)

	// Wait out a further debounce window to catch a stray second fire.
	time.Sleep(800 * time.Millisecond)
	if got := reloads.Load(); got != 1 {
		t.Errorf("reloads = %d after settled burst, want 1", got)
	}
}

func TestConfigWatcherIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	cw, reloads := newTestWatcher(t, dir)

	// The watch is on the parent directory; writes to siblings must not
	// trigger a reload.
	if err := os.WriteFile(filepath.Join(dir, "cellar.db"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	time.Sleep(900 * time.Millisecond)
	if got := reloads.Load(); got != 0 {
		t.Errorf("reloads = %d after sibling write, want 0", got)
	}

	// The config file itself still gets through.
	if err := os.WriteFile(cw.configPath, []byte("name: cellar\n# touched\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	waitForReloads(t, reloads, 1)
}

func TestConfigWatcherStopAfterFailedStart(t *testing.T) {
	// The parent directory does not exist, so Start cannot add the watch.
	path := filepath.Join(t.TempDir(), "missing", "config.yaml")

	cw, err := NewConfigWatcher(path, func() error { return nil })
	if err != nil {
		t.Fatalf("NewConfigWatcher failed: %v", err)
	}
	if err := cw.Start(context.Background()); err == nil {
		t.Fatal("Start should fail for a missing directory")
	}

	// Run calls Stop unconditionally; it must return at once and leave
	// the fsnotify handle closed.
	cw.Stop()

	if err := cw.watcher.Add(t.TempDir()); !errors.Is(err, fsnotify.ErrClosed) {
		t.Errorf("underlying watcher still open after Stop, Add err = %v", err)
	}
}
