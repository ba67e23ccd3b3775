//go:build integration

package server_test

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"cellar/internal/client"
	"cellar/internal/server"
	"cellar/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TestServerLifecycle runs a real server over a real socket and drives it
// with the client package end to end.
func TestServerLifecycle(t *testing.T) {
	dir := t.TempDir()
	clock := &fakeClock{now: time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)}

	st, err := store.New(store.Config{
		Path:       filepath.Join(dir, "cellar.db"),
		MinAgeDays: 5,
		Now:        clock.Now,
	})
	require.NoError(t, err)
	defer st.Close()

	// Reserve a port, then hand the freed address to the server.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	// A real config file so the watcher runs too; goleak verifies its
	// goroutines exit with the server.
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("name: cellar\n"), 0644))

	srv, err := server.New(st, server.Config{
		Addr:            addr,
		ShutdownTimeout: 2 * time.Second,
		ConfigPath:      cfgPath,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() {
		runErr <- srv.Run(ctx)
	}()

	api := client.New(client.Config{BaseURL: "http://" + addr, Timeout: 5 * time.Second})

	require.Eventually(t, func() bool {
		_, err := api.Health(context.Background())
		return err == nil
	}, 5*time.Second, 50*time.Millisecond, "server did not become ready")

	t.Run("CreateAndList", func(t *testing.T) {
		created, err := api.Create(context.Background(), "Vintage Port")
		require.NoError(t, err)
		assert.Equal(t, "Vintage Port", created.Name)
		assert.Positive(t, created.ID)

		items, err := api.List(context.Background())
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, created.ID, items[0].ID)
	})

	t.Run("AgeGate", func(t *testing.T) {
		items, err := api.List(context.Background())
		require.NoError(t, err)
		require.NotEmpty(t, items)
		id := items[0].ID

		err = api.Delete(context.Background(), id)
		require.Error(t, err)
		assert.True(t, client.IsAgeRestricted(err), "fresh item should be age-restricted: %v", err)

		clock.Advance(5 * 24 * time.Hour)
		require.NoError(t, api.Delete(context.Background(), id))

		err = api.Delete(context.Background(), id)
		assert.True(t, client.IsNotFound(err), "second delete should be not-found: %v", err)
	})

	t.Run("ConcurrentCreates", func(t *testing.T) {
		const writers = 10
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, err := api.Create(context.Background(), fmt.Sprintf("Bottle %d", n))
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}

		items, err := api.List(context.Background())
		require.NoError(t, err)
		assert.Len(t, items, writers)

		seen := make(map[int64]bool)
		for _, it := range items {
			assert.False(t, seen[it.ID], "duplicate id %d", it.ID)
			seen[it.ID] = true
		}
	})

	t.Run("GracefulShutdown", func(t *testing.T) {
		cancel()
		select {
		case err := <-runErr:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("server did not shut down within 5s")
		}
	})

	// Keep-alive connections from the shared transport would otherwise
	// trip the leak detector.
	http.DefaultTransport.(*http.Transport).CloseIdleConnections()
}
