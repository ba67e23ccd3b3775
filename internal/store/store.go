// Package store persists items in SQLite and enforces the deletion age gate.
//
// Timestamps are stored as fixed-width UTC strings (see item.TimeLayout), so
// lexicographic ordering of created_at matches chronological ordering and the
// age cutoff can be evaluated with a plain string comparison in SQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"cellar/internal/item"
	"cellar/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_created ON items(created_at);
`

// Config configures an ItemStore.
type Config struct {
	// Path is the SQLite database file. The parent directory is created if
	// missing.
	Path string

	// MinAgeDays is the number of whole days an item must rest before it can
	// be deleted. Zero disables the gate entirely.
	MinAgeDays int

	// Now supplies the clock. Nil means time.Now. Tests inject a fake clock
	// here to exercise the age gate deterministically.
	Now func() time.Time
}

func (c *Config) validate() error {
	if c.Path == "" {
		return errors.New("store: database path required")
	}
	if c.MinAgeDays < 0 {
		return fmt.Errorf("store: minimum age must be >= 0 days, got %d", c.MinAgeDays)
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}

// ItemStore is the SQLite-backed item catalog.
type ItemStore struct {
	db         *sql.DB
	mu         sync.RWMutex
	dbPath     string
	minAgeDays int
	now        func() time.Time
}

// New initializes the SQLite database at cfg.Path.
func New(cfg Config) (*ItemStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "New")
	defer timer.Stop()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logging.Store("Initializing ItemStore at path: %s", cfg.Path)

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.StoreError("Failed to create directory %s: %v", dir, err)
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		logging.StoreError("Failed to open database at %s: %v", cfg.Path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	// NORMAL is safe under WAL and much faster than the FULL default.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &ItemStore{
		db:         db,
		dbPath:     cfg.Path,
		minAgeDays: cfg.MinAgeDays,
		now:        cfg.Now,
	}
	if _, err := db.Exec(schema); err != nil {
		logging.StoreError("Failed to initialize schema: %v", err)
		db.Close()
		return nil, fmt.Errorf("failed to create items table: %w", err)
	}

	logging.Store("ItemStore ready (min age %d days)", s.minAgeDays)
	return s, nil
}

// MinAgeDays returns the configured deletion age gate in whole days.
func (s *ItemStore) MinAgeDays() int {
	return s.minAgeDays
}

// Path returns the database file path.
func (s *ItemStore) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *ItemStore) Close() error {
	logging.Store("Closing ItemStore database connection")
	return s.db.Close()
}

// List returns all items, newest first. Items created in the same
// millisecond are broken by id, newest insert first. The result is never nil
// so an empty catalog serializes as an empty JSON array.
func (s *ItemStore) List(ctx context.Context) ([]item.Item, error) {
	timer := logging.StartTimer(logging.CategoryStore, "List")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, created_at FROM items ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	items := make([]item.Item, 0)
	for rows.Next() {
		var it item.Item
		if err := rows.Scan(&it.ID, &it.Name, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}

	logging.StoreDebug("Listed %d items", len(items))
	return items, nil
}

// Create inserts a new item with a server-assigned id and timestamp. The name
// must contain at least one non-whitespace character; it is stored as given,
// untrimmed.
func (s *ItemStore) Create(ctx context.Context, name string) (item.Item, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Create")
	defer timer.Stop()

	if strings.TrimSpace(name) == "" {
		return item.Item{}, item.ErrNameRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := item.FormatTime(s.now())
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO items (name, created_at) VALUES (?, ?)", name, createdAt)
	if err != nil {
		return item.Item{}, fmt.Errorf("failed to insert item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return item.Item{}, fmt.Errorf("failed to read inserted id: %w", err)
	}

	logging.Store("Created item #%d: %q", id, name)
	return item.Item{ID: id, Name: name, CreatedAt: createdAt}, nil
}

// Get returns a single item by id, or item.ErrNotFound.
func (s *ItemStore) Get(ctx context.Context, id int64) (item.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(ctx, id)
}

func (s *ItemStore) getLocked(ctx context.Context, id int64) (item.Item, error) {
	var it item.Item
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM items WHERE id = ?", id).
		Scan(&it.ID, &it.Name, &it.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return item.Item{}, item.ErrNotFound
	}
	if err != nil {
		return item.Item{}, fmt.Errorf("failed to load item %d: %w", id, err)
	}
	return it, nil
}

// Delete removes an item if it has rested long enough, returning the deleted
// row. A missing id yields item.ErrNotFound; an item younger than the gate
// yields *item.AgeRestrictionError carrying its fractional age; a row whose
// created_at cannot be parsed is reported as corruption, not as any of the
// above.
func (s *ItemStore) Delete(ctx context.Context, id int64) (item.Item, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Delete")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.getLocked(ctx, id)
	if err != nil {
		return item.Item{}, err
	}

	created, err := item.ParseTime(it.CreatedAt)
	if err != nil {
		logging.StoreError("Item #%d has unparseable created_at %q: %v", id, it.CreatedAt, err)
		return item.Item{}, fmt.Errorf("failed to parse created_at for item %d: %w", id, err)
	}

	age := item.AgeDays(created, s.now())
	if item.WholeDays(age) < s.minAgeDays {
		logging.Store("Delete of item #%d denied: %.2f days old, gate is %d", id, age, s.minAgeDays)
		return item.Item{}, &item.AgeRestrictionError{AgeDays: age, MinDays: s.minAgeDays}
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM items WHERE id = ?", id)
	if err != nil {
		return item.Item{}, fmt.Errorf("failed to delete item %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return item.Item{}, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return item.Item{}, item.ErrNotFound
	}

	logging.Store("Deleted item #%d (%.2f days old)", id, age)
	return it, nil
}

// Age reports an item's current age in fractional days.
func (s *ItemStore) Age(it item.Item) (float64, error) {
	created, err := item.ParseTime(it.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to parse created_at for item %d: %w", it.ID, err)
	}
	return item.AgeDays(created, s.now()), nil
}

// Count returns the number of items in the catalog.
func (s *ItemStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return count, nil
}

// Stats returns catalog statistics: total items and how many have rested
// past the age gate. The cutoff works as a string comparison because
// created_at is fixed-width UTC.
func (s *ItemStore) Stats(ctx context.Context) (map[string]int64, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Stats")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int64)

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count items: %w", err)
	}
	stats["items"] = total

	// floor(age) >= minAgeDays is equivalent to age >= minAgeDays for a
	// whole-day gate, so deletable rows are exactly those at or before the
	// cutoff instant.
	cutoff := item.FormatTime(s.now().Add(-time.Duration(s.minAgeDays) * 24 * time.Hour))
	var deletable int64
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM items WHERE created_at <= ?", cutoff).Scan(&deletable); err != nil {
		return nil, fmt.Errorf("failed to count deletable items: %w", err)
	}
	stats["deletable"] = deletable

	logging.StoreDebug("Stats: %d items, %d deletable", total, deletable)
	return stats, nil
}
