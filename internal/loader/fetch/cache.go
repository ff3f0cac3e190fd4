package fetch

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// Cache wraps a delegate fetcher with a modernc.org/sqlite-backed
// content-addressed store — on miss, delegates to the next fetcher and stores the
// bytes atomically under sha256Hex"). Grounded on internal/storage/db.go's
// sql.Open("sqlite", ...)-plus-WAL-pragma wrapper style.
type Cache struct {
	Delegate Fetcher

	db *sql.DB
	mu sync.Mutex
}

// OpenCache opens or creates the blob store at path (":memory:" for a
// process-local cache).
func OpenCache(path string, delegate Fetcher) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
		CREATE TABLE IF NOT EXISTS blobs (
			sha256_hex TEXT PRIMARY KEY,
			bytes      BLOB NOT NULL,
			stored_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure cache: %w", err)
	}
	return &Cache{Delegate: delegate, db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Fetch implements the cache-gated getOrPut: a hit reads the stored blob
// without touching the delegate; a miss delegates, then stores atomically
// via INSERT OR IGNORE plus a re-select.
func (c *Cache) Fetch(ctx context.Context, applicationName, id, sha256Hex, url string) ([]byte, error) {
	if b, ok, err := c.get(sha256Hex); err != nil {
		return nil, err
	} else if ok {
		return b, nil
	}

	b, err := c.Delegate.Fetch(ctx, applicationName, id, sha256Hex, url)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, nil
	}

	if err := c.put(sha256Hex, b); err != nil {
		return nil, err
	}
	// Re-select so a racing writer's bytes (not necessarily ours) are what
	// every caller observes, per the "single-writer per key" invariant.
	got, _, err := c.get(sha256Hex)
	if err != nil {
		return nil, err
	}
	return got, nil
}

func (c *Cache) get(sha256Hex string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var b []byte
	err := c.db.QueryRow(`SELECT bytes FROM blobs WHERE sha256_hex = ?`, sha256Hex).Scan(&b)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *Cache) put(sha256Hex string, b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.Exec(`INSERT OR IGNORE INTO blobs (sha256_hex, bytes) VALUES (?, ?)`, sha256Hex, b)
	return err
}
