package pubmed

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Cache stores raw E-utilities responses in SQLite, keyed by request
// URL hash, so repeated workbench searches within the TTL avoid the
// NCBI rate budget.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
}

const cacheMigration = `
CREATE TABLE IF NOT EXISTS eutils_cache (
	request_hash TEXT PRIMARY KEY,
	body         BLOB NOT NULL,
	fetched_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_eutils_cache_fetched_at ON eutils_cache(fetched_at);
`

// NewCache opens (or creates) a cache database at the given path.
func NewCache(path string, ttl time.Duration) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "pubmed cache: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "pubmed cache: exec %s", pragma)
		}
	}
	if _, err := db.Exec(cacheMigration); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "pubmed cache: migrate")
	}
	return &Cache{db: db, ttl: ttl}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// cacheKey returns SHA-256 hex of the full request URL.
func cacheKey(requestURL string) string {
	h := sha256.Sum256([]byte(requestURL))
	return fmt.Sprintf("%x", h)
}

// Get looks up a cached response body, respecting the TTL.
func (c *Cache) Get(ctx context.Context, requestURL string) ([]byte, bool) {
	key := cacheKey(requestURL)
	query := "SELECT body FROM eutils_cache WHERE request_hash = ?"
	args := []any{key}
	if c.ttl > 0 {
		query += " AND fetched_at > datetime('now', ?)"
		args = append(args, fmt.Sprintf("-%d seconds", int(c.ttl.Seconds())))
	}

	var body []byte
	if err := c.db.QueryRowContext(ctx, query, args...).Scan(&body); err != nil {
		return nil, false
	}
	zap.L().Debug("pubmed: cache hit", zap.String("key", key[:12]))
	return body, true
}

// Put upserts a response body for a request URL.
func (c *Cache) Put(ctx context.Context, requestURL string, body []byte) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO eutils_cache (request_hash, body, fetched_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT (request_hash) DO UPDATE SET
			body = excluded.body,
			fetched_at = datetime('now')`,
		cacheKey(requestURL), body,
	)
	return eris.Wrap(err, "pubmed cache: put")
}
