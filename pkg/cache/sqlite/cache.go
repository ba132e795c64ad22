package sqlite

import (
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/devagent-ai/devagent/pkg/models"
)

// Cache is an exact-match chat response cache backed by SQLite.
type Cache struct {
	db     *sql.DB
	ttl    time.Duration
	now    func() time.Time
	hits   atomic.Int64
	misses atomic.Int64
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS chat_cache (
	request_hash TEXT PRIMARY KEY,
	model TEXT NOT NULL,
	response BLOB NOT NULL,
	created_unix INTEGER NOT NULL,
	ttl_seconds INTEGER NOT NULL
);
`

// New creates a Cache with the given database path and default TTL.
func New(dbPath string, ttl time.Duration) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Cache{db: db, ttl: ttl, now: time.Now}, nil
}

// cacheKey is the subset of a request that determines its response.
type cacheKey struct {
	Messages    []models.Message    `json:"messages"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature *float64            `json:"temperature"`
	Model       string              `json:"model"`
	Provider    models.ProviderName `json:"provider"`
	Tier        models.Tier         `json:"tier"`
}

// HashRequest computes a SHA-256 hash over everything that influences the
// routed response.
func HashRequest(req models.Request) string {
	data, _ := json.Marshal(cacheKey{
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Model:       req.Model,
		Provider:    req.Provider,
		Tier:        req.Tier,
	})
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum[:])
}

// Get retrieves a cached response. Returns false if not found or expired.
func (c *Cache) Get(requestHash string) (models.Response, bool) {
	var raw []byte
	var createdUnix, ttlSeconds int64

	err := c.db.QueryRow(
		`SELECT response, created_unix, ttl_seconds FROM chat_cache WHERE request_hash = ?`,
		requestHash,
	).Scan(&raw, &createdUnix, &ttlSeconds)
	if err != nil {
		c.misses.Add(1)
		return models.Response{}, false
	}

	if c.now().Unix()-createdUnix > ttlSeconds {
		c.misses.Add(1)
		return models.Response{}, false
	}

	var resp models.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.misses.Add(1)
		return models.Response{}, false
	}
	c.hits.Add(1)
	return resp, true
}

// Put stores a response in the cache.
func (c *Cache) Put(requestHash string, resp models.Response) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	_, err = c.db.Exec(
		`INSERT OR REPLACE INTO chat_cache (request_hash, model, response, created_unix, ttl_seconds)
		 VALUES (?, ?, ?, ?, ?)`,
		requestHash, resp.Model, raw, c.now().Unix(), int64(c.ttl.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Stats returns cache performance metrics.
func (c *Cache) Stats() (models.CacheStats, error) {
	stats := models.CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
	err := c.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(? - created_unix > ttl_seconds), 0) FROM chat_cache`,
		c.now().Unix(),
	).Scan(&stats.Entries, &stats.Expired)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	return stats, nil
}

// Clear removes cache entries. If expiredOnly is true, only expired entries
// are removed. It returns the number of deleted rows.
func (c *Cache) Clear(expiredOnly bool) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if expiredOnly {
		res, err = c.db.Exec(`DELETE FROM chat_cache WHERE ? - created_unix > ttl_seconds`, c.now().Unix())
	} else {
		res, err = c.db.Exec(`DELETE FROM chat_cache`)
	}
	if err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
