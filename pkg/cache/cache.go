package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"deal-watch/pkg/metrics"
	"deal-watch/pkg/models"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Memory keeps the cache for the life of the process only.
const Memory = ":memory:"

type Cache struct {
	db  *sql.DB
	ttl time.Duration
	log *zap.Logger
	now func() time.Time
}

func New(dbPath string, ttl time.Duration, log *zap.Logger) (*Cache, error) {
	if dbPath == "" {
		dbPath = Memory
	}
	if log == nil {
		log = zap.NewNop()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// every connection to :memory: is its own database
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS products (
			source TEXT NOT NULL,
			identifier TEXT NOT NULL,
			data TEXT NOT NULL,
			fetched_at INTEGER NOT NULL,
			PRIMARY KEY (source, identifier)
		)
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Cache{db: db, ttl: ttl, log: log, now: time.Now}, nil
}

func (c *Cache) Get(ctx context.Context, source, identifier string) (*models.Product, bool) {
	var (
		data      string
		fetchedAt int64
	)

	err := c.db.QueryRowContext(ctx,
		`SELECT data, fetched_at FROM products WHERE source = ? AND identifier = ?`,
		source, identifier,
	).Scan(&data, &fetchedAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.log.Warn("cache read failed", zap.String("source", source), zap.String("identifier", identifier), zap.Error(err))
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	if c.now().Sub(time.Unix(0, fetchedAt)) > c.ttl {
		metrics.CacheLookups.WithLabelValues("expired").Inc()
		return nil, false
	}

	var product models.Product
	if err := json.Unmarshal([]byte(data), &product); err != nil {
		c.log.Warn("cache entry unreadable", zap.String("source", source), zap.String("identifier", identifier), zap.Error(err))
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return &product, true
}

func (c *Cache) Set(ctx context.Context, source, identifier string, product *models.Product) {
	data, err := json.Marshal(product)
	if err != nil {
		c.log.Warn("cache encode failed", zap.String("source", source), zap.String("identifier", identifier), zap.Error(err))
		return
	}

	fetchedAt := product.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = c.now()
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO products (source, identifier, data, fetched_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(source, identifier)
		 DO UPDATE SET data = excluded.data, fetched_at = excluded.fetched_at`,
		source, identifier, string(data), fetchedAt.UnixNano(),
	)
	if err != nil {
		c.log.Warn("cache write failed", zap.String("source", source), zap.String("identifier", identifier), zap.Error(err))
	}
}

func (c *Cache) Close() error {
	return c.db.Close()
}
