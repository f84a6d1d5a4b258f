package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite persists entries in a local database file so translations survive restarts.
type SQLite struct {
	db  *sql.DB
	ttl time.Duration
}

// NewSQLite opens dbPath. A zero ttl keeps entries forever.
func NewSQLite(dbPath string, ttl time.Duration) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS cache_entries (
			namespace TEXT NOT NULL,
			cache_key TEXT NOT NULL,
			value TEXT NOT NULL,
			stored_at DATETIME NOT NULL,
			PRIMARY KEY (namespace, cache_key)
		)
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db, ttl: ttl}, nil
}

func (c *SQLite) Get(ctx context.Context, namespace, key string) (string, error) {
	var value string
	var storedAt time.Time

	err := c.db.QueryRowContext(ctx,
		`SELECT value, stored_at FROM cache_entries WHERE namespace = ? AND cache_key = ?`,
		namespace, key,
	).Scan(&value, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrMiss
	}
	if err != nil {
		return "", fmt.Errorf("cache get %s/%s: %w", namespace, key, err)
	}

	if c.ttl > 0 && time.Since(storedAt) > c.ttl {
		return "", ErrMiss
	}
	return value, nil
}

func (c *SQLite) Set(ctx context.Context, namespace, key, value string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO cache_entries (namespace, cache_key, value, stored_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(namespace, cache_key)
		 DO UPDATE SET value = excluded.value, stored_at = excluded.stored_at`,
		namespace, key, value, time.Now().UTC(),
	)
	if err != nil {
		log.Printf("Cache: failed to store %s/%s: %v", namespace, key, err)
		return err
	}
	return nil
}

func (c *SQLite) Close() error {
	return c.db.Close()
}
