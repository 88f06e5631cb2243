// Package cache persists embeddings in SQLite keyed by model and content
// hash, and wraps providers so repeated text is never re-embedded.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Cache stores embedding vectors.
type Cache struct {
	db *sql.DB
}

// Open opens (creating if needed) the cache database at path. ":memory:"
// gives a process-local cache.
func Open(path string) (*Cache, error) {
	if path == "" {
		path = ":memory:"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	c, err := NewWithDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// NewWithDB wraps an existing database handle and ensures the schema.
func NewWithDB(db *sql.DB) (*Cache, error) {
	c := &Cache{db: db}
	if err := c.init(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) init() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS embeddings (
			model TEXT NOT NULL,
			hash TEXT NOT NULL,
			dims INTEGER NOT NULL,
			vector BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (model, hash)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create embeddings table: %w", err)
	}
	return nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Hash returns the content key for text.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Get returns cached vectors for the given hashes. Missing hashes are absent
// from the result.
func (c *Cache) Get(ctx context.Context, model string, hashes []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	stmt, err := c.db.PrepareContext(ctx, `SELECT vector FROM embeddings WHERE model = ? AND hash = ?`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare lookup: %w", err)
	}
	defer stmt.Close()

	for _, h := range hashes {
		if _, done := out[h]; done {
			continue
		}
		var blob []byte
		err := stmt.QueryRowContext(ctx, model, h).Scan(&blob)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read embedding: %w", err)
		}
		if vec := decodeVector(blob); vec != nil {
			out[h] = vec
		}
	}
	return out, nil
}

// Put stores vectors keyed by hash in one transaction.
func (c *Cache) Put(ctx context.Context, model string, vectors map[string][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO embeddings (model, hash, dims, vector, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for h, vec := range vectors {
		if _, err := stmt.ExecContext(ctx, model, h, len(vec), encodeVector(vec), now); err != nil {
			return fmt.Errorf("failed to store embedding: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit embeddings: %w", err)
	}
	return nil
}

// Count returns the number of cached vectors for model.
func (c *Cache) Count(ctx context.Context, model string) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings WHERE model = ?`, model).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count embeddings: %w", err)
	}
	return n, nil
}

// encodeVector stores float32 values little-endian, 4 bytes each.
func encodeVector(v []float32) []byte {
	data := make([]byte, len(v)*4)
	for i, f := range v {
		bits := math.Float32bits(f)
		data[i*4] = byte(bits)
		data[i*4+1] = byte(bits >> 8)
		data[i*4+2] = byte(bits >> 16)
		data[i*4+3] = byte(bits >> 24)
	}
	return data
}

func decodeVector(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		bits := uint32(data[i*4]) |
			uint32(data[i*4+1])<<8 |
			uint32(data[i*4+2])<<16 |
			uint32(data[i*4+3])<<24
		v[i] = math.Float32frombits(bits)
	}
	return v
}
