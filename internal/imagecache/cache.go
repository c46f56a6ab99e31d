package imagecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// defaultMemoryEntries bounds the in-memory tier
const defaultMemoryEntries = 128

// Cache is a keyed binary-blob cache with a memory tier over a disk tier.
// Content is addressed by key, so concurrent populates for the same key may
// race; last-writer-wins is fine. Disk eviction is left to the operator.
type Cache struct {
	dir    string
	mem    *lru.Cache[string, []byte]
	logger *zap.Logger
}

// New creates a cache rooted at dir, creating the directory if needed
func New(dir string, logger *zap.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	mem, err := lru.New[string, []byte](defaultMemoryEntries)
	if err != nil {
		return nil, err
	}
	return &Cache{dir: dir, mem: mem, logger: logger}, nil
}

// Get returns the cached blob for a key, checking memory before disk
func (c *Cache) Get(key string) ([]byte, bool) {
	if data, ok := c.mem.Get(key); ok {
		return data, true
	}

	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, false
	}
	c.mem.Add(key, data)
	return data, true
}

// Put stores a blob in both tiers and returns its disk path
func (c *Cache) Put(key string, data []byte) (string, error) {
	path := c.path(key)

	// Write to a temp file and rename for an atomic replace
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to store cache entry: %w", err)
	}

	c.mem.Add(key, data)
	return path, nil
}

// Path returns the disk path for a key if the blob is cached
func (c *Cache) Path(key string) (string, bool) {
	path := c.path(key)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// Resolve returns the disk path for a key, fetching and populating the cache
// on a miss. The returned path is what notification delivery needs.
func (c *Cache) Resolve(ctx context.Context, key string, fetch func(context.Context) ([]byte, error)) (string, error) {
	if path, ok := c.Path(key); ok {
		return path, nil
	}

	data, err := fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %q: %w", key, err)
	}

	path, err := c.Put(key, data)
	if err != nil {
		return "", err
	}

	c.logger.Debug("Cached blob", zap.String("key", key), zap.Int("bytes", len(data)))
	return path, nil
}

// path derives the content file for a key
func (c *Cache) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:]))
}
