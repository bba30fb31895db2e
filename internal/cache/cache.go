package cache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Entry is one cached value on disk.
type Entry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"createdAt"`
	TTL       int             `json:"ttl"`
}

// Cache is a directory of JSON entries keyed by the SHA-256 of their key
// material.
type Cache struct {
	dir        string
	ttlSeconds int
	enabled    bool
	now        func() time.Time
}

// New creates a Cache rooted at dir. A disabled cache never hits and never
// writes.
func New(enabled bool, dir string, ttlSeconds int) (*Cache, error) {
	c := &Cache{dir: dir, ttlSeconds: ttlSeconds, enabled: enabled, now: time.Now}
	if !enabled {
		return c, nil
	}
	if dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return c, nil
}

// Get decodes the entry for key into v. It reports false on a miss, an
// expired entry or a corrupt file.
func (c *Cache) Get(key string, v any) bool {
	if !c.enabled {
		return false
	}
	path := c.entryPath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return false
	}
	if c.expired(entry) {
		os.Remove(path)
		return false
	}
	return json.Unmarshal(entry.Value, v) == nil
}

// Put stores v under key.
func (c *Cache) Put(key string, v any) error {
	if !c.enabled {
		return nil
	}
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling cache value: %w", err)
	}
	entry := Entry{
		Key:       HashKey(key),
		Value:     value,
		CreatedAt: c.now(),
		TTL:       c.ttlSeconds,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	return os.WriteFile(c.entryPath(key), data, 0o644)
}

// Clear removes every entry and returns how many were deleted.
func (c *Cache) Clear() (int, error) {
	if c.dir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading cache directory: %w", err)
	}
	var removed int
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			if err := os.Remove(filepath.Join(c.dir, e.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// Stats summarizes the cache directory.
type Stats struct {
	Dir        string `json:"dir"`
	Entries    int    `json:"entries"`
	TotalBytes int64  `json:"totalBytes"`
	Expired    int    `json:"expired"`
}

// GetStats walks the cache directory. It works on a disabled cache too, so
// the CLI can report on entries left by earlier runs.
func (c *Cache) GetStats() (Stats, error) {
	stats := Stats{Dir: c.dir}
	if c.dir == "" {
		return stats, nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return stats, fmt.Errorf("reading cache directory: %w", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		stats.Entries++
		stats.TotalBytes += info.Size()

		data, err := os.ReadFile(filepath.Join(c.dir, e.Name()))
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		if c.expired(entry) {
			stats.Expired++
		}
	}
	return stats, nil
}

// Dir returns the cache directory path.
func (c *Cache) Dir() string {
	return c.dir
}

// Enabled returns whether caching is enabled.
func (c *Cache) Enabled() bool {
	return c.enabled
}

func (c *Cache) expired(e Entry) bool {
	return c.ttlSeconds > 0 && c.now().Sub(e.CreatedAt) > time.Duration(c.ttlSeconds)*time.Second
}

// HashKey creates a SHA-256 hash of the given key material.
func HashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h)
}

// BuildKey hashes parts with length prefixes, so ("ab", "c") and ("a", "bc")
// produce different keys.
func BuildKey(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = fmt.Sprintf("%d:%s", len(p), p)
	}
	return HashKey(strings.Join(escaped, "|"))
}

func (c *Cache) entryPath(key string) string {
	return filepath.Join(c.dir, HashKey(key)+".json")
}
