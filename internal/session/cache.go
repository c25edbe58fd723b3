package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// KeySpreadsheetID is the cache slot holding the target spreadsheet id.
// It mirrors the browser-local slot the web client uses, so a locally
// configured spreadsheet wins over the remote settings record.
const KeySpreadsheetID = "spreadsheet_id"

// Cache is a small file-backed key/value slot used as a synchronous
// fallback before the remote settings record. Values are plain strings
// persisted as a single JSON object.
type Cache struct {
	mu     sync.RWMutex
	path   string
	values map[string]string
}

// OpenCache loads the cache file at path, creating an empty cache when
// the file does not exist yet.
func OpenCache(path string) (*Cache, error) {
	c := &Cache{path: path, values: make(map[string]string)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: reading cache %q: %w", path, err)
	}

	if err := json.Unmarshal(data, &c.values); err != nil {
		return nil, fmt.Errorf("session: parsing cache %q: %w", path, err)
	}
	return c, nil
}

// Get returns the cached value for key, or "" when unset.
func (c *Cache) Get(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[key]
}

// Set stores a value and persists the cache file. An empty value deletes
// the slot.
func (c *Cache) Set(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if value == "" {
		delete(c.values, key)
	} else {
		c.values[key] = value
	}

	data, err := json.MarshalIndent(c.values, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encoding cache: %w", err)
	}

	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("session: creating cache dir: %w", err)
		}
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("session: writing cache %q: %w", c.path, err)
	}
	return nil
}
