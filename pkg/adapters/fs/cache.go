package fs

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/aretw0/keel/pkg/core"
)

// IndexFileName is the name of the per-directory category summary.
const IndexFileName = "index.json"

// logIndex manages the loading, updating, and saving of index.json.
type logIndex struct {
	Path    string // Path to <logs>/index.json
	logger  *slog.Logger
	perm    os.FileMode
	mu      sync.Mutex
	entries core.LogIndex
	loaded  bool
}

// newLogIndex initializes an index at the given log directory.
func newLogIndex(logDir string, logger *slog.Logger, perm os.FileMode) *logIndex {
	return &logIndex{
		Path:    filepath.Join(logDir, IndexFileName),
		logger:  logger,
		perm:    perm,
		entries: make(core.LogIndex),
	}
}

// loadLocked reads the index from disk once. A missing or corrupt file
// yields an empty index; it is derived data and gets rebuilt on append.
func (c *logIndex) loadLocked() error {
	if c.loaded {
		return nil
	}

	data, err := os.ReadFile(c.Path)
	if os.IsNotExist(err) {
		c.loaded = true
		return nil // Start fresh
	}
	if err != nil {
		return fmt.Errorf("failed to read index: %w", err)
	}

	entries := make(core.LogIndex)
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Warn("index is corrupt, rebuilding", "path", c.Path, "error", err)
		entries = make(core.LogIndex)
	}
	c.entries = entries
	c.loaded = true
	return nil
}

// Get returns the summary of category, if known.
func (c *logIndex) Get(category string) (core.CategoryIndex, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.loadLocked(); err != nil {
		return core.CategoryIndex{}, false, err
	}
	ci, ok := c.entries[category]
	return ci, ok, nil
}

// Set updates the summary of category and persists the whole index.
func (c *logIndex) Set(category string, ci core.CategoryIndex) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.loadLocked(); err != nil {
		return err
	}
	c.entries[category] = ci

	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return err
	}

	// Write atomically (temp file + rename).
	return writeFileAtomic(c.Path, data, c.perm, "")
}

// Snapshot returns a copy of the index.
func (c *logIndex) Snapshot() (core.LogIndex, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.loadLocked(); err != nil {
		return nil, err
	}
	out := make(core.LogIndex, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out, nil
}

// Len returns the number of categories in the index.
func (c *logIndex) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
