package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aretw0/keel/pkg/core"
)

// Manifest describes an archived copy of a category.
type Manifest struct {
	Category   string    `json:"category"`
	Key        string    `json:"key"`
	EntryCount int       `json:"entryCount"`
	LastHash   string    `json:"lastHash"`
	Valid      bool      `json:"valid"`
	Errors     int       `json:"errors"`
	ArchivedAt time.Time `json:"archivedAt"`
}

// Archive uploads a snapshot of category to sink under
// <category>/<unixMillis>.log, followed by a JSON manifest next to it.
// The live file keeps growing; the chain is never restarted.
func (l *AuditLog) Archive(ctx context.Context, category string, sink core.ArchiveSink) (Manifest, error) {
	if err := ValidateCategory(category); err != nil {
		return Manifest{}, err
	}

	// Hold the category lock so the snapshot and its manifest agree.
	unlock := l.locks.Lock(category)
	data, err := os.ReadFile(l.categoryPath(category))
	if err != nil {
		unlock()
		if os.IsNotExist(err) {
			return Manifest{}, fmt.Errorf("category %q: %w", category, core.ErrNotFound)
		}
		return Manifest{}, fmt.Errorf("%w: %v", core.ErrIoFailure, err)
	}
	res, err := l.verify(ctx, category)
	unlock()
	if err != nil {
		return Manifest{}, err
	}

	now := l.now().UTC()
	key := category + "/" + strconv.FormatInt(now.UnixMilli(), 10) + LogExt

	m := Manifest{
		Category:   category,
		Key:        key,
		EntryCount: res.EntriesChecked,
		Valid:      res.Valid,
		Errors:     len(res.Errors),
		ArchivedAt: now,
	}
	if last, err := lastHash(data); err == nil {
		m.LastHash = last
	}

	if err := sink.Put(ctx, key, bytes.NewReader(data), "application/x-ndjson"); err != nil {
		return Manifest{}, fmt.Errorf("failed to archive %s: %w", category, err)
	}

	manifest, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return Manifest{}, err
	}
	if err := sink.Put(ctx, key+".manifest.json", bytes.NewReader(manifest), "application/json"); err != nil {
		return Manifest{}, fmt.Errorf("failed to write manifest for %s: %w", category, err)
	}

	l.config.Logger.Info("category archived", "category", category, "key", key, "entries", m.EntryCount, "valid", m.Valid)
	return m, nil
}

// lastHash returns the hash of the last parseable line in data.
func lastHash(data []byte) (string, error) {
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		var e core.Entry
		if json.Unmarshal(bytes.TrimSpace(lines[i]), &e) == nil && e.Hash != "" {
			return e.Hash, nil
		}
	}
	return "", fmt.Errorf("no parseable entry")
}
