package fs

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/keel/pkg/core"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLogIndex_Load(t *testing.T) {
	t.Run("Starts Empty if File Missing", func(t *testing.T) {
		c := newLogIndex(t.TempDir(), discardLogger(), 0644)

		snap, err := c.Snapshot()
		if err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
		if len(snap) != 0 {
			t.Errorf("Expected empty index, got %d", len(snap))
		}
	})

	t.Run("Loads Valid JSON", func(t *testing.T) {
		tmpDir := t.TempDir()
		jsonContent := `{
			"payments": {
				"entryCount": 3,
				"firstEntryTimestamp": "2024-01-01T00:00:00.000Z",
				"lastEntryTimestamp": "2024-01-01T00:00:02.000Z",
				"lastUpdated": "2024-01-01T00:00:02Z"
			}
		}`
		os.WriteFile(filepath.Join(tmpDir, IndexFileName), []byte(jsonContent), 0644)

		c := newLogIndex(tmpDir, discardLogger(), 0644)
		ci, ok, err := c.Get("payments")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !ok {
			t.Fatal("Expected entry payments not found")
		}
		if ci.EntryCount != 3 {
			t.Errorf("Expected entryCount 3, got %d", ci.EntryCount)
		}
	})

	t.Run("Recovers From Corrupt File", func(t *testing.T) {
		tmpDir := t.TempDir()
		os.WriteFile(filepath.Join(tmpDir, IndexFileName), []byte("{not json"), 0644)

		c := newLogIndex(tmpDir, discardLogger(), 0644)
		_, ok, err := c.Get("payments")
		if err != nil {
			t.Fatalf("Expected corrupt index to be ignored, got %v", err)
		}
		if ok {
			t.Error("Expected no entry from corrupt index")
		}
	})
}

func TestLogIndex_Set(t *testing.T) {
	tmpDir := t.TempDir()
	c := newLogIndex(tmpDir, discardLogger(), 0644)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	err := c.Set("uploads", core.CategoryIndex{
		EntryCount:          1,
		FirstEntryTimestamp: "2024-01-01T00:00:00.000Z",
		LastEntryTimestamp:  "2024-01-01T00:00:00.000Z",
		LastUpdated:         now,
	})
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// A fresh instance sees the persisted state
	c2 := newLogIndex(tmpDir, discardLogger(), 0644)
	ci, ok, err := c2.Get("uploads")
	if err != nil || !ok {
		t.Fatalf("Expected persisted entry, ok=%v err=%v", ok, err)
	}
	if !ci.LastUpdated.Equal(now) {
		t.Errorf("Expected lastUpdated %v, got %v", now, ci.LastUpdated)
	}
	if c2.Len() != 1 {
		t.Errorf("Expected 1 category, got %d", c2.Len())
	}
}
