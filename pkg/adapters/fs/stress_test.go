package fs_test

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/keel/pkg/adapters/fs"
	"github.com/aretw0/keel/pkg/core"
)

// TestStress_NoisyNeighbor writes unrelated files into the data and log
// directories while the store writes, the log appends and a watcher runs.
// Afterwards every resource must decode, the chain must verify and the
// watcher must not have reported anything.
func TestStress_NoisyNeighbor(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}

	cfg := fs.Config{Path: t.TempDir(), SystemDir: ".keel"}
	store := fs.NewStore(cfg)
	log := fs.NewAuditLog(cfg)
	require.NoError(t, store.Initialize(context.Background()))
	require.NoError(t, log.Initialize(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := log.Watch(ctx, "events")
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		appended atomic.Int64
		reported atomic.Int64
	)

	// External actor: files the store and log must ignore.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			dir := cfg.DataDir()
			if rand.Intn(2) == 0 {
				dir = cfg.LogDir()
			}
			name := filepath.Join(dir, fmt.Sprintf("noise-%d.txt", rand.Intn(10)))
			_ = os.WriteFile(name, []byte(time.Now().String()), 0644)
			time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
		}
	}()

	// Internal actors: writes and appends.
	for w := 0; w < 3; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for ctx.Err() == nil {
				key := fmt.Sprintf("data-%d", rand.Intn(10))
				if err := store.Write(context.Background(), key, core.Object{"writer": core.Int(w)}); err != nil {
					t.Errorf("write %s: %v", key, err)
					return
				}
				if _, err := log.Append(context.Background(), "events", "TICK", core.Object{"writer": core.Int(w)}); err != nil {
					t.Errorf("append: %v", err)
					return
				}
				appended.Add(1)
			}
		}(w)
	}

	// Observer: drains the watcher until it closes.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range events {
			reported.Add(1)
		}
	}()

	wg.Wait()

	assert.Zero(t, reported.Load(), "valid appends must not raise integrity events")

	keys, err := store.Keys(context.Background())
	require.NoError(t, err)
	for _, key := range keys {
		_, err := store.Read(context.Background(), key)
		assert.NoError(t, err, key)
	}

	res, err := log.Verify(context.Background(), "events")
	require.NoError(t, err)
	assert.True(t, res.Valid, "%v", res.Errors)
	assert.Equal(t, int(appended.Load()), res.EntriesChecked)

	idx, err := log.Index(context.Background())
	require.NoError(t, err)
	assert.Equal(t, appended.Load(), idx["events"].EntryCount)

	cats, err := log.Categories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"events"}, cats)
	t.Logf("survived with %d entries and %d resources", appended.Load(), len(keys))
}
