package platform

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/keel/pkg/adapters/fs"
	"github.com/aretw0/keel/pkg/core"
)

func TestNew_Defaults(t *testing.T) {
	root := t.TempDir()

	eng, err := New(root)
	require.NoError(t, err)

	assert.Equal(t, root, eng.Root)
	assert.DirExists(t, filepath.Join(root, ".keel", "data"))
	assert.DirExists(t, filepath.Join(root, ".keel", "logs"))
	assert.Equal(t, core.DefaultTransactionsCategory, eng.Orchestrator.Category())

	ctx := context.Background()
	res := eng.Orchestrator.Execute(ctx, func(ctx context.Context, tx *core.Tx) (any, error) {
		return nil, tx.Write(ctx, "accounts/a-1", core.Object{"balance": core.Int(10)})
	})
	require.NoError(t, res.Err)

	v, err := eng.Store.Read(ctx, "accounts/a-1")
	require.NoError(t, err)
	assert.Equal(t, core.Int(10), v.(core.Object)["balance"])

	result, err := eng.Log.Verify(ctx, core.DefaultTransactionsCategory)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 1, result.EntriesChecked)
}

func TestNew_ConfigFile(t *testing.T) {
	root := t.TempDir()
	body := "systemDir: .audit\ntransactionsCategory: tx\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileName), []byte(body), 0644))

	eng, err := New(root)
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(root, ".audit", "logs"))
	assert.Equal(t, "tx", eng.Orchestrator.Category())
	assert.Equal(t, ".audit", eng.Config.SystemDir)

	// Explicit options override the file.
	eng, err = New(root, WithSystemDir(".other"), WithTransactionsCategory("ops"))
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(root, ".other", "data"))
	assert.Equal(t, "ops", eng.Orchestrator.Category())

	// The file can be ignored altogether.
	eng, err = New(root, WithoutConfigFile())
	require.NoError(t, err)
	assert.Equal(t, core.DefaultTransactionsCategory, eng.Orchestrator.Category())
}

func TestNew_InvalidConfigFile(t *testing.T) {
	root := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("readOnly: [oops\n"), 0644))

	_, err := New(root, WithConfigFile(cfgPath))
	assert.Error(t, err)
}

func TestNew_ReadOnly(t *testing.T) {
	root := t.TempDir()

	eng, err := New(root)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = eng.Log.Append(ctx, "payments", "PAYMENT", core.Object{"amount": core.Int(1)})
	require.NoError(t, err)

	ro, err := New(root, WithReadOnly(true))
	require.NoError(t, err)

	_, err = ro.Log.Append(ctx, "payments", "PAYMENT", nil)
	assert.ErrorIs(t, err, core.ErrReadOnly)
	assert.ErrorIs(t, ro.Store.Write(ctx, "k", core.Null{}), core.ErrReadOnly)

	result, err := ro.Log.Verify(ctx, "payments")
	require.NoError(t, err)
	assert.True(t, result.Valid)

	// A read-only engine never creates the root.
	_, err = New(filepath.Join(root, "missing"), WithReadOnly(true))
	assert.Error(t, err)
}

func TestNew_Options(t *testing.T) {
	root := t.TempDir()
	frozen := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	eng, err := New(root,
		WithLogger(logger),
		WithClock(func() time.Time { return frozen }),
		WithCodec(".yml", fs.JSONCodec{}),
		WithFileMode(0600),
		WithMustExist(true),
	)
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "keel engine opened")

	ctx := context.Background()
	entry, err := eng.Log.Append(ctx, "payments", "PAYMENT", nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01T12:00:00.000Z", entry.Timestamp)

	// .yml now uses the JSON codec.
	require.NoError(t, eng.Store.Write(ctx, "cfg.yml", core.Object{"a": core.Int(1)}))
	raw, err := os.ReadFile(filepath.Join(eng.Store.Path, "cfg.yml"))
	require.NoError(t, err)
	assert.Equal(t, byte('{'), raw[0])

	info, err := os.Stat(filepath.Join(eng.Store.Path, "cfg.yml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	_, err = New(filepath.Join(root, "missing"), WithMustExist(true))
	assert.Error(t, err)
}
