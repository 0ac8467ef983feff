package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/aretw0/keel/pkg/core"
)

// Config holds the configuration shared by the filesystem store and audit log.
type Config struct {
	Path      string // Base directory; everything lives below it.
	SystemDir string // e.g. ".keel"; holds the data and log directories.
	MustExist bool
	ReadOnly  bool
	Logger    *slog.Logger
	Observer  core.Observer
	Clock     core.Clock
	Codecs    map[string]Codec // Extension -> codec. Defaults to DefaultCodecs().
	FileMode  os.FileMode      // Defaults to 0644.
	// ErrorHandler receives errors from background work (the tamper watcher).
	ErrorHandler func(error)
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.Observer == nil {
		c.Observer = core.NopObserver{}
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Codecs == nil {
		c.Codecs = DefaultCodecs()
	}
	if c.FileMode == 0 {
		c.FileMode = 0644
	}
	return c
}

// DataDir is the directory holding resources.
func (c Config) DataDir() string { return filepath.Join(c.Path, c.SystemDir, "data") }

// LogDir is the directory holding category logs and index.json.
func (c Config) LogDir() string { return filepath.Join(c.Path, c.SystemDir, "logs") }

// Store implements core.Store on the filesystem. Each resource is one file
// plus a single-slot backup.
type Store struct {
	Path   string
	config Config
	locks  *keyedMutex
}

// NewStore creates a new filesystem-backed store.
func NewStore(config Config) *Store {
	config = config.withDefaults()
	return &Store{
		Path:   config.DataDir(),
		config: config,
		locks:  newKeyedMutex(),
	}
}

// Initialize ensures the data directory exists.
func (s *Store) Initialize(ctx context.Context) error {
	return initDir(s.Path, s.config)
}

func initDir(path string, config Config) error {
	if config.MustExist || config.ReadOnly {
		info, err := os.Stat(config.Path)
		if os.IsNotExist(err) {
			return fmt.Errorf("path does not exist: %s", config.Path)
		}
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("path is not a directory: %s", config.Path)
		}
	}
	if config.ReadOnly {
		return nil
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// Write replaces the value of key atomically.
//
// Workflow:
//  1. Validate the key and pick the codec from its extension.
//  2. Serialize the value.
//  3. Under the key lock: write a temp file, read it back and compare,
//     rotate the current file into the .bak slot, rename the temp file over
//     the canonical path.
func (s *Store) Write(ctx context.Context, key string, v core.Value) error {
	start := time.Now()
	err := s.write(ctx, key, v)
	s.config.Observer.ObserveWrite(key, err, time.Since(start))
	return err
}

func (s *Store) write(ctx context.Context, key string, v core.Value) error {
	_, _, err := s.swap(ctx, key, v, false)
	return err
}

// Swap implements core.Snapshotter. It writes v like Write and returns the
// bytes key held before, captured under the same lock as the write.
func (s *Store) Swap(ctx context.Context, key string, v core.Value) ([]byte, bool, error) {
	start := time.Now()
	prev, existed, err := s.swap(ctx, key, v, true)
	s.config.Observer.ObserveWrite(key, err, time.Since(start))
	return prev, existed, err
}

func (s *Store) swap(ctx context.Context, key string, v core.Value, capture bool) ([]byte, bool, error) {
	if s.config.ReadOnly {
		return nil, false, core.ErrReadOnly
	}
	if err := ctx.Err(); err != nil {
		return nil, false, core.NewStoreError(core.IoFailure, key, err)
	}

	path, codec, err := s.resolve(key)
	if err != nil {
		return nil, false, err
	}

	data, err := codec.Encode(v)
	if err != nil {
		return nil, false, core.NewStoreError(core.IoFailure, key, fmt.Errorf("failed to serialize: %w", err))
	}

	unlock := s.locks.Lock(path)
	defer unlock()

	var prev []byte
	var existed bool
	if capture {
		prev, err = os.ReadFile(path)
		switch {
		case err == nil:
			existed = true
		case os.IsNotExist(err):
			prev = nil
		default:
			return nil, false, core.NewStoreError(core.IoFailure, key, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, false, core.NewStoreError(core.IoFailure, key, fmt.Errorf("failed to create directories: %w", err))
	}

	if err := writeFileAtomic(path, data, s.config.FileMode, path+BackupSuffix); err != nil {
		switch {
		case errors.Is(err, errBackupNotRotated):
			s.config.Logger.Warn("resource written but backup is stale", "key", key, "error", err)
		case errors.Is(err, core.ErrVerificationMismatch):
			return nil, false, core.NewStoreError(core.VerificationMismatch, key, err)
		default:
			return nil, false, core.NewStoreError(core.IoFailure, key, err)
		}
	}

	s.config.Logger.Debug("resource written", "key", key, "bytes", len(data))
	return prev, existed, nil
}

// ValidateKey implements core.KeyValidator.
func (s *Store) ValidateKey(key string) error {
	_, _, err := s.resolve(key)
	return err
}

// Read loads and parses the current value of key.
func (s *Store) Read(ctx context.Context, key string) (core.Value, error) {
	path, codec, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	return s.load(key, path, codec)
}

// ReadBackup loads and parses the backup slot of key.
func (s *Store) ReadBackup(ctx context.Context, key string) (core.Value, error) {
	path, codec, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	return s.load(key, path+BackupSuffix, codec)
}

func (s *Store) load(key, path string, codec Codec) (core.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewStoreError(core.NotFound, key, err)
		}
		return nil, core.NewStoreError(core.IoFailure, key, err)
	}

	v, err := codec.Decode(data)
	if err != nil {
		return nil, core.NewStoreError(core.Corrupt, key, err)
	}
	return v, nil
}

// Snapshot implements core.Snapshotter.
func (s *Store) Snapshot(ctx context.Context, key string) ([]byte, bool, error) {
	path, _, err := s.resolve(key)
	if err != nil {
		return nil, false, err
	}

	unlock := s.locks.Lock(path)
	defer unlock()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, core.NewStoreError(core.IoFailure, key, err)
	}
	return data, true, nil
}

// Restore implements core.Snapshotter. The backup slot is left untouched.
func (s *Store) Restore(ctx context.Context, key string, data []byte, existed bool) error {
	if s.config.ReadOnly {
		return core.ErrReadOnly
	}
	path, _, err := s.resolve(key)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(path)
	defer unlock()

	if !existed {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return core.NewStoreError(core.IoFailure, key, err)
		}
		return nil
	}
	if err := writeFileAtomic(path, data, s.config.FileMode, ""); err != nil {
		if errors.Is(err, core.ErrVerificationMismatch) {
			return core.NewStoreError(core.VerificationMismatch, key, err)
		}
		return core.NewStoreError(core.IoFailure, key, err)
	}

	s.config.Logger.Debug("resource restored", "key", key)
	return nil
}

// Keys lists the stored resource keys, sorted.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	var patterns []string
	for ext := range s.config.Codecs {
		patterns = append(patterns, "**/*"+ext)
	}

	seen := make(map[string]bool)
	fsys := os.DirFS(s.Path)
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to list resources: %w", err)
		}
		for _, m := range matches {
			if strings.HasPrefix(filepath.Base(m), TempFilePrefix) {
				continue
			}
			key := m
			if filepath.Ext(m) == DefaultExt {
				key = strings.TrimSuffix(m, DefaultExt)
			}
			seen[key] = true
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// resolve validates key and returns its canonical path and codec.
// Keys without a known extension are stored with DefaultExt.
func (s *Store) resolve(key string) (string, Codec, error) {
	if err := validateKey(key); err != nil {
		return "", nil, err
	}

	filename := key
	codec, ok := s.config.Codecs[filepath.Ext(key)]
	if !ok {
		filename = key + DefaultExt
		codec = s.config.Codecs[DefaultExt]
		if codec == nil {
			codec = JSONCodec{}
		}
	}
	return filepath.Join(s.Path, filepath.FromSlash(filename)), codec, nil
}

func validateKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return fmt.Errorf("%w: empty key", core.ErrInvalidKey)
	case strings.HasPrefix(key, "/") || filepath.IsAbs(key):
		return fmt.Errorf("%w: absolute key %q", core.ErrInvalidKey, key)
	case strings.Contains(key, ".."):
		return fmt.Errorf("%w: key %q contains '..'", core.ErrInvalidKey, key)
	case strings.Contains(key, "\\"):
		return fmt.Errorf("%w: key %q contains a backslash", core.ErrInvalidKey, key)
	case strings.HasSuffix(key, BackupSuffix):
		return fmt.Errorf("%w: key %q uses the backup suffix", core.ErrInvalidKey, key)
	case strings.HasPrefix(filepath.Base(key), TempFilePrefix):
		return fmt.Errorf("%w: key %q uses the temp file prefix", core.ErrInvalidKey, key)
	}
	return nil
}

var _ core.Store = (*Store)(nil)
var _ core.Snapshotter = (*Store)(nil)
var _ core.KeyValidator = (*Store)(nil)
