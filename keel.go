package keel

import (
	"context"
	"log/slog"
	"os"

	"github.com/aretw0/keel/internal/platform"
	"github.com/aretw0/keel/pkg/adapters/fs"
	"github.com/aretw0/keel/pkg/core"
	"github.com/aretw0/keel/pkg/typed"
)

// --- Types ---

// Engine bundles the store, audit log and orchestrator opened on a root.
type Engine = platform.Engine

// Value is a JSON-compatible value.
type Value = core.Value

// Entry is one record of a category log.
type Entry = core.Entry

// Tx is the handle passed to a unit of work.
type Tx = core.Tx

// TxResult is the outcome of a transaction.
type TxResult[R any] = core.TxResult[R]

// Resource is a typed record bound to a key.
type Resource[T any] = typed.Resource[T]

// TypedRepository is a public alias for the typed repository.
type TypedRepository[T any] = typed.Repository[T]

// TypedTransaction is a public alias for the typed transaction handle.
type TypedTransaction[T any] = typed.Transaction[T]

// --- Configuration ---

// Option defines a functional option for configuring keel.
type Option = platform.Option

// WithLogger sets the logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithReadOnly opens the root for reading and verification only.
func WithReadOnly(enabled bool) Option {
	return platform.WithReadOnly(enabled)
}

// WithSystemDir sets the hidden directory name (default ".keel").
func WithSystemDir(name string) Option {
	return platform.WithSystemDir(name)
}

// WithMustExist requires the root directory to exist already.
func WithMustExist(must bool) Option {
	return platform.WithMustExist(must)
}

// WithClock replaces time.Now for timestamps.
func WithClock(clock core.Clock) Option {
	return platform.WithClock(clock)
}

// WithObserver registers a metrics observer.
func WithObserver(observer core.Observer) Option {
	return platform.WithObserver(observer)
}

// WithCodec registers a resource codec for a key extension.
func WithCodec(ext string, c fs.Codec) Option {
	return platform.WithCodec(ext, c)
}

// WithTransactionsCategory sets the category receiving transaction records.
func WithTransactionsCategory(category string) Option {
	return platform.WithTransactionsCategory(category)
}

// WithFileMode sets the permission bits of resource files.
func WithFileMode(mode os.FileMode) Option {
	return platform.WithFileMode(mode)
}

// WithWatcherErrorHandler registers a callback for tamper watcher errors.
func WithWatcherErrorHandler(fn func(error)) Option {
	return platform.WithWatcherErrorHandler(fn)
}

// WithConfigFile reads settings from path instead of <root>/keel.yaml.
func WithConfigFile(path string) Option {
	return platform.WithConfigFile(path)
}

// --- Factory ---

// New opens (and if needed creates) the keel root at path.
func New(path string, opts ...Option) (*Engine, error) {
	return platform.New(path, opts...)
}

// FindRoot looks upwards from startDir for a .keel directory or keel.yaml.
func FindRoot(startDir string) (string, error) {
	return platform.FindRoot(startDir)
}

// --- Typed Helpers ---

// NewTypedRepository creates a type-safe wrapper around the engine's store.
func NewTypedRepository[T any](e *Engine) *typed.Repository[T] {
	return typed.NewRepository[T](e.Store)
}

// Execute runs work as one transaction on the engine's orchestrator.
func Execute[R any](ctx context.Context, e *Engine, work func(context.Context, *core.Tx) (R, error)) core.TxResult[R] {
	return typed.Execute(ctx, e.Orchestrator, work)
}
