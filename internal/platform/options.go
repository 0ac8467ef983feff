package platform

import (
	"log/slog"
	"os"

	"github.com/aretw0/keel/pkg/adapters/fs"
	"github.com/aretw0/keel/pkg/core"
)

// options holds the internal configuration for a keel engine.
type options struct {
	logger       *slog.Logger
	systemDir    string
	readOnly     *bool
	mustExist    bool
	clock        core.Clock
	observer     core.Observer
	codecs       map[string]fs.Codec
	category     string
	fileMode     os.FileMode
	errorHandler func(error)
	configFile   string
	noConfig     bool
}

// Option defines a functional option for configuring keel.
type Option func(*options)

// defaultOptions returns the default configuration.
func defaultOptions() *options {
	return &options{
		codecs: make(map[string]fs.Codec),
	}
}

// WithLogger sets the logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithReadOnly enables read-only mode.
// In this mode:
// 1. Write and Append return ErrReadOnly.
// 2. Directory creation is skipped; the root must exist.
// 3. The log index is not rewritten.
func WithReadOnly(enabled bool) Option {
	return func(o *options) {
		o.readOnly = &enabled
	}
}

// WithSystemDir sets the hidden directory holding data and logs.
// Defaults to ".keel".
func WithSystemDir(name string) Option {
	return func(o *options) {
		o.systemDir = name
	}
}

// WithMustExist requires the root directory to exist already.
func WithMustExist(must bool) Option {
	return func(o *options) {
		o.mustExist = must
	}
}

// WithClock replaces time.Now for entry and step timestamps.
func WithClock(clock core.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithObserver registers a metrics observer (see pkg/adapters/prom).
func WithObserver(observer core.Observer) Option {
	return func(o *options) {
		o.observer = observer
	}
}

// WithCodec registers a codec for a key extension, e.g. ".yml".
func WithCodec(ext string, c fs.Codec) Option {
	return func(o *options) {
		o.codecs[ext] = c
	}
}

// WithTransactionsCategory sets the category receiving transaction records.
func WithTransactionsCategory(category string) Option {
	return func(o *options) {
		o.category = category
	}
}

// WithFileMode sets the permission bits of resource files.
func WithFileMode(mode os.FileMode) Option {
	return func(o *options) {
		o.fileMode = mode
	}
}

// WithWatcherErrorHandler registers a callback for errors raised inside the
// tamper watcher loop, which are otherwise only logged.
func WithWatcherErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.errorHandler = fn
	}
}

// WithConfigFile reads settings from the given file instead of
// <root>/keel.yaml. Explicit options still take precedence.
func WithConfigFile(path string) Option {
	return func(o *options) {
		o.configFile = path
	}
}

// WithoutConfigFile skips keel.yaml entirely.
func WithoutConfigFile() Option {
	return func(o *options) {
		o.noConfig = true
	}
}
