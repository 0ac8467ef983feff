package platform

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/aretw0/keel/pkg/adapters/fs"
	"github.com/aretw0/keel/pkg/core"
)

// Engine bundles the components opened on one root.
type Engine struct {
	Root         string
	Store        *fs.Store
	Log          *fs.AuditLog
	Orchestrator *core.Orchestrator
	// Config is the parsed keel.yaml (zero when absent).
	Config FileConfig
}

// New opens the keel root at path: it reads keel.yaml, applies opts on
// top of it, initializes the data and log directories and wires the
// orchestrator.
//
//	eng, err := platform.New("./ledger", platform.WithLogger(logger))
func New(path string, opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	root, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", path, err)
	}

	var fileCfg FileConfig
	if !o.noConfig {
		cfgPath := o.configFile
		if cfgPath == "" {
			cfgPath = filepath.Join(root, ConfigFileName)
		}
		fileCfg, err = LoadConfig(cfgPath)
		if err != nil {
			return nil, err
		}
	}

	cfg := resolve(root, fileCfg, o)
	store := fs.NewStore(cfg)
	log := fs.NewAuditLog(cfg)

	ctx := context.Background()
	if err := store.Initialize(ctx); err != nil {
		return nil, err
	}
	if err := log.Initialize(ctx); err != nil {
		return nil, err
	}

	category := o.category
	if category == "" {
		category = fileCfg.TransactionsCategory
	}
	orch := core.NewOrchestrator(store, log, core.OrchestratorConfig{
		Category: category,
		Clock:    cfg.Clock,
		Logger:   o.logger,
		Observer: o.observer,
	})

	if o.logger != nil {
		o.logger.Debug("keel engine opened",
			"root", root,
			"system_dir", cfg.SystemDir,
			"read_only", cfg.ReadOnly,
			"transactions", orch.Category())
	}

	return &Engine{
		Root:         root,
		Store:        store,
		Log:          log,
		Orchestrator: orch,
		Config:       fileCfg,
	}, nil
}

// resolve merges keel.yaml and explicit options into an fs.Config.
// Options win over the file.
func resolve(root string, fileCfg FileConfig, o *options) fs.Config {
	systemDir := o.systemDir
	if systemDir == "" {
		systemDir = fileCfg.SystemDir
	}
	if systemDir == "" {
		systemDir = DefaultSystemDir
	}

	readOnly := fileCfg.ReadOnly
	if o.readOnly != nil {
		readOnly = *o.readOnly
	}

	var codecs map[string]fs.Codec
	if len(o.codecs) > 0 {
		codecs = fs.DefaultCodecs()
		for ext, c := range o.codecs {
			codecs[ext] = c
		}
	}

	return fs.Config{
		Path:         root,
		SystemDir:    systemDir,
		MustExist:    o.mustExist,
		ReadOnly:     readOnly,
		Logger:       o.logger,
		Observer:     o.observer,
		Clock:        o.clock,
		Codecs:       codecs,
		FileMode:     o.fileMode,
		ErrorHandler: o.errorHandler,
	}
}
