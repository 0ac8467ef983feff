package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/keel/internal/platform"
	"github.com/aretw0/keel/pkg/adapters/blob"
	"github.com/aretw0/keel/pkg/adapters/fs"
)

func newInitCmd(opts *rootOptions) *cobra.Command {
	var writeConfig bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a keel root",
		Long: `Create the data and log directories of a keel root. With --config a
keel.yaml holding the effective settings is written next to them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.root == "" {
				cwd, err := os.Getwd()
				if err != nil {
					return err
				}
				opts.root = cwd
			}
			eng, err := opts.open()
			if err != nil {
				return err
			}

			if writeConfig {
				path := filepath.Join(eng.Root, platform.ConfigFileName)
				if err := writeDefaultConfig(path, eng); err != nil {
					return &exitError{code: exitCommandError, err: err}
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Initialized keel root in", eng.Root)
			return nil
		},
	}

	cmd.Flags().BoolVar(&writeConfig, "config", false, "Also write keel.yaml")
	return cmd
}

func writeDefaultConfig(path string, eng *platform.Engine) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	state := eng.Store.State().(fs.StoreState)
	cfg := platform.FileConfig{
		SystemDir:            state.SystemDir,
		ReadOnly:             state.ReadOnly,
		TransactionsCategory: eng.Orchestrator.Category(),
		Archive: blob.Config{
			Driver: blob.DriverFilesystem,
			Path:   "./archive",
		},
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
