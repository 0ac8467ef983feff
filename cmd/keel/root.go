package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/keel"
)

// Exit codes.
const (
	exitFailure      = 1 // verification found anomalies
	exitCommandError = 2 // bad input, unreadable root, I/O failure
)

// exitError carries a process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitCommandError
}

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	verbose   bool
	root      string
	systemDir string
	readOnly  bool
	logger    *slog.Logger
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "keel",
		Short: "Atomic record store and hash-chained audit log",
		Long: `keel keeps records on disk with verified atomic writes and keeps an
append-only, SHA-256 chained audit log per category. Tampering with a log
is detected by replaying its chain.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if opts.verbose {
				level = slog.LevelDebug
			}

			handlerOpts := &slog.HandlerOptions{
				Level: level,
			}
			opts.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), handlerOpts))
			slog.SetDefault(opts.logger)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringVarP(&opts.root, "root", "r", "", "Root directory (default: nearest parent holding .keel or keel.yaml, else the working directory)")
	cmd.PersistentFlags().StringVar(&opts.systemDir, "system-dir", "", "Hidden directory holding data and logs (default .keel)")
	cmd.PersistentFlags().BoolVar(&opts.readOnly, "read-only", false, "Open the root read-only")

	cmd.AddCommand(
		newInitCmd(opts),
		newPutCmd(opts),
		newGetCmd(opts),
		newAppendCmd(opts),
		newTailCmd(opts),
		newVerifyCmd(opts),
		newExportCmd(opts),
		newArchiveCmd(opts),
		newWatchCmd(opts),
		newStatusCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// resolveRoot returns --root, or the nearest keel root above the working
// directory, or the working directory itself.
func (o *rootOptions) resolveRoot() (string, error) {
	if o.root != "" {
		return o.root, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	if root, err := keel.FindRoot(cwd); err == nil {
		return root, nil
	}
	return cwd, nil
}

// open opens the engine described by the persistent flags.
func (o *rootOptions) open(extra ...keel.Option) (*keel.Engine, error) {
	root, err := o.resolveRoot()
	if err != nil {
		return nil, &exitError{code: exitCommandError, err: err}
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	opts := []keel.Option{keel.WithLogger(logger)}
	if o.systemDir != "" {
		opts = append(opts, keel.WithSystemDir(o.systemDir))
	}
	if o.readOnly {
		opts = append(opts, keel.WithReadOnly(true))
	}
	opts = append(opts, extra...)

	eng, err := keel.New(root, opts...)
	if err != nil {
		return nil, &exitError{code: exitCommandError, err: fmt.Errorf("failed to open %s: %w", root, err)}
	}
	return eng, nil
}
