package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/keel"
	"github.com/aretw0/keel/pkg/core"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export <category>",
		Short: "Export a category as JSON or CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := opts.open(keel.WithMustExist(true))
			if err != nil {
				return err
			}

			data, err := eng.Log.Export(cmd.Context(), args[0], core.ExportFormat(format))
			if err != nil {
				return &exitError{code: exitCommandError, err: err}
			}

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0644); err != nil {
				return &exitError{code: exitCommandError, err: fmt.Errorf("failed to write %s: %w", output, err)}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(core.FormatJSON), "Output format (json|csv)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	return cmd
}
