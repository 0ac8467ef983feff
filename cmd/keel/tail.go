package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/aretw0/keel"
)

func newTailCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "tail <category>",
		Short: "Print the last entries of a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := opts.open(keel.WithMustExist(true))
			if err != nil {
				return err
			}

			entries, err := eng.Log.Read(cmd.Context(), args[0], limit)
			if err != nil {
				return &exitError{code: exitCommandError, err: err}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			for _, e := range entries {
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "lines", "n", 10, "Number of entries; 0 prints all")
	return cmd
}
