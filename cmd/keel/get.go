package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/keel"
	"github.com/aretw0/keel/pkg/adapters/fs"
)

func newGetCmd(opts *rootOptions) *cobra.Command {
	var backup bool

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Read a resource",
		Long:  `Print the value stored under key as indented JSON. --backup prints the previous version instead.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := opts.open(keel.WithMustExist(true))
			if err != nil {
				return err
			}

			read := eng.Store.Read
			if backup {
				read = eng.Store.ReadBackup
			}
			v, err := read(cmd.Context(), args[0])
			if err != nil {
				return &exitError{code: exitCommandError, err: err}
			}

			out, err := fs.JSONCodec{}.Encode(v)
			if err != nil {
				return &exitError{code: exitCommandError, err: err}
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.Flags().BoolVar(&backup, "backup", false, "Read the .bak slot")
	return cmd
}
