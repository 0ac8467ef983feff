package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/keel"
	"github.com/aretw0/keel/pkg/core"
)

func newAppendCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "append <category> <action> [details-json]",
		Short: "Append an entry to an audit category",
		Long: `Append one hash-chained entry to category. Details are a JSON value read
from the third argument, or from stdin when it is "-". The sealed entry is
printed as JSON.`,
		Example: `  keel append payments PAYMENT_CREATED '{"id": "p-1", "amount": 100}'
  keel append logins LOGIN`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var details core.Value
			if len(args) == 3 {
				raw := []byte(args[2])
				if args[2] == "-" {
					var err error
					if raw, err = valueArg(cmd, nil, 0); err != nil {
						return err
					}
				}
				v, err := core.ParseValue(raw)
				if err != nil {
					return &exitError{code: exitCommandError, err: fmt.Errorf("invalid details: %w", err)}
				}
				details = v
			}

			eng, err := opts.open(keel.WithMustExist(true))
			if err != nil {
				return err
			}

			entry, err := eng.Log.Append(cmd.Context(), args[0], args[1], details)
			if err != nil {
				return &exitError{code: exitCommandError, err: err}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			return enc.Encode(entry)
		},
	}
	return cmd
}
