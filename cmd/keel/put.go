package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aretw0/keel"
	"github.com/aretw0/keel/pkg/core"
)

func newPutCmd(opts *rootOptions) *cobra.Command {
	var (
		category string
		action   string
	)

	cmd := &cobra.Command{
		Use:   "put <key> [json]",
		Short: "Write a resource",
		Long: `Write a JSON value under key, atomically. The value is read from stdin
when omitted. With --category the write and an audit entry are committed
together as one transaction.`,
		Example: `  keel put accounts/a-1 '{"balance": 100}'
  echo '{"grade": 7}' | keel put schools/north/s-1.yaml
  keel put payments/p-1 '{"amount": 10}' --category payments --action PAYMENT_CREATED`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			raw, err := valueArg(cmd, args, 1)
			if err != nil {
				return err
			}
			v, err := core.ParseValue(raw)
			if err != nil {
				return &exitError{code: exitCommandError, err: fmt.Errorf("invalid JSON value: %w", err)}
			}

			eng, err := opts.open(keel.WithMustExist(true))
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if category == "" {
				if err := eng.Store.Write(ctx, key, v); err != nil {
					return &exitError{code: exitCommandError, err: err}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", key)
				return nil
			}

			res := eng.Orchestrator.Execute(ctx, func(ctx context.Context, tx *keel.Tx) (any, error) {
				if err := tx.Write(ctx, key, v); err != nil {
					return nil, err
				}
				return nil, tx.Append(ctx, category, action, core.Object{
					"key":   core.String(key),
					"value": v,
				})
			})
			if res.Err != nil {
				return &exitError{code: exitCommandError, err: fmt.Errorf("transaction %s rolled back: %w", res.TransactionID, res.Err)}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (transaction %s)\n", key, res.TransactionID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "Also append an audit entry to this category")
	cmd.Flags().StringVarP(&action, "action", "a", "RESOURCE_WRITTEN", "Action of the audit entry")
	return cmd
}

// valueArg returns args[i], or stdin when the argument is absent.
func valueArg(cmd *cobra.Command, args []string, i int) ([]byte, error) {
	if len(args) > i {
		return []byte(args[i]), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, &exitError{code: exitCommandError, err: fmt.Errorf("failed to read stdin: %w", err)}
	}
	return data, nil
}
