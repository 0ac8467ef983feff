package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aretw0/keel"
	"github.com/aretw0/keel/pkg/core"
)

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	var (
		pattern string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "verify [category...]",
		Short: "Replay hash chains and report tampering",
		Long: `Verify recomputes every entry hash of each category and checks the links
between entries. Without arguments every category matching --pattern is
verified.

Exit codes:
  0 - every chain is valid
  1 - at least one chain is broken
  2 - command error`,
		Example: `  keel verify payments
  keel verify --pattern 'school-*'
  keel verify --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := opts.open(keel.WithMustExist(true))
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			categories := args
			if len(categories) == 0 {
				categories, err = eng.Log.Match(ctx, pattern)
				if err != nil {
					return &exitError{code: exitCommandError, err: err}
				}
			}

			results := make([]core.VerifyResult, 0, len(categories))
			invalid := 0
			for _, category := range categories {
				res, err := eng.Log.Verify(ctx, category)
				if err != nil {
					return &exitError{code: exitCommandError, err: err}
				}
				if !res.Valid {
					invalid++
				}
				results = append(results, res)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else {
				printResults(cmd.OutOrStdout(), results)
			}

			if invalid > 0 {
				return &exitError{code: exitFailure, err: fmt.Errorf("%d of %d categories failed verification", invalid, len(results))}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&pattern, "pattern", "p", "*", "Glob selecting categories when none are named")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output results as JSON")
	return cmd
}

func printResults(w io.Writer, results []core.VerifyResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No categories found.")
		return
	}
	for _, r := range results {
		status := "valid"
		if !r.Valid {
			status = "INVALID"
		}
		fmt.Fprintf(w, "%s: %s (%d entries)\n", r.Category, status, r.EntriesChecked)
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  [%s] %s\n", e.Kind, e)
		}
	}
}
