package main

import (
	"encoding/json"

	"github.com/aretw0/introspection"
	"github.com/spf13/cobra"

	"github.com/aretw0/keel"
)

type componentStatus struct {
	Type  string `json:"type"`
	State any    `json:"state"`
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the store, the audit log and the orchestrator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := opts.open(keel.WithMustExist(true))
			if err != nil {
				return err
			}

			components := []introspection.Introspectable{eng.Store, eng.Log, eng.Orchestrator}
			out := make([]componentStatus, 0, len(components))
			for _, c := range components {
				s := componentStatus{State: c.State()}
				if comp, ok := c.(introspection.Component); ok {
					s.Type = comp.ComponentType()
				}
				out = append(out, s)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	return cmd
}
