package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/tumorscope/pkg/errors"
)

func newModelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the selectable models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tARTIFACT")
			for _, m := range a.cfg.Models {
				fmt.Fprintf(w, "%s\t%s\n", m.ID, a.cfg.ModelPath(m))
			}
			return w.Flush()
		},
	}
}

func newImportanceCmd(a *app) *cobra.Command {
	var (
		modelID string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "importance",
		Short: "Show the global feature importance of a model",
		Long: `Prints |coefficient| for linear models or the stored feature importances
for tree ensembles, in ascending order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}
			g, err := a.pipeline(reg, nil).GlobalImportance(cmd.Context(), modelID)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return errors.Wrap(enc.Encode(g), "encode importance")
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "FEATURE\tIMPORTANCE (%s)\n", g.Family)
			for _, s := range g.SortedAscending() {
				fmt.Fprintf(w, "%s\t%.6g\n", s.Feature, s.Score)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&modelID, "model", "m", "", "model identifier (required)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}
