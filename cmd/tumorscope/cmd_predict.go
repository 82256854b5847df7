package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/tumorscope/audit"
	"github.com/YuminosukeSato/tumorscope/pipeline"
	"github.com/YuminosukeSato/tumorscope/pkg/errors"
)

func newPredictCmd(a *app) *cobra.Command {
	var (
		modelID string
		input   string
		dryRun  bool
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict, explain and record one measurement record",
		Long: `Reads a JSON object mapping every feature name to its value, predicts
Benign or Malignant, prints the explanation and appends the prediction to the
audit store.

Example:
  tumorscope predict --model LightGBM --input patient.json
  cat patient.json | tumorscope predict --model "Logistic Regression" --input -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readFeatures(cmd.InOrStdin(), input)
			if err != nil {
				return err
			}
			reg, err := a.registry()
			if err != nil {
				return err
			}

			var store audit.Store
			if !dryRun {
				if store, err = a.openStore(cmd.Context()); err != nil {
					return err
				}
				defer store.Close()
			}

			rep, err := a.pipeline(reg, store).Run(cmd.Context(), modelID, raw)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return errors.Wrap(enc.Encode(rep), "encode report")
			}
			return printReport(cmd.OutOrStdout(), rep)
		},
	}
	cmd.Flags().StringVarP(&modelID, "model", "m", "", "model identifier (required)")
	cmd.Flags().StringVarP(&input, "input", "i", "", "feature JSON file, - for stdin (required)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "do not write an audit record")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full report as JSON")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func readFeatures(stdin io.Reader, path string) (map[string]float64, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open input %s", path)
		}
		defer f.Close()
		r = f
	}
	var raw map[string]float64
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.NewValidationError("input", "must be a JSON object of feature values: "+err.Error(), path)
	}
	return raw, nil
}

func printReport(out io.Writer, rep *pipeline.Report) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Model:\t%s (%s)\n", rep.Model, rep.Family)
	fmt.Fprintf(w, "Prediction:\t%s\n", rep.Prediction)
	if rep.Probabilities != nil {
		fmt.Fprintf(w, "P(Benign):\t%.4f\n", rep.Probabilities.Benign)
		fmt.Fprintf(w, "P(Malignant):\t%.4f\n", rep.Probabilities.Malignant)
	}
	if rep.LogOdds != nil {
		fmt.Fprintf(w, "Log-odds:\t%.6g\n", *rep.LogOdds)
		fmt.Fprintf(w, "sigmoid(log-odds):\t%.6f\n", *rep.SigmoidProbability)
	}
	for _, warn := range rep.Warnings {
		fmt.Fprintf(w, "Warning:\t%s\n", warn.Error())
	}
	if rep.RecordID != 0 {
		fmt.Fprintf(w, "Audit record:\t%d\n", rep.RecordID)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "FEATURE\tVALUE\tWEIGHT\tCONTRIBUTION")
	for _, c := range rep.Local.SortedDescending() {
		fmt.Fprintf(w, "%s\t%.6g\t%.6g\t%.6g\n", c.Feature, c.Value, c.Weight, c.Score)
	}
	return w.Flush()
}
