// Command tumorscope serves tumor classification models with explanations
// and an audit trail of every prediction.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/tumorscope/config"
)

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath string
	envFiles   []string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	a := &app{}

	root := &cobra.Command{
		Use:   "tumorscope",
		Short: "Tumor classification inference, explanation and audit",
		Long: `tumorscope loads trained tumor classifiers, predicts Benign or Malignant
for a 19-feature measurement record, explains the prediction and appends it
to an audit store (SQLite, PostgreSQL or bbolt).

Configuration is read from --config (or TUMORSCOPE_CONFIG), then from the
--env files, then from TUMORSCOPE_* environment variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(opts)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv(config.EnvConfigFile), "YAML config file")
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env", []string{".env"}, "dotenv files to load (missing files are ignored)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	root.AddCommand(
		newModelsCmd(a),
		newImportanceCmd(a),
		newPredictCmd(a),
		newInitDBCmd(a),
		newHistoryCmd(a),
		newServeCmd(a),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
