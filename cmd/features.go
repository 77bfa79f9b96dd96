package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/analysis"
	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/observability"
)

// newFeaturesCmd creates the `features` command, which condenses raw
// iteration logs into the timing-feature CSV used for offline analysis.
func newFeaturesCmd() *cobra.Command {
	var (
		logsDir string
		outPath string
	)

	featuresCmd := &cobra.Command{
		Use:   "features",
		Short: "Extracts timing features from raw iteration logs into a CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			dir := logsDir
			if dir == "" {
				dir = cfg.Probe.OutputDir
			}
			out := outPath
			if out == "" {
				out = filepath.Join(dir, "features.csv")
			}

			rows, err := analysis.Extract(dir, logger)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				return fmt.Errorf("no raw logs found in %s", dir)
			}
			if err := analysis.WriteCSV(out, rows); err != nil {
				return err
			}

			logger.Info("Feature table written",
				zap.String("path", out),
				zap.Int("rows", len(rows)),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d rows to %s\n", len(rows), out)
			return nil
		},
	}

	featuresCmd.Flags().StringVar(&logsDir, "logs-dir", "", "raw log directory (defaults to probe.output_dir)")
	featuresCmd.Flags().StringVar(&outPath, "out", "", "output CSV path (defaults to <logs-dir>/features.csv)")

	return featuresCmd
}

func init() {
	rootCmd.AddCommand(newFeaturesCmd())
}
