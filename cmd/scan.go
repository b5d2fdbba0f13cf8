package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one full scan cycle and print the ranked edges",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "scan")
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		// Persistence failures degrade to a warning; the scan output is
		// still worth printing.
		if err := env.Store.SaveRun(ctx, result); err != nil {
			zap.L().Error("persist run", zap.String("run_id", result.RunID), zap.Error(err))
		} else if err := env.Store.LogEdges(ctx, result.RunID, result.StartedAt, result.Edges); err != nil {
			zap.L().Error("log edges", zap.String("run_id", result.RunID), zap.Error(err))
		}

		zap.L().Info("scan complete",
			zap.String("run_id", result.RunID),
			zap.Int("markets", result.Stats.MarketCount),
			zap.Int("edges", len(result.Edges)),
			zap.Int("errors", len(result.Errors)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
