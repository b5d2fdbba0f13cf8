package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/market-scanner/internal/escalate"
	"github.com/sells-group/market-scanner/internal/model"
	"github.com/sells-group/market-scanner/internal/pipeline"
)

var analyzeDeep bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze <market-key>",
	Short: "Run the Claude analyst against one market on demand",
	Long:  "Fetches fresh source data, locates the market by key (platform:id) or bare ID, and prints the analyst verdict. Bypasses the escalation budget and cooldown gates.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "scan")
		if err != nil {
			return err
		}
		defer env.Close()

		if env.Analyst == nil {
			return eris.New("analyze: no anthropic key configured")
		}

		// Pull every source so the analyst sees the same snapshot a
		// scheduled run would build. Partial data is fine.
		data := pipeline.SourceData{}
		for _, src := range env.Pipeline.Registry().Sources() {
			val, err := env.Pipeline.FetchSource(ctx, src.Name())
			if err != nil {
				zap.L().Warn("analyze: source fetch failed", zap.String("source", src.Name()), zap.Error(err))
				continue
			}
			data[src.Name()] = val
		}

		markets := pipeline.BuildMarkets(env.Pipeline.Registry(), data)
		m, ok := findMarket(markets, args[0])
		if !ok {
			return eris.Errorf("analyze: market %q not found in %d fetched markets", args[0], len(markets))
		}

		snap := pipeline.Snapshot{Data: data, Markets: markets}
		var verdict *escalate.Verdict
		if analyzeDeep {
			verdict, err = env.Analyst.Deep(ctx, m, snap)
		} else {
			verdict, err = env.Analyst.Scan(ctx, m, snap)
		}
		if err != nil {
			return eris.Wrap(err, "analyze")
		}

		zap.L().Info("analysis complete",
			zap.String("market", m.Key()),
			zap.String("tier", verdict.Tier),
			zap.Float64("edge", verdict.Edge),
			zap.Float64("cost_usd", verdict.CostUSD),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(verdict)
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeDeep, "deep", false, "use the deep tier model instead of the scan tier")
	rootCmd.AddCommand(analyzeCmd)
}

// findMarket resolves a user-supplied key against the fetched universe:
// exact platform:id key first, then bare ID on any platform.
func findMarket(markets []model.Market, key string) (model.Market, bool) {
	for _, m := range markets {
		if m.Key() == key {
			return m, true
		}
	}
	for _, m := range markets {
		if m.ID == key {
			return m, true
		}
	}
	return model.Market{}, false
}
