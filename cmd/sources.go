package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/market-scanner/internal/pipeline"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Inspect and exercise the registered data sources",
}

// -- sources list --

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered sources",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "scan")
		if err != nil {
			return err
		}
		defer env.Close()

		formatSources(os.Stdout, env.Pipeline.Registry().Sources())
		return nil
	},
}

// -- sources fetch --

var sourcesFetchCmd = &cobra.Command{
	Use:   "fetch <name>",
	Short: "Fetch one source and print its data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "scan")
		if err != nil {
			return err
		}
		defer env.Close()

		val, err := env.Pipeline.FetchSource(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "fetch source %s", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(val)
	},
}

func init() {
	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesFetchCmd)
	rootCmd.AddCommand(sourcesCmd)
}

// formatSources writes a tabular list of sources to w.
func formatSources(out io.Writer, sources []pipeline.Source) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tCATEGORY\tTTL")
	_, _ = fmt.Fprintln(w, "----\t--------\t---")
	for _, s := range sources {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name(), s.Category(), s.TTL())
	}
	_ = w.Flush()
}
