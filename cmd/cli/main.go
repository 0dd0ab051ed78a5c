// Command storemonitor-cli drives the store monitor API and can compute
// reports offline from a CSV directory.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type globals struct {
	apiBase string
	apiKey  string
	timeout time.Duration
	verbose bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "storemonitor-cli",
		Short: "Store uptime/downtime reports",
		Long: `storemonitor-cli talks to the storemonitor API or computes reports
locally from store_status.csv, menu_hours.csv and timezones.csv.

Example usage:
  storemonitor-cli ingest ./data          # load CSVs on the server
  storemonitor-cli trigger --wait -o r.csv
  storemonitor-cli report <id> --format xlsx -o r.xlsx
  storemonitor-cli compute ./data --store 8419537941919820732`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	base := os.Getenv("API_BASE")
	if base == "" {
		base = "http://localhost:8080"
	}
	root.PersistentFlags().StringVar(&g.apiBase, "api", base, "API base URL (env API_BASE)")
	root.PersistentFlags().StringVar(&g.apiKey, "key", os.Getenv("API_KEY"), "API key (env API_KEY)")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 30*time.Second, "HTTP timeout")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "verbose logging to stderr")

	root.AddCommand(
		newIngestCmd(g),
		newTriggerCmd(g),
		newReportCmd(g),
		newComputeCmd(g),
	)
	return root
}

func (g *globals) logger() *zap.Logger {
	if !g.verbose {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}
