package cli

import (
	"time"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cfgsync",
	Short: "Synchronize custom dashboards between monitoring platform instances",
	Long: `cfgsync copies custom dashboards from a source platform instance (or a
saved JSON file) to a target instance. Dashboards already present in the
target are matched by title and skipped, updated, or confirmed interactively.
Owners and sharing rules are remapped to target users by email.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	f := rootCmd.PersistentFlags()
	f.String("config-file", "", "Path to YAML config (default ~/.config/cfgsync/config.yaml)")
	f.String("source-url", "", "Source instance base URL (overrides CFGSYNC_SOURCE_URL)")
	f.String("source-token", "", "Source API token (overrides CFGSYNC_SOURCE_TOKEN)")
	f.String("target-url", "", "Target instance base URL (overrides CFGSYNC_TARGET_URL)")
	f.String("target-token", "", "Target API token (overrides CFGSYNC_TARGET_TOKEN)")
	f.Bool("verify-ssl", true, "Verify TLS certificates")
	f.Float64("rate-limit", 50, "Maximum requests per second across both instances")
	f.Duration("timeout", 30*time.Second, "Per-request timeout")
	f.Int("retry-attempts", 3, "Total attempts for transient failures")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.StringP("output", "o", "table", "Output format (table, json, yaml, tsv)")
}
