package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lherron/cfgsync/internal/cli/appctx"
	"github.com/lherron/cfgsync/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration introspection",
}

var configDoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Show effective configuration and validate settings",
	Long: `Displays the effective configuration values and where each came from,
and validates that a sync run could start. Tokens are redacted.`,
	Args: cobra.NoArgs,
	RunE: runConfigDoctor,
}

type configValue struct {
	Key    string `json:"key" yaml:"key"`
	Value  string `json:"value" yaml:"value"`
	Source string `json:"source" yaml:"source"`
}

type configDoctorReport struct {
	Config   []configValue `json:"config" yaml:"config"`
	Valid    bool          `json:"valid" yaml:"valid"`
	Problems []string      `json:"problems" yaml:"problems"`
}

func (r *configDoctorReport) Headers() []string { return []string{"KEY", "VALUE", "SOURCE"} }

func (r *configDoctorReport) Rows() [][]string {
	rows := make([][]string, 0, len(r.Config))
	for _, v := range r.Config {
		rows = append(rows, []string{v.Key, v.Value, v.Source})
	}
	return rows
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDoctorCmd)
	configDoctorCmd.Flags().Bool("porcelain", false, "Machine-readable output")
}

func runConfigDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := appctx.LoadConfig(cmd)
	if err != nil {
		return exitError(ExitFailure, err)
	}
	out, err := renderer(cmd, cfg.Output)
	if err != nil {
		return exitError(ExitFailure, err)
	}

	shown := cfg.Redacted()
	report := &configDoctorReport{Valid: true, Problems: []string{}}
	add := func(key, flag, env string, value any) {
		report.Config = append(report.Config, configValue{
			Key:    key,
			Value:  fmt.Sprint(value),
			Source: valueSource(cmd, flag, env),
		})
	}
	add("source.url", "source-url", "CFGSYNC_SOURCE_URL", shown.Source.URL)
	add("source.token", "source-token", "CFGSYNC_SOURCE_TOKEN", shown.Source.Token)
	add("target.url", "target-url", "CFGSYNC_TARGET_URL", shown.Target.URL)
	add("target.token", "target-token", "CFGSYNC_TARGET_TOKEN", shown.Target.Token)
	add("verify_ssl", "verify-ssl", "CFGSYNC_VERIFY_SSL", shown.VerifySSL)
	add("source_mode", "source-mode", "CFGSYNC_SOURCE_MODE", shown.SourceMode)
	add("source_file", "source-file", "CFGSYNC_SOURCE_FILE", shown.SourceFile)
	add("save_source", "save-source", "CFGSYNC_SAVE_SOURCE", shown.SaveSource)
	add("default_owner_id", "default-owner-id", "CFGSYNC_DEFAULT_OWNER_ID", shown.DefaultOwnerID)
	add("on_duplicate", "on-duplicate", "CFGSYNC_ON_DUPLICATE", shown.OnDuplicate)
	add("max_concurrent_requests", "max-concurrent", "CFGSYNC_MAX_CONCURRENT_REQUESTS", shown.MaxConcurrentRequests)
	add("rate_limit_per_second", "rate-limit", "CFGSYNC_RATE_LIMIT_PER_SECOND", shown.RateLimitPerSecond)
	add("request_timeout", "timeout", "CFGSYNC_REQUEST_TIMEOUT", shown.RequestTimeout)
	add("retry_attempts", "retry-attempts", "CFGSYNC_RETRY_ATTEMPTS", shown.RetryAttempts)
	add("verify_writes", "verify-writes", "CFGSYNC_VERIFY_WRITES", shown.VerifyWrites)
	add("log_level", "log-level", "CFGSYNC_LOG_LEVEL", shown.LogLevel)

	if err := cfg.Validate(); err != nil {
		report.Valid = false
		report.Problems = splitJoined(err)
	}
	if cfg.SourceMode == config.SourceModeFile && cfg.SourceFile != "" {
		if _, err := os.Stat(cfg.SourceFile); err != nil {
			report.Valid = false
			report.Problems = append(report.Problems, fmt.Sprintf("source file: %v", err))
		}
	}

	if err := out.Render(report); err != nil {
		return exitError(ExitFailure, err)
	}
	if !report.Valid {
		for _, p := range report.Problems {
			fmt.Fprintf(cmd.ErrOrStderr(), "  problem: %s\n", p)
		}
		return exitError(ExitFailure, errors.New("configuration is not valid"))
	}
	return nil
}

// valueSource names where a setting came from
func valueSource(cmd *cobra.Command, flag, env string) string {
	if f := cmd.Flag(flag); f != nil && f.Changed {
		return "flag --" + flag
	}
	if os.Getenv(env) != "" {
		return "env " + env
	}
	if os.Getenv(env+"_FILE") != "" {
		return "env " + env + "_FILE"
	}
	return "config file or default"
}

func splitJoined(err error) []string {
	var out []string
	for _, line := range strings.Split(err.Error(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
