// Package appctx provides a shared bootstrap helper for CLI commands.
// It centralizes config loading, flag overrides, logger setup and platform
// client construction to reduce boilerplate across commands.
package appctx

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/lherron/cfgsync/internal/client"
	"github.com/lherron/cfgsync/internal/config"
	"github.com/lherron/cfgsync/internal/logging"
	"github.com/lherron/cfgsync/internal/migrate"
	"github.com/lherron/cfgsync/internal/platform"
	"github.com/lherron/cfgsync/internal/ratelimit"
)

// App holds the shared application context for commands.
type App struct {
	// Config is the effective configuration, flags applied
	Config *config.Config

	Logger zerolog.Logger

	// Client is shared by source and target so one limiter bounds both
	Client *client.Client

	// Source is nil unless Options.NeedsSource
	Source migrate.Source

	// Target is nil unless Options.NeedsTarget
	Target *platform.API
}

// Options configures the bootstrap behavior.
type Options struct {
	// NeedsSource validates source settings and opens the source
	NeedsSource bool

	// NeedsTarget validates target settings and builds the target API
	NeedsTarget bool
}

// SyncOptions returns options for commands that read and write
func SyncOptions() Options {
	return Options{NeedsSource: true, NeedsTarget: true}
}

// TargetOnly returns options for commands that only touch the target
func TargetOnly() Options {
	return Options{NeedsTarget: true}
}

// RunFunc is the signature for command run functions.
type RunFunc func(app *App, cmd *cobra.Command, args []string) error

// WithApp wraps a command's run function with shared bootstrap logic.
func WithApp(opts Options, fn RunFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := Bootstrap(cmd, opts)
		if err != nil {
			return err
		}
		return fn(app, cmd, args)
	}
}

// LoadConfig loads configuration from the --config-file flag, environment and
// command-line overrides without validating it
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	var path string
	if f := cmd.Flag("config-file"); f != nil {
		path = f.Value.String()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Bootstrap initializes the App according to the given options.
func Bootstrap(cmd *cobra.Command, opts Options) (*App, error) {
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return nil, err
	}

	switch {
	case opts.NeedsSource:
		err = cfg.Validate()
	case opts.NeedsTarget:
		err = cfg.ValidateTarget()
	}
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logging.New(cmd.ErrOrStderr(), level, isTerminal(os.Stderr))

	app := &App{Config: cfg, Logger: logger}
	app.Client = client.New(client.Options{
		RequestTimeout: time.Duration(cfg.RequestTimeout),
		RetryAttempts:  cfg.RetryAttempts,
		Limiter:        ratelimit.NewPerSecond(cfg.RateLimitPerSecond),
		Logger:         logger,
	})

	if opts.NeedsTarget {
		app.Target = platform.New(app.Client, client.Endpoint{
			Name:      "target",
			BaseURL:   cfg.Target.URL,
			Token:     cfg.Target.Token,
			VerifySSL: cfg.VerifySSL,
		})
	}

	if opts.NeedsSource {
		if cfg.SourceMode == config.SourceModeFile {
			fs, err := migrate.OpenFileSource(cfg.SourceFile)
			if err != nil {
				return nil, err
			}
			app.Source = fs
		} else {
			app.Source = platform.New(app.Client, client.Endpoint{
				Name:      "source",
				BaseURL:   cfg.Source.URL,
				Token:     cfg.Source.Token,
				VerifySSL: cfg.VerifySSL,
			})
		}
	}

	return app, nil
}

// applyFlags overrides cfg with every flag the user set explicitly
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	changed := func(name string) bool {
		f := cmd.Flag(name)
		return f != nil && f.Changed
	}
	str := func(name string, dst *string) {
		if changed(name) {
			*dst = cmd.Flag(name).Value.String()
		}
	}

	str("source-url", &cfg.Source.URL)
	str("source-token", &cfg.Source.Token)
	str("target-url", &cfg.Target.URL)
	str("target-token", &cfg.Target.Token)
	str("source-mode", &cfg.SourceMode)
	str("source-file", &cfg.SourceFile)
	str("save-source", &cfg.SaveSource)
	str("default-owner-id", &cfg.DefaultOwnerID)
	str("on-duplicate", &cfg.OnDuplicate)
	str("log-level", &cfg.LogLevel)
	str("output", &cfg.Output)

	flags := cmd.Flags()
	var err error
	if changed("verify-ssl") {
		if cfg.VerifySSL, err = flags.GetBool("verify-ssl"); err != nil {
			return err
		}
	}
	if changed("verify-writes") {
		if cfg.VerifyWrites, err = flags.GetBool("verify-writes"); err != nil {
			return err
		}
	}
	if changed("max-concurrent") {
		if cfg.MaxConcurrentRequests, err = flags.GetInt("max-concurrent"); err != nil {
			return err
		}
	}
	if changed("rate-limit") {
		if cfg.RateLimitPerSecond, err = flags.GetFloat64("rate-limit"); err != nil {
			return err
		}
	}
	if changed("retry-attempts") {
		if cfg.RetryAttempts, err = flags.GetInt("retry-attempts"); err != nil {
			return err
		}
	}
	if changed("timeout") {
		d, err := flags.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.RequestTimeout = config.Duration(d)
	}
	return nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
