package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Source modes
const (
	SourceModeAPI  = "api"
	SourceModeFile = "file"
)

// Instance addresses one platform instance
type Instance struct {
	URL   string `yaml:"url" json:"url"`
	Token string `yaml:"token" json:"token"`
}

// Config represents the application configuration
type Config struct {
	Source    Instance `yaml:"source" json:"source"`
	Target    Instance `yaml:"target" json:"target"`
	VerifySSL bool     `yaml:"verify_ssl" json:"verify_ssl"`

	SourceMode string `yaml:"source_mode" json:"source_mode"`
	SourceFile string `yaml:"source_file" json:"source_file"`
	SaveSource string `yaml:"save_source" json:"save_source"`

	DefaultOwnerID        string   `yaml:"default_owner_id" json:"default_owner_id"`
	OnDuplicate           string   `yaml:"on_duplicate" json:"on_duplicate"`
	MaxConcurrentRequests int      `yaml:"max_concurrent_requests" json:"max_concurrent_requests"`
	RateLimitPerSecond    float64  `yaml:"rate_limit_per_second" json:"rate_limit_per_second"`
	RequestTimeout        Duration `yaml:"request_timeout" json:"request_timeout"`
	// RetryAttempts is the total number of attempts per operation; 0 and 1
	// both mean a single attempt with no retries
	RetryAttempts         int      `yaml:"retry_attempts" json:"retry_attempts"`
	VerifyWrites          bool     `yaml:"verify_writes" json:"verify_writes"`

	LogLevel string `yaml:"log_level" json:"log_level"`
	Output   string `yaml:"output" json:"output"`
}

// Duration reads either a Go duration string ("45s", "1m") or a bare
// number of seconds
type Duration time.Duration

// UnmarshalYAML accepts "30s" or 30
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML writes the duration string form
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// MarshalText writes the duration string form
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// String implements fmt.Stringer
func (d Duration) String() string { return time.Duration(d).String() }

// ParseDuration parses a duration string or a number of seconds
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return v, nil
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		VerifySSL:             true,
		SourceMode:            SourceModeAPI,
		OnDuplicate:           "ask",
		MaxConcurrentRequests: 10,
		RateLimitPerSecond:    50,
		RequestTimeout:        Duration(30 * time.Second),
		RetryAttempts:         3,
		LogLevel:              "info",
		Output:                "table",
	}
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables
// 2. ./.env.local (dotenv) - walks up parent directories to find it
// 3. The YAML file at path, or ~/.config/cfgsync/config.yaml when path is empty
// 4. Built-in defaults
//
// An explicit path that does not exist is an error; the default file is
// optional. Command-line flags are applied by the caller afterwards.
func Load(path string) (*Config, error) {
	cfg := Default()

	// Load .env.local if it exists (walking up parent directories). Variables
	// already set in the environment win.
	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	if err := loadYAMLConfig(cfg, path); err != nil {
		return nil, err
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultPath returns ~/.config/cfgsync/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "cfgsync", "config.yaml"), nil
}

// loadYAMLConfig merges the YAML file over cfg
func loadYAMLConfig(cfg *Config, path string) error {
	explicit := path != ""
	if !explicit {
		var err error
		if path, err = DefaultPath(); err != nil {
			// No home directory means no default file
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := getEnvOrFile("CFGSYNC_SOURCE_URL", "CFGSYNC_SOURCE_URL_FILE"); v != "" {
		cfg.Source.URL = v
	}
	if v := getEnvOrFile("CFGSYNC_SOURCE_TOKEN", "CFGSYNC_SOURCE_TOKEN_FILE"); v != "" {
		cfg.Source.Token = v
	}
	if v := getEnvOrFile("CFGSYNC_TARGET_URL", "CFGSYNC_TARGET_URL_FILE"); v != "" {
		cfg.Target.URL = v
	}
	if v := getEnvOrFile("CFGSYNC_TARGET_TOKEN", "CFGSYNC_TARGET_TOKEN_FILE"); v != "" {
		cfg.Target.Token = v
	}
	if v := os.Getenv("CFGSYNC_SOURCE_MODE"); v != "" {
		cfg.SourceMode = v
	}
	if v := os.Getenv("CFGSYNC_SOURCE_FILE"); v != "" {
		cfg.SourceFile = v
	}
	if v := os.Getenv("CFGSYNC_SAVE_SOURCE"); v != "" {
		cfg.SaveSource = v
	}
	if v := os.Getenv("CFGSYNC_DEFAULT_OWNER_ID"); v != "" {
		cfg.DefaultOwnerID = v
	}
	if v := os.Getenv("CFGSYNC_ON_DUPLICATE"); v != "" {
		cfg.OnDuplicate = v
	}
	if v := os.Getenv("CFGSYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CFGSYNC_OUTPUT"); v != "" {
		cfg.Output = v
	}

	var errs []error
	if v := os.Getenv("CFGSYNC_VERIFY_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err != nil {
			errs = append(errs, envErr("CFGSYNC_VERIFY_SSL", err))
		} else {
			cfg.VerifySSL = b
		}
	}
	if v := os.Getenv("CFGSYNC_VERIFY_WRITES"); v != "" {
		if b, err := strconv.ParseBool(v); err != nil {
			errs = append(errs, envErr("CFGSYNC_VERIFY_WRITES", err))
		} else {
			cfg.VerifyWrites = b
		}
	}
	if v := os.Getenv("CFGSYNC_MAX_CONCURRENT_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			errs = append(errs, envErr("CFGSYNC_MAX_CONCURRENT_REQUESTS", err))
		} else {
			cfg.MaxConcurrentRequests = n
		}
	}
	if v := os.Getenv("CFGSYNC_RATE_LIMIT_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err != nil {
			errs = append(errs, envErr("CFGSYNC_RATE_LIMIT_PER_SECOND", err))
		} else {
			cfg.RateLimitPerSecond = f
		}
	}
	if v := os.Getenv("CFGSYNC_REQUEST_TIMEOUT"); v != "" {
		if d, err := ParseDuration(v); err != nil {
			errs = append(errs, envErr("CFGSYNC_REQUEST_TIMEOUT", err))
		} else {
			cfg.RequestTimeout = Duration(d)
		}
	}
	if v := os.Getenv("CFGSYNC_RETRY_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			errs = append(errs, envErr("CFGSYNC_RETRY_ATTEMPTS", err))
		} else {
			cfg.RetryAttempts = n
		}
	}
	return errors.Join(errs...)
}

func envErr(name string, err error) error {
	return fmt.Errorf("invalid %s: %w", name, err)
}

// Validate checks that the configuration can drive a sync run
func (c *Config) Validate() error {
	var errs []error

	switch c.SourceMode {
	case SourceModeAPI:
		if c.Source.URL == "" || c.Source.Token == "" {
			errs = append(errs, errors.New("source url and token are required"))
		}
	case SourceModeFile:
		if c.SourceFile == "" {
			errs = append(errs, errors.New("source_file is required when source_mode is file"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid source_mode %q (want api or file)", c.SourceMode))
	}
	if c.Target.URL == "" || c.Target.Token == "" {
		errs = append(errs, errors.New("target url and token are required"))
	}

	switch strings.ToLower(c.OnDuplicate) {
	case "skip", "update", "ask":
	default:
		errs = append(errs, fmt.Errorf("invalid on_duplicate %q (want skip, update or ask)", c.OnDuplicate))
	}
	if c.MaxConcurrentRequests < 1 {
		errs = append(errs, errors.New("max_concurrent_requests must be at least 1"))
	}
	if c.RateLimitPerSecond <= 0 {
		errs = append(errs, errors.New("rate_limit_per_second must be positive"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be positive"))
	}
	if c.RetryAttempts < 0 {
		errs = append(errs, errors.New("retry_attempts must not be negative"))
	}
	return errors.Join(errs...)
}

// ValidateTarget checks only the target connection settings
func (c *Config) ValidateTarget() error {
	if c.Target.URL == "" || c.Target.Token == "" {
		return errors.New("target url and token are required")
	}
	return nil
}

// Redacted returns a copy safe to print
func (c *Config) Redacted() *Config {
	out := *c
	out.Source.Token = redact(c.Source.Token)
	out.Target.Token = redact(c.Target.Token)
	return &out
}

func redact(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****"
}

// getEnvOrFile gets an environment variable value, or reads it from a file
// if the _FILE variant is set
func getEnvOrFile(envVar, fileVar string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}

	if filePath := os.Getenv(fileVar); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	return ""
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
// Returns the path to .env.local if found, empty string otherwise.
func findEnvLocal() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, just check cwd
		if _, err := os.Stat(".env.local"); err == nil {
			return ".env.local"
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}

		if dir == homeDir {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
