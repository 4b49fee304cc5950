// Package config loads TraceLens settings from defaults, an optional YAML
// file and TRACELENS_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/telhawk-systems/tracelens/internal/reader"
	"github.com/telhawk-systems/tracelens/internal/report"
	"github.com/telhawk-systems/tracelens/internal/risk"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "TRACELENS"
	// DirEnv names the variable that overrides the config directory.
	DirEnv = "TRACELENS_CONFIG_DIR"
	// FileName is the config file looked up in the config directory.
	FileName = "config.yaml"

	DefaultPublishSubject = "tracelens.scans.completed"
)

// Config is the complete TraceLens configuration.
type Config struct {
	Scan    ScanConfig    `mapstructure:"scan" yaml:"scan"`
	Policy  PolicyConfig  `mapstructure:"policy" yaml:"policy"`
	Report  ReportConfig  `mapstructure:"report" yaml:"report"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	History HistoryConfig `mapstructure:"history" yaml:"history"`
	Publish PublishConfig `mapstructure:"publish" yaml:"publish"`

	path string
}

// ScanConfig controls input reading.
type ScanConfig struct {
	ChunkSize        int    `mapstructure:"chunk_size" yaml:"chunk_size"`
	MaxFragmentBytes int    `mapstructure:"max_fragment_bytes" yaml:"max_fragment_bytes"`
	Strategy         string `mapstructure:"strategy" yaml:"strategy"`
	Workers          int    `mapstructure:"workers" yaml:"workers"`
	ConvertEVTX      bool   `mapstructure:"convert_evtx" yaml:"convert_evtx"`
}

// PolicyConfig mirrors risk.Policy with config-friendly types. Weight keys
// are event ids written as strings because config keys are strings.
type PolicyConfig struct {
	WatchList        []int          `mapstructure:"watch_list" yaml:"watch_list"`
	Weights          map[string]int `mapstructure:"weights" yaml:"weights"`
	FailedLogonID    int            `mapstructure:"failed_logon_id" yaml:"failed_logon_id"`
	BruteForceWeight int            `mapstructure:"brute_force_weight" yaml:"brute_force_weight"`
	Window           time.Duration  `mapstructure:"window" yaml:"window"`
	Threshold        int            `mapstructure:"threshold" yaml:"threshold"`
	IgnoredUsers     []string       `mapstructure:"ignored_users" yaml:"ignored_users"`
	IgnoredIPs       []string       `mapstructure:"ignored_ips" yaml:"ignored_ips"`
}

// ReportConfig controls rendering.
type ReportConfig struct {
	Dir    string `mapstructure:"dir" yaml:"dir"`
	Format string `mapstructure:"format" yaml:"format"`
	HTML   bool   `mapstructure:"html" yaml:"html"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig holds the optional Prometheus textfile destination.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// HistoryConfig configures the Redis scan history.
type HistoryConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	RedisURL  string        `mapstructure:"redis_url" yaml:"redis_url"`
	Retention time.Duration `mapstructure:"retention" yaml:"retention"`
}

// PublishConfig configures NATS publishing of completed scans.
type PublishConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	NATSURL string `mapstructure:"nats_url" yaml:"nats_url"`
	Subject string `mapstructure:"subject" yaml:"subject"`
}

// Dir returns the configuration directory: $TRACELENS_CONFIG_DIR, or
// $HOME/.tracelens when unset.
func Dir() (string, error) {
	if dir := os.Getenv(DirEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".tracelens"), nil
}

// Load reads the configuration. An empty path means the default location;
// a missing default file is not an error, a missing explicit file is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	explicit := path != ""
	if !explicit {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, FileName)
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Short aliases for the connection settings
	_ = v.BindEnv("history.redis_url", "TRACELENS_REDIS_URL", "TRACELENS_HISTORY_REDIS_URL")
	_ = v.BindEnv("publish.nats_url", "TRACELENS_NATS_URL", "TRACELENS_PUBLISH_NATS_URL")

	if err := v.ReadInConfig(); err != nil {
		if explicit || !isNotFound(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{path: path}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	p := risk.DefaultPolicy()
	weights := make(map[string]int, len(p.Weights))
	for id, w := range p.Weights {
		weights[strconv.Itoa(id)] = w
	}
	ro := reader.DefaultOptions()

	return &Config{
		Scan: ScanConfig{
			ChunkSize:        ro.ChunkSize,
			MaxFragmentBytes: ro.MaxFragmentBytes,
			Strategy:         string(ro.Strategy),
			Workers:          1,
		},
		Policy: PolicyConfig{
			WatchList:        p.WatchList,
			Weights:          weights,
			FailedLogonID:    p.FailedLogonID,
			BruteForceWeight: p.BruteForceWeight,
			Window:           p.Window,
			Threshold:        p.Threshold,
			IgnoredUsers:     p.IgnoredUsers,
			IgnoredIPs:       p.IgnoredIPs,
		},
		Report: ReportConfig{
			Dir:    "reports",
			Format: string(report.FormatText),
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
		History: HistoryConfig{
			RedisURL:  "redis://localhost:6379/0",
			Retention: 30 * 24 * time.Hour,
		},
		Publish: PublishConfig{
			NATSURL: "nats://localhost:4222",
			Subject: DefaultPublishSubject,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("scan.chunk_size", d.Scan.ChunkSize)
	v.SetDefault("scan.max_fragment_bytes", d.Scan.MaxFragmentBytes)
	v.SetDefault("scan.strategy", d.Scan.Strategy)
	v.SetDefault("scan.workers", d.Scan.Workers)
	v.SetDefault("scan.convert_evtx", d.Scan.ConvertEVTX)

	v.SetDefault("policy.watch_list", d.Policy.WatchList)
	v.SetDefault("policy.weights", d.Policy.Weights)
	v.SetDefault("policy.failed_logon_id", d.Policy.FailedLogonID)
	v.SetDefault("policy.brute_force_weight", d.Policy.BruteForceWeight)
	v.SetDefault("policy.window", d.Policy.Window)
	v.SetDefault("policy.threshold", d.Policy.Threshold)
	v.SetDefault("policy.ignored_users", d.Policy.IgnoredUsers)
	v.SetDefault("policy.ignored_ips", d.Policy.IgnoredIPs)

	v.SetDefault("report.dir", d.Report.Dir)
	v.SetDefault("report.format", d.Report.Format)
	v.SetDefault("report.html", d.Report.HTML)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("metrics.textfile", d.Metrics.Textfile)

	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.redis_url", d.History.RedisURL)
	v.SetDefault("history.retention", d.History.Retention)

	v.SetDefault("publish.enabled", d.Publish.Enabled)
	v.SetDefault("publish.nats_url", d.Publish.NATSURL)
	v.SetDefault("publish.subject", d.Publish.Subject)
}

func isNotFound(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf) || errors.Is(err, os.ErrNotExist)
}

// Path returns the config file path that was consulted.
func (c *Config) Path() string {
	return c.path
}

// Policy converts the policy section into a validated risk.Policy.
func (c *Config) Policy() (risk.Policy, error) {
	weights := make(map[int]int, len(c.Policy.Weights))
	for key, w := range c.Policy.Weights {
		id, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			return risk.Policy{}, fmt.Errorf("%w: weight key %q is not an event id", risk.ErrInvalidPolicy, key)
		}
		weights[id] = w
	}

	p := risk.Policy{
		WatchList:        c.Policy.WatchList,
		Weights:          weights,
		FailedLogonID:    c.Policy.FailedLogonID,
		BruteForceWeight: c.Policy.BruteForceWeight,
		Window:           c.Policy.Window,
		Threshold:        c.Policy.Threshold,
		IgnoredUsers:     c.Policy.IgnoredUsers,
		IgnoredIPs:       c.Policy.IgnoredIPs,
	}
	if err := p.Validate(); err != nil {
		return risk.Policy{}, err
	}
	return p, nil
}

// Reader returns the reader options of the scan section.
func (c *Config) Reader() reader.Options {
	return reader.Options{
		ChunkSize:        c.Scan.ChunkSize,
		MaxFragmentBytes: c.Scan.MaxFragmentBytes,
		Strategy:         reader.Strategy(c.Scan.Strategy),
	}
}

// Validate checks every section for usable values.
func (c *Config) Validate() error {
	if err := c.Reader().Validate(); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	if c.Scan.Workers < 1 {
		return fmt.Errorf("scan: workers must be at least 1")
	}
	if _, err := c.Policy(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	if _, err := report.ParseFormat(c.Report.Format); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if c.History.Enabled && c.History.RedisURL == "" {
		return fmt.Errorf("history: redis_url is required when enabled")
	}
	if c.History.Retention < 0 {
		return fmt.Errorf("history: retention must not be negative")
	}
	if c.Publish.Enabled && (c.Publish.NATSURL == "" || c.Publish.Subject == "") {
		return fmt.Errorf("publish: nats_url and subject are required when enabled")
	}
	return nil
}
