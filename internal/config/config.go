// Package config loads and validates scriptcensus configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/scriptcensus/internal/crawler"
)

// Store drivers understood by the application.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config captures all knobs loaded via Viper.
type Config struct {
	Workers        int           `mapstructure:"workers"`
	TimeoutSeconds int           `mapstructure:"timeout"`
	CSVOutput      string        `mapstructure:"csv_output"`
	Store          StoreConfig   `mapstructure:"store"`
	Fetcher        FetcherConfig `mapstructure:"fetcher"`
	Logging        LoggingConfig `mapstructure:"logging"`
	Metrics        MetricsConfig `mapstructure:"metrics"`
}

// StoreConfig selects and locates the result store.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	// Location is a file path for sqlite or a DSN for postgres.
	Location string `mapstructure:"location"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// FetcherConfig tunes the HTTP fetcher.
type FetcherConfig struct {
	UserAgent     string `mapstructure:"user_agent"`
	RespectRobots bool   `mapstructure:"respect_robots"`
	MaxBodyBytes  int    `mapstructure:"max_body_bytes"`

	// PerHostRPS spaces requests to one host; 0 leaves them unthrottled.
	PerHostRPS   float64 `mapstructure:"per_host_rps"`
	PerHostBurst int     `mapstructure:"per_host_burst"`
}

// LoggingConfig toggles zap development features and the output file.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// flagKeys maps CLI flag names onto config keys.
var flagKeys = map[string]string{
	"workers":      "workers",
	"timeout":      "timeout",
	"csv_output":   "csv_output",
	"store":        "store.driver",
	"db":           "store.location",
	"log_file":     "logging.file",
	"user_agent":   "fetcher.user_agent",
	"metrics_addr": "metrics.addr",
}

// Load builds a Config from defaults, an optional file, the environment and
// any flags that were set explicitly, in increasing order of precedence.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRIPTCENSUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: read config: %w", crawler.ErrInput, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: unmarshal config: %w", crawler.ErrInput, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("workers", 10)
	v.SetDefault("timeout", 10)
	v.SetDefault("csv_output", "results.csv")
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.location", "results.db")
	v.SetDefault("store.table", "results")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("fetcher.user_agent", "Mozilla/5.0 (compatible; WebScraper/1.0)")
	v.SetDefault("fetcher.respect_robots", false)
	v.SetDefault("fetcher.max_body_bytes", 10*1024*1024)
	v.SetDefault("fetcher.per_host_rps", 0)
	v.SetDefault("fetcher.per_host_burst", 1)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.file", "web_scraper.log")
	v.SetDefault("metrics.addr", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be > 0", crawler.ErrInput)
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: timeout must be > 0", crawler.ErrInput)
	}
	if strings.TrimSpace(c.CSVOutput) == "" {
		return fmt.Errorf("%w: csv_output must be set", crawler.ErrInput)
	}
	switch c.Store.Driver {
	case DriverSQLite, DriverPostgres:
		if strings.TrimSpace(c.Store.Location) == "" {
			return fmt.Errorf("%w: store.location must be set for %s", crawler.ErrInput, c.Store.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("%w: unknown store.driver %q", crawler.ErrInput, c.Store.Driver)
	}
	if c.Fetcher.MaxBodyBytes < 0 {
		return fmt.Errorf("%w: fetcher.max_body_bytes must be >= 0", crawler.ErrInput)
	}
	if c.Fetcher.PerHostRPS < 0 {
		return fmt.Errorf("%w: fetcher.per_host_rps must be >= 0", crawler.ErrInput)
	}
	return nil
}

// Timeout converts the per-request timeout into a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
