// Package config loads cmd/bench and example settings from defaults, an
// optional .env file, SLC_* environment variables and command-line flags.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	Env      string `mapstructure:"SLC_ENV"`
	HTTPAddr string `mapstructure:"SLC_HTTP_ADDR"`
	Metrics  string `mapstructure:"SLC_METRICS"` // "prom", "otel", "none"

	Cache CacheConfig `mapstructure:",squash"`
	Bench BenchConfig `mapstructure:",squash"`
}

type CacheConfig struct {
	Shards     int           `mapstructure:"SLC_SHARDS"`
	DefaultTTL time.Duration `mapstructure:"SLC_DEFAULT_TTL"`
}

type BenchConfig struct {
	Workers   int           `mapstructure:"SLC_BENCH_WORKERS"` // 0 = 2*GOMAXPROCS
	Duration  time.Duration `mapstructure:"SLC_BENCH_DURATION"`
	ReadPct   int           `mapstructure:"SLC_BENCH_READS"`
	UpdatePct int           `mapstructure:"SLC_BENCH_UPDATES"`
	DeletePct int           `mapstructure:"SLC_BENCH_DELETES"`
	TTL       time.Duration `mapstructure:"SLC_BENCH_TTL"`
	Keys      int           `mapstructure:"SLC_BENCH_KEYS"`
	Preload   int           `mapstructure:"SLC_BENCH_PRELOAD"`
	ZipfS     float64       `mapstructure:"SLC_BENCH_ZIPF_S"`
	ZipfV     float64       `mapstructure:"SLC_BENCH_ZIPF_V"`
	Seed      int64         `mapstructure:"SLC_BENCH_SEED"` // 0 = time-based
	Rate      float64       `mapstructure:"SLC_BENCH_RATE"` // ops/s across all workers, 0 = unlimited
}

type setting struct {
	key   string
	flag  string
	def   any
	usage string
}

var settings = []setting{
	{"SLC_ENV", "env", "dev", "environment: dev | prod"},
	{"SLC_HTTP_ADDR", "http", ":8080", "serve /metrics and /debug/pprof at addr (empty = disabled)"},
	{"SLC_METRICS", "metrics", "prom", "metrics backend: prom | otel | none"},
	{"SLC_SHARDS", "shards", 0, "number of shards (0 = auto)"},
	{"SLC_DEFAULT_TTL", "default-ttl", time.Duration(0), "TTL for loaded values (0 = none)"},
	{"SLC_BENCH_WORKERS", "workers", 0, "worker goroutines (0 = 2*GOMAXPROCS)"},
	{"SLC_BENCH_DURATION", "duration", 10 * time.Second, "benchmark duration"},
	{"SLC_BENCH_READS", "reads", 70, "Get percentage [0..100]"},
	{"SLC_BENCH_UPDATES", "updates", 10, "Update percentage [0..100]"},
	{"SLC_BENCH_DELETES", "deletes", 5, "Delete percentage [0..100]; the rest are Sets"},
	{"SLC_BENCH_TTL", "ttl", time.Second, "sliding TTL for written entries (0 = none)"},
	{"SLC_BENCH_KEYS", "keys", 1_000_000, "keyspace size"},
	{"SLC_BENCH_PRELOAD", "preload", 100_000, "entries stored before the run"},
	{"SLC_BENCH_ZIPF_S", "zipf-s", 1.1, "Zipf s > 1 (skew)"},
	{"SLC_BENCH_ZIPF_V", "zipf-v", 1.0, "Zipf v >= 1"},
	{"SLC_BENCH_SEED", "seed", int64(0), "random seed (0 = time-based)"},
	{"SLC_BENCH_RATE", "rate", 0.0, "operation rate limit in ops/s (0 = unlimited)"},
}

// RegisterFlags defines one flag per setting on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	for _, s := range settings {
		switch d := s.def.(type) {
		case string:
			fs.String(s.flag, d, s.usage)
		case int:
			fs.Int(s.flag, d, s.usage)
		case int64:
			fs.Int64(s.flag, d, s.usage)
		case float64:
			fs.Float64(s.flag, d, s.usage)
		case time.Duration:
			fs.Duration(s.flag, d, s.usage)
		default:
			panic(fmt.Sprintf("config: unsupported default %T for %s", d, s.key))
		}
	}
}

// Load resolves the configuration. Precedence, highest first: flags set on
// fs, environment, .env file, defaults. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	loadDotEnv()

	v := viper.New()
	v.SetConfigType("env")
	v.AutomaticEnv()

	for _, s := range settings {
		v.SetDefault(s.key, s.def)
		if fs == nil {
			continue
		}
		if f := fs.Lookup(s.flag); f != nil {
			if err := v.BindPFlag(s.key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %q: %w", s.flag, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// loadDotEnv reads ./.env if present. Variables already set win.
func loadDotEnv() {
	if _, err := os.Stat(".env"); err == nil {
		_ = gotenv.Load(".env")
	}
}

func (c *Config) validate() error {
	switch c.Metrics {
	case "prom", "otel", "none":
	default:
		return fmt.Errorf("SLC_METRICS must be prom, otel or none, got %q", c.Metrics)
	}
	if c.Cache.Shards < 0 {
		return fmt.Errorf("SLC_SHARDS must be >= 0")
	}
	if c.Cache.DefaultTTL < 0 || c.Bench.TTL < 0 {
		return fmt.Errorf("TTLs must be >= 0")
	}

	b := c.Bench
	for name, p := range map[string]int{
		"SLC_BENCH_READS":   b.ReadPct,
		"SLC_BENCH_UPDATES": b.UpdatePct,
		"SLC_BENCH_DELETES": b.DeletePct,
	} {
		if p < 0 || p > 100 {
			return fmt.Errorf("%s must be in [0..100], got %d", name, p)
		}
	}
	if b.ReadPct+b.UpdatePct+b.DeletePct > 100 {
		return fmt.Errorf("reads+updates+deletes exceed 100%%")
	}
	if b.Keys <= 0 {
		return fmt.Errorf("SLC_BENCH_KEYS must be > 0")
	}
	if b.ZipfS <= 1 || b.ZipfV < 1 {
		return fmt.Errorf("zipf requires s > 1 and v >= 1")
	}
	if b.Rate < 0 {
		return fmt.Errorf("SLC_BENCH_RATE must be >= 0")
	}
	return nil
}
