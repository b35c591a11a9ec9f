// Package config implements the rainfall forecaster config.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/HatiCode/rainfall/cmd/forecaster/router"
	"github.com/HatiCode/rainfall/pkg/features"
)

// Config holds all forecaster configuration.
type Config struct {
	Listen     string
	GRPCListen string

	// Data source
	Series       string
	DataPath     string
	CSVDelimiter string
	YearColumn   string

	// Forecast
	NLags       int
	MonthsAhead int
	Model       string
	RidgeLambda float64
	Interval    time.Duration
	CacheSize   int

	// Storage
	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
	SQLitePath    string

	// Publishing
	KafkaBrokers []string
	KafkaTopic   string

	LogFormat string
	LogLevel  string
}

// ParseFlags parses command-line flags and environment variables into a Config.
// Environment variables are used as fallbacks when flags are not provided.
// Exits with status 1 if the result does not pass Validate.
func ParseFlags() *Config {
	cfg := &Config{}
	var brokers string

	// Server
	flag.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8081"), "HTTP listen address")
	flag.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", ":9091"), "gRPC health listen address (empty disables)")

	// Data source
	flag.StringVar(&cfg.Series, "series", getEnv("SERIES", "rainfall"), "Series name snapshots are stored under")
	flag.StringVar(&cfg.DataPath, "data", getEnv("DATA_PATH", "data/rainfall.csv"), "Path to the wide yearly CSV")
	flag.StringVar(&cfg.CSVDelimiter, "csv-delimiter", getEnv("CSV_DELIMITER", ";"), "CSV field delimiter")
	flag.StringVar(&cfg.YearColumn, "year-column", getEnv("YEAR_COLUMN", "Tahun"), "Name of the year column")

	// Forecast parameters
	flag.IntVar(&cfg.NLags, "lags", getEnvInt("N_LAGS", 12), "Number of lag features")
	flag.IntVar(&cfg.MonthsAhead, "months", getEnvInt("MONTHS_AHEAD", 120), "Months to forecast per run")
	flag.StringVar(&cfg.Model, "model", getEnv("MODEL", "linear"), "Model: linear or baseline")
	flag.Float64Var(&cfg.RidgeLambda, "ridge-lambda", getEnvFloat("RIDGE_LAMBDA", 1.0), "L2 penalty for the linear model")
	flag.DurationVar(&cfg.Interval, "interval", getEnvDuration("INTERVAL", time.Hour), "Reload and forecast interval")
	flag.IntVar(&cfg.CacheSize, "cache-size", getEnvInt("CACHE_SIZE", 64), "On-demand forecast cache entries")

	// Storage
	flag.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Storage backend: memory, redis or sqlite")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis address")
	flag.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database")
	flag.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 7*24*time.Hour), "Snapshot TTL in Redis")
	flag.StringVar(&cfg.SQLitePath, "sqlite-path", getEnv("SQLITE_PATH", "rainfall.db"), "SQLite database file")

	// Publishing
	flag.StringVar(&brokers, "kafka-brokers", getEnv("KAFKA_BROKERS", ""), "Comma-separated Kafka brokers (empty disables publishing)")
	flag.StringVar(&cfg.KafkaTopic, "kafka-topic", getEnv("KAFKA_TOPIC", "rainfall.forecasts"), "Kafka topic for snapshots")

	// Logging
	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	flag.Parse()

	cfg.KafkaBrokers = splitList(brokers)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	return cfg
}

// Validate checks the configuration. Invalid forecast parameters are
// reported as *features.ValidationError.
func (c *Config) Validate() error {
	if c.NLags < 1 {
		return &features.ValidationError{Field: "n_lags", Reason: fmt.Sprintf("must be at least 1, got %d", c.NLags)}
	}
	if c.MonthsAhead < 0 {
		return &features.ValidationError{Field: "months_ahead", Reason: fmt.Sprintf("must not be negative, got %d", c.MonthsAhead)}
	}
	// also the default horizon of GET /forecast
	if c.MonthsAhead > router.MaxMonths {
		return &features.ValidationError{Field: "months_ahead", Reason: fmt.Sprintf("must be at most %d, got %d", router.MaxMonths, c.MonthsAhead)}
	}
	if c.Series == "" {
		return fmt.Errorf("--series is required")
	}
	if c.DataPath == "" {
		return fmt.Errorf("--data is required")
	}
	if c.YearColumn == "" {
		return fmt.Errorf("--year-column is required")
	}
	if utf8.RuneCountInString(c.CSVDelimiter) != 1 {
		return fmt.Errorf("--csv-delimiter must be a single character, got %q", c.CSVDelimiter)
	}
	switch c.Model {
	case "linear", "baseline":
	default:
		return fmt.Errorf("invalid model %q: must be linear or baseline", c.Model)
	}
	switch c.Storage {
	case "memory", "redis", "sqlite":
	default:
		return fmt.Errorf("invalid storage %q: must be memory, redis or sqlite", c.Storage)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}
	if c.CacheSize < 1 {
		return fmt.Errorf("--cache-size must be at least 1")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("--kafka-topic is required when brokers are set")
	}
	return nil
}

// Comma returns the CSV delimiter as a rune.
func (c *Config) Comma() rune {
	r, _ := utf8.DecodeRuneInString(c.CSVDelimiter)
	return r
}

// StaleAfter is the age past which a snapshot is reported as stale.
func (c *Config) StaleAfter() time.Duration {
	return 2 * c.Interval
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
