// Package config assembles the service configuration from an optional .env
// file, the environment and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"

	"adsb_history/internal/feed"
	"adsb_history/internal/logging"
	"adsb_history/internal/storage"
)

// Config is the root configuration, built once at startup.
type Config struct {
	FeedURL      string
	FeedTimeout  time.Duration
	PollInterval time.Duration

	Storage storage.Config

	NATSURL           string // empty disables publishing
	NATSSubjectPrefix string

	HTTPPort  int
	LogLevel  string
	LogFormat string
}

// LoadDotEnv loads variables from the given files (default ".env") without
// overriding ones already set. Missing files are ignored.
func LoadDotEnv(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	for _, name := range filenames {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

// Load parses args against defaults taken from getenv and validates the
// result.
func Load(args []string, getenv func(string) string) (*Config, error) {
	env := envSource(getenv)
	cfg := &Config{}

	flags := flag.NewFlagSet("adsb-history", flag.ContinueOnError)
	flags.SetOutput(io.Discard)

	// Feed and scheduling.
	flags.StringVar(&cfg.FeedURL, "feed-url", env.str("FEED_URL", env.str("ip", "")), "Receiver aircraft.json URL")
	flags.DurationVar(&cfg.FeedTimeout, "feed-timeout", env.duration("FEED_TIMEOUT", feed.DefaultTimeout), "Feed request timeout")
	flags.DurationVar(&cfg.PollInterval, "poll-interval", env.duration("POLL_INTERVAL", time.Second), "Ingestion period (minimum 1s)")

	BindStorageFlags(flags, getenv, &cfg.Storage)

	// Publishing.
	flags.StringVar(&cfg.NATSURL, "nats-url", env.str("NATS_URL", ""), "NATS server URL (empty disables publishing)")
	flags.StringVar(&cfg.NATSSubjectPrefix, "nats-subject-prefix", env.str("NATS_SUBJECT_PREFIX", "adsb"), "NATS subject prefix")

	// HTTP and logging.
	flags.IntVar(&cfg.HTTPPort, "port", env.integer("HTTP_PORT", 8000), "HTTP port for the read API")
	flags.StringVar(&cfg.LogLevel, "log-level", env.str("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	flags.StringVar(&cfg.LogFormat, "log-format", env.str("LOG_FORMAT", logging.FormatJSON), "Log format: json or console")

	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// BindStorageFlags registers the store selection and connection flags on
// flags, with defaults taken from getenv.
func BindStorageFlags(flags *flag.FlagSet, getenv func(string) string, dst *storage.Config) {
	env := envSource(getenv)
	defaults := storage.DefaultConfig()

	flags.StringVar(&dst.Driver, "db-driver", env.str("DB_DRIVER", defaults.Driver), "Store backend: postgres, sqlite or clickhouse")

	flags.StringVar(&dst.Postgres.Host, "pg-host", env.str("POSTGRES_HOST", defaults.Postgres.Host), "PostgreSQL host")
	flags.IntVar(&dst.Postgres.Port, "pg-port", env.integer("POSTGRES_PORT", defaults.Postgres.Port), "PostgreSQL port")
	flags.StringVar(&dst.Postgres.Database, "pg-database", env.str("POSTGRES_DATABASE", defaults.Postgres.Database), "PostgreSQL database")
	flags.StringVar(&dst.Postgres.User, "pg-user", env.str("DBUSER", env.str("POSTGRES_USER", defaults.Postgres.User)), "PostgreSQL user")
	flags.StringVar(&dst.Postgres.Password, "pg-password", env.str("DBPASSWORD", env.str("POSTGRES_PASSWORD", defaults.Postgres.Password)), "PostgreSQL password")

	flags.StringVar(&dst.SQLite.Path, "sqlite-path", env.str("SQLITE_PATH", defaults.SQLite.Path), "SQLite database file")

	flags.StringVar(&dst.ClickHouse.Host, "ch-host", env.str("CLICKHOUSE_HOST", defaults.ClickHouse.Host), "ClickHouse host")
	flags.IntVar(&dst.ClickHouse.Port, "ch-port", env.integer("CLICKHOUSE_PORT", defaults.ClickHouse.Port), "ClickHouse native port")
	flags.StringVar(&dst.ClickHouse.Database, "ch-database", env.str("CLICKHOUSE_DATABASE", defaults.ClickHouse.Database), "ClickHouse database")
	flags.StringVar(&dst.ClickHouse.User, "ch-user", env.str("CLICKHOUSE_USER", defaults.ClickHouse.User), "ClickHouse user")
	flags.StringVar(&dst.ClickHouse.Password, "ch-password", env.str("CLICKHOUSE_PASSWORD", defaults.ClickHouse.Password), "ClickHouse password")
}

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.FeedURL == "" {
		return errors.New("feed url is required (FEED_URL or ip)")
	}
	u, err := url.Parse(c.FeedURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("feed url %q must be an absolute http(s) URL", c.FeedURL)
	}
	if c.FeedTimeout <= 0 {
		return fmt.Errorf("feed timeout must be positive, got %s", c.FeedTimeout)
	}
	if c.PollInterval < time.Second {
		return fmt.Errorf("poll interval must be >= 1s, got %s", c.PollInterval)
	}

	switch c.Storage.Driver {
	case storage.DriverPostgres:
		if c.Storage.Postgres.Host == "" {
			return errors.New("postgres host is required")
		}
		if c.Storage.Postgres.Database == "" {
			return errors.New("postgres database is required")
		}
	case storage.DriverSQLite:
		if c.Storage.SQLite.Path == "" {
			return errors.New("sqlite path is required")
		}
	case storage.DriverClickHouse:
		if c.Storage.ClickHouse.Host == "" {
			return errors.New("clickhouse host is required")
		}
	default:
		return fmt.Errorf("unknown db driver %q", c.Storage.Driver)
	}

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if c.LogFormat != logging.FormatJSON && c.LogFormat != logging.FormatConsole {
		return fmt.Errorf("log format must be %s or %s, got %q", logging.FormatJSON, logging.FormatConsole, c.LogFormat)
	}

	return nil
}

type envSource func(string) string

func (e envSource) str(key, defaultVal string) string {
	if v := e(key); v != "" {
		return v
	}
	return defaultVal
}

func (e envSource) integer(key string, defaultVal int) int {
	if v := e(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func (e envSource) duration(key string, defaultVal time.Duration) time.Duration {
	if v := e(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
