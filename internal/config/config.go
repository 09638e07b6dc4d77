// Package config reads server settings from the environment. A .env file in
// the working directory is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	_ "github.com/joho/godotenv/autoload"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverNATS     = "nats"
)

type Config struct {
	Port int `env:"PORT" envDefault:"8080"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"memory"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"tictactoe.db"`

	FeedDriver string `env:"FEED_DRIVER" envDefault:"memory"`
	RedisURL   string `env:"REDIS_URL"`
	NATSURL    string `env:"NATS_URL"`

	MatchAttempts int `env:"MATCH_ATTEMPTS" envDefault:"5"`
	MoveAttempts  int `env:"MOVE_ATTEMPTS" envDefault:"3"`

	// Retention is how long finished sessions are kept. Zero disables cleanup.
	Retention       time.Duration `env:"RETENTION" envDefault:"24h"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`

	RateLimit         int           `env:"RATE_LIMIT" envDefault:"10"`
	RateWindow        time.Duration `env:"RATE_WINDOW" envDefault:"1s"`
	InactivityTimeout time.Duration `env:"INACTIVITY_TIMEOUT" envDefault:"5m"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.FeedDriver = strings.ToLower(strings.TrimSpace(cfg.FeedDriver))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}

	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	switch c.FeedDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.StoreDriver != DriverPostgres {
			errs = append(errs, errors.New("FEED_DRIVER=postgres requires STORE_DRIVER=postgres"))
		}
	case DriverRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis feed"))
		}
	case DriverNATS:
		if strings.TrimSpace(c.NATSURL) == "" {
			errs = append(errs, errors.New("NATS_URL is required for the nats feed"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown FEED_DRIVER %q", c.FeedDriver))
	}

	if c.MatchAttempts <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_ATTEMPTS must be positive, got %d", c.MatchAttempts))
	}
	if c.MoveAttempts <= 0 {
		errs = append(errs, fmt.Errorf("MOVE_ATTEMPTS must be positive, got %d", c.MoveAttempts))
	}
	if c.Retention < 0 {
		errs = append(errs, errors.New("RETENTION must not be negative"))
	}
	if c.Retention > 0 && c.CleanupInterval <= 0 {
		errs = append(errs, errors.New("CLEANUP_INTERVAL must be positive when RETENTION is set"))
	}
	if c.RateLimit <= 0 || c.RateWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT and RATE_WINDOW must be positive"))
	}
	if c.InactivityTimeout <= 0 {
		errs = append(errs, errors.New("INACTIVITY_TIMEOUT must be positive"))
	}

	return errors.Join(errs...)
}

// OriginPatterns returns the non-empty ALLOWED_ORIGINS entries, in the form
// websocket.AcceptOptions.OriginPatterns expects.
func (c Config) OriginPatterns() []string {
	origins := make([]string, 0, len(c.AllowedOrigins))
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
