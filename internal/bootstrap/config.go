package bootstrap

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrInvalidConfig = errors.New("invalid bootstrap configuration")

// Config captures the rendezvous server settings. Environment variables
// (BOOTSTRAP_*, optionally from .env) set the defaults and flags override.
type Config struct {
	Addr        string        `envconfig:"ADDR" default:":8000"`
	PeerTTL     time.Duration `envconfig:"PEER_TTL" default:"2m"`
	DatabaseURL string        `envconfig:"DATABASE_URL"`
	LogLevel    string        `envconfig:"LOG_LEVEL" default:"info"`
	LogJSON     bool          `envconfig:"LOG_JSON" default:"false"`
}

// LoadConfig reads the environment and then parses args.
func LoadConfig(args []string) (*Config, error) {
	_ = godotenv.Load(".env")

	var cfg Config
	if err := envconfig.Process("BOOTSTRAP", &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	fs := flag.NewFlagSet("bootstrap", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "address bootstrap listens on")
	fs.DurationVar(&cfg.PeerTTL, "peer-ttl", cfg.PeerTTL, "duration a peer stays registered without refresh")
	fs.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "PostgreSQL DSN; empty keeps registrations in memory")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "trace|debug|info|warn|error")
	fs.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "emit JSON logs")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr is required", ErrInvalidConfig)
	}
	if c.PeerTTL < 0 {
		return fmt.Errorf("%w: peer-ttl must not be negative", ErrInvalidConfig)
	}
	return nil
}
