package peer

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrInvalidConfig = errors.New("invalid peer configuration")

// Config holds peer settings. PEARCRON_* environment variables (optionally
// from .env) provide defaults; flags override them.
type Config struct {
	Channel      string        `envconfig:"CHANNEL" default:"default"`
	ListenAddr   string        `envconfig:"LISTEN" default:"127.0.0.1:0"`
	BootstrapURL string        `envconfig:"BOOTSTRAP"`
	Peers        []string      `envconfig:"PEERS"`
	Secret       string        `envconfig:"SECRET"`
	PollEvery    time.Duration `envconfig:"POLL" default:"5s"`
	FrameRate    float64       `envconfig:"FRAME_RATE" default:"20"`
	FrameBurst   int           `envconfig:"FRAME_BURST" default:"40"`
	JournalPath  string        `envconfig:"JOURNAL"`
	JournalMax   int           `envconfig:"JOURNAL_MAX" default:"1000"`
	UseTUI       bool          `envconfig:"TUI" default:"false"`
	UseWeb       bool          `envconfig:"WEB" default:"false"`
	WebAddr      string        `envconfig:"WEB_ADDR" default:"127.0.0.1:8081"`
	LogLevel     string        `envconfig:"LOG_LEVEL" default:"warn"`
	LogJSON      bool          `envconfig:"LOG_JSON" default:"false"`
	NoColor      bool          `envconfig:"NO_COLOR" default:"false"`
}

// LoadConfig reads the environment and then parses args. The channel may
// be given with --channel, -c or as the first positional argument; the flag
// wins when both are present.
func LoadConfig(args []string) (*Config, error) {
	_ = godotenv.Load(".env")

	var cfg Config
	if err := envconfig.Process("PEARCRON", &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	fs := flag.NewFlagSet("pearcron", flag.ContinueOnError)
	fs.StringVar(&cfg.Channel, "channel", cfg.Channel, "channel to join")
	fs.StringVar(&cfg.Channel, "c", cfg.Channel, "shorthand for --channel")
	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "address to listen on (host:port, port 0 picks one)")
	fs.StringVar(&cfg.BootstrapURL, "bootstrap", cfg.BootstrapURL, "rendezvous server base url; empty disables discovery")
	peers := fs.String("peers", strings.Join(cfg.Peers, ","), "comma separated peer addresses to always dial")
	fs.StringVar(&cfg.Secret, "secret", cfg.Secret, "shared secret sealing every frame on the channel")
	fs.DurationVar(&cfg.PollEvery, "poll", cfg.PollEvery, "interval to refresh the rendezvous registration")
	fs.Float64Var(&cfg.FrameRate, "frame-rate", cfg.FrameRate, "inbound frames per second allowed per peer, 0 disables")
	fs.IntVar(&cfg.FrameBurst, "frame-burst", cfg.FrameBurst, "inbound frame burst allowed per peer")
	fs.StringVar(&cfg.JournalPath, "journal", cfg.JournalPath, "path of the activity journal; empty disables it")
	fs.IntVar(&cfg.JournalMax, "journal-max", cfg.JournalMax, "activity records kept in the journal")
	fs.BoolVar(&cfg.UseTUI, "tui", cfg.UseTUI, "enable terminal UI mode")
	fs.BoolVar(&cfg.UseWeb, "web", cfg.UseWeb, "serve the local web observer")
	fs.StringVar(&cfg.WebAddr, "web-addr", cfg.WebAddr, "address for the web observer")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "trace|debug|info|warn|error")
	fs.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "emit JSON diagnostics")
	fs.BoolVar(&cfg.NoColor, "no-color", cfg.NoColor, "disable ANSI colors in CLI output")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	channelFlag := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "channel" || f.Name == "c" {
			channelFlag = true
		}
	})
	if rest := fs.Args(); len(rest) > 0 && !channelFlag {
		cfg.Channel = rest[0]
	}
	cfg.Peers = splitList(*peers)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	c.Channel = strings.TrimSpace(c.Channel)
	if c.Channel == "" {
		return fmt.Errorf("%w: channel must not be empty", ErrInvalidConfig)
	}
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("%w: listen %q: %v", ErrInvalidConfig, c.ListenAddr, err)
	}
	for _, p := range c.Peers {
		if _, _, err := net.SplitHostPort(p); err != nil {
			return fmt.Errorf("%w: peer %q: %v", ErrInvalidConfig, p, err)
		}
	}
	if c.PollEvery <= 0 {
		return fmt.Errorf("%w: poll must be positive", ErrInvalidConfig)
	}
	if c.FrameRate < 0 || c.FrameBurst < 0 {
		return fmt.Errorf("%w: frame limits must not be negative", ErrInvalidConfig)
	}
	return nil
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
