package peer

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func clearPeerEnv(t *testing.T) {
	for _, k := range []string{"PEARCRON_CHANNEL", "PEARCRON_LISTEN", "PEARCRON_BOOTSTRAP", "PEARCRON_PEERS", "PEARCRON_SECRET", "PEARCRON_POLL"} {
		k := k // per-iteration copy (Go 1.22 loopvar semantics)
		if old, ok := os.LookupEnv(k); ok {
			t.Cleanup(func() { os.Setenv(k, old) })
			os.Unsetenv(k)
		}
	}
	chdir(t, t.TempDir())
}

// chdir is a Go 1.21-compatible stand-in for testing.T.Chdir (Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadConfigDefaults(t *testing.T) {
	clearPeerEnv(t)
	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Channel != "default" {
		t.Fatalf("channel = %q", cfg.Channel)
	}
	if cfg.ListenAddr != "127.0.0.1:0" {
		t.Fatalf("listen = %q", cfg.ListenAddr)
	}
	if cfg.PollEvery != 5*time.Second {
		t.Fatalf("poll = %v", cfg.PollEvery)
	}
	if cfg.BootstrapURL != "" || len(cfg.Peers) != 0 {
		t.Fatalf("unexpected discovery settings: %+v", cfg)
	}
}

func TestLoadConfigPositionalChannelAndPeers(t *testing.T) {
	clearPeerEnv(t)
	cfg, err := LoadConfig([]string{"--peers", "127.0.0.1:9001, 127.0.0.1:9002,", "team-standup"})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Channel != "team-standup" {
		t.Fatalf("channel = %q", cfg.Channel)
	}
	if len(cfg.Peers) != 2 || cfg.Peers[1] != "127.0.0.1:9002" {
		t.Fatalf("peers = %v", cfg.Peers)
	}
}

func TestLoadConfigChannelFlagBeatsPositional(t *testing.T) {
	clearPeerEnv(t)
	for _, args := range [][]string{{"--channel", "a", "b"}, {"-c", "a", "b"}} {
		cfg, err := LoadConfig(args)
		if err != nil {
			t.Fatalf("LoadConfig(%v): %v", args, err)
		}
		if cfg.Channel != "a" {
			t.Fatalf("LoadConfig(%v) channel = %q, want a", args, cfg.Channel)
		}
	}
}

func TestLoadConfigEnvironment(t *testing.T) {
	clearPeerEnv(t)
	t.Setenv("PEARCRON_CHANNEL", "ops")
	t.Setenv("PEARCRON_POLL", "2s")
	cfg, err := LoadConfig([]string{"-c", "override"})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Channel != "override" {
		t.Fatalf("flag should win, got %q", cfg.Channel)
	}
	if cfg.PollEvery != 2*time.Second {
		t.Fatalf("poll = %v", cfg.PollEvery)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	clearPeerEnv(t)
	cases := [][]string{
		{"--listen", "nope"},
		{"--peers", "localhost"},
		{"--poll", "0s"},
		{"--channel", "   "},
	}
	for _, args := range cases {
		if _, err := LoadConfig(args); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("LoadConfig(%v) err = %v, want ErrInvalidConfig", args, err)
		}
	}
}

func TestNewAppListensAndShutsDown(t *testing.T) {
	cfg := &Config{
		Channel:     "lab",
		ListenAddr:  "127.0.0.1:0",
		PollEvery:   time.Second,
		JournalPath: filepath.Join(t.TempDir(), "journal.db"),
		JournalMax:  10,
		NoColor:     true,
	}
	app, err := NewApp(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	if app.ConnMgr.Addr() == cfg.ListenAddr {
		t.Fatalf("expected resolved listen address, got %s", app.ConnMgr.Addr())
	}
	if app.Discovery != nil {
		t.Fatalf("discovery should be disabled without a bootstrap url")
	}
	app.Shutdown()
	app.Shutdown()
	select {
	case <-app.Runtime.Done():
	default:
		t.Fatalf("runtime not stopped after shutdown")
	}
}

func TestNewAppFailsOnBusyPort(t *testing.T) {
	first, err := NewApp(&Config{Channel: "a", ListenAddr: "127.0.0.1:0", PollEvery: time.Second}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	defer first.Shutdown()

	_, err = NewApp(&Config{Channel: "a", ListenAddr: first.ConnMgr.Addr(), PollEvery: time.Second}, zerolog.Nop())
	if err == nil {
		t.Fatalf("expected bind failure on %s", first.ConnMgr.Addr())
	}
}

func TestStartWithTUIReturns(t *testing.T) {
	cfg := &Config{Channel: "lab", ListenAddr: "127.0.0.1:0", PollEvery: time.Second, UseTUI: true}
	app, err := NewApp(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}

	started := make(chan struct{})
	go func() {
		app.Start()
		close(started)
	}()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("Start did not return with the terminal UI enabled")
	}

	stopped := make(chan struct{})
	go func() {
		app.Shutdown()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatalf("Shutdown did not return with the terminal UI enabled")
	}
}
