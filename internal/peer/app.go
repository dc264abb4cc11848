// Package peer wires a PearCron peer: transport, discovery, scheduler
// runtime and display surfaces.
package peer

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"pearcron/internal/crypto"
	"pearcron/internal/network"
	"pearcron/internal/protocol"
	"pearcron/internal/storage"
	"pearcron/internal/ui"
)

// App encapsulates the peer runtime components.
type App struct {
	Cfg *Config
	Log zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	Runtime   *protocol.Runtime
	ConnMgr   *network.ConnManager
	Dialer    *protocol.DialScheduler
	Discovery *protocol.Discovery
	Journal   *storage.Journal

	sink ui.Sink
	cli  bool
	tui  *ui.TUIDisplay
	web  *ui.WebBridge

	startOnce    sync.Once
	shutdownOnce sync.Once
}

// NewApp wires all peer dependencies. Any error is fatal for startup: a
// bad secret, an unopenable journal or a listen address already in use.
func NewApp(cfg *Config, log zerolog.Logger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{Cfg: cfg, Log: log, ctx: ctx, cancel: cancel}

	box, err := crypto.NewBox(cfg.Secret, cfg.Channel)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("init sealing: %w", err)
	}

	opts := protocol.RuntimeOptions{Channel: cfg.Channel, Logger: log}
	if cfg.JournalPath != "" {
		journal, err := storage.OpenJournal(cfg.JournalPath, cfg.JournalMax)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("open journal %s: %w", cfg.JournalPath, err)
		}
		app.Journal = journal
		opts.Journal = journal
	}
	rt := protocol.NewRuntime(ctx, opts)
	app.Runtime = rt

	var sinks []ui.Sink
	if cfg.UseTUI {
		app.tui = ui.NewTUIDisplay(cfg.Channel, rt.ProcessLine)
		sinks = append(sinks, app.tui)
	} else {
		app.cli = true
		sinks = append(sinks, ui.NewCLIDisplay(ui.ShouldUseColor(cfg.NoColor)))
	}
	if cfg.UseWeb {
		app.web = ui.NewWebBridge(cfg.WebAddr, rt, rt.ProcessLine, log)
		sinks = append(sinks, app.web)
	}
	app.sink = ui.NewMultiSink(sinks...)
	rt.SetSink(app.sink)

	cm := network.NewConnManager(cfg.ListenAddr, rt, network.Options{
		Box:        box,
		Logger:     log,
		FrameRate:  cfg.FrameRate,
		FrameBurst: cfg.FrameBurst,
	})
	if err := cm.StartListen(); err != nil {
		cancel()
		if app.Journal != nil {
			_ = app.Journal.Close()
		}
		return nil, err
	}
	app.ConnMgr = cm
	rt.SetTransport(cm)

	app.Dialer = protocol.NewDialScheduler(cm, cm.Addr(), log)
	if cfg.BootstrapURL != "" {
		app.Discovery = protocol.NewDiscovery(cfg.BootstrapURL, rt.Topic(), cm.Addr(), app.Dialer, cfg.PollEvery, log)
	}

	log.Info().
		Str("peer", rt.PeerID()).
		Str("channel", cfg.Channel).
		Str("listen", cm.Addr()).
		Bool("sealed", cm.EncryptionEnabled()).
		Msg("peer ready")
	return app, nil
}
