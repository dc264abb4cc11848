package peer

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pearcron/internal/ui"
)

const statusInterval = time.Second

// Start launches background goroutines and the display surfaces.
func (a *App) Start() {
	a.startOnce.Do(func() {
		rt := a.Runtime
		if a.tui != nil {
			go func() {
				if err := a.tui.Run(a.ctx); err != nil {
					a.Log.Error().Err(err).Msg("tui stopped")
				}
				rt.RequestQuit()
			}()
		}
		rt.Start()

		a.sink.ShowSystem(ui.LevelOK, fmt.Sprintf("PearCron peer %s joined channel %q (topic %s...)", rt.PeerID(), rt.Channel(), rt.Topic()[:12]))
		a.sink.ShowSystem(ui.LevelInfo, fmt.Sprintf("Listening on %s. Type help for commands.", a.ConnMgr.Addr()))

		go a.Dialer.Run(a.ctx)
		for _, addr := range a.Cfg.Peers {
			a.Dialer.Add(addr)
		}
		if a.Discovery != nil {
			go a.Discovery.Run(a.ctx)
		}
		go rt.StatusLoop(statusInterval)

		if a.web != nil {
			go a.web.Run(a.ctx)
		}
		if a.cli {
			go rt.ReadCLIInput(os.Stdin)
		}
	})
}

// Shutdown stops every timer, forgets peers, leaves the rendezvous topic and
// releases resources. It is safe to call more than once.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(func() {
		a.Runtime.Shutdown()
		if a.Discovery != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := a.Discovery.Leave(ctx); err != nil {
				a.Log.Debug().Err(err).Msg("leave rendezvous")
			}
			cancel()
		}
		a.cancel()
		a.Dialer.Close()
		if a.web != nil {
			a.web.Close()
		}
		if a.tui != nil {
			a.tui.Stop()
		}
		a.ConnMgr.Stop()
		if a.Journal != nil {
			_ = a.Journal.Close()
		}
	})
}

// WaitForShutdown blocks until SIGINT/SIGTERM, an exit command or stdin EOF,
// then shuts the peer down.
func WaitForShutdown(app *App) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case <-ctx.Done():
	case <-app.Runtime.Done():
	}
	app.Log.Info().Msg("shutting down")
	app.Shutdown()
}
