// Package bootstrap is the rendezvous HTTP server peers use to find each
// other by channel topic.
package bootstrap

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"pearcron/internal/peerlist"
)

// App wraps the bootstrap HTTP server and peer registry state.
type App struct {
	Cfg   *Config
	Store peerlist.Store
	log   zerolog.Logger
	srv   *http.Server
	ln    net.Listener
	close func() error
}

// NewApp picks the store: PostgreSQL when a database URL is configured,
// memory otherwise.
func NewApp(ctx context.Context, cfg *Config, log zerolog.Logger) (*App, error) {
	app := &App{Cfg: cfg, log: log, close: func() error { return nil }}
	if cfg.DatabaseURL == "" {
		app.Store = peerlist.NewMemoryStore(cfg.PeerTTL)
		return app, nil
	}
	pg, err := peerlist.OpenPostgres(ctx, cfg.DatabaseURL, cfg.PeerTTL)
	if err != nil {
		return nil, err
	}
	app.Store = pg
	app.close = pg.Close
	return app, nil
}

// Start binds the listener and serves in the background. A bind failure is
// returned rather than logged.
func (a *App) Start() error {
	ln, err := net.Listen("tcp", a.Cfg.Addr)
	if err != nil {
		return err
	}
	a.ln = ln
	a.srv = &http.Server{Handler: a.Router(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Msg("bootstrap server stopped")
		}
	}()
	store := "memory"
	if a.Cfg.DatabaseURL != "" {
		store = "postgres"
	}
	a.log.Info().Str("addr", ln.Addr().String()).Str("store", store).Dur("peer_ttl", a.Cfg.PeerTTL).Msg("bootstrap server listening")
	return nil
}

// Addr is the bound address once started.
func (a *App) Addr() string {
	if a.ln == nil {
		return a.Cfg.Addr
	}
	return a.ln.Addr().String()
}

// Shutdown gracefully stops the HTTP server and closes the store.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	if a.srv != nil {
		err = a.srv.Shutdown(ctx)
	}
	return errors.Join(err, a.close())
}

// WaitForShutdown blocks on SIGINT/SIGTERM and then shuts down the app.
func WaitForShutdown(app *App) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	app.log.Info().Msg("bootstrap shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		app.log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
