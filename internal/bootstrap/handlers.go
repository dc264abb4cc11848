package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/hlog"

	"pearcron/internal/peerlist"
)

type registerRequest struct {
	Addr string `json:"addr"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Router wires the rendezvous API.
func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(a.log))
	r.Use(hlog.RemoteAddrHandler("ip"))
	r.Use(hlog.RequestIDHandler("req_id", "Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", a.handleHealth)
	r.Route("/topics/{topic}/peers", func(r chi.Router) {
		r.Post("/", a.handleRegister)
		r.Get("/", a.handlePeers)
		r.Delete("/", a.handleLeave)
	})
	return r
}

func (a *App) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	a.storeCall(w, r, a.Store.Register(r.Context(), chi.URLParam(r, "topic"), req.Addr), http.StatusNoContent)
}

func (a *App) handlePeers(w http.ResponseWriter, r *http.Request) {
	peers, err := a.Store.List(r.Context(), chi.URLParam(r, "topic"))
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("list peers")
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, peers)
}

func (a *App) handleLeave(w http.ResponseWriter, r *http.Request) {
	err := a.Store.Remove(r.Context(), chi.URLParam(r, "topic"), r.URL.Query().Get("addr"))
	a.storeCall(w, r, err, http.StatusNoContent)
}

func (a *App) storeCall(w http.ResponseWriter, r *http.Request, err error, okStatus int) {
	switch {
	case err == nil:
		w.WriteHeader(okStatus)
	case errors.Is(err, peerlist.ErrInvalid):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("peer store")
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
	}
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := a.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
