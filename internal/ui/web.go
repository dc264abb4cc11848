package ui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	webBacklogSize = 100
	wsWriteTimeout = 5 * time.Second
)

// JobLister supplies the current job table to the web observer.
type JobLister interface {
	JobRows() []JobRow
}

// WebBridge exposes the activity feed over a websocket and a small JSON API.
// Commands posted by a browser are fed into the same line processor as stdin.
type WebBridge struct {
	addr     string
	srv      *http.Server
	router   chi.Router
	upgrader websocket.Upgrader
	jobs     JobLister
	submit   func(string)
	log      zerolog.Logger

	clientsMu sync.Mutex
	clients   map[string]*wsClient

	backlogMu sync.Mutex
	backlog   []webEvent

	sseMu      sync.Mutex
	sseClients map[chan webEvent]struct{}
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

type webEvent struct {
	Kind         string        `json:"kind"`
	Level        Level         `json:"level,omitempty"`
	Text         string        `json:"text,omitempty"`
	Activity     *Activity     `json:"activity,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
	Jobs         []JobRow      `json:"jobs,omitempty"`
	Peers        *int          `json:"peers,omitempty"`
	Backlog      []webEvent    `json:"backlog,omitempty"`
}

type commandRequest struct {
	Command string `json:"command"`
}

func NewWebBridge(addr string, jobs JobLister, submit func(string), log zerolog.Logger) *WebBridge {
	wb := &WebBridge{
		addr:       addr,
		jobs:       jobs,
		submit:     submit,
		log:        log.With().Str("component", "web").Logger(),
		clients:    make(map[string]*wsClient),
		sseClients: make(map[chan webEvent]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	r.Get("/ws", wb.handleWS)
	r.Get("/events", wb.handleSSE)
	r.Get("/api/jobs", wb.handleJobs)
	r.Post("/api/commands", wb.handleCommand)
	wb.router = r
	wb.srv = &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	return wb
}

// Handler exposes the router, mainly for tests.
func (wb *WebBridge) Handler() http.Handler { return wb.router }

// Addr exposes the bound address.
func (wb *WebBridge) Addr() string { return wb.addr }

// Run serves until ctx is cancelled.
func (wb *WebBridge) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = wb.srv.Shutdown(shutdownCtx)
	}()
	wb.log.Info().Str("addr", wb.addr).Msg("web observer listening")
	if err := wb.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		wb.log.Error().Err(err).Msg("web observer stopped")
	}
}

func (wb *WebBridge) Close() {
	_ = wb.srv.Shutdown(context.Background())
	wb.clientsMu.Lock()
	for id, c := range wb.clients {
		_ = c.conn.Close()
		delete(wb.clients, id)
	}
	wb.clientsMu.Unlock()
	wb.sseMu.Lock()
	for ch := range wb.sseClients {
		close(ch)
		delete(wb.sseClients, ch)
	}
	wb.sseMu.Unlock()
}

func (wb *WebBridge) handleJobs(w http.ResponseWriter, _ *http.Request) {
	rows := []JobRow{}
	if wb.jobs != nil {
		rows = append(rows, wb.jobs.JobRows()...)
	}
	writeJSON(w, http.StatusOK, rows)
}

func (wb *WebBridge) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	line := strings.TrimSpace(req.Command)
	if line == "" {
		http.Error(w, "command required", http.StatusBadRequest)
		return
	}
	if wb.submit != nil {
		wb.submit(line)
	}
	w.WriteHeader(http.StatusAccepted)
}

func (wb *WebBridge) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wb.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wb.log.Debug().Err(err).Msg("ws upgrade")
		return
	}
	client := &wsClient{id: uuid.NewString(), conn: conn}
	if data, err := json.Marshal(webEvent{Kind: "backlog", Backlog: wb.backlogCopy()}); err == nil {
		_ = client.write(data)
	}
	wb.clientsMu.Lock()
	wb.clients[client.id] = client
	wb.clientsMu.Unlock()
	wb.log.Debug().Str("client", client.id).Msg("ws client attached")
	go wb.readLoop(client)
}

func (wb *WebBridge) readLoop(c *wsClient) {
	defer wb.unregister(c)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		line := strings.TrimSpace(string(data))
		if line == "" || wb.submit == nil {
			continue
		}
		go wb.submit(line)
	}
}

func (wb *WebBridge) unregister(c *wsClient) {
	wb.clientsMu.Lock()
	delete(wb.clients, c.id)
	wb.clientsMu.Unlock()
	_ = c.conn.Close()
}

// handleSSE streams notifications only, for lightweight observers.
func (wb *WebBridge) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	ch := make(chan webEvent, 8)
	wb.sseMu.Lock()
	wb.sseClients[ch] = struct{}{}
	wb.sseMu.Unlock()
	defer wb.removeSSEClient(ch)

	fmt.Fprint(w, ":ok\n\n")
	flusher.Flush()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (wb *WebBridge) removeSSEClient(ch chan webEvent) {
	wb.sseMu.Lock()
	defer wb.sseMu.Unlock()
	if _, ok := wb.sseClients[ch]; ok {
		delete(wb.sseClients, ch)
		close(ch)
	}
}

func (wb *WebBridge) sendEvent(evt webEvent) {
	if evt.Kind != "jobs" && evt.Kind != "peers" {
		wb.backlogMu.Lock()
		wb.backlog = append(wb.backlog, evt)
		if len(wb.backlog) > webBacklogSize {
			wb.backlog = wb.backlog[len(wb.backlog)-webBacklogSize:]
		}
		wb.backlogMu.Unlock()
	}

	data, err := json.Marshal(evt)
	if err != nil {
		wb.log.Warn().Err(err).Msg("web event encode")
		return
	}
	wb.clientsMu.Lock()
	for id, c := range wb.clients {
		if err := c.write(data); err != nil {
			wb.log.Debug().Str("client", id).Err(err).Msg("ws send")
			delete(wb.clients, id)
			_ = c.conn.Close()
		}
	}
	wb.clientsMu.Unlock()

	if evt.Kind == "notification" {
		wb.sseMu.Lock()
		for ch := range wb.sseClients {
			select {
			case ch <- evt:
			default:
			}
		}
		wb.sseMu.Unlock()
	}
}

func (wb *WebBridge) backlogCopy() []webEvent {
	wb.backlogMu.Lock()
	defer wb.backlogMu.Unlock()
	out := make([]webEvent, len(wb.backlog))
	copy(out, wb.backlog)
	return out
}

func (wb *WebBridge) ShowSystem(level Level, text string) {
	wb.sendEvent(webEvent{Kind: "system", Level: level, Text: text})
}

func (wb *WebBridge) ShowActivity(a Activity) {
	wb.sendEvent(webEvent{Kind: "activity", Text: a.Text(), Activity: &a})
}

func (wb *WebBridge) ShowNotification(n Notification) {
	wb.sendEvent(webEvent{Kind: "notification", Text: n.Text, Notification: &n})
}

func (wb *WebBridge) ShowJobs(rows []JobRow) {
	wb.sendEvent(webEvent{Kind: "jobs", Jobs: rows})
}

func (wb *WebBridge) RefreshJobs(rows []JobRow) {
	wb.ShowJobs(rows)
}

func (wb *WebBridge) UpdatePeers(count int) {
	wb.sendEvent(webEvent{Kind: "peers", Peers: &count})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
