// Package server exposes the simulated sessions over the HTTP and WebSocket
// API the console polls.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/tgoai/tgo-sessionwatch/internal/backend/session"
	"github.com/tgoai/tgo-sessionwatch/internal/backend/sim"
	"github.com/tgoai/tgo-sessionwatch/internal/client"
	"github.com/tgoai/tgo-sessionwatch/internal/logging"
)

// TokenHeader carries the API token as an alternative to a bearer token.
const TokenHeader = "X-Sessionwatch-Token"

const shutdownTimeout = 5 * time.Second

type Option func(*Server)

func WithToken(token string) Option {
	return func(s *Server) { s.authToken = token }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Server) { s.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithAllowedOrigins restricts WebSocket origins. Without it only same-host
// and loopback origins are accepted.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		for _, origin := range origins {
			trimmed := strings.TrimSpace(origin)
			if trimmed == "" {
				continue
			}
			s.allowedOrigins[trimmed] = true
			if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
				s.allowedHosts[parsed.Host] = true
			}
		}
	}
}

type Server struct {
	store          *session.Store
	sim            *sim.Simulator
	broadcaster    *Broadcaster
	log            logging.Logger
	now            func() time.Time
	authToken      string
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	router         *mux.Router
}

func New(store *session.Store, simulator *sim.Simulator, broadcaster *Broadcaster, opts ...Option) *Server {
	s := &Server{
		store:          store,
		sim:            simulator,
		broadcaster:    broadcaster,
		log:            logging.Discard(),
		now:            time.Now,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.requestLog, s.requireAuth)
	api.HandleFunc("/sessions", s.handleSessions).Methods(http.MethodGet)

	one := api.PathPrefix("/sessions/{id}").Subrouter()
	one.Use(s.chaos)
	one.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	one.HandleFunc("/screenshot", s.handleScreenshot).Methods(http.MethodGet)
	one.HandleFunc("/reconnect", s.handleReconnect).Methods(http.MethodPost)
	one.HandleFunc("/enabled", s.handleEnabled).Methods(http.MethodPost)
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": len(s.store.GetAll()),
		"enabled":  s.store.EnabledCount(),
		"clients":  s.broadcaster.ClientCount(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, roster(s.store.GetAll()))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store.Get(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, sim.ErrNotFound.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, st.Status())
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store.Get(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, sim.ErrNotFound.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, st.Screenshot())
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	st, err := s.sim.Reconnect(mux.Vars(r)["id"], s.now())
	if err != nil {
		writeSimError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st.Status())
}

func (s *Server) handleEnabled(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		http.Error(w, `body must be {"enabled": bool}`, http.StatusBadRequest)
		return
	}
	st, err := s.sim.SetEnabled(mux.Vars(r)["id"], *body.Enabled, s.now())
	if err != nil {
		writeSimError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st.Roster())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("ws upgrade failed")
		return
	}

	log := s.log.WithField("remote", r.RemoteAddr)
	log.Info("ws client connected")
	c := s.broadcaster.addClient(conn)

	go func() {
		defer func() {
			s.broadcaster.removeClient(c)
			log.Info("ws client disconnected")
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req struct {
				Type string `json:"type"`
			}
			if json.Unmarshal(data, &req) == nil && req.Type == "resync" {
				s.broadcaster.sendTo(c, client.MsgSnapshot, s.broadcaster.snapshot())
			}
		}
	}()
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get(TokenHeader) == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}

	if len(s.allowedOrigins) > 0 {
		return s.allowedOrigins[origin] || s.allowedHosts[parsed.Host]
	}

	if parsed.Host == r.Host {
		return true
	}
	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeSimError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sim.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, sim.ErrDisabled):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
