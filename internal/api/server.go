// Package api serves the dashboard REST endpoints and the overlay
// WebSocket.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"
	zlog "github.com/rs/zerolog/log"

	"github.com/xkatng/twitch-song-requests/internal/app/session"
	"github.com/xkatng/twitch-song-requests/internal/infra/config"
)

// Server is the dashboard HTTP server.
type Server struct {
	cfg     config.ServerConfig
	manager *session.Manager
	router  *mux.Router
	http    *http.Server
}

// NewServer creates the dashboard server.
func NewServer(cfg config.ServerConfig, manager *session.Manager) *Server {
	s := &Server{
		cfg:     cfg,
		manager: manager,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.logRequests, s.loopbackOnly)

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/queue", s.handleQueue).Methods(http.MethodGet)
	api.HandleFunc("/queue", s.handleClearQueue).Methods(http.MethodDelete)
	api.HandleFunc("/queue/{index:[0-9]+}", s.handleRemoveFromQueue).Methods(http.MethodDelete)
	api.HandleFunc("/current", s.handleCurrent).Methods(http.MethodGet)
	api.HandleFunc("/skip", s.handleSkip).Methods(http.MethodPost)
	api.HandleFunc("/settings", s.handleGetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", s.handlePatchSettings).Methods(http.MethodPatch)
	api.HandleFunc("/blocklist", s.handleGetBlocklist).Methods(http.MethodGet)
	api.HandleFunc("/blocklist", s.handleAddToBlocklist).Methods(http.MethodPost)
	api.HandleFunc("/blocklist/{item}", s.handleRemoveFromBlocklist).Methods(http.MethodDelete)
	api.HandleFunc("/session/logs", s.handleSessionLogs).Methods(http.MethodGet)
	api.HandleFunc("/test/like", s.handleTestLike).Methods(http.MethodPost)
	api.HandleFunc("/test/skip-vote", s.handleTestSkipVote).Methods(http.MethodPost)
	api.HandleFunc("/test/request", s.handleTestRequest).Methods(http.MethodPost)
	api.HandleFunc("/ws", s.handleWebSocket)

	s.router = r
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	zlog.Info().Msgf("Dashboard listening on http://%s", s.cfg.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server failed")
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// loopbackOnly rejects non-loopback peers unless remote access is
// switched on. The dashboard has no authentication, so by default it
// is reachable only from the streamer's own machine.
func (s *Server) loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.AllowRemote && !isLoopback(r.RemoteAddr) {
			zlog.Warn().Msgf("Rejected remote dashboard access from %s", r.RemoteAddr)
			writeJSON(w, http.StatusForbidden, detailResponse{Detail: "Dashboard only accessible from localhost"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		zlog.Debug().Msgf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
