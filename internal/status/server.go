// Package status serves a small read-only HTTP surface for operational
// visibility into the host: process health and the plugin load report.
package status

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kiteleaf/exthost/internal/hostplugin"
)

// ChannelInfo reports transport liveness.
type ChannelInfo interface {
	Closed() bool
}

// Config holds status server configuration.
type Config struct {
	Listen string
}

// Server is the HTTP status server.
type Server struct {
	config    Config
	manager   *hostplugin.Manager
	channel   ChannelInfo
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a status server instance.
func New(config Config, manager *hostplugin.Manager, channel ChannelInfo, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		manager:   manager,
		channel:   channel,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("status server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		return ctx.Err()
	}
}

// Routes builds the HTTP routing tree. Split out for httptest use.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/plugins", s.handlePlugins)

	return r
}

type healthResponse struct {
	Status        string `json:"status"`
	PID           int    `json:"pid"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	ChannelOpen   bool   `json:"channel_open"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		PID:           os.Getpid(),
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		ChannelOpen:   !s.channel.Closed(),
	})
}

func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"plugins": s.manager.Report(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}
