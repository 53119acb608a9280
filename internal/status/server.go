package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Server exposes the Service over HTTP.
type Server struct {
	httpServer *http.Server
	svc        *Service
}

// NewServer registers the read-only routes. metrics may be nil.
func NewServer(addr string, svc *Service, metrics http.Handler) *Server {
	s := &Server{svc: svc}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.health)
	mux.HandleFunc("GET /api/status", s.status)
	mux.HandleFunc("GET /api/positions", s.positions)
	mux.HandleFunc("GET /api/profits", s.profits)
	mux.HandleFunc("GET /api/wallets", s.walletList)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start blocks serving requests until Shutdown.
func (s *Server) Start() error {
	slog.Info("status: listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests within ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("status: shutdown: %w", err)
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	if !s.svc.ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Overview())
}

// GET /api/positions[?liquidatable=true]
func (s *Server) positions(w http.ResponseWriter, r *http.Request) {
	only := r.URL.Query().Get("liquidatable") == "true"
	writeJSON(w, http.StatusOK, s.svc.Positions(only))
}

func (s *Server) profits(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Profits(r.Context())
	if err != nil {
		slog.Error("status: profits", "err", err)
		writeError(w, http.StatusInternalServerError, "profits unavailable")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) walletList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Wallets(r.Context()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
