// Package control exposes the capture engine to the host over HTTP: start and
// stop commands, call-state updates, status and health.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"callrec/internal/application"
	"callrec/internal/domain"
	"callrec/internal/observe"
)

// Controller is the subset of the capture manager the server drives.
type Controller interface {
	Start(ctx context.Context, auth *domain.Authorization) (application.SessionInfo, error)
	Stop(ctx context.Context) (application.Status, error)
	Status() application.Status
	HandleCallState(ctx context.Context, state domain.CallState) error
}

// GrantVerifier turns a bearer grant token into an authorization.
type GrantVerifier interface {
	Verify(token string) (*domain.Authorization, error)
}

type Options struct {
	Addr      string
	AuthToken string
	// RateLimit is the number of mutating requests per minute per client.
	RateLimit int
	// MetricsHandler is mounted on GET /metrics when non-nil.
	MetricsHandler http.Handler
	Metrics        *observe.Metrics
}

type Server struct {
	addr        string
	authToken   string
	controller  Controller
	grants      GrantVerifier
	logger      *slog.Logger
	mux         *http.ServeMux
	handler     http.Handler
	rateLimiter *RateLimiter
	mu          sync.Mutex
	running     bool
}

func NewServer(opts Options, controller Controller, grants GrantVerifier, logger *slog.Logger) *Server {
	if opts.RateLimit <= 0 {
		opts.RateLimit = 30
	}
	s := &Server{
		addr:        opts.Addr,
		authToken:   opts.AuthToken,
		controller:  controller,
		grants:      grants,
		logger:      logger,
		mux:         http.NewServeMux(),
		rateLimiter: NewRateLimiter(opts.RateLimit, time.Minute),
	}
	s.mux.HandleFunc("POST /capture/start", s.rateLimiter.Middleware(s.requireToken(s.handleStart)))
	s.mux.HandleFunc("POST /capture/stop", s.rateLimiter.Middleware(s.requireToken(s.handleStop)))
	s.mux.HandleFunc("POST /call-state", s.rateLimiter.Middleware(s.requireToken(s.handleCallState)))
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if opts.MetricsHandler != nil {
		s.mux.Handle("GET /metrics", opts.MetricsHandler)
	}

	s.handler = s.mux
	if opts.Metrics != nil {
		s.handler = observe.Middleware(opts.Metrics, s.mux)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve listens on the configured address and blocks until ctx is done,
// then shuts the server down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}

	server := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("control server starting", "addr", ln.Addr().String())
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("control server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("graceful shutdown failed, forcing close", "error", err)
		if err := server.Close(); err != nil {
			return fmt.Errorf("closing server: %w", err)
		}
	}
	return nil
}

func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next(w, r)
			return
		}
		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token != s.authToken {
			s.logger.Warn("unauthorized control request", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, 8192))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	token := strings.TrimSpace(string(data))
	if token == "" {
		http.Error(w, "missing grant", http.StatusBadRequest)
		return
	}

	auth, err := s.grants.Verify(token)
	if err != nil {
		s.logger.Warn("rejected capture grant", "error", err)
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	info, err := s.controller.Start(r.Context(), auth)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	st, err := s.controller.Stop(r.Context())
	if err != nil {
		s.logger.Warn("stopping capture", "error", err)
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleCallState(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, 64))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	state, ok := domain.ParseCallState(strings.ToUpper(strings.TrimSpace(string(data))))
	if !ok {
		http.Error(w, "unknown call state", http.StatusBadRequest)
		return
	}

	if err := s.controller.HandleCallState(r.Context(), state); err != nil {
		s.logger.Error("handling call state", "state", string(state), "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "ok", "call_state": string(state)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Status())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	st := s.controller.Status()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","running":%t,"capture":"%s"}`, running, st.State)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionActive):
		return http.StatusConflict
	case errors.Is(err, domain.ErrAuthorization):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
