package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"colorflow/internal/config"
	"colorflow/internal/lifecycle"
	"colorflow/internal/logging"
	"colorflow/internal/registry"
	"colorflow/internal/store"
	"colorflow/internal/tasks"
)

// Server exposes the orchestrator over HTTP: lifecycle operations and read
// queries for the presentation layer, and the pull-based task protocol for
// site daemons.
type Server struct {
	bind    string
	apiKey  string
	logger  *slog.Logger
	store   *store.Store
	engine  *lifecycle.Engine
	coord   *tasks.Coordinator
	sites   *registry.Registry
	httpSrv *http.Server

	listener net.Listener
}

// New wires a Server from its collaborators.
func New(cfg *config.Config, st *store.Store, engine *lifecycle.Engine, coord *tasks.Coordinator, sites *registry.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	srv := &Server{
		bind:   strings.TrimSpace(cfg.Server.Bind),
		apiKey: cfg.Server.DaemonAPIKey,
		logger: logging.WithComponent(logger, "server"),
		store:  st,
		engine: engine,
		coord:  coord,
		sites:  sites,
	}
	srv.httpSrv = &http.Server{
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Lifecycle operations.
	mux.HandleFunc("GET /api/files", s.handleListFiles)
	mux.HandleFunc("POST /api/files", s.handleRegisterFile)
	mux.HandleFunc("GET /api/files/{id}", s.handleGetFile)
	mux.HandleFunc("DELETE /api/files/{id}", s.handleDeleteFile)
	mux.HandleFunc("POST /api/files/{id}/validate", s.operation(func(r *http.Request) (*store.File, error) {
		return s.engine.Validate(r.Context(), r.PathValue("id"), actorFrom(r))
	}))
	mux.HandleFunc("POST /api/files/{id}/queue", s.operation(func(r *http.Request) (*store.File, error) {
		return s.engine.Queue(r.Context(), r.PathValue("id"), actorFrom(r))
	}))
	mux.HandleFunc("POST /api/files/{id}/start-transfer", s.handleStartTransfer)
	mux.HandleFunc("POST /api/files/{id}/complete-transfer", s.operation(func(r *http.Request) (*store.File, error) {
		return s.engine.CompleteTransfer(r.Context(), r.PathValue("id"), actorFrom(r))
	}))
	mux.HandleFunc("POST /api/files/{id}/assign", s.handleAssign)
	mux.HandleFunc("POST /api/files/{id}/start-work", s.operation(func(r *http.Request) (*store.File, error) {
		return s.engine.StartWork(r.Context(), r.PathValue("id"), actorFrom(r))
	}))
	mux.HandleFunc("POST /api/files/{id}/deliver", s.operation(func(r *http.Request) (*store.File, error) {
		return s.engine.Deliver(r.Context(), r.PathValue("id"), actorFrom(r))
	}))
	mux.HandleFunc("POST /api/files/{id}/archive", s.operation(func(r *http.Request) (*store.File, error) {
		return s.engine.Archive(r.Context(), r.PathValue("id"), actorFrom(r))
	}))
	mux.HandleFunc("POST /api/files/{id}/reject", s.handleReject)
	mux.HandleFunc("POST /api/files/{id}/revert", s.operation(func(r *http.Request) (*store.File, error) {
		return s.engine.Revert(r.Context(), r.PathValue("id"), actorFrom(r))
	}))
	mux.HandleFunc("POST /api/files/{id}/progress", s.handleProgress)
	mux.HandleFunc("POST /api/files/{id}/cleanup", s.handleCleanup)
	mux.HandleFunc("POST /api/files/{id}/retransfer", s.handleRetransfer)
	mux.HandleFunc("POST /api/files/bulk/{op}", s.handleBulk)

	// Read queries.
	mux.HandleFunc("GET /api/files/{id}/audit", s.handleFileAudit)
	mux.HandleFunc("GET /api/files/{id}/transfers", s.handleFileTransfers)
	mux.HandleFunc("GET /api/audit", s.handleRecentAudit)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/sites", s.handleListSites)
	mux.HandleFunc("POST /api/sites", s.handleCreateSite)
	mux.HandleFunc("GET /api/users", s.handleListUsers)
	mux.HandleFunc("POST /api/users", s.handleCreateUser)

	// Daemon protocol, behind the shared API key.
	mux.HandleFunc("POST /api/daemon/heartbeat", s.requireAPIKey(s.handleHeartbeat))
	mux.HandleFunc("POST /api/daemon/files", s.requireAPIKey(s.handleRegisterFile))
	mux.HandleFunc("POST /api/daemon/files/check", s.requireAPIKey(s.handleCheckFile))
	mux.HandleFunc("POST /api/daemon/tasks/cleanup/{id}/complete", s.requireAPIKey(s.handleCompleteCleanup))
	mux.HandleFunc("POST /api/daemon/tasks/retransfer/{id}/complete", s.requireAPIKey(s.handleCompleteRetransfer))

	return mux
}

// Start begins serving and arranges shutdown when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Stop shuts the server down outside of context cancellation.
func (s *Server) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.httpSrv.Shutdown(shutdownCtx)
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// actorFrom builds the audit actor from request headers. The presentation
// layer performs authentication and forwards the acting user's id.
func actorFrom(r *http.Request) lifecycle.Actor {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return lifecycle.Actor{
		UserID:     strings.TrimSpace(r.Header.Get("X-User-ID")),
		RemoteAddr: host,
	}
}

// requireAPIKey guards daemon endpoints with the shared key. An empty
// configured key disables the check (test deployments).
func (s *Server) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	if s.apiKey == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != s.apiKey {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// operation adapts a single-file engine call into a handler.
func (s *Server) operation(apply func(r *http.Request) (*store.File, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file, err := apply(r)
		if err != nil {
			s.writeOperationError(w, err)
			return
		}
		s.writeFile(w, file)
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
