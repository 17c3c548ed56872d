// Package api is the HTTP surface: auth, ticket and product CRUD, and
// the websocket upgrade endpoint. Ticket mutations go through the hub
// so chat-side and CRUD-side transitions share one state machine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/resolvai/resolvai/internal/auth"
	"github.com/resolvai/resolvai/internal/hub"
	"github.com/resolvai/resolvai/internal/logring"
	"github.com/resolvai/resolvai/internal/store"
	"github.com/resolvai/resolvai/pkg/protocol"
)

// Config holds API server configuration.
type Config struct {
	Host string
	Port int
}

// Server is the ResolvAI REST API server.
type Server struct {
	store  store.Store
	hub    *hub.Hub
	tokens *auth.Manager
	logs   *logring.Ring
	logger *slog.Logger
	srv    *http.Server
}

// NewServer creates the API server. ws is mounted at /ws when non-nil;
// logs and logger may be nil.
func NewServer(st store.Store, h *hub.Hub, tokens *auth.Manager, cfg Config, ws http.Handler, logs *logring.Ring, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:  st,
		hub:    h,
		tokens: tokens,
		logs:   logs,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	mux.HandleFunc("GET /api/products", s.requireAuth(s.handleListProducts))
	mux.HandleFunc("POST /api/products", s.requireRole(protocol.RoleAdmin, s.handleCreateProduct))
	mux.HandleFunc("DELETE /api/products/{id}", s.requireRole(protocol.RoleAdmin, s.handleDeleteProduct))

	mux.HandleFunc("GET /api/tickets", s.requireAuth(s.handleListTickets))
	mux.HandleFunc("POST /api/tickets", s.requireAuth(s.handleCreateTicket))
	mux.HandleFunc("GET /api/tickets/{id}", s.requireAuth(s.handleGetTicket))
	mux.HandleFunc("PATCH /api/tickets/{id}/status", s.requireStaff(s.handleUpdateStatus))
	mux.HandleFunc("POST /api/tickets/{id}/assign", s.requireStaff(s.handleAssignTicket))

	mux.HandleFunc("GET /api/logs", s.requireRole(protocol.RoleAdmin, s.handleGetLogs))

	if ws != nil {
		mux.Handle("GET /ws", ws)
	}

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins listening. Blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// --- middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type ctxKey int

const identityKey ctxKey = 0

func identityFrom(r *http.Request) *auth.Identity {
	id, _ := r.Context().Value(identityKey).(*auth.Identity)
	return id
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			writeError(w, http.StatusUnauthorized, "no token, authorization denied")
			return
		}
		identity, err := s.tokens.Verify(header[len(prefix):])
		if err != nil {
			writeError(w, http.StatusUnauthorized, "token is not valid")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), identityKey, identity)))
	}
}

// requireStaff rejects non-agent callers before any mutation happens.
func (s *Server) requireStaff(next http.HandlerFunc) http.HandlerFunc {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		if !identityFrom(r).Role.Staff() {
			writeError(w, http.StatusForbidden, "only agents can do this")
			return
		}
		next(w, r)
	})
}

func (s *Server) requireRole(role protocol.Role, next http.HandlerFunc) http.HandlerFunc {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		if identityFrom(r).Role != role {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
		next(w, r)
	})
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// writeStoreError maps storage sentinels onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusBadRequest, "already exists")
	case errors.Is(err, store.ErrInUse):
		writeError(w, http.StatusBadRequest, "still referenced by tickets")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
