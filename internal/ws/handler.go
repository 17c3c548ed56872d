package ws

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/resolvai/resolvai/internal/auth"
	"github.com/resolvai/resolvai/internal/hub"
)

// TokenVerifier turns a bearer token into a caller identity.
type TokenVerifier interface {
	Verify(token string) (*auth.Identity, error)
}

// Handler upgrades authenticated HTTP requests to hub connections.
type Handler struct {
	hub      *hub.Hub
	verifier TokenVerifier
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a websocket endpoint handler. logger may be nil.
func NewHandler(h *hub.Hub, verifier TokenVerifier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub:      h,
		verifier: verifier,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from a separately served UI.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP authenticates the request, upgrades it and starts the
// connection's pumps. Tokens arrive either as an Authorization header
// or as a ?token= query parameter, since browser websocket clients
// cannot set headers.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	identity, err := h.verifier.Verify(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(h.hub, conn, identity, h.logger)
	h.hub.Register(client)
	h.logger.Debug("client connected", "conn", client.id, "user", identity.UserID)

	go client.writePump()
	go client.readPump()
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
