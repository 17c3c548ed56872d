package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/resolvai/resolvai/internal/auth"
	"github.com/resolvai/resolvai/internal/logring"
	"github.com/resolvai/resolvai/internal/store"
	"github.com/resolvai/resolvai/pkg/protocol"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"workers": s.hub.WorkerCount(),
	})
}

// --- auth ---

type registerRequest struct {
	Name     string        `json:"name"`
	Email    string        `json:"email"`
	Password string        `json:"password"`
	Role     protocol.Role `json:"role"`
}

type authResponse struct {
	Token string         `json:"token"`
	User  *protocol.User `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || req.Email == "" || len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "name, email and a password of at least 6 characters are required")
		return
	}
	switch req.Role {
	case "":
		req.Role = protocol.RoleCustomer
	case protocol.RoleCustomer, protocol.RoleAgent, protocol.RoleAdmin:
	default:
		writeError(w, http.StatusBadRequest, "unknown role")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	u := &protocol.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		Role:         req.Role,
		PasswordHash: hash,
	}
	if err := s.store.CreateUser(u); err != nil {
		writeStoreError(w, err)
		return
	}

	token, err := s.tokens.Issue(u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.logger.Info("user registered", "user", u.ID, "role", u.Role)
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: u.Public()})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := s.store.GetUserByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		// Same response for unknown email and bad password.
		writeError(w, http.StatusBadRequest, "invalid credentials")
		return
	}
	if err := auth.CheckPassword(u.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusBadRequest, "invalid credentials")
		return
	}
	token, err := s.tokens.Issue(u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: u.Public()})
}

// --- products ---

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.store.ListProducts()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	p := &protocol.Product{ID: uuid.NewString(), Name: req.Name}
	if err := s.store.CreateProduct(p); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteProduct(r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- tickets ---

type createTicketRequest struct {
	Subject     string `json:"subject"`
	Description string `json:"description"`
	ProductID   string `json:"product_id"`
}

func (s *Server) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)

	var req createTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Subject) == "" || strings.TrimSpace(req.Description) == "" {
		writeError(w, http.StatusBadRequest, "subject and description are required")
		return
	}

	t, err := s.hub.CreateTicket(r.Context(), identity.UserID, req.Subject, req.Description, req.ProductID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)

	var f store.TicketFilter
	if !identity.Role.Staff() {
		// Customers only ever see their own tickets.
		f.CustomerID = identity.UserID
	}
	tickets, err := s.store.ListTickets(f)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

type ticketResponse struct {
	*protocol.Ticket
	Messages []protocol.Message `json:"messages"`
}

func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)

	t, err := s.store.GetTicket(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !identity.Role.Staff() && t.CustomerID != identity.UserID {
		writeError(w, http.StatusForbidden, "access denied")
		return
	}
	messages, err := s.store.ListMessages(t.ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticketResponse{Ticket: t, Messages: messages})
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status protocol.TicketStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	t, err := s.hub.UpdateStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleAssignTicket assigns the ticket to the calling agent.
func (s *Server) handleAssignTicket(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)

	t, err := s.hub.Assign(r.Context(), r.PathValue("id"), identity.UserID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// --- logs ---

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeJSON(w, http.StatusOK, []logring.Entry{})
		return
	}
	level := slog.LevelInfo
	if r.URL.Query().Get("level") == "error" {
		level = slog.LevelError
	}
	writeJSON(w, http.StatusOK, s.logs.Tail(200, level))
}
