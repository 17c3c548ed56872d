package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/resolvai/resolvai/internal/auth"
	"github.com/resolvai/resolvai/internal/hub"
	"github.com/resolvai/resolvai/internal/store"
	"github.com/resolvai/resolvai/pkg/protocol"
)

type testAPI struct {
	t      *testing.T
	ts     *httptest.Server
	store  store.Store
	tokens *auth.Manager
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := hub.New(st, nil, logger)
	t.Cleanup(h.Close)

	tokens := auth.NewManager("test-secret", time.Hour)
	srv := NewServer(st, h, tokens, Config{}, nil, nil, logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testAPI{t: t, ts: ts, store: st, tokens: tokens}
}

// register creates a user directly in the store and returns a token.
func (a *testAPI) register(id string, role protocol.Role) string {
	a.t.Helper()
	hash, err := auth.HashPassword("hunter22")
	if err != nil {
		a.t.Fatalf("HashPassword: %v", err)
	}
	u := &protocol.User{
		ID:           id,
		Name:         id,
		Email:        id + "@example.com",
		Role:         role,
		PasswordHash: hash,
	}
	if err := a.store.CreateUser(u); err != nil {
		a.t.Fatalf("CreateUser: %v", err)
	}
	token, err := a.tokens.Issue(u)
	if err != nil {
		a.t.Fatalf("Issue: %v", err)
	}
	return token
}

// do sends a JSON request and decodes the response into out when non-nil.
func (a *testAPI) do(method, path, token string, body, out any) int {
	a.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			a.t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, a.ts.URL+path, &buf)
	if err != nil {
		a.t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.ts.Client().Do(req)
	if err != nil {
		a.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			a.t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)

	var body map[string]any
	if code := a.do(http.MethodGet, "/api/health", "", nil, &body); code != http.StatusOK {
		t.Fatalf("health status = %d", code)
	}
	if body["status"] != "ok" {
		t.Fatalf("health body = %v", body)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	a := newTestAPI(t)

	var reg authResponse
	code := a.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Dana", "email": "Dana@Example.com", "password": "hunter22",
	}, &reg)
	if code != http.StatusCreated {
		t.Fatalf("register status = %d", code)
	}
	if reg.Token == "" || reg.User == nil {
		t.Fatalf("register response missing token or user: %+v", reg)
	}
	if reg.User.Role != protocol.RoleCustomer {
		t.Fatalf("default role = %q, want customer", reg.User.Role)
	}
	if reg.User.Email != "dana@example.com" {
		t.Fatalf("email not normalized: %q", reg.User.Email)
	}

	// Same email again is a duplicate.
	code = a.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Dana", "email": "dana@example.com", "password": "hunter22",
	}, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("duplicate register status = %d", code)
	}

	var login authResponse
	code = a.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "dana@example.com", "password": "hunter22",
	}, &login)
	if code != http.StatusOK || login.Token == "" {
		t.Fatalf("login status = %d token = %q", code, login.Token)
	}

	code = a.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "dana@example.com", "password": "wrong",
	}, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("bad password status = %d", code)
	}
}

func TestAuthRequired(t *testing.T) {
	a := newTestAPI(t)

	if code := a.do(http.MethodGet, "/api/tickets", "", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", code)
	}
	if code := a.do(http.MethodGet, "/api/tickets", "garbage", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d", code)
	}
}

func TestProductRoles(t *testing.T) {
	a := newTestAPI(t)
	customer := a.register("u-cust", protocol.RoleCustomer)
	admin := a.register("u-admin", protocol.RoleAdmin)

	if code := a.do(http.MethodPost, "/api/products", customer, map[string]string{"name": "Router"}, nil); code != http.StatusForbidden {
		t.Fatalf("customer create product status = %d", code)
	}

	var p protocol.Product
	if code := a.do(http.MethodPost, "/api/products", admin, map[string]string{"name": "Router"}, &p); code != http.StatusCreated {
		t.Fatalf("admin create product status = %d", code)
	}

	var products []protocol.Product
	if code := a.do(http.MethodGet, "/api/products", customer, nil, &products); code != http.StatusOK {
		t.Fatalf("list products status = %d", code)
	}
	if len(products) != 1 || products[0].Name != "Router" {
		t.Fatalf("products = %+v", products)
	}

	if code := a.do(http.MethodDelete, "/api/products/"+p.ID, admin, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete product status = %d", code)
	}
	if code := a.do(http.MethodDelete, "/api/products/"+p.ID, admin, nil, nil); code != http.StatusNotFound {
		t.Fatalf("delete missing product status = %d", code)
	}
}

func TestTicketLifecycle(t *testing.T) {
	a := newTestAPI(t)
	customer := a.register("u-cust", protocol.RoleCustomer)
	other := a.register("u-other", protocol.RoleCustomer)
	agent := a.register("u-agent", protocol.RoleAgent)

	var created protocol.Ticket
	code := a.do(http.MethodPost, "/api/tickets", customer, createTicketRequest{
		Subject:     "No signal",
		Description: "The router light is red.",
	}, &created)
	if code != http.StatusCreated {
		t.Fatalf("create ticket status = %d", code)
	}
	if created.Status != protocol.TicketOpen || !created.BotActive {
		t.Fatalf("new ticket = %+v", created)
	}

	// Customers only list their own tickets; agents see everything.
	var mine, all []protocol.Ticket
	a.do(http.MethodGet, "/api/tickets", other, nil, &mine)
	if len(mine) != 0 {
		t.Fatalf("other customer sees %d tickets", len(mine))
	}
	a.do(http.MethodGet, "/api/tickets", agent, nil, &all)
	if len(all) != 1 {
		t.Fatalf("agent sees %d tickets", len(all))
	}

	// Get includes the founding message and enforces ownership.
	var got ticketResponse
	if code := a.do(http.MethodGet, "/api/tickets/"+created.ID, customer, nil, &got); code != http.StatusOK {
		t.Fatalf("get ticket status = %d", code)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "The router light is red." {
		t.Fatalf("messages = %+v", got.Messages)
	}
	if code := a.do(http.MethodGet, "/api/tickets/"+created.ID, other, nil, nil); code != http.StatusForbidden {
		t.Fatalf("foreign get status = %d", code)
	}

	// Status updates are staff-only and validated.
	if code := a.do(http.MethodPatch, "/api/tickets/"+created.ID+"/status", customer, map[string]string{"status": "resolved"}, nil); code != http.StatusForbidden {
		t.Fatalf("customer status update = %d", code)
	}
	if code := a.do(http.MethodPatch, "/api/tickets/"+created.ID+"/status", agent, map[string]string{"status": "bogus"}, nil); code != http.StatusBadRequest {
		t.Fatalf("bogus status update = %d", code)
	}

	var assigned protocol.Ticket
	if code := a.do(http.MethodPost, "/api/tickets/"+created.ID+"/assign", agent, nil, &assigned); code != http.StatusOK {
		t.Fatalf("assign status = %d", code)
	}
	if assigned.AgentID != "u-agent" || assigned.Status != protocol.TicketActive {
		t.Fatalf("assigned ticket = %+v", assigned)
	}
	if !assigned.BotActive {
		t.Fatal("explicit assign must not flip bot_active")
	}

	var resolved protocol.Ticket
	if code := a.do(http.MethodPatch, "/api/tickets/"+created.ID+"/status", agent, map[string]string{"status": "resolved"}, &resolved); code != http.StatusOK {
		t.Fatalf("resolve status = %d", code)
	}
	if resolved.Status != protocol.TicketResolved {
		t.Fatalf("resolved ticket = %+v", resolved)
	}
}

func TestGetUnknownTicket(t *testing.T) {
	a := newTestAPI(t)
	customer := a.register("u-cust", protocol.RoleCustomer)

	if code := a.do(http.MethodGet, "/api/tickets/t-missing", customer, nil, nil); code != http.StatusNotFound {
		t.Fatalf("unknown ticket status = %d", code)
	}
}
