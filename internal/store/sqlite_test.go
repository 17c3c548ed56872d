package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/resolvai/resolvai/pkg/protocol"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.DB().Close() })
	return s
}

func seedTicket(t *testing.T, s *SQLiteStore, ticketID, customerID string) {
	t.Helper()
	if err := s.CreateUser(&protocol.User{ID: customerID, Name: "Cust", Email: customerID + "@example.com", Role: protocol.RoleCustomer, PasswordHash: "x"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.CreateProduct(&protocol.Product{ID: "p-" + ticketID, Name: "Product " + ticketID}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	if err := s.CreateTicket(&protocol.Ticket{
		ID: ticketID, Subject: "Help", Status: protocol.TicketOpen, BotActive: true,
		CustomerID: customerID, ProductID: "p-" + ticketID, CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("create ticket: %v", err)
	}
}

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)

	u := &protocol.User{ID: "u-1", Name: "Ada", Email: "ada@example.com", Role: protocol.RoleAgent, PasswordHash: "hash"}
	if err := s.CreateUser(u); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetUser("u-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Email != "ada@example.com" || got.Role != protocol.RoleAgent {
		t.Errorf("unexpected user: %+v", got)
	}

	byEmail, err := s.GetUserByEmail("ada@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if byEmail.ID != "u-1" {
		t.Errorf("expected u-1, got %s", byEmail.ID)
	}

	dup := &protocol.User{ID: "u-2", Name: "Ada2", Email: "ada@example.com", Role: protocol.RoleCustomer, PasswordHash: "h"}
	if err := s.CreateUser(dup); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	if _, err := s.GetUser("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestProducts(t *testing.T) {
	s := newTestStore(t)

	if err := s.CreateProduct(&protocol.Product{ID: "p-1", Name: "Billing Issue"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateProduct(&protocol.Product{ID: "p-2", Name: "Billing Issue"}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	products, err := s.ListProducts()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(products))
	}

	// Delete is refused while a ticket references the product.
	if err := s.CreateUser(&protocol.User{ID: "u-1", Name: "C", Email: "c@example.com", Role: protocol.RoleCustomer, PasswordHash: "x"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.CreateTicket(&protocol.Ticket{
		ID: "t-1", Subject: "s", Status: protocol.TicketOpen, BotActive: true,
		CustomerID: "u-1", ProductID: "p-1", CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	if err := s.DeleteProduct("p-1"); !errors.Is(err, ErrInUse) {
		t.Errorf("expected ErrInUse, got %v", err)
	}

	if err := s.DeleteProduct("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTicketLifecycle(t *testing.T) {
	s := newTestStore(t)
	seedTicket(t, s, "t-1", "u-1")

	got, err := s.GetTicket("t-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.BotActive || got.Status != protocol.TicketOpen || got.AgentID != "" {
		t.Errorf("unexpected fresh ticket: %+v", got)
	}

	got.Status = protocol.TicketActive
	got.BotActive = false
	got.AgentID = "agent-1"
	if err := s.UpdateTicket(got); err != nil {
		t.Fatalf("update: %v", err)
	}

	again, err := s.GetTicket("t-1")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if again.BotActive || again.Status != protocol.TicketActive || again.AgentID != "agent-1" {
		t.Errorf("update not persisted: %+v", again)
	}

	if _, err := s.GetTicket("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListTicketsFilter(t *testing.T) {
	s := newTestStore(t)
	seedTicket(t, s, "t-1", "u-1")
	seedTicket(t, s, "t-2", "u-2")

	all, err := s.ListTickets(TicketFilter{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 tickets, got %d", len(all))
	}

	mine, err := s.ListTickets(TicketFilter{CustomerID: "u-1"})
	if err != nil {
		t.Fatalf("list mine: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != "t-1" {
		t.Errorf("expected only t-1, got %+v", mine)
	}
}

func TestMessagesOrderAndWindow(t *testing.T) {
	s := newTestStore(t)
	seedTicket(t, s, "t-1", "u-1")

	base := time.Now()
	for i := 0; i < 8; i++ {
		sender := protocol.HumanSender("u-1")
		if i%2 == 1 {
			sender = protocol.Automated
		}
		m := &protocol.Message{
			ID:        fmt.Sprintf("m-%03d", i),
			TicketID:  "t-1",
			Sender:    sender,
			Content:   fmt.Sprintf("message %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		}
		if err := s.AppendMessage(m); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	all, err := s.ListMessages("t-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 8 {
		t.Fatalf("expected 8 messages, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.Before(all[i-1].CreatedAt) {
			t.Errorf("messages out of order at %d", i)
		}
	}
	if all[1].Sender.IsHuman() {
		t.Error("expected message 1 to be automated")
	}

	recent, err := s.RecentMessages("t-1", 5)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 5 {
		t.Fatalf("expected 5 recent messages, got %d", len(recent))
	}
	if recent[0].ID != "m-003" || recent[4].ID != "m-007" {
		t.Errorf("unexpected window: first=%s last=%s", recent[0].ID, recent[4].ID)
	}
}
