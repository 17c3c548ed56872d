package store

import (
	"errors"

	"github.com/resolvai/resolvai/pkg/protocol"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a uniqueness constraint is violated
// (user email, product name).
var ErrDuplicate = errors.New("already exists")

// ErrInUse is returned when a delete is refused because other records
// still reference the target.
var ErrInUse = errors.New("still referenced")

// TicketFilter narrows ListTickets. Zero value lists everything.
type TicketFilter struct {
	CustomerID string
}

// Store is the durable persistence layer for users, products, tickets
// and messages.
type Store interface {
	CreateUser(u *protocol.User) error
	GetUser(id string) (*protocol.User, error)
	GetUserByEmail(email string) (*protocol.User, error)

	CreateProduct(p *protocol.Product) error
	ListProducts() ([]*protocol.Product, error)
	DeleteProduct(id string) error

	CreateTicket(t *protocol.Ticket) error
	GetTicket(id string) (*protocol.Ticket, error)
	ListTickets(f TicketFilter) ([]*protocol.Ticket, error)
	UpdateTicket(t *protocol.Ticket) error

	AppendMessage(m *protocol.Message) error
	ListMessages(ticketID string) ([]protocol.Message, error)
	RecentMessages(ticketID string, limit int) ([]protocol.Message, error)
}
