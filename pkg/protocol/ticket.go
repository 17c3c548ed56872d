package protocol

import "time"

// TicketStatus represents the lifecycle state of a support ticket.
type TicketStatus string

const (
	TicketOpen     TicketStatus = "open"
	TicketActive   TicketStatus = "active"
	TicketResolved TicketStatus = "resolved"
)

// Valid reports whether s is one of the known statuses.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketOpen, TicketActive, TicketResolved:
		return true
	}
	return false
}

// Ticket is one customer's support conversation. BotActive starts true
// at creation and latches to false once a human agent engages; no
// message or status path ever sets it back to true.
type Ticket struct {
	ID         string       `json:"id"`
	Subject    string       `json:"subject"`
	Status     TicketStatus `json:"status"`
	BotActive  bool         `json:"bot_active"`
	CustomerID string       `json:"customer_id"`
	AgentID    string       `json:"agent_id,omitempty"`
	ProductID  string       `json:"product_id"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Clone returns a copy so broadcast payloads never alias hub state.
func (t *Ticket) Clone() *Ticket {
	c := *t
	return &c
}

// Product is a catalog entry tickets are filed against.
type Product struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
