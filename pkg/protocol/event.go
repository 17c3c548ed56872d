package protocol

import "encoding/json"

// EventType names a websocket event.
type EventType string

// Client → hub.
const (
	EventJoinTicket  EventType = "join_ticket"
	EventSendMessage EventType = "send_message"
	EventTyping      EventType = "typing"
	EventStopTyping  EventType = "stop_typing"
)

// Hub → room (scoped to one ticket's live viewers).
const (
	EventReceiveMessage EventType = "receive_message"
	EventDisplayTyping  EventType = "display_typing"
	EventHideTyping     EventType = "hide_typing"
)

// Hub → global (every connected client, room membership irrelevant).
// The payload is always the full updated ticket so list views never
// have to merge deltas.
const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusUpdated EventType = "ticket_status_updated"
	EventTicketAssigned      EventType = "ticket_assigned"
)

// EventError is sent only to the connection whose own submission
// failed; nothing about the failure reaches any other client.
const EventError EventType = "error"

// ErrorPayload describes a rejected client event.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Event is the wire envelope for all websocket traffic.
type Event struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an envelope with the payload marshalled in place.
func NewEvent(t EventType, payload any) (Event, error) {
	if payload == nil {
		return Event{Type: t}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: t, Payload: raw}, nil
}

// JoinTicketPayload asks to join a ticket's room, leaving any prior room.
type JoinTicketPayload struct {
	TicketID string `json:"ticket_id"`
}

// SendMessagePayload submits a chat message on a ticket.
type SendMessagePayload struct {
	TicketID string `json:"ticket_id"`
	Content  string `json:"content"`
}

// TypingPayload announces that someone is composing a message.
type TypingPayload struct {
	TicketID string `json:"ticket_id"`
	Name     string `json:"name"`
}

// StopTypingPayload withdraws a typing announcement.
type StopTypingPayload struct {
	TicketID string `json:"ticket_id"`
}

// DisplayTypingPayload is shown to other room members.
type DisplayTypingPayload struct {
	TyperName string `json:"typer_name"`
}
