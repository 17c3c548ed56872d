package protocol

import (
	"bytes"
	"encoding/json"
	"time"
)

// Sender identifies who authored a message: a human user or the
// automated responder. The zero value is the automated responder, so a
// message can never accidentally claim a human author.
type Sender struct {
	userID string
}

// HumanSender returns a Sender for the given user.
func HumanSender(userID string) Sender {
	return Sender{userID: userID}
}

// Automated is the sender of bot-generated replies.
var Automated = Sender{}

// IsHuman reports whether the sender is a human user.
func (s Sender) IsHuman() bool { return s.userID != "" }

// UserID returns the human author's user ID, or "" for automated messages.
func (s Sender) UserID() string { return s.userID }

// MarshalJSON encodes the sender as the user ID, or null for the
// automated responder, matching the stored representation.
func (s Sender) MarshalJSON() ([]byte, error) {
	if !s.IsHuman() {
		return []byte("null"), nil
	}
	return json.Marshal(s.userID)
}

// UnmarshalJSON accepts a user ID string or null.
func (s *Sender) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*s = Automated
		return nil
	}
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	*s = Sender{userID: id}
	return nil
}

// Message is a single chat entry on a ticket. CreatedAt is assigned by
// the hub at persistence time, never taken from the client, so ordering
// within a ticket is immune to client clock skew. Messages are
// immutable once persisted.
type Message struct {
	ID        string    `json:"id"`
	TicketID  string    `json:"ticket_id"`
	Sender    Sender    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
