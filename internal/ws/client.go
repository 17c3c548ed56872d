// Package ws carries hub traffic over gorilla websockets.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/resolvai/resolvai/internal/auth"
	"github.com/resolvai/resolvai/internal/hub"
	"github.com/resolvai/resolvai/pkg/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBuffer     = 64
)

// Client is one live websocket connection, registered with the hub for
// the lifetime of the socket.
type Client struct {
	id       string
	identity *auth.Identity
	hub      *hub.Hub
	conn     *websocket.Conn
	send     chan protocol.Event
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

func newClient(h *hub.Hub, conn *websocket.Conn, id *auth.Identity, logger *slog.Logger) *Client {
	return &Client{
		id:       uuid.NewString(),
		identity: id,
		hub:      h,
		conn:     conn,
		send:     make(chan protocol.Event, sendBuffer),
		logger:   logger,
	}
}

// ID implements hub.Conn.
func (c *Client) ID() string { return c.id }

// Send implements hub.Conn. It never blocks: if the client's outbound
// buffer is full the connection is dropped rather than stalling the
// broadcasting side. A broadcast racing a disconnect is silently
// discarded.
func (c *Client) Send(ev protocol.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- ev:
	default:
		c.logger.Warn("send buffer full, dropping connection", "conn", c.id)
		c.closed = true
		close(c.send)
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump consumes client events until the socket dies, then removes
// the connection from all hub scopes.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var ev protocol.Event
		if err := c.conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read error", "conn", c.id, "error", err)
			}
			return
		}
		c.dispatch(ev)
	}
}

func (c *Client) dispatch(ev protocol.Event) {
	switch ev.Type {
	case protocol.EventJoinTicket:
		var p protocol.JoinTicketPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.TicketID == "" {
			c.sendError("join_ticket requires a ticket_id")
			return
		}
		c.hub.Join(c, p.TicketID)

	case protocol.EventSendMessage:
		var p protocol.SendMessagePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.TicketID == "" {
			c.sendError("send_message requires a ticket_id")
			return
		}
		// The submission runs against the hub's lifetime, not this
		// socket's: a disconnect mid-generation never loses the reply.
		if _, err := c.hub.Submit(context.Background(), p.TicketID, protocol.HumanSender(c.identity.UserID), p.Content); err != nil {
			c.logger.Warn("submission rejected", "conn", c.id, "ticket", p.TicketID, "error", err)
			c.sendError("message could not be delivered")
		}

	case protocol.EventTyping:
		var p protocol.TypingPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.TicketID == "" {
			return // best effort, silently ignored
		}
		c.hub.Typing(p.TicketID, p.Name, c)

	case protocol.EventStopTyping:
		var p protocol.StopTypingPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.TicketID == "" {
			return
		}
		c.hub.StopTyping(p.TicketID, c)

	default:
		c.logger.Debug("unknown event type", "conn", c.id, "type", ev.Type)
	}
}

// sendError notifies only this connection; failures never fan out.
func (c *Client) sendError(msg string) {
	ev, err := protocol.NewEvent(protocol.EventError, protocol.ErrorPayload{Message: msg})
	if err != nil {
		return
	}
	c.Send(ev)
}

// writePump pushes hub events to the socket and keeps it alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
