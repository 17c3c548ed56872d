// Package hub is the real-time core: it fans chat messages out to
// ticket rooms, runs the bot-handoff state machine, and gates the
// automated responder. All mutation for one ticket is serialized
// through a per-ticket worker; different tickets proceed in parallel.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/resolvai/resolvai/internal/responder"
	"github.com/resolvai/resolvai/internal/store"
	"github.com/resolvai/resolvai/pkg/protocol"
)

// ErrEmptyContent is returned when a submitted message has no text.
var ErrEmptyContent = errors.New("hub: empty message content")

const workerTaskBuffer = 64

// Notifier alerts the support team about ticket lifecycle events.
// Implementations must be safe for concurrent use.
type Notifier interface {
	TicketCreated(ctx context.Context, t *protocol.Ticket, customer *protocol.User)
	TicketEscalated(ctx context.Context, t *protocol.Ticket, agent *protocol.User)
}

// Mailer sends customer-facing email.
type Mailer interface {
	TicketResolved(ctx context.Context, customer *protocol.User, t *protocol.Ticket) error
}

// Hub coordinates rooms, the ticket state machine and the responder.
type Hub struct {
	store    store.Store
	rooms    *Rooms
	resp     *responder.Responder
	logger   *slog.Logger
	notifier Notifier
	mailer   Mailer

	// ctx outlives any single connection: in-flight generation calls
	// finish and persist even if every viewer disconnects.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	workers map[string]*ticketWorker
	idleTTL time.Duration
}

// Option configures a Hub.
type Option func(*Hub)

// WithNotifier sets a team notifier.
func WithNotifier(n Notifier) Option {
	return func(h *Hub) { h.notifier = n }
}

// WithMailer sets a customer mailer.
func WithMailer(m Mailer) Option {
	return func(h *Hub) { h.mailer = m }
}

// WithIdleTTL sets how long an idle per-ticket worker survives before
// Sweep removes it.
func WithIdleTTL(d time.Duration) Option {
	return func(h *Hub) { h.idleTTL = d }
}

// New creates a Hub. resp may be nil to disable automated replies
// entirely (e.g. no provider configured); logger may be nil.
func New(st store.Store, resp *responder.Responder, logger *slog.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		store:   st,
		rooms:   NewRooms(),
		resp:    resp,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		workers: make(map[string]*ticketWorker),
		idleTTL: 10 * time.Minute,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Rooms exposes the room registry for the websocket layer.
func (h *Hub) Rooms() *Rooms { return h.rooms }

// Close stops all workers and abandons pending generation calls.
func (h *Hub) Close() { h.cancel() }

// --- connection lifecycle ---

// Register adds a connection to the global broadcast scope.
func (h *Hub) Register(c Conn) { h.rooms.Register(c) }

// Unregister removes a disconnecting connection from all scopes.
func (h *Hub) Unregister(c Conn) { h.rooms.Unregister(c) }

// Join moves a connection into a ticket's room.
func (h *Hub) Join(c Conn, ticketID string) {
	h.rooms.Join(c, ticketID)
	h.logger.Debug("joined room", "conn", c.ID(), "ticket", ticketID)
}

// --- typing signals (stateless, best effort) ---

// Typing relays a typing indicator to the room, excluding the typer's
// own connection. Nothing is persisted or tracked.
func (h *Hub) Typing(ticketID, name string, from Conn) {
	ev, err := protocol.NewEvent(protocol.EventDisplayTyping, protocol.DisplayTypingPayload{TyperName: name})
	if err != nil {
		return
	}
	h.rooms.Broadcast(ticketID, ev, from)
}

// StopTyping relays the withdrawal of a typing indicator.
func (h *Hub) StopTyping(ticketID string, from Conn) {
	ev, _ := protocol.NewEvent(protocol.EventHideTyping, nil)
	h.rooms.Broadcast(ticketID, ev, from)
}

// --- ticket operations (all serialized per ticket) ---

// CreateTicket opens a new ticket with its founding customer message
// and announces it globally. The bot starts active; the founding
// message is not answered automatically, matching the chat flow where
// the customer's next message triggers the first reply.
func (h *Hub) CreateTicket(ctx context.Context, customerID, subject, description, productID string) (*protocol.Ticket, error) {
	customer, err := h.store.GetUser(customerID)
	if err != nil {
		return nil, fmt.Errorf("hub: create ticket: %w", err)
	}

	t := &protocol.Ticket{
		ID:         uuid.NewString(),
		Subject:    subject,
		Status:     protocol.TicketOpen,
		BotActive:  true,
		CustomerID: customer.ID,
		ProductID:  productID,
		CreatedAt:  time.Now().UTC(),
	}

	err = h.do(ctx, t.ID, func(wctx context.Context) error {
		if err := h.store.CreateTicket(t); err != nil {
			return fmt.Errorf("hub: create ticket: %w", err)
		}
		founding := &protocol.Message{
			ID:        uuid.NewString(),
			TicketID:  t.ID,
			Sender:    protocol.HumanSender(customer.ID),
			Content:   description,
			CreatedAt: time.Now().UTC(),
		}
		if err := h.store.AppendMessage(founding); err != nil {
			return fmt.Errorf("hub: founding message: %w", err)
		}
		h.broadcastGlobalTicket(protocol.EventTicketCreated, t)
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.logger.Info("ticket created", "ticket", t.ID, "customer", customer.ID, "subject", subject)
	if h.notifier != nil {
		go h.notifier.TicketCreated(h.ctx, t.Clone(), customer.Public())
	}
	return t, nil
}

// Submit runs the message pipeline for one inbound chat message:
// persist with a server-assigned timestamp, broadcast to the room, run
// the escalation automaton, then (for customer messages on a
// bot-active ticket) invoke the responder. The returned message is the
// persisted human message; bot-side failures never report back to the
// submitting caller.
func (h *Hub) Submit(ctx context.Context, ticketID string, sender protocol.Sender, content string) (*protocol.Message, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}

	var msg *protocol.Message
	err := h.do(ctx, ticketID, func(wctx context.Context) error {
		t, err := h.store.GetTicket(ticketID)
		if err != nil {
			return fmt.Errorf("hub: submit: %w", err)
		}

		// Role is resolved on every submission so a role change between
		// messages takes effect immediately.
		var senderUser *protocol.User
		if sender.IsHuman() {
			senderUser, err = h.store.GetUser(sender.UserID())
			if err != nil {
				return fmt.Errorf("hub: submit: sender: %w", err)
			}
		}

		msg = &protocol.Message{
			ID:        uuid.NewString(),
			TicketID:  ticketID,
			Sender:    sender,
			Content:   content,
			CreatedAt: time.Now().UTC(),
		}
		if err := h.store.AppendMessage(msg); err != nil {
			return fmt.Errorf("hub: submit: %w", err)
		}
		h.broadcastMessage(msg)

		// From here on the human message is delivered; automaton or
		// responder trouble is logged, never surfaced to the caller.
		if senderUser == nil {
			return nil
		}
		if senderUser.Role.Staff() {
			h.engageAgent(t, senderUser)
		} else if t.BotActive {
			h.autoReply(wctx, t, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// engageAgent applies the handoff latch: the first message from an
// agent not already assigned deactivates the bot permanently, marks
// the ticket active and assigns the agent. A message from the already
// assigned agent changes nothing.
func (h *Hub) engageAgent(t *protocol.Ticket, agent *protocol.User) {
	if t.AgentID == agent.ID {
		return
	}
	t.BotActive = false
	t.Status = protocol.TicketActive
	t.AgentID = agent.ID

	if err := h.store.UpdateTicket(t); err != nil {
		h.logger.Error("agent engagement not persisted", "ticket", t.ID, "agent", agent.ID, "error", err)
		return
	}
	h.logger.Info("bot disabled, agent took over", "ticket", t.ID, "agent", agent.ID)
	h.broadcastGlobalTicket(protocol.EventTicketAssigned, t)
	if h.notifier != nil {
		go h.notifier.TicketEscalated(h.ctx, t.Clone(), agent.Public())
	}
}

// autoReply generates and delivers exactly one automated reply for the
// customer message. Runs inside the ticket worker, so at most one
// generation call is in flight per ticket and replies land in
// submission order.
func (h *Hub) autoReply(ctx context.Context, t *protocol.Ticket, trigger *protocol.Message) {
	if h.resp == nil {
		return
	}

	// One extra row so the trigger itself can be excluded from the
	// context window.
	recent, err := h.store.RecentMessages(t.ID, responder.HistoryWindow+1)
	if err != nil {
		h.logger.Error("history load failed", "ticket", t.ID, "error", err)
		recent = nil
	}
	history := recent[:0]
	for _, m := range recent {
		if m.ID != trigger.ID {
			history = append(history, m)
		}
	}

	reply, fallback := h.resp.Reply(ctx, history, trigger.Content)

	botMsg := &protocol.Message{
		ID:        uuid.NewString(),
		TicketID:  t.ID,
		Sender:    protocol.Automated,
		Content:   reply,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.AppendMessage(botMsg); err != nil {
		h.logger.Error("bot reply not persisted", "ticket", t.ID, "error", err)
		return
	}
	h.broadcastMessage(botMsg)
	h.logger.Debug("bot replied", "ticket", t.ID, "fallback", fallback)
}

// UpdateStatus changes a ticket's status. BotActive is untouched: the
// handoff latch survives resolution and reopening. Authorization is
// the API boundary's job.
func (h *Hub) UpdateStatus(ctx context.Context, ticketID string, status protocol.TicketStatus) (*protocol.Ticket, error) {
	var out *protocol.Ticket
	err := h.do(ctx, ticketID, func(wctx context.Context) error {
		t, err := h.store.GetTicket(ticketID)
		if err != nil {
			return fmt.Errorf("hub: update status: %w", err)
		}
		t.Status = status
		if err := h.store.UpdateTicket(t); err != nil {
			return fmt.Errorf("hub: update status: %w", err)
		}
		h.broadcastGlobalTicket(protocol.EventTicketStatusUpdated, t)
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.logger.Info("ticket status updated", "ticket", ticketID, "status", status)
	if status == protocol.TicketResolved && h.mailer != nil {
		if customer, err := h.store.GetUser(out.CustomerID); err == nil {
			t := out.Clone()
			go func() {
				if err := h.mailer.TicketResolved(h.ctx, customer.Public(), t); err != nil {
					h.logger.Error("resolved email failed", "ticket", t.ID, "error", err)
				}
			}()
		}
	}
	return out, nil
}

// Assign sets the ticket's agent explicitly and forces it active, with
// no message required. The bot flag is not altered here; only an agent
// message trips the latch.
func (h *Hub) Assign(ctx context.Context, ticketID, agentID string) (*protocol.Ticket, error) {
	var out *protocol.Ticket
	err := h.do(ctx, ticketID, func(wctx context.Context) error {
		t, err := h.store.GetTicket(ticketID)
		if err != nil {
			return fmt.Errorf("hub: assign: %w", err)
		}
		t.AgentID = agentID
		t.Status = protocol.TicketActive
		if err := h.store.UpdateTicket(t); err != nil {
			return fmt.Errorf("hub: assign: %w", err)
		}
		h.broadcastGlobalTicket(protocol.EventTicketAssigned, t)
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	h.logger.Info("ticket assigned", "ticket", ticketID, "agent", agentID)
	return out, nil
}

// --- broadcasts ---

func (h *Hub) broadcastMessage(m *protocol.Message) {
	ev, err := protocol.NewEvent(protocol.EventReceiveMessage, m)
	if err != nil {
		h.logger.Error("encode message event", "error", err)
		return
	}
	h.rooms.Broadcast(m.TicketID, ev, nil)
}

// broadcastGlobalTicket sends the full updated ticket to every
// connected client so list views never go stale. Unconditional on
// every mutation, never batched.
func (h *Hub) broadcastGlobalTicket(t protocol.EventType, ticket *protocol.Ticket) {
	ev, err := protocol.NewEvent(t, ticket)
	if err != nil {
		h.logger.Error("encode ticket event", "error", err)
		return
	}
	h.rooms.BroadcastGlobal(ev)
}

// --- per-ticket workers ---

type ticketWorker struct {
	tasks chan func(context.Context)
	stop  chan struct{}

	// guarded by Hub.mu
	pending  int
	lastDone time.Time
}

// do runs fn on the ticket's worker and waits for it to finish. If the
// caller's context expires first, fn still runs to completion on the
// worker; only the wait is abandoned.
func (h *Hub) do(ctx context.Context, ticketID string, fn func(context.Context) error) error {
	errc := make(chan error, 1)
	h.enqueue(ticketID, func(wctx context.Context) {
		errc <- fn(wctx)
	})
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) enqueue(ticketID string, fn func(context.Context)) {
	h.mu.Lock()
	w, ok := h.workers[ticketID]
	if !ok {
		w = &ticketWorker{
			tasks:    make(chan func(context.Context), workerTaskBuffer),
			stop:     make(chan struct{}),
			lastDone: time.Now(),
		}
		h.workers[ticketID] = w
		go h.runWorker(ticketID, w)
	}
	w.pending++
	h.mu.Unlock()

	w.tasks <- fn
}

func (h *Hub) runWorker(ticketID string, w *ticketWorker) {
	h.logger.Debug("ticket worker started", "ticket", ticketID)
	for {
		select {
		case fn := <-w.tasks:
			fn(h.ctx)
			h.mu.Lock()
			w.pending--
			w.lastDone = time.Now()
			h.mu.Unlock()
		case <-w.stop:
			h.logger.Debug("ticket worker stopped", "ticket", ticketID)
			return
		case <-h.ctx.Done():
			return
		}
	}
}

// Sweep removes workers that have been idle longer than the idle TTL.
// The per-ticket serialization domain is created lazily, so a swept
// ticket simply gets a fresh worker on its next submission. Intended to
// be run periodically by the daemon's scheduler.
func (h *Hub) Sweep() int {
	cutoff := time.Now().Add(-h.idleTTL)

	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for id, w := range h.workers {
		if w.pending == 0 && w.lastDone.Before(cutoff) {
			close(w.stop)
			delete(h.workers, id)
			removed++
		}
	}
	if removed > 0 {
		h.logger.Debug("swept idle ticket workers", "removed", removed, "remaining", len(h.workers))
	}
	return removed
}

// WorkerCount reports live per-ticket workers (for tests and metrics).
func (h *Hub) WorkerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.workers)
}
