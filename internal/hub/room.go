package hub

import (
	"sync"

	"github.com/resolvai/resolvai/pkg/protocol"
)

// Conn is a live client connection the hub can push events to. Send
// must never block; slow consumers are the connection's problem, not
// the hub's.
type Conn interface {
	ID() string
	Send(ev protocol.Event)
}

// Rooms tracks which connections are viewing which ticket, plus the
// global scope every connection belongs to for dashboard events.
type Rooms struct {
	mu      sync.Mutex
	members map[string]map[Conn]struct{} // ticketID → room members
	byConn  map[Conn]string              // connection → current room
	global  map[Conn]struct{}
}

// NewRooms creates an empty room registry.
func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[string]map[Conn]struct{}),
		byConn:  make(map[Conn]string),
		global:  make(map[Conn]struct{}),
	}
}

// Register adds a connection to the global scope. Every connected
// client receives ticket lifecycle events whether or not it has joined
// a room.
func (r *Rooms) Register(c Conn) {
	r.mu.Lock()
	r.global[c] = struct{}{}
	r.mu.Unlock()
}

// Unregister removes a connection from its room and the global scope.
// Called on disconnect.
func (r *Rooms) Unregister(c Conn) {
	r.mu.Lock()
	r.leaveLocked(c)
	delete(r.global, c)
	r.mu.Unlock()
}

// Join adds the connection to the ticket's room. A connection views at
// most one ticket at a time, so joining removes it from any previously
// joined room; re-joining the same room is a no-op.
func (r *Rooms) Join(c Conn, ticketID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byConn[c] == ticketID {
		return
	}
	r.leaveLocked(c)

	room, ok := r.members[ticketID]
	if !ok {
		room = make(map[Conn]struct{})
		r.members[ticketID] = room
	}
	room[c] = struct{}{}
	r.byConn[c] = ticketID
}

func (r *Rooms) leaveLocked(c Conn) {
	prev, ok := r.byConn[c]
	if !ok {
		return
	}
	delete(r.byConn, c)
	if room, ok := r.members[prev]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(r.members, prev)
		}
	}
}

// Broadcast delivers an event to every member of the ticket's room
// except the optional excluded sender. Broadcasting to an empty or
// unknown room is a silent no-op; a ticket may have zero live viewers.
func (r *Rooms) Broadcast(ticketID string, ev protocol.Event, except Conn) {
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.members[ticketID]))
	for c := range r.members[ticketID] {
		if c != except {
			conns = append(conns, c)
		}
	}
	r.mu.Unlock()

	for _, c := range conns {
		c.Send(ev)
	}
}

// BroadcastGlobal delivers an event to every connected client.
func (r *Rooms) BroadcastGlobal(ev protocol.Event) {
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.global))
	for c := range r.global {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		c.Send(ev)
	}
}

// RoomSize returns the number of live viewers of a ticket.
func (r *Rooms) RoomSize(ticketID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members[ticketID])
}
