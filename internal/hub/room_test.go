package hub

import (
	"encoding/json"
	"testing"

	"github.com/resolvai/resolvai/pkg/protocol"
)

func jsonUnmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func testEvent(t *testing.T, body string) protocol.Event {
	t.Helper()
	ev, err := protocol.NewEvent(protocol.EventReceiveMessage, map[string]string{"body": body})
	if err != nil {
		t.Fatalf("build event: %v", err)
	}
	return ev
}

func TestJoinSwitchesRooms(t *testing.T) {
	r := NewRooms()
	c := &fakeConn{id: "c"}
	r.Register(c)

	r.Join(c, "t-1")
	if r.RoomSize("t-1") != 1 {
		t.Fatal("expected membership in t-1")
	}

	// Joining another ticket leaves the prior room so no broadcasts leak.
	r.Join(c, "t-2")
	if r.RoomSize("t-1") != 0 {
		t.Error("expected eager removal from t-1")
	}
	if r.RoomSize("t-2") != 1 {
		t.Error("expected membership in t-2")
	}

	r.Broadcast("t-1", testEvent(t, "stale"), nil)
	if len(c.byType(protocol.EventReceiveMessage)) != 0 {
		t.Error("must not receive events from a left room")
	}
	r.Broadcast("t-2", testEvent(t, "fresh"), nil)
	if len(c.byType(protocol.EventReceiveMessage)) != 1 {
		t.Error("expected event from current room")
	}
}

func TestJoinIdempotent(t *testing.T) {
	r := NewRooms()
	c := &fakeConn{id: "c"}
	r.Register(c)

	r.Join(c, "t-1")
	r.Join(c, "t-1")
	if r.RoomSize("t-1") != 1 {
		t.Errorf("re-join must be a no-op, got size %d", r.RoomSize("t-1"))
	}

	r.Broadcast("t-1", testEvent(t, "once"), nil)
	if got := len(c.byType(protocol.EventReceiveMessage)); got != 1 {
		t.Errorf("expected single delivery, got %d", got)
	}
}

func TestBroadcastEmptyRoomIsNoOp(t *testing.T) {
	r := NewRooms()
	// No members, no panic, no error.
	r.Broadcast("ghost-ticket", protocol.Event{Type: protocol.EventHideTyping}, nil)
}

func TestUnregisterLeavesEverything(t *testing.T) {
	r := NewRooms()
	c := &fakeConn{id: "c"}
	r.Register(c)
	r.Join(c, "t-1")

	r.Unregister(c)
	if r.RoomSize("t-1") != 0 {
		t.Error("expected room membership cleared on disconnect")
	}
	r.BroadcastGlobal(protocol.Event{Type: protocol.EventTicketCreated})
	if len(c.byType(protocol.EventTicketCreated)) != 0 {
		t.Error("disconnected conn must not receive global events")
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	r := NewRooms()
	a := &fakeConn{id: "a"}
	b := &fakeConn{id: "b"}
	for _, c := range []*fakeConn{a, b} {
		r.Register(c)
		r.Join(c, "t-1")
	}

	r.Broadcast("t-1", testEvent(t, "hi"), a)
	if len(a.byType(protocol.EventReceiveMessage)) != 0 {
		t.Error("excluded sender must not receive the event")
	}
	if len(b.byType(protocol.EventReceiveMessage)) != 1 {
		t.Error("other member should receive the event")
	}
}
