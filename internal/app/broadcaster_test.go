package app_test

import (
	"testing"

	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

func TestBroadcastToRoomDeliversToAllMembers(t *testing.T) {
	clients := app.NewClientRegistry()
	members := app.NewMembership()
	caster := app.NewBroadcaster(clients, members)

	a, b := &fakePush{}, &fakePush{}
	clients.Add("a", "ua", a, "alice")
	clients.Add("b", "ub", b, "bob")
	members.Join(7, "a")
	members.Join(7, "b")

	res := caster.ToRoom(7, core.MessageEvent{Text: "alice: hi"})
	if res.Delivered != 2 {
		t.Fatalf("Delivered = %d, want 2", res.Delivered)
	}
	for _, f := range []*fakePush{a, b} {
		msgs := f.allMessages()
		if len(msgs) != 1 || msgs[0] != "alice: hi" {
			t.Fatalf("messages = %v, want [alice: hi]", msgs)
		}
	}
}

func TestBroadcastEvictsUnreachableClient(t *testing.T) {
	clients := app.NewClientRegistry()
	members := app.NewMembership()
	caster := app.NewBroadcaster(clients, members)

	good1, good2 := &fakePush{}, &fakePush{}
	dead := &fakePush{fail: true}
	clients.Add("g1", "u1", good1, "alice")
	clients.Add("g2", "u2", good2, "bob")
	clients.Add("d", "ud", dead, "mallory")
	members.Join(7, "g1")
	members.Join(7, "g2")
	members.Join(7, "d")

	res := caster.ToRoom(7, core.MessageEvent{Text: "hello"})

	if res.Delivered != 2 {
		t.Fatalf("Delivered = %d, want 2", res.Delivered)
	}
	if len(res.Evicted) != 1 || res.Evicted[0] != "d" {
		t.Fatalf("Evicted = %v, want [d]", res.Evicted)
	}
	if _, ok := clients.NameOf("d"); ok {
		t.Fatal("dead client still in registry")
	}
	if _, ok := members.RoomOf("d"); ok {
		t.Fatal("dead client still in membership")
	}
	if !dead.closed {
		t.Fatal("dead client's push endpoint was not closed")
	}
	if len(members.MembersOf(7)) != 2 {
		t.Fatalf("room has %d members after eviction, want 2", len(members.MembersOf(7)))
	}
}

func TestBroadcastReportsEmptiedRoom(t *testing.T) {
	clients := app.NewClientRegistry()
	members := app.NewMembership()
	caster := app.NewBroadcaster(clients, members)

	dead := &fakePush{fail: true}
	clients.Add("d", "ud", dead, "solo")
	members.Join(4, "d")

	res := caster.ToRoom(4, core.MessageEvent{Text: "x"})
	if len(res.Emptied) != 1 || res.Emptied[0] != 4 {
		t.Fatalf("Emptied = %v, want [4]", res.Emptied)
	}
}

func TestBroadcastGlobalReachesRoomlessClients(t *testing.T) {
	clients := app.NewClientRegistry()
	members := app.NewMembership()
	caster := app.NewBroadcaster(clients, members)

	roomless, roomed := &fakePush{}, &fakePush{}
	clients.Add("r1", "u1", roomless, "alice")
	clients.Add("r2", "u2", roomed, "bob")
	members.Join(1, "r2")

	res := caster.Global(core.MessageEvent{Text: "all hands"})
	if res.Delivered != 2 {
		t.Fatalf("Delivered = %d, want 2", res.Delivered)
	}
	if len(roomless.allMessages()) != 1 || len(roomed.allMessages()) != 1 {
		t.Fatal("global broadcast skipped a client")
	}
}

func TestBroadcastFailureDoesNotAbortOthers(t *testing.T) {
	clients := app.NewClientRegistry()
	members := app.NewMembership()
	caster := app.NewBroadcaster(clients, members)

	// Several dead targets interleaved with live ones.
	for i, id := range []core.ClientID{"a", "b", "c", "d", "e"} {
		f := &fakePush{fail: i%2 == 1}
		clients.Add(id, domain.UserID(id), f, string(id))
		members.Join(2, id)
	}

	res := caster.ToRoom(2, core.MessageEvent{Text: "ping"})
	if res.Delivered != 3 {
		t.Fatalf("Delivered = %d, want 3", res.Delivered)
	}
	if len(res.Evicted) != 2 {
		t.Fatalf("Evicted = %v, want 2 entries", res.Evicted)
	}
}
