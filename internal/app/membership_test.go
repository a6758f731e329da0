package app_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

func TestMembershipJoinLeaveConsistency(t *testing.T) {
	m := app.NewMembership()

	m.Join(7, "a")
	m.Join(7, "b")

	if room, ok := m.RoomOf("a"); !ok || room != 7 {
		t.Fatalf("RoomOf(a) = %d, %v; want 7, true", room, ok)
	}
	if got := m.Count(7); got != 2 {
		t.Fatalf("Count(7) = %d, want 2", got)
	}

	// Every member in the forward map must resolve back to the room.
	for _, id := range m.MembersOf(7) {
		if room, ok := m.RoomOf(id); !ok || room != 7 {
			t.Fatalf("member %s has inconsistent reverse mapping (%d, %v)", id, room, ok)
		}
	}

	if emptied := m.Leave(7, "a"); emptied {
		t.Fatal("room reported empty with one member remaining")
	}
	if _, ok := m.RoomOf("a"); ok {
		t.Fatal("reverse entry survived Leave")
	}
	if emptied := m.Leave(7, "b"); !emptied {
		t.Fatal("room not reported empty after last leave")
	}
	if got := m.Count(7); got != 0 {
		t.Fatalf("Count(7) = %d after everyone left, want 0", got)
	}
}

func TestMembershipSingleRoomPerClient(t *testing.T) {
	m := app.NewMembership()

	m.Join(1, "a")
	prev, hadPrev, prevEmptied := m.Join(2, "a")

	if !hadPrev || prev != 1 {
		t.Fatalf("Join did not report previous room: prev=%d hadPrev=%v", prev, hadPrev)
	}
	if !prevEmptied {
		t.Fatal("old room should have emptied when its only member moved")
	}
	if len(m.MembersOf(1)) != 0 {
		t.Fatal("client still listed in old room")
	}
	if room, ok := m.RoomOf("a"); !ok || room != 2 {
		t.Fatalf("RoomOf(a) = %d, %v; want 2, true", room, ok)
	}
}

func TestMembershipRejoinSameRoom(t *testing.T) {
	m := app.NewMembership()

	m.Join(3, "a")
	_, hadPrev, _ := m.Join(3, "a")
	if hadPrev {
		t.Fatal("rejoining the same room must not count as a room switch")
	}
	if got := m.Count(3); got != 1 {
		t.Fatalf("Count(3) = %d, want 1", got)
	}
}

func TestMembershipRemove(t *testing.T) {
	m := app.NewMembership()

	m.Join(9, "a")
	room, wasMember, emptied := m.Remove("a")
	if !wasMember || room != 9 || !emptied {
		t.Fatalf("Remove(a) = %d, %v, %v; want 9, true, true", room, wasMember, emptied)
	}
	if _, wasMember, _ := m.Remove("a"); wasMember {
		t.Fatal("second Remove reported membership")
	}
}

func TestMembershipConcurrentChurn(t *testing.T) {
	m := app.NewMembership()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := core.ClientID(fmt.Sprintf("c%d", n))
			roomID := domain.RoomID(n%5 + 1)
			m.Join(roomID, id)
			m.MembersOf(roomID)
			if n%2 == 0 {
				m.Remove(id)
			}
		}(i)
	}
	wg.Wait()

	// Whatever the interleaving, the two maps must agree with each other.
	total := 0
	for roomID := domain.RoomID(1); roomID <= 5; roomID++ {
		for _, id := range m.MembersOf(roomID) {
			got, ok := m.RoomOf(id)
			if !ok || got != roomID {
				t.Fatalf("member %s of room %d maps back to (%d, %v)", id, roomID, got, ok)
			}
			total++
		}
	}
	if total != 50 {
		t.Fatalf("surviving members = %d, want 50", total)
	}
}
