package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

// Membership holds who is live in which room. Both directions are kept under
// one lock so a reader never sees a client in the forward map without its
// reverse entry, or the other way round.
type Membership struct {
	mu       sync.RWMutex
	byRoom   map[domain.RoomID]map[core.ClientID]struct{}
	byClient map[core.ClientID]domain.RoomID
}

func NewMembership() *Membership {
	return &Membership{
		byRoom:   make(map[domain.RoomID]map[core.ClientID]struct{}),
		byClient: make(map[core.ClientID]domain.RoomID),
	}
}

// Join puts the client into the room, first detaching it from whatever room
// it was in: a client belongs to at most one room at a time. It reports the
// previous room, if any, and whether that room emptied out.
func (m *Membership) Join(roomID domain.RoomID, id core.ClientID) (prev domain.RoomID, hadPrev, prevEmptied bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, hadPrev = m.byClient[id]; hadPrev && prev != roomID {
		prevEmptied = m.detachLocked(prev, id)
	}
	members, ok := m.byRoom[roomID]
	if !ok {
		members = make(map[core.ClientID]struct{})
		m.byRoom[roomID] = members
	}
	members[id] = struct{}{}
	m.byClient[id] = roomID
	log.Info().Str("module", "app.membership").Str("cid", string(id)).Int64("room", int64(roomID)).Msg("joined room")
	return prev, hadPrev && prev != roomID, prevEmptied
}

// Leave removes the client from the room on both sides. The last member out
// drops the room entry entirely; no memory is retained for empty rooms.
func (m *Membership) Leave(roomID domain.RoomID, id core.ClientID) (emptied bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.byClient[id]; !ok || cur != roomID {
		return false
	}
	delete(m.byClient, id)
	return m.detachLocked(roomID, id)
}

// Remove detaches the client from whatever room it is in.
func (m *Membership) Remove(id core.ClientID) (roomID domain.RoomID, wasMember, emptied bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roomID, wasMember = m.byClient[id]
	if !wasMember {
		return 0, false, false
	}
	delete(m.byClient, id)
	return roomID, true, m.detachLocked(roomID, id)
}

func (m *Membership) detachLocked(roomID domain.RoomID, id core.ClientID) (emptied bool) {
	members, ok := m.byRoom[roomID]
	if !ok {
		return false
	}
	delete(members, id)
	if len(members) == 0 {
		delete(m.byRoom, roomID)
		return true
	}
	return false
}

// MembersOf returns a snapshot of the room's member IDs.
func (m *Membership) MembersOf(roomID domain.RoomID) []core.ClientID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members := m.byRoom[roomID]
	out := make([]core.ClientID, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

func (m *Membership) RoomOf(id core.ClientID) (domain.RoomID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	roomID, ok := m.byClient[id]
	return roomID, ok
}

func (m *Membership) Count(roomID domain.RoomID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byRoom[roomID])
}
