package app

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

// Result reports one fan-out: how many targets took the event, who got
// evicted for failing delivery, and which rooms emptied out because of it.
type Result struct {
	Delivered int
	Evicted   []core.ClientID
	Emptied   []domain.RoomID
}

// Broadcaster fans an event out to a computed target set. A failed delivery
// means the endpoint is gone for the rest of the process lifetime, so the
// client is dropped from the registry and its room on the spot; no retry.
// Failures are independent: one dead target never aborts the rest.
type Broadcaster struct {
	clients *ClientRegistry
	members *Membership
}

func NewBroadcaster(clients *ClientRegistry, members *Membership) *Broadcaster {
	return &Broadcaster{clients: clients, members: members}
}

// ToRoom delivers the event to every current member of the room. The target
// set is the membership snapshot taken at the start of the call.
func (b *Broadcaster) ToRoom(roomID domain.RoomID, ev core.Event) Result {
	res := b.deliver(b.members.MembersOf(roomID), ev)
	log.Debug().Str("module", "app.broadcaster").Int64("room", int64(roomID)).
		Int("delivered", res.Delivered).Int("evicted", len(res.Evicted)).Msg("room broadcast")
	return res
}

// Global delivers the event to every connected client, roomed or not. Kept
// for the pre-room protocol where the whole server is one conversation.
func (b *Broadcaster) Global(ev core.Event) Result {
	res := b.deliver(b.clients.AllIDs(), ev)
	log.Debug().Str("module", "app.broadcaster").
		Int("delivered", res.Delivered).Int("evicted", len(res.Evicted)).Msg("global broadcast")
	return res
}

// ToClient delivers the event to a single client by ID.
func (b *Broadcaster) ToClient(id core.ClientID, ev core.Event) Result {
	return b.deliver([]core.ClientID{id}, ev)
}

func (b *Broadcaster) deliver(targets []core.ClientID, ev core.Event) Result {
	var res Result
	for _, id := range targets {
		push, ok := b.clients.Client(id)
		if !ok {
			continue
		}
		if err := ev.Deliver(push); err == nil {
			res.Delivered++
			continue
		}
		b.evict(id, push, &res)
	}
	return res
}

func (b *Broadcaster) evict(id core.ClientID, push core.PushClient, res *Result) {
	b.clients.Remove(id)
	if roomID, wasMember, emptied := b.members.Remove(id); wasMember && emptied {
		res.Emptied = append(res.Emptied, roomID)
	}
	push.Close()
	res.Evicted = append(res.Evicted, id)
	log.Warn().Str("module", "app.broadcaster").Str("cid", string(id)).Msg("evicted unreachable client")
}
