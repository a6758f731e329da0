// Package app holds the relay's in-memory coordination layer: the client
// registry, the room membership table, the broadcast engine and the facade
// that ties them to the transcript and the store.
package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/transcript"
)

var (
	ErrUnknownClient = errors.New("unknown client")
	ErrNotInRoom     = errors.New("client is not in a room")
	ErrNicknameTaken = errors.New("nickname already present in room")
)

type roomPhase int

const (
	phaseDormant roomPhase = iota
	phaseActive
)

// Relay is the entry point for every inbound command. It coordinates the
// registry, the membership table, the broadcaster and the transcript, and
// owns the explicit dormant/active state of each room.
type Relay struct {
	clients *ClientRegistry
	members *Membership
	caster  *Broadcaster
	script  *transcript.Writer
	rooms   core.RoomStore
	subs    core.SubscriptionStore

	// mu guards the phase map and serializes room joins: the nickname
	// uniqueness check must not interleave with another join's mutation.
	mu    sync.Mutex
	phase map[domain.RoomID]roomPhase
}

func NewRelay(clients *ClientRegistry, members *Membership, caster *Broadcaster,
	script *transcript.Writer, rooms core.RoomStore, subs core.SubscriptionStore) *Relay {
	return &Relay{
		clients: clients,
		members: members,
		caster:  caster,
		script:  script,
		rooms:   rooms,
		subs:    subs,
		phase:   make(map[domain.RoomID]roomPhase),
	}
}

// Register connects a client in the legacy room-less mode: the whole server
// is one conversation and presence is global.
func (r *Relay) Register(id core.ClientID, user domain.UserID, push core.PushClient, nickname string) {
	r.clients.Add(id, user, push, nickname)
	r.finish(r.caster.Global(core.PresenceEvent{Names: r.clients.AllNames()}))
}

// RegisterToRoom connects a client straight into a room. Joining a new room
// implicitly leaves the old one. The first member in wakes the room up:
// start time is recorded and subscribed-but-absent users are notified.
// Nicknames must be unique within one room's presence list; the check and
// the join happen under one lock so two racing registrations cannot both
// slip past it.
func (r *Relay) RegisterToRoom(id core.ClientID, user domain.UserID, push core.PushClient, nickname string, roomID domain.RoomID) error {
	r.mu.Lock()
	for _, member := range r.members.MembersOf(roomID) {
		if member == id {
			continue
		}
		if name, ok := r.clients.NameOf(member); ok && name == nickname {
			r.mu.Unlock()
			return ErrNicknameTaken
		}
	}
	prevName, _ := r.clients.NameOf(id)
	r.clients.Add(id, user, push, nickname)
	prev, hadPrev, prevEmptied := r.members.Join(roomID, id)
	r.mu.Unlock()

	if hadPrev {
		// The old room knew this client under its previous nickname.
		r.announceDeparture(prev, prevName, prevEmptied)
	}

	if r.markActive(roomID) {
		r.activate(roomID)
	}

	joined := nickname + " has joined"
	r.appendTranscript(roomID, joined)
	r.finish(r.caster.ToRoom(roomID, core.MessageEvent{Text: joined}))
	r.pushPresence(roomID)
	return nil
}

// Send routes a chat line to the caller's current room. A caller with no
// room gets ErrNotInRoom back instead of having the message vanish.
func (r *Relay) Send(id core.ClientID, text string) error {
	nickname, ok := r.clients.NameOf(id)
	if !ok {
		return ErrUnknownClient
	}
	roomID, ok := r.members.RoomOf(id)
	if !ok {
		return ErrNotInRoom
	}
	line := nickname + ": " + text
	r.appendTranscript(roomID, line)
	r.finish(r.caster.ToRoom(roomID, core.MessageEvent{Text: line}))
	return nil
}

// SendGlobal routes a chat line to every connected client (legacy mode).
func (r *Relay) SendGlobal(id core.ClientID, text string) error {
	nickname, ok := r.clients.NameOf(id)
	if !ok {
		return ErrUnknownClient
	}
	r.finish(r.caster.Global(core.MessageEvent{Text: nickname + ": " + text}))
	return nil
}

// Leave disconnects the client: departure is logged and announced to its
// room, membership is removed on both sides, and the last member out puts
// the room back to dormant.
func (r *Relay) Leave(id core.ClientID) {
	nickname, known := r.clients.NameOf(id)
	roomID, inRoom := r.members.RoomOf(id)

	if inRoom {
		emptied := r.members.Leave(roomID, id)
		r.announceDeparture(roomID, nickname, emptied)
	}
	r.clients.Remove(id)
	if known && !inRoom {
		// Legacy global client: refresh everyone's presence list.
		r.finish(r.caster.Global(core.PresenceEvent{Names: r.clients.AllNames()}))
	}
}

// EndChat force-closes a live room: members are notified, detached, and the
// end time is persisted. An administrative operation, not part of the
// ordinary join/leave flow.
func (r *Relay) EndChat(roomID domain.RoomID) {
	if !r.Active(roomID) {
		return
	}
	ts := time.Now().Format(core.TimeLayout)
	r.appendTranscript(roomID, "Chat ended at "+ts)
	r.finish(r.caster.ToRoom(roomID, core.ChatEndedEvent{Timestamp: ts}))
	for _, id := range r.members.MembersOf(roomID) {
		r.members.Leave(roomID, id)
	}
	r.deactivate(roomID)
}

// Phase exposure for the administrative surface.
func (r *Relay) Active(roomID domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase[roomID] == phaseActive
}

func (r *Relay) announceDeparture(roomID domain.RoomID, nickname string, emptied bool) {
	left := nickname + " left"
	r.appendTranscript(roomID, left)
	if emptied {
		r.deactivate(roomID)
		return
	}
	r.finish(r.caster.ToRoom(roomID, core.MessageEvent{Text: left}))
	r.pushPresence(roomID)
}

// activate records the start time and pushes the started notice to every
// subscriber who is connected but not already in the room.
func (r *Relay) activate(roomID domain.RoomID) {
	ctx, cancel := storeContext()
	defer cancel()
	if err := r.rooms.SetStartedAt(ctx, roomID); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Int64("room", int64(roomID)).Msg("failed to persist start time")
	}
	ts := time.Now().Format(core.TimeLayout)
	r.notifySubscribers(roomID, core.ChatStartedEvent{Timestamp: ts})
	log.Info().Str("module", "app.relay").Int64("room", int64(roomID)).Msg("room active")
}

func (r *Relay) deactivate(roomID domain.RoomID) {
	if !r.markDormant(roomID) {
		return
	}
	ctx, cancel := storeContext()
	defer cancel()
	if err := r.rooms.SetEndedAt(ctx, roomID); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Int64("room", int64(roomID)).Msg("failed to persist end time")
	}
	r.notifySubscribers(roomID, core.ChatEndedEvent{Timestamp: time.Now().Format(core.TimeLayout)})
	log.Info().Str("module", "app.relay").Int64("room", int64(roomID)).Msg("room dormant")
}

func (r *Relay) notifySubscribers(roomID domain.RoomID, ev core.Event) {
	ctx, cancel := storeContext()
	defer cancel()
	subscribers, err := r.subs.Subscribers(ctx, roomID)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Int64("room", int64(roomID)).Msg("failed to load subscribers")
		return
	}
	for _, uid := range subscribers {
		for _, id := range r.clients.ClientsOf(uid) {
			if cur, ok := r.members.RoomOf(id); ok && cur == roomID {
				continue // live members hear about the room through the room itself
			}
			r.finish(r.caster.ToClient(id, ev))
		}
	}
}

// pushPresence replaces every member's name list with the current snapshot.
func (r *Relay) pushPresence(roomID domain.RoomID) {
	ids := r.members.MembersOf(roomID)
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := r.clients.NameOf(id); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	r.finish(r.caster.ToRoom(roomID, core.PresenceEvent{Names: names}))
}

// finish applies the aftermath of a fan-out: any room emptied by evictions
// goes dormant.
func (r *Relay) finish(res Result) {
	for _, roomID := range res.Emptied {
		r.deactivate(roomID)
	}
}

func (r *Relay) appendTranscript(roomID domain.RoomID, line string) {
	if err := r.script.Append(roomID, line); err != nil {
		// Best-effort record; the broadcast must not be held up.
		log.Error().Err(err).Str("module", "app.relay").Int64("room", int64(roomID)).Msg("transcript append failed")
	}
}

func (r *Relay) markActive(roomID domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase[roomID] == phaseActive {
		return false
	}
	r.phase[roomID] = phaseActive
	return true
}

func (r *Relay) markDormant(roomID domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase[roomID] != phaseActive {
		return false
	}
	delete(r.phase, roomID)
	return true
}

func storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}
