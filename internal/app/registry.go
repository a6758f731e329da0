package app

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

type clientEntry struct {
	Nickname string
	User     domain.UserID
	Push     core.PushClient
}

// ClientRegistry tracks every connected push endpoint and its nickname.
// A client ID names one connection; the user ID names the person behind it,
// so one user may hold several entries at once (two tabs, a reconnect racing
// the old socket's teardown). Mutation is purely in-memory; nothing here
// blocks on the network.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[core.ClientID]*clientEntry
	byUser  map[domain.UserID]map[core.ClientID]struct{}
}

func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[core.ClientID]*clientEntry),
		byUser:  make(map[domain.UserID]map[core.ClientID]struct{}),
	}
}

func (r *ClientRegistry) Add(id core.ClientID, user domain.UserID, push core.PushClient, nickname string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.clients[id]; ok && old.User != user {
		r.unindexLocked(id, old.User)
	}
	r.clients[id] = &clientEntry{Nickname: nickname, User: user, Push: push}
	set, ok := r.byUser[user]
	if !ok {
		set = make(map[core.ClientID]struct{})
		r.byUser[user] = set
	}
	set[id] = struct{}{}
	log.Info().Str("module", "app.registry").Str("cid", string(id)).Str("uid", string(user)).Str("nickname", nickname).Msg("client registered")
}

// Remove is idempotent: removing an absent client is a no-op.
func (r *ClientRegistry) Remove(id core.ClientID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.clients[id]
	if !ok {
		return
	}
	delete(r.clients, id)
	r.unindexLocked(id, e.User)
	log.Info().Str("module", "app.registry").Str("cid", string(id)).Msg("client removed")
}

func (r *ClientRegistry) unindexLocked(id core.ClientID, user domain.UserID) {
	set, ok := r.byUser[user]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(r.byUser, user)
	}
}

func (r *ClientRegistry) NameOf(id core.ClientID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.clients[id]
	if !ok {
		return "", false
	}
	return e.Nickname, true
}

func (r *ClientRegistry) Client(id core.ClientID) (core.PushClient, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.clients[id]
	if !ok {
		return nil, false
	}
	return e.Push, true
}

// ClientsOf returns every live connection the user currently holds.
func (r *ClientRegistry) ClientsOf(user domain.UserID) []core.ClientID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byUser[user]
	out := make([]core.ClientID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// AllNames returns a sorted snapshot of every connected nickname.
func (r *ClientRegistry) AllNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.clients))
	for _, e := range r.clients {
		out = append(out, e.Nickname)
	}
	sort.Strings(out)
	return out
}

// AllIDs returns a snapshot of every connected client ID.
func (r *ClientRegistry) AllIDs() []core.ClientID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.ClientID, 0, len(r.clients))
	for id := range r.clients {
		out = append(out, id)
	}
	return out
}

func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
