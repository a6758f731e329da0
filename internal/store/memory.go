package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Parley/internal/domain"
)

// ErrRoomNotFound is returned by both store backends for a missing room, so
// callers can branch on it without knowing which backend they hold.
var ErrRoomNotFound = errors.New("room not found")

// Memory is a map-backed store with the same surface as Postgres. Used when
// the server runs without a database DSN, and by tests.
type Memory struct {
	mu     sync.RWMutex
	nextID domain.RoomID
	rooms  map[domain.RoomID]*domain.Room
	subs   map[domain.RoomID]map[domain.UserID]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		nextID: 1,
		rooms:  make(map[domain.RoomID]*domain.Room),
		subs:   make(map[domain.RoomID]map[domain.UserID]struct{}),
	}
}

func (s *Memory) CreateRoom(_ context.Context, name, admin string) (domain.RoomID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.rooms[id] = &domain.Room{ID: id, Name: name, Admin: admin}
	return id, nil
}

func (s *Memory) Room(_ context.Context, id domain.RoomID) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	cp := *room
	return &cp, nil
}

func (s *Memory) Rooms(_ context.Context) ([]domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Room, 0, len(s.rooms))
	for id := domain.RoomID(1); id < s.nextID; id++ {
		if room, ok := s.rooms[id]; ok {
			out = append(out, *room)
		}
	}
	return out, nil
}

func (s *Memory) DeleteRoom(_ context.Context, id domain.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, id)
	delete(s.subs, id)
	return nil
}

func (s *Memory) SetLogPath(_ context.Context, id domain.RoomID, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return ErrRoomNotFound
	}
	if room.LogPath == "" {
		room.LogPath = path
	}
	return nil
}

func (s *Memory) SetStartedAt(_ context.Context, id domain.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return ErrRoomNotFound
	}
	now := time.Now()
	room.StartedAt = &now
	room.EndedAt = nil
	return nil
}

func (s *Memory) SetEndedAt(_ context.Context, id domain.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return ErrRoomNotFound
	}
	now := time.Now()
	room.EndedAt = &now
	return nil
}

func (s *Memory) Subscribe(_ context.Context, uid domain.UserID, id domain.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[id]; !ok {
		return ErrRoomNotFound
	}
	set, ok := s.subs[id]
	if !ok {
		set = make(map[domain.UserID]struct{})
		s.subs[id] = set
	}
	set[uid] = struct{}{}
	return nil
}

func (s *Memory) Unsubscribe(_ context.Context, uid domain.UserID, id domain.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.subs[id]; ok {
		delete(set, uid)
		if len(set) == 0 {
			delete(s.subs, id)
		}
	}
	return nil
}

func (s *Memory) Subscribers(_ context.Context, id domain.RoomID) ([]domain.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.subs[id]
	out := make([]domain.UserID, 0, len(set))
	for uid := range set {
		out = append(out, uid)
	}
	return out, nil
}
