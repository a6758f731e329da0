package core

import (
	"context"

	"github.com/dkeye/Parley/internal/domain"
)

// ClientID identifies one connected push endpoint. Two connections from the
// same person are two distinct IDs; equality is by ID, never by nickname.
type ClientID string

// PushClient is the server's handle on a connected client's callback surface.
// Owned by the adapter; the adapter must Close() it.
type PushClient interface {
	ReceiveMessage(text string) error
	UpdateUserList(names []string) error
	NotifyChatStarted(timestamp string) error
	NotifyChatEnded(timestamp string) error
	Close()
}

// RoomStore is the slice of the persistence layer the relay core touches:
// it reads room records and writes back lifecycle fields. Everything else
// about room CRUD belongs to the administrative surface.
type RoomStore interface {
	Room(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	SetLogPath(ctx context.Context, id domain.RoomID, path string) error
	SetStartedAt(ctx context.Context, id domain.RoomID) error
	SetEndedAt(ctx context.Context, id domain.RoomID) error
}

// SubscriptionStore yields the persisted interest list for a room. Consulted
// only when a room transitions to live, independent of who is a member.
type SubscriptionStore interface {
	Subscribers(ctx context.Context, id domain.RoomID) ([]domain.UserID, error)
}
