package domain

import "time"

// RoomID is assigned by the store when the room record is created.
type RoomID int64

// Room is the persisted record of a chat room. StartedAt/EndedAt and LogPath
// stay nil until the room first goes live and its transcript is bootstrapped.
type Room struct {
	ID        RoomID     `json:"id"`
	Name      string     `json:"name"`
	Admin     string     `json:"admin"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	LogPath   string     `json:"log_path,omitempty"`
}

// Subscription is a persisted interest pair: the user wants lifecycle
// notifications for the room even while not present in it.
type Subscription struct {
	UserID UserID `json:"user_id"`
	RoomID RoomID `json:"room_id"`
}
