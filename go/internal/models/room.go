package models

import (
	"github.com/google/uuid"
	"time"
)

// RoomStatus defines the lifecycle status of a room.
type RoomStatus string

const (
	RoomStatusOpen    RoomStatus = "OPEN"
	RoomStatusPlaying RoomStatus = "PLAYING"
	RoomStatusClosing RoomStatus = "CLOSING"
)

// RoomVisibility defines who can find and join a room.
type RoomVisibility string

const (
	RoomVisibilityPublic  RoomVisibility = "PUBLIC"
	RoomVisibilityPrivate RoomVisibility = "PRIVATE"
)

const (
	MinRoomPlayers = 2
	MaxRoomPlayers = 9
)

// Room represents a game room and its lobby state.
type Room struct {
	ID             uuid.UUID      `json:"id"`
	Code           string         `json:"code"`
	HostID         OccupantID     `json:"host_id"`
	MaxPlayers     int            `json:"max_players"`
	Visibility     RoomVisibility `json:"visibility"`
	PasswordHash   string         `json:"-"`
	Status         RoomStatus     `json:"status"`
	CurrentPlayers int            `json:"current_players"`
	Version        int64          `json:"version"` // bumped on every committed change
	CreatedAt      time.Time      `json:"created_at"`
	LastActivityAt time.Time      `json:"last_activity_at"`
}

// IsActive reports whether the room counts against its host's one-active-room limit.
func (r Room) IsActive() bool {
	return r.Status == RoomStatusOpen || r.Status == RoomStatusPlaying
}
