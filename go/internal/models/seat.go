package models

import (
	"github.com/google/uuid"
	"strconv"
	"time"
)

// OccupantID identifies whoever sits in a seat. Humans are positive, bots
// live in the reserved negative range.
type OccupantID int64

// IsBot reports whether the id belongs to the bot range.
func (id OccupantID) IsBot() bool {
	return id < 0
}

func (id OccupantID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseOccupantID parses a decimal occupant id.
func ParseOccupantID(s string) (OccupantID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return OccupantID(v), nil
}

// OccupantKind tells humans and bots apart in persisted seats.
type OccupantKind string

const (
	OccupantKindHuman OccupantKind = "HUMAN"
	OccupantKindBot   OccupantKind = "BOT"
)

// KindOf returns the occupant kind implied by the id range.
func KindOf(id OccupantID) OccupantKind {
	if id.IsBot() {
		return OccupantKindBot
	}
	return OccupantKindHuman
}

// Seat represents one occupied position in a room.
type Seat struct {
	ID           uuid.UUID    `json:"id"`
	RoomID       uuid.UUID    `json:"room_id"`
	Position     int          `json:"position"` // 1-based, turn order ascends and wraps
	OccupantID   OccupantID   `json:"occupant_id"`
	OccupantKind OccupantKind `json:"occupant_kind"`
	DisplayName  string       `json:"display_name"`
	IsHost       bool         `json:"is_host"`
	IsReady      bool         `json:"is_ready"`
	JoinedAt     time.Time    `json:"joined_at"`
}
