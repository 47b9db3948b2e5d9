package room

import (
	"github.com/google/uuid"
	"github.com/mcdev12/pidr/go/internal/models"
)

// CreateRoomRequest represents a request to open a new room
type CreateRoomRequest struct {
	Host        models.OccupantID     `json:"host"`
	DisplayName string                `json:"display_name"`
	MaxPlayers  int                   `json:"max_players"`
	Visibility  models.RoomVisibility `json:"visibility"`
	Password    string                `json:"password,omitempty"`
}

// JoinRoomRequest represents a request to take a seat. Either RoomID or
// Code identifies the room.
type JoinRoomRequest struct {
	Occupant    models.OccupantID `json:"occupant"`
	DisplayName string            `json:"display_name"`
	RoomID      uuid.UUID         `json:"room_id"`
	Code        string            `json:"code"`
	Password    string            `json:"password,omitempty"`
}

// RoomDetails is a room together with its seats ordered by position
type RoomDetails struct {
	Room  models.Room   `json:"room"`
	Seats []models.Seat `json:"seats"`
}

// JoinResult is the outcome of a join. AlreadySeated is set when the
// occupant was seated before the call and nothing changed.
type JoinResult struct {
	Details       RoomDetails `json:"details"`
	Seat          models.Seat `json:"seat"`
	AlreadySeated bool        `json:"already_seated"`
}

// LeaveResult describes what leaving did to the room
type LeaveResult struct {
	Seat       models.Seat       `json:"seat"`
	NewHost    models.OccupantID `json:"new_host,omitempty"`
	RoomClosed bool              `json:"room_closed"`
}

func (d RoomDetails) clone() RoomDetails {
	out := RoomDetails{Room: d.Room}
	out.Seats = append([]models.Seat(nil), d.Seats...)
	return out
}

// SeatOf returns the seat held by occupant.
func (d RoomDetails) SeatOf(occupant models.OccupantID) (models.Seat, bool) {
	for _, s := range d.Seats {
		if s.OccupantID == occupant {
			return s, true
		}
	}
	return models.Seat{}, false
}

func (d RoomDetails) indexOf(occupant models.OccupantID) int {
	for i, s := range d.Seats {
		if s.OccupantID == occupant {
			return i
		}
	}
	return -1
}
