package room

import "github.com/mcdev12/pidr/go/internal/models"

// Wire messages of pidr.v1.RoomService. The caller's identity always comes
// from the bearer token, never from the message.

type CreateRoomMessage struct {
	DisplayName string                `json:"display_name"`
	MaxPlayers  int                   `json:"max_players"`
	Visibility  models.RoomVisibility `json:"visibility"`
	Password    string                `json:"password,omitempty"`
}

type JoinRoomMessage struct {
	RoomID      string `json:"room_id,omitempty"`
	Code        string `json:"code,omitempty"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password,omitempty"`
}

type RoomRef struct {
	RoomID string `json:"room_id"`
}

type SetReadyMessage struct {
	RoomID string `json:"room_id"`
	Ready  bool   `json:"ready"`
}

type ListRoomsMessage struct {
	Limit int `json:"limit"`
}

type Empty struct{}

type RoomResponse struct {
	Room RoomDetails `json:"room"`
}

type JoinRoomResponse struct {
	Room          RoomDetails `json:"room"`
	Seat          models.Seat `json:"seat"`
	AlreadySeated bool        `json:"already_seated"`
}

type LeaveRoomResponse struct {
	NewHost    models.OccupantID `json:"new_host,omitempty"`
	RoomClosed bool              `json:"room_closed"`
}

type BotResponse struct {
	Seat models.Seat         `json:"seat"`
	Bot  *models.BotIdentity `json:"bot,omitempty"`
}

type SeatResponse struct {
	Seat models.Seat `json:"seat"`
}

type ListRoomsResponse struct {
	Rooms []models.Room `json:"rooms"`
}
