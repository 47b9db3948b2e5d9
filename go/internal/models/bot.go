package models

import (
	"encoding/json"
	"github.com/google/uuid"
	"time"
)

// BotIdentity is a reusable synthetic player. HomeRoomID is the ownership
// token: nil means the bot is free, otherwise it is seated in that room.
type BotIdentity struct {
	ID          OccupantID      `json:"id"`
	DisplayName string          `json:"display_name"`
	Avatar      string          `json:"avatar"`
	HomeRoomID  *uuid.UUID      `json:"home_room_id,omitempty"`
	Profile     json.RawMessage `json:"profile,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// IsFree reports whether the bot can be claimed by a room.
func (b BotIdentity) IsFree() bool {
	return b.HomeRoomID == nil
}
