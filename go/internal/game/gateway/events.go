package gateway

import (
	"github.com/mcdev12/pidr/go/internal/game"
)

// EventType names a message pushed to WebSocket clients.
type EventType string

const (
	EventTypeSnapshot EventType = "snapshot"
	EventTypeGameOver EventType = "game_over"
	EventTypeError    EventType = "error"
)

// RoomEvent is the frame written to a client. Snapshot is already filtered
// for the connection's occupant.
type RoomEvent struct {
	Type     EventType  `json:"type"`
	RoomID   string     `json:"room_id"`
	Version  uint64     `json:"version,omitempty"`
	Snapshot *game.View `json:"snapshot,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// ClientMessage is what clients may send over the socket.
type ClientMessage struct {
	Type string `json:"type"` // "resync"
}

func newSnapshotEvent(snap *game.Snapshot, view *game.View) *RoomEvent {
	eventType := EventTypeSnapshot
	if snap.State.Over() {
		eventType = EventTypeGameOver
	}
	return &RoomEvent{
		Type:     eventType,
		RoomID:   snap.RoomID.String(),
		Version:  snap.Version,
		Snapshot: view,
	}
}
