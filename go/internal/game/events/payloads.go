package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/pidr/go/internal/game"
)

// Event payload types shared between the outbox publisher and the gateway
// consumer.

const (
	// TypeSnapshotCommitted carries a full committed snapshot.
	TypeSnapshotCommitted = "SnapshotCommitted"
	// TypeGameOver is a SnapshotCommitted whose snapshot ended the game.
	TypeGameOver = "GameOver"
)

// Envelope is the bus message wrapping one snapshot.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	RoomID    string          `json:"roomId"`
	Version   uint64          `json:"version"`
	Origin    string          `json:"origin"` // instance that committed it
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// MsgID is the dedup id of a snapshot on the bus, e.g. "<room>:12".
func MsgID(roomID uuid.UUID, version uint64) string {
	return roomID.String() + ":" + strconv.FormatUint(version, 10)
}

// Subject returns the per-room subject under prefix, e.g.
// "pidr.snapshots.<room>".
func Subject(prefix string, roomID uuid.UUID) string {
	return strings.TrimSuffix(prefix, ".") + "." + roomID.String()
}

// NewSnapshotEnvelope wraps snap for publishing.
func NewSnapshotEnvelope(snap *game.Snapshot, origin string, at time.Time) (*Envelope, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	eventType := TypeSnapshotCommitted
	if snap.State.Over() {
		eventType = TypeGameOver
	}
	return &Envelope{
		EventID:   MsgID(snap.RoomID, snap.Version),
		EventType: eventType,
		RoomID:    snap.RoomID.String(),
		Version:   snap.Version,
		Origin:    origin,
		Timestamp: at.UTC(),
		Payload:   payload,
	}, nil
}

// Snapshot decodes the payload and checks it against the envelope.
func (e *Envelope) Snapshot() (*game.Snapshot, error) {
	var snap game.Snapshot
	if err := json.Unmarshal(e.Payload, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snap.RoomID.String() != e.RoomID || snap.Version != e.Version {
		return nil, fmt.Errorf("snapshot %s:%d does not match envelope %s", snap.RoomID, snap.Version, e.EventID)
	}
	return &snap, nil
}
