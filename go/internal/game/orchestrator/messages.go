package orchestrator

import (
	"github.com/mcdev12/pidr/go/internal/cards"
	"github.com/mcdev12/pidr/go/internal/game"
)

// Wire messages of pidr.v1.GameService.

type PlayCardMessage struct {
	RoomID         string      `json:"room_id"`
	Card           *cards.Card `json:"card,omitempty"`
	Target         int         `json:"target,omitempty"` // stage 1 only
	IdempotencyKey string      `json:"idempotency_key"`
}

type TurnMessage struct {
	RoomID         string `json:"room_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

type ChallengeMessage struct {
	RoomID         string `json:"room_id"`
	Target         int    `json:"target"`
	IdempotencyKey string `json:"idempotency_key"`
}

type SnapshotRequest struct {
	RoomID string `json:"room_id"`
}

type GameResponse struct {
	Snapshot *game.View `json:"snapshot"`
	Replayed bool       `json:"replayed,omitempty"`
}
