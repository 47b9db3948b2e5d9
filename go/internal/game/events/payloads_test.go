package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/pidr/go/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotEnvelope(t *testing.T) {
	roomID := uuid.New()
	at := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	snap := game.NewSnapshot(9, game.State{RoomID: roomID, Phase: game.PhaseStage3, Turn: 2}, at)

	env, err := NewSnapshotEnvelope(snap, "inst-a", at)
	require.NoError(t, err)
	assert.Equal(t, MsgID(roomID, 9), env.EventID)
	assert.Equal(t, TypeSnapshotCommitted, env.EventType)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	var decoded Envelope
	require.NoError(t, json.Unmarshal(raw, &decoded))
	got, err := decoded.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, uint64(9), got.Version)
	assert.Equal(t, game.PhaseStage3, got.State.Phase)

	decoded.Version = 10
	_, err = decoded.Snapshot()
	assert.Error(t, err, "payload and envelope must agree")
}

func TestSubject(t *testing.T) {
	roomID := uuid.New()
	assert.Equal(t, "pidr.snapshots."+roomID.String(), Subject("pidr.snapshots", roomID))
	assert.Equal(t, "pidr.snapshots."+roomID.String(), Subject("pidr.snapshots.", roomID))
}
