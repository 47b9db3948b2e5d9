package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/pidr/go/internal/cards"
	"github.com/mcdev12/pidr/go/internal/game"
	"github.com/mcdev12/pidr/go/internal/game/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeJetStream struct {
	msgs      []*nats.Msg
	duplicate bool
	err       error
}

func (f *fakeJetStream) PublishMsg(_ context.Context, msg *nats.Msg, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.msgs = append(f.msgs, msg)
	return &jetstream.PubAck{Stream: "PIDR_SNAPSHOTS", Sequence: uint64(len(f.msgs)), Duplicate: f.duplicate}, nil
}

func testSnapshot(version uint64, phase game.Phase) *game.Snapshot {
	roomID := uuid.New()
	st := game.State{
		RoomID: roomID,
		Phase:  phase,
		Turn:   1,
		Seats: []game.Seat{
			{Position: 1, Occupant: 7, Status: game.SeatActive, Hand: []cards.Card{{Rank: 9, Suit: cards.Hearts}}},
		},
		TotalCards: 1,
	}
	return game.NewSnapshot(version, st, time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC))
}

func TestJetStreamPublisherMessage(t *testing.T) {
	js := &fakeJetStream{}
	p := &JetStreamPublisher{js: js, config: DefaultJetStreamConfig(), origin: "inst-1", clock: clockwork.NewFakeClock()}
	snap := testSnapshot(12, game.PhaseStage2)

	require.NoError(t, p.OnSnapshot(context.Background(), snap.RoomID, snap.Version, snap))
	require.Len(t, js.msgs, 1)
	msg := js.msgs[0]

	assert.Equal(t, "pidr.snapshots."+snap.RoomID.String(), msg.Subject)
	assert.Equal(t, snap.RoomID.String()+":12", msg.Header.Get(nats.MsgIdHdr))
	assert.Equal(t, events.TypeSnapshotCommitted, msg.Header.Get("Event-Type"))

	var env events.Envelope
	require.NoError(t, json.Unmarshal(msg.Data, &env))
	assert.Equal(t, "inst-1", env.Origin)
	decoded, err := env.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, game.PhaseStage2, decoded.State.Phase)
	assert.Equal(t, snap.State.Seats[0].Hand, decoded.State.Seats[0].Hand)
	assert.Equal(t, uint64(12), decoded.Version)
}

func TestJetStreamPublisherErrors(t *testing.T) {
	js := &fakeJetStream{err: errors.New("no responders")}
	p := &JetStreamPublisher{js: js, config: DefaultJetStreamConfig(), origin: "inst-1", clock: clockwork.NewFakeClock()}
	snap := testSnapshot(3, game.PhaseOver)

	err := p.OnSnapshot(context.Background(), snap.RoomID, snap.Version, snap)
	assert.ErrorContains(t, err, "no responders")

	js.err = nil
	js.duplicate = true
	assert.NoError(t, p.OnSnapshot(context.Background(), snap.RoomID, snap.Version, snap), "a duplicate is already delivered")
	assert.Equal(t, events.TypeGameOver, js.msgs[0].Header.Get("Event-Type"))
}

type mockBroadcaster struct {
	mock.Mock
}

func (m *mockBroadcaster) OnSnapshot(ctx context.Context, roomID uuid.UUID, version uint64, snap *game.Snapshot) error {
	return m.Called(roomID, version).Error(0)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestMetricBroadcaster(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	next := &mockBroadcaster{}
	snap := testSnapshot(4, game.PhaseStage1)
	next.On("OnSnapshot", snap.RoomID, uint64(4)).Return(nil).Once()
	next.On("OnSnapshot", snap.RoomID, uint64(5)).Return(errors.New("down")).Once()

	b := NewMetricBroadcaster("jetstream", next, metrics)
	require.NoError(t, b.OnSnapshot(context.Background(), snap.RoomID, 4, snap))
	require.Error(t, b.OnSnapshot(context.Background(), snap.RoomID, 5, snap))

	next.AssertExpectations(t)
	assert.Equal(t, 1.0, counterValue(t, reg, "pidr_snapshots_delivered_total", map[string]string{"sink": "jetstream", "status": "success"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "pidr_snapshots_delivered_total", map[string]string{"sink": "jetstream", "status": "failure"}))
}

func TestSnapshotCacheKeys(t *testing.T) {
	c := NewSnapshotCache(nil, "", 0)
	roomID := uuid.MustParse("6f1c1a43-2a8e-4c53-9a55-0f6b8f3f0d11")
	assert.Equal(t, "pidr:room:6f1c1a43-2a8e-4c53-9a55-0f6b8f3f0d11:snapshot", c.roomKey(roomID))
	assert.Equal(t, 6*time.Hour, c.ttl)
}
