package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/pidr/go/internal/game"
	"github.com/mcdev12/pidr/go/internal/game/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

type JetStreamConfig struct {
	URL             string        `yaml:"url"`
	StreamName      string        `yaml:"stream_name"`
	SubjectPrefix   string        `yaml:"subject_prefix"`
	MaxReconnects   int           `yaml:"max_reconnects"`
	ReconnectWait   time.Duration `yaml:"reconnect_wait"`
	MaxAge          time.Duration `yaml:"max_age"`          // How long to keep snapshots
	MaxMsgsPerRoom  int64         `yaml:"max_msgs_per_room"` // per-subject history
	Replicas        int           `yaml:"replicas"`
	DuplicateWindow time.Duration `yaml:"duplicate_window"` // Window for Nats-Msg-Id dedup
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "PIDR_SNAPSHOTS",
		SubjectPrefix:   "pidr.snapshots",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		MaxMsgsPerRoom:  16,
		Replicas:        1,
		DuplicateWindow: 2 * time.Minute,
	}
}

// Connect dials NATS with the reconnect and logging options shared by the
// publisher and the gateway consumer.
func Connect(cfg JetStreamConfig) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// msgPublisher is the part of jetstream.JetStream the publisher uses.
type msgPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// JetStreamPublisher relays committed snapshots to other instances. Each
// snapshot is published once per room and version thanks to Nats-Msg-Id.
type JetStreamPublisher struct {
	js     msgPublisher
	config JetStreamConfig
	origin string
	clock  clockwork.Clock
}

// NewJetStreamPublisher ensures the snapshot stream exists on nc.
func NewJetStreamPublisher(ctx context.Context, nc *nats.Conn, cfg JetStreamConfig, origin string, clock clockwork.Clock) (*JetStreamPublisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	if err := EnsureStream(ctx, js, cfg); err != nil {
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return &JetStreamPublisher{js: js, config: cfg, origin: origin, clock: clock}, nil
}

// EnsureStream creates the snapshot stream or updates a drifted one.
func EnsureStream(ctx context.Context, js jetstream.JetStream, cfg JetStreamConfig) error {
	sc := jetstream.StreamConfig{
		Name:              cfg.StreamName,
		Description:       "Committed game snapshots per room",
		Subjects:          []string{cfg.SubjectPrefix + ".>"},
		Retention:         jetstream.LimitsPolicy,
		MaxAge:            cfg.MaxAge,
		MaxMsgsPerSubject: cfg.MaxMsgsPerRoom,
		Storage:           jetstream.FileStorage,
		Replicas:          cfg.Replicas,
		Duplicates:        cfg.DuplicateWindow,
	}

	stream, err := js.Stream(ctx, cfg.StreamName)
	if err != nil {
		if _, err = js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", cfg.StreamName).Msg("created JetStream stream")
		return nil
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !isStreamConfigEqual(info.Config, sc) {
		if _, err = js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().Str("stream", cfg.StreamName).Msg("updated JetStream stream")
	}
	return nil
}

// OnSnapshot publishes snap to pidr.snapshots.<room>.
func (p *JetStreamPublisher) OnSnapshot(ctx context.Context, roomID uuid.UUID, version uint64, snap *game.Snapshot) error {
	msg, err := p.message(snap)
	if err != nil {
		return err
	}
	ack, err := p.js.PublishMsg(ctx, msg, jetstream.WithExpectStream(p.config.StreamName))
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}
	if ack.Duplicate {
		log.Debug().Str("room_id", roomID.String()).Uint64("version", version).Msg("snapshot already on stream")
		return nil
	}
	log.Debug().
		Str("subject", msg.Subject).
		Str("room_id", roomID.String()).
		Uint64("version", version).
		Uint64("sequence", ack.Sequence).
		Msg("published snapshot to JetStream")
	return nil
}

func (p *JetStreamPublisher) message(snap *game.Snapshot) (*nats.Msg, error) {
	env, err := events.NewSnapshotEnvelope(snap, p.origin, p.clock.Now())
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return &nats.Msg{
		Subject: events.Subject(p.config.SubjectPrefix, snap.RoomID),
		Data:    data,
		Header: nats.Header{
			nats.MsgIdHdr: []string{env.EventID},
			"Event-Type":  []string{env.EventType},
			"Room-ID":     []string{env.RoomID},
			"Origin":      []string{p.origin},
		},
	}, nil
}

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.MaxMsgsPerSubject == b.MaxMsgsPerSubject &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates
}
