package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/pidr/go/internal/game/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// JetStreamConsumerConfig holds configuration for the JetStream consumer
type JetStreamConsumerConfig struct {
	StreamName        string        `yaml:"stream_name"`
	ConsumerName      string        `yaml:"consumer_name"` // suffixed with the instance id
	SubjectFilter     string        `yaml:"subject_filter"`
	MaxDeliver        int           `yaml:"max_deliver"`
	AckWait           time.Duration `yaml:"ack_wait"`
	MaxAckPending     int           `yaml:"max_ack_pending"`
	InactiveThreshold time.Duration `yaml:"inactive_threshold"`
}

func DefaultJetStreamConsumerConfig() JetStreamConsumerConfig {
	return JetStreamConsumerConfig{
		StreamName:        "PIDR_SNAPSHOTS",
		ConsumerName:      "pidr-gateway",
		SubjectFilter:     "pidr.snapshots.>",
		MaxDeliver:        5,
		AckWait:           30 * time.Second,
		MaxAckPending:     256,
		InactiveThreshold: 10 * time.Minute,
	}
}

// EventConsumer relays snapshots committed on other instances to the
// sockets connected here. Each instance owns a durable consumer, so every
// instance sees every room.
type EventConsumer struct {
	connectionManager *ConnectionManager
	js                jetstream.JetStream
	consumer          jetstream.Consumer
	config            JetStreamConsumerConfig
	origin            string
}

// NewEventConsumer binds a consumer on nc. Snapshots published with origin
// are skipped since the local broadcaster already delivered them.
func NewEventConsumer(ctx context.Context, nc *nats.Conn, cm *ConnectionManager, config JetStreamConsumerConfig, origin string) (*EventConsumer, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	ec := &EventConsumer{
		connectionManager: cm,
		js:                js,
		config:            config,
		origin:            origin,
	}
	if err := ec.ensureConsumer(ctx); err != nil {
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}
	return ec, nil
}

func (ec *EventConsumer) consumerName() string {
	return ec.config.ConsumerName + "-" + ec.origin
}

func (ec *EventConsumer) ensureConsumer(ctx context.Context) error {
	stream, err := ec.js.Stream(ctx, ec.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	name := ec.consumerName()
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:              name,
		Durable:           name,
		Description:       "Room snapshot relay for WebSocket clients",
		FilterSubject:     ec.config.SubjectFilter,
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		AckPolicy:         jetstream.AckExplicitPolicy,
		MaxDeliver:        ec.config.MaxDeliver,
		AckWait:           ec.config.AckWait,
		MaxAckPending:     ec.config.MaxAckPending,
		InactiveThreshold: ec.config.InactiveThreshold,
		ReplayPolicy:      jetstream.ReplayInstantPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	log.Info().
		Str("consumer", name).
		Str("stream", ec.config.StreamName).
		Msg("JetStream consumer ready")

	ec.consumer = consumer
	return nil
}

// Start consumes until ctx is done.
func (ec *EventConsumer) Start(ctx context.Context) error {
	log.Info().
		Str("consumer", ec.consumerName()).
		Str("stream", ec.config.StreamName).
		Msg("starting JetStream event consumer")

	messageCh := make(chan jetstream.Msg, 100)
	consumeCtx, err := ec.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event consumer shutting down")
			return nil
		case msg := <-messageCh:
			if err := ec.processMessage(ctx, msg); err != nil {
				log.Error().
					Err(err).
					Str("subject", msg.Subject()).
					Msg("failed to process message")
				if errors.Is(err, errBroadcastFull) {
					if nakErr := msg.NakWithDelay(time.Second); nakErr != nil {
						log.Error().Err(nakErr).Msg("failed to NAK message")
					}
					continue
				}
				// a malformed snapshot will not get better on redelivery
				if termErr := msg.Term(); termErr != nil {
					log.Error().Err(termErr).Msg("failed to TERM message")
				}
				continue
			}
			if ackErr := msg.Ack(); ackErr != nil {
				log.Error().Err(ackErr).Msg("failed to ACK message")
			}
		}
	}
}

func (ec *EventConsumer) processMessage(ctx context.Context, msg jetstream.Msg) error {
	var envelope events.Envelope
	if err := json.Unmarshal(msg.Data(), &envelope); err != nil {
		return fmt.Errorf("unmarshal event envelope: %w", err)
	}
	if envelope.Origin == ec.origin {
		return nil
	}

	snap, err := envelope.Snapshot()
	if err != nil {
		return err
	}

	log.Debug().
		Str("event_id", envelope.EventID).
		Str("event_type", envelope.EventType).
		Str("origin", envelope.Origin).
		Str("subject", msg.Subject()).
		Msg("relaying snapshot from JetStream")

	return ec.connectionManager.OnSnapshot(ctx, snap.RoomID, snap.Version, snap)
}

func (ec *EventConsumer) Info(ctx context.Context) (*jetstream.ConsumerInfo, error) {
	return ec.consumer.Info(ctx)
}
