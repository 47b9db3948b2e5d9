package main

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/pidr/go/internal/bots"
	"github.com/mcdev12/pidr/go/internal/connectutil"
	"github.com/mcdev12/pidr/go/internal/game/gateway"
	"github.com/mcdev12/pidr/go/internal/game/orchestrator"
	"github.com/mcdev12/pidr/go/internal/game/outbox"
	"github.com/mcdev12/pidr/go/internal/room"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Rooms        *room.Service
	Games        *orchestrator.Service
	Orchestrator *orchestrator.Orchestrator
	Connections  *gateway.ConnectionManager
	Consumer     *gateway.EventConsumer // nil without NATS
	Verifier     *connectutil.Verifier
	Limiter      *connectutil.Limiter
}

func setupServices(ctx context.Context, cfg *Config, infra *Infra, reg prometheus.Registerer) (*Services, error) {
	// Wire up dependency injection chain
	// Database layer → Repository layer → App layer → Service layer
	clock := clockwork.NewRealClock()

	var (
		roomRepo room.Repository
		botRepo  bots.Repository
		store    orchestrator.SessionStore
	)
	if cfg.Store == storePostgres {
		roomRepo = room.NewPostgresRepository(infra.Pool)
		botRepo = bots.NewPostgresRepository(infra.DB)
		store = outbox.NewSessionStore(infra.Pool)
	} else {
		roomRepo = room.NewMemoryRepository()
		botRepo = bots.NewMemoryRepository()
	}

	// Bots
	botSeed := cfg.BotSeed
	if botSeed == 0 {
		botSeed = time.Now().UnixNano()
	}
	botApp := bots.NewApp(botRepo, bots.NewNamePool(botSeed), clock)
	if err := botApp.SyncNames(ctx); err != nil {
		return nil, err
	}

	// Snapshot sinks
	metrics := outbox.NewMetrics(reg)
	connections := gateway.NewConnectionManager(cfg.WebSocket, nil)
	broadcasters := []orchestrator.Broadcaster{
		outbox.NewMetricBroadcaster("websocket", connections, metrics),
	}
	var cache *outbox.SnapshotCache
	if infra.Redis != nil {
		cache = outbox.NewSnapshotCache(infra.Redis, cfg.Redis.KeyPrefix, cfg.Redis.TTL)
		broadcasters = append(broadcasters, outbox.NewMetricBroadcaster("redis", cache, metrics))
	}

	// Games
	orch := orchestrator.NewOrchestrator(cfg.Game, clock, store)
	if infra.NATS != nil {
		publisher, err := outbox.NewJetStreamPublisher(ctx, infra.NATS, cfg.JetStream, orch.InstanceID(), clock)
		if err != nil {
			return nil, err
		}
		broadcasters = append(broadcasters, outbox.NewMetricBroadcaster("jetstream", publisher, metrics))
	}
	orch.AttachBroadcasters(broadcasters...)
	if cache != nil {
		orch.AttachReader(cache)
	}
	connections.AttachSource(orch)

	// Rooms
	roomApp := room.NewApp(roomRepo, botApp, clock, cfg.Room)
	roomApp.AttachGames(orch)
	orch.AttachRooms(roomApp)

	services := &Services{
		Rooms:        room.NewService(roomApp),
		Games:        orchestrator.NewService(orch),
		Orchestrator: orch,
		Connections:  connections,
		Verifier:     connectutil.NewVerifier(cfg.Server.JWTSecret),
		Limiter:      connectutil.NewLimiter(cfg.Limits, clock),
	}

	if infra.NATS != nil {
		consumer, err := gateway.NewEventConsumer(ctx, infra.NATS, connections, cfg.Consumer, orch.InstanceID())
		if err != nil {
			return nil, err
		}
		services.Consumer = consumer
	}

	log.Info().
		Str("store", cfg.Store).
		Bool("redis", cache != nil).
		Bool("jetstream", infra.NATS != nil).
		Int("broadcasters", len(broadcasters)).
		Msg("services wired")
	return services, nil
}
