package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/mcdev12/pidr/go/internal/dbconfig"
	"github.com/mcdev12/pidr/go/internal/game/outbox"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Infra holds the external connections the configured store and sinks need.
// Any of them may be nil.
type Infra struct {
	Pool  *pgxpool.Pool
	DB    *sql.DB
	Redis *redis.Client
	NATS  *nats.Conn
}

func setupInfra(ctx context.Context, cfg *Config) (*Infra, error) {
	infra := &Infra{}
	if cfg.Store == storePostgres {
		if err := infra.connectPostgres(ctx, dbconfig.NewConfigFromEnv()); err != nil {
			infra.Close()
			return nil, err
		}
	}
	if cfg.Redis.Addr != "" {
		infra.Redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := infra.Redis.Ping(ctx).Err(); err != nil {
			infra.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")
	}
	if cfg.JetStream.URL != "" {
		nc, err := outbox.Connect(cfg.JetStream)
		if err != nil {
			infra.Close()
			return nil, err
		}
		infra.NATS = nc
		log.Info().Str("url", nc.ConnectedUrl()).Msg("connected to NATS")
	}
	return infra, nil
}

// connectPostgres opens a pgx pool for rooms and sessions and a database/sql
// handle for the bot identities.
func (i *Infra) connectPostgres(ctx context.Context, dbCfg dbconfig.Config) error {
	poolCfg, err := dbCfg.PoolConfig()
	if err != nil {
		return err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool: %w", err)
	}
	i.Pool = pool
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	db, err := sql.Open("postgres", dbCfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	i.DB = db
	db.SetMaxOpenConns(int(dbCfg.MaxConns))
	db.SetConnMaxIdleTime(dbCfg.MaxConnIdleTime)
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("user", dbCfg.User).
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("database", dbCfg.Database).
		Msg("connected to database")
	return nil
}

func (i *Infra) Close() {
	if i.NATS != nil {
		if err := i.NATS.Drain(); err != nil {
			log.Warn().Err(err).Msg("failed to drain NATS connection")
		}
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close database")
		}
	}
	if i.Pool != nil {
		i.Pool.Close()
	}
}
