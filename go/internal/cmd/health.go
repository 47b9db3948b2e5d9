package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type HealthStatus struct {
	Healthy           bool     `json:"healthy"`
	DatabaseConnected *bool    `json:"database_connected,omitempty"`
	RedisConnected    *bool    `json:"redis_connected,omitempty"`
	NATSConnected     *bool    `json:"nats_connected,omitempty"`
	ActiveSessions    int      `json:"active_sessions"`
	Connections       int      `json:"connections"`
	Errors            []string `json:"errors"`
}

// HealthChecker reports whether the configured backends are reachable.
// Backends that are not configured are left out of the status.
type HealthChecker struct {
	infra    *Infra
	services *Services
}

func NewHealthChecker(infra *Infra, services *Services) *HealthChecker {
	return &HealthChecker{infra: infra, services: services}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy:        true,
		ActiveSessions: h.services.Orchestrator.ActiveSessions(),
		Connections:    h.services.Connections.Stats().TotalConnections,
		Errors:         []string{},
	}
	fail := func(format string, args ...any) {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf(format, args...))
	}

	if h.infra.Pool != nil {
		ok := true
		if err := h.infra.Pool.Ping(ctx); err != nil {
			ok = false
			fail("database ping failed: %v", err)
		} else if err := h.infra.DB.PingContext(ctx); err != nil {
			ok = false
			fail("database ping failed: %v", err)
		}
		status.DatabaseConnected = &ok
	}
	if h.infra.Redis != nil {
		ok := true
		if err := h.infra.Redis.Ping(ctx).Err(); err != nil {
			ok = false
			fail("redis ping failed: %v", err)
		}
		status.RedisConnected = &ok
	}
	if h.infra.NATS != nil {
		ok := h.infra.NATS.IsConnected()
		if !ok {
			fail("NATS disconnected")
		}
		status.NATSConnected = &ok
	}
	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)
	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to write health check response")
	}
}
