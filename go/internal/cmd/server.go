package main

import (
	"fmt"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/mcdev12/pidr/go/internal/connectutil"
	"github.com/mcdev12/pidr/go/internal/game/gateway"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(cfg *Config, services *Services, health http.Handler, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{
			connectutil.HeaderReason,
			connectutil.HeaderSnapshotVersion,
			connectutil.HeaderSnapshot,
		},
	})

	// Register services
	registerServices(mux, services)

	// WebSocket snapshot stream
	gateway.NewWebSocketHandler(services.Connections, services.Verifier).RegisterRoutes(mux)

	// Add health check endpoint
	mux.Handle("/health", health)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Wrap with CORS
	handler := c.Handler(mux)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func registerServices(mux *http.ServeMux, services *Services) {
	auth := connect.WithInterceptors(connectutil.NewAuthInterceptor(services.Verifier, services.Limiter))

	// Register room service
	roomServicePath, roomServiceHandler := services.Rooms.Handler(auth)
	mux.Handle(roomServicePath, roomServiceHandler)

	// Register game service
	gameServicePath, gameServiceHandler := services.Games.Handler(auth)
	mux.Handle(gameServicePath, gameServiceHandler)
}
