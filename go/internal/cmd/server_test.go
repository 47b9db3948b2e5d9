package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerRoutes(t *testing.T) {
	cfg := defaultConfig()
	cfg.Server.JWTSecret = "secret"
	reg := prometheus.NewRegistry()

	services, err := setupServices(context.Background(), cfg, &Infra{}, reg)
	require.NoError(t, err)
	assert.Nil(t, services.Consumer)

	infra := &Infra{}
	srv := httptest.NewServer(setupServer(cfg, services, NewHealthChecker(infra, services), reg).Handler)
	defer srv.Close()

	get := func(path string) (int, string) {
		res, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer res.Body.Close()
		body, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		return res.StatusCode, string(body)
	}

	code, body := get("/health")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"healthy":true,"active_sessions":0,"connections":0,"errors":[]}`, body)

	code, _ = get("/metrics")
	assert.Equal(t, http.StatusOK, code)

	code, _ = get("/ws/room")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = get("/ws/stats")
	assert.Equal(t, http.StatusOK, code)

	res, err := http.Post(srv.URL+"/pidr.v1.GameService/DrawCard", "application/json", nil)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}
