package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jjudge-oj/accounts/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() config.Config {
	return config.Config{
		ServerPort: 0,
		APIVersion: "v2",
		Database:   config.DatabaseConfig{Driver: "memory"},
		Auth: config.AuthConfig{
			JWTSecret:     []byte("server-secret"),
			CookieHashKey: []byte("0123456789abcdef0123456789abcdef"),
		},
		Hashing: config.HashingConfig{Workers: 2, MemoryKB: 64, Time: 1, Parallelism: 1},
		Events:  config.EventsConfig{Backend: "memory", Channel: "account-events"},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewWiresVersionedRoutes(t *testing.T) {
	srv, err := New(context.Background(), memoryConfig(), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	assert.Equal(t, ":8000", srv.httpServer.Addr)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "Abcdef1$", "email": "a@x.com"})
	resp, err = http.Post(ts.URL+"/v2/user/new", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/v1/user/new", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNewRejectsBadHashingConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.Hashing.Time = 0

	_, err := New(context.Background(), cfg, quietLogger())
	assert.Error(t, err)
}

func TestNewRejectsMissingCookieKey(t *testing.T) {
	cfg := memoryConfig()
	cfg.Auth.CookieHashKey = nil

	_, err := New(context.Background(), cfg, quietLogger())
	assert.Error(t, err)
}
