package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goran-ethernal/ChainRuntime/internal/common"
	"github.com/goran-ethernal/ChainRuntime/internal/logger"
	"github.com/goran-ethernal/ChainRuntime/pkg/config"
	"github.com/stretchr/testify/require"
)

func testAPIConfig(enabled bool, cors *config.CORSConfig) *config.APIConfig {
	return &config.APIConfig{
		Enabled:       enabled,
		ListenAddress: "127.0.0.1:0",
		ReadTimeout:   common.Duration{Duration: 5 * time.Second},
		WriteTimeout:  common.Duration{Duration: 10 * time.Second},
		IdleTimeout:   common.Duration{Duration: 60 * time.Second},
		CORS:          cors,
	}
}

func TestNewServer(t *testing.T) {
	t.Parallel()

	state, subs := newTestState(t)
	server := NewServer(testAPIConfig(true, nil), state, subs, logger.NewNopLogger())

	require.NotNil(t, server.handler)
	require.Equal(t, "127.0.0.1:0", server.server.Addr)
	require.Equal(t, 5*time.Second, server.server.ReadTimeout)
	require.Equal(t, 10*time.Second, server.server.WriteTimeout)
	require.Equal(t, 60*time.Second, server.server.IdleTimeout)
}

func TestServer_Routes(t *testing.T) {
	t.Parallel()

	state, subs := newTestState(t)
	cors := corsConfig("*")
	h := NewServer(testAPIConfig(true, &cors), state, subs, logger.NewNopLogger()).Handler()

	tests := []struct {
		method string
		path   string
		status int
	}{
		{method: http.MethodGet, path: "/health", status: http.StatusOK},
		{method: http.MethodGet, path: "/api/v1/chains", status: http.StatusOK},
		{method: http.MethodGet, path: "/api/v1/entities", status: http.StatusOK},
		{method: http.MethodGet, path: "/api/v1/entities/Account", status: http.StatusOK},
		{method: http.MethodGet, path: "/api/v1/entities/Account/0xa", status: http.StatusOK},
		{method: http.MethodGet, path: "/api/v1/entities/Account/0xz", status: http.StatusNotFound},
		{method: http.MethodGet, path: "/api/v1/subscriptions?chain_id=137", status: http.StatusOK},
		{method: http.MethodGet, path: "/api/v1/unknown", status: http.StatusNotFound},
		{method: http.MethodPost, path: "/api/v1/chains", status: http.StatusMethodNotAllowed},
		{method: http.MethodOptions, path: "/api/v1/chains", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			require.Equal(t, tt.status, w.Code)
		})
	}
}

func TestServer_Start_Disabled(t *testing.T) {
	t.Parallel()

	state, subs := newTestState(t)
	server := NewServer(testAPIConfig(false, nil), state, subs, logger.NewNopLogger())

	require.NoError(t, server.Start(context.Background()))
}

func TestServer_Start_StopsOnCancel(t *testing.T) {
	t.Parallel()

	state, subs := newTestState(t)
	server := NewServer(testAPIConfig(true, nil), state, subs, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
