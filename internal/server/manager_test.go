package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	})
}

func testConfig(name string) Config {
	cfg := DefaultConfig()
	cfg.Name = name
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = time.Second
	return cfg
}

func get(t *testing.T, addr string) string {
	t.Helper()
	resp, err := http.Get("http://" + addr + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	return string(body)
}

// --- DefaultConfig ---

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "http", cfg.Name)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 120*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 1<<20, cfg.MaxHeaderBytes)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

// --- Manager ---

func TestManager_StartAndShutdown(t *testing.T) {
	m := NewManager(okHandler("ok"), testConfig("api"), zap.NewNop())

	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	assert.Equal(t, "ok", get(t, m.Addr()))

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())
}

func TestManager_DoubleStart(t *testing.T) {
	m := NewManager(http.NewServeMux(), testConfig("api"), nil)

	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	err := m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestManager_ShutdownIdempotent(t *testing.T) {
	m := NewManager(http.NewServeMux(), testConfig("api"), zap.NewNop())

	require.NoError(t, m.Start())
	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_StartAfterShutdown(t *testing.T) {
	m := NewManager(http.NewServeMux(), testConfig("api"), zap.NewNop())

	require.NoError(t, m.Start())
	require.NoError(t, m.Shutdown(context.Background()))

	assert.ErrorIs(t, m.Start(), ErrServerClosed)
}

func TestManager_AddrBeforeStart(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = ":9999"
	m := NewManager(http.NewServeMux(), cfg, zap.NewNop())

	assert.Equal(t, ":9999", m.Addr())
	assert.True(t, m.IsRunning(), "new manager should report running (not closed)")

	select {
	case <-m.Errors():
		t.Fatal("should not have received an error")
	default:
	}
}

func TestManager_ListenFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := testConfig("api")
	cfg.Addr = busy.Addr().String()
	m := NewManager(http.NewServeMux(), cfg, zap.NewNop())

	err = m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}

// --- Group ---

func TestGroup_StartServesAll(t *testing.T) {
	api := NewManager(okHandler("api"), testConfig("api"), zap.NewNop())
	metrics := NewManager(okHandler("metrics"), testConfig("metrics"), zap.NewNop())
	g := NewGroup(zap.NewNop(), api, nil, metrics)

	require.NoError(t, g.Start())
	t.Cleanup(func() { _ = g.Shutdown(context.Background()) })

	assert.Equal(t, "api", get(t, api.Addr()))
	assert.Equal(t, "metrics", get(t, metrics.Addr()))

	require.NoError(t, g.Shutdown(context.Background()))
	assert.False(t, api.IsRunning())
	assert.False(t, metrics.IsRunning())
}

func TestGroup_StartRollsBackOnFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	api := NewManager(okHandler("api"), testConfig("api"), zap.NewNop())
	badCfg := testConfig("metrics")
	badCfg.Addr = busy.Addr().String()
	metrics := NewManager(okHandler("metrics"), badCfg, zap.NewNop())

	g := NewGroup(zap.NewNop(), api, metrics)
	require.Error(t, g.Start())
	assert.False(t, api.IsRunning(), "already-started server must be shut down")
}

func TestGroup_WaitReturnsOnContext(t *testing.T) {
	g := NewGroup(nil, NewManager(http.NewServeMux(), testConfig("api"), nil))
	require.NoError(t, g.Start())
	t.Cleanup(func() { _ = g.Shutdown(context.Background()) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, g.Wait(ctx))
}

func TestGroup_WaitReturnsServerError(t *testing.T) {
	m := NewManager(http.NewServeMux(), testConfig("api"), nil)
	g := NewGroup(nil, m)

	m.errCh <- errors.New("listener died")

	err := g.Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api server")
	assert.Contains(t, err.Error(), "listener died")
}
