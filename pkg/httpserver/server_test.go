package httpserver_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/pkg/httpserver"
	"github.com/dmitrymomot/notifyhub/pkg/logger"
)

func TestRunAndShutdown(t *testing.T) {
	started := make(chan string, 1)
	stopped := make(chan struct{})
	srv := httpserver.New(
		httpserver.WithAddr("127.0.0.1:0"),
		httpserver.WithShutdownTimeout(time.Second),
		httpserver.WithLogger(logger.Discard()),
		httpserver.WithStartHook(func(addr string) { started <- addr }),
		httpserver.WithStopHook(func() { close(stopped) }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("ok"))
		}))
	}()

	var addr string
	select {
	case addr = <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return")
	}
	<-stopped

	assert.NoError(t, srv.Shutdown(context.Background()))
}

func TestRunTwice(t *testing.T) {
	started := make(chan string, 1)
	srv := httpserver.New(
		httpserver.WithAddr("127.0.0.1:0"),
		httpserver.WithLogger(logger.Discard()),
		httpserver.WithStartHook(func(addr string) { started <- addr }),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = srv.Run(ctx, http.NotFoundHandler()) }()
	<-started

	err := srv.Run(ctx, http.NotFoundHandler())
	assert.ErrorIs(t, err, httpserver.ErrAlreadyRunning)
}

func TestShutdownBeforeRun(t *testing.T) {
	srv := httpserver.New(httpserver.WithLogger(logger.Discard()))
	assert.NoError(t, srv.Shutdown(context.Background()))
}

func TestOptionsPanic(t *testing.T) {
	assert.Panics(t, func() { httpserver.WithAddr("") })
	assert.Panics(t, func() { httpserver.WithShutdownTimeout(0) })
}

func TestHealthHandlers(t *testing.T) {
	t.Run("liveness", func(t *testing.T) {
		rec := httptest.NewRecorder()
		httpserver.LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ALIVE", rec.Body.String())
	})

	t.Run("ready", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ok := func(context.Context) error { return nil }
		httpserver.ReadinessHandler(logger.Discard(), ok, ok)(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "READY", rec.Body.String())
	})

	t.Run("not ready", func(t *testing.T) {
		rec := httptest.NewRecorder()
		failing := func(context.Context) error { return errors.New("db down") }
		httpserver.ReadinessHandler(logger.Discard(), failing)(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "NOT_READY", rec.Body.String())
	})
}
