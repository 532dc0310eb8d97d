package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/pkg/logger"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew(t *testing.T) {
	t.Run("json by default", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf))
		log.Info("hello")
		entry := decode(t, buf)
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "hello", entry["msg"])
	})

	t.Run("text format", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithFormat(logger.FormatText))
		log.Info("hello")
		assert.Contains(t, buf.String(), "msg=hello")
	})

	t.Run("static attributes", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithAttr(slog.String("svc", "hub")))
		log.Info("msg")
		assert.Equal(t, "hub", decode(t, buf)["svc"])
	})

	t.Run("level filters records", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithLevel(slog.LevelWarn))
		log.Info("dropped")
		assert.Empty(t, buf.String())
	})

	t.Run("context value", func(t *testing.T) {
		buf := &bytes.Buffer{}
		type key struct{}
		log := logger.New(logger.WithOutput(buf), logger.WithContextValue("request_id", key{}))
		ctx := context.WithValue(context.Background(), key{}, "req-1")
		log.InfoContext(ctx, "msg")
		assert.Equal(t, "req-1", decode(t, buf)["request_id"])
	})

	t.Run("context extractor", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(
			logger.WithOutput(buf),
			logger.WithContextExtractors(nil, func(ctx context.Context) (slog.Attr, bool) {
				return logger.ClientID("client-a"), true
			}),
		)
		log.InfoContext(context.Background(), "msg")
		assert.Equal(t, "client-a", decode(t, buf)["client_id"])
	})
}

func TestWithEnvironment(t *testing.T) {
	tests := []struct {
		env      string
		wantJSON bool
		wantEnv  string
	}{
		{"production", true, logger.EnvProduction},
		{"prod", true, logger.EnvProduction},
		{"staging", true, logger.EnvStaging},
		{"development", false, logger.EnvDevelopment},
		{"", false, logger.EnvDevelopment},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			buf := &bytes.Buffer{}
			log := logger.New(logger.WithEnvironment(tt.env, "notifyhub"), logger.WithOutput(buf))
			log.Info("msg")
			if tt.wantJSON {
				entry := decode(t, buf)
				assert.Equal(t, "notifyhub", entry["service"])
				assert.Equal(t, tt.wantEnv, entry["env"])
				return
			}
			assert.Contains(t, buf.String(), "service=notifyhub")
			assert.Contains(t, buf.String(), "env="+tt.wantEnv)
		})
	}
}

func TestDevelopmentLogsDebug(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logger.New(logger.WithEnvironment("development", "svc"), logger.WithOutput(buf))
	log.Debug("details")
	assert.Contains(t, buf.String(), "DEBUG")
}

func TestSetAsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	buf := &bytes.Buffer{}
	logger.SetAsDefault(logger.New(logger.WithOutput(buf)))
	slog.Info("default")
	assert.Equal(t, "default", decode(t, buf)["msg"])
}

func TestWithFormatPanics(t *testing.T) {
	assert.Panics(t, func() {
		logger.New(logger.WithFormat(logger.Format("xml")))
	})
}

func TestDiscard(t *testing.T) {
	log := logger.Discard()
	require.NotNil(t, log)
	assert.False(t, log.Enabled(context.Background(), slog.LevelError))
}
