package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/arcana/pkg/logger"
	"github.com/dmitrymomot/arcana/pkg/subscription"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew_JSONDefaults(t *testing.T) {
	t.Parallel()
	buf := &bytes.Buffer{}
	log := logger.New(logger.WithOutput(buf))

	log.Debug("hidden")
	assert.Zero(t, buf.Len())

	log.Info("hello", logger.Tier(subscription.TierMystic), logger.Error(nil))
	entry := decode(t, buf)
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "mystic", entry["tier"])
	assert.NotContains(t, entry, "error")
}

func TestNew_InvalidFormatPanics(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { logger.New(logger.WithFormat("xml")) })
}

func TestWithEnvironment(t *testing.T) {
	t.Parallel()

	t.Run("development", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithEnvironment("", "arcanad"), logger.WithOutput(buf))
		log.Debug("msg")
		out := buf.String()
		assert.Contains(t, out, "level=DEBUG")
		assert.Contains(t, out, "service=arcanad")
		assert.Contains(t, out, "env=development")
	})

	t.Run("production", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithEnvironment("prod", "arcanad"), logger.WithOutput(buf))
		log.Debug("hidden")
		log.Info("shown")
		entry := decode(t, buf)
		assert.Equal(t, "prod", entry["env"])
		assert.Equal(t, "shown", entry["msg"])
	})
}

func TestFromConfig(t *testing.T) {
	t.Parallel()
	buf := &bytes.Buffer{}

	log, err := logger.FromConfig(logger.Config{Level: "warn", Format: logger.FormatJSON, Env: "production", Service: "arcanad"},
		logger.WithOutput(buf))
	require.NoError(t, err)
	log.Info("hidden")
	log.Warn("shown")
	assert.Equal(t, "WARN", decode(t, buf)["level"])

	_, err = logger.FromConfig(logger.Config{Level: "loud", Format: logger.FormatJSON})
	assert.Error(t, err)
	_, err = logger.FromConfig(logger.Config{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

type ctxKey struct{}

func TestContextExtractors(t *testing.T) {
	t.Parallel()
	buf := &bytes.Buffer{}
	log := logger.New(
		logger.WithOutput(buf),
		logger.WithContextExtractors(logger.ContextValue("request_id", ctxKey{}), nil),
	).With(logger.Component("gate"))

	ctx := context.WithValue(context.Background(), ctxKey{}, "req-1")
	log.InfoContext(ctx, "checked", logger.Usage(3, 10))

	entry := decode(t, buf)
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "gate", entry["component"])
	assert.Equal(t, map[string]any{"used": float64(3), "limit": float64(10)}, entry["usage"])
}

func TestErrors(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.Attr{}, logger.Errors(nil, nil))

	attr := logger.Errors(nil, errors.New("a"), errors.New("b"))
	assert.Equal(t, "errors", attr.Key)
	assert.Len(t, attr.Value.Group(), 2)

	assert.Equal(t, slog.Attr{}, logger.RequestID(""))
	assert.Equal(t, "request_id", logger.RequestID("x").Key)

	logger.Discard().Info("dropped")
	assert.NotNil(t, logger.OrDiscard(nil))
}
