package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewFromZap(zap.New(core)), logs
}

func TestLogger_FieldsReachZap(t *testing.T) {
	log, logs := newObserved()

	log.Info("slot booked",
		String("slot", "09:00 - 09:20"),
		Int64("counselor_id", 7),
		Duration("took", 15*time.Millisecond),
		Error(errors.New("boom")),
	)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "slot booked", entry.Message)
	assert.Equal(t, zapcore.InfoLevel, entry.Level)

	ctx := entry.ContextMap()
	assert.Equal(t, "09:00 - 09:20", ctx["slot"])
	assert.Equal(t, int64(7), ctx["counselor_id"])
	assert.Equal(t, "boom", ctx["error"])
}

func TestFieldLogger_MergesPresetFields(t *testing.T) {
	log, logs := newObserved()

	fl := log.WithFields(String("component", "booking"))
	fl.Warn("conflict", Int("attempt", 2))

	require.Equal(t, 1, logs.Len())
	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, "booking", ctx["component"])
	assert.Equal(t, int64(2), ctx["attempt"])
}

func TestContextLogger_AddsRequestID(t *testing.T) {
	log, logs := newObserved()

	ctx := ContextWithRequestID(context.Background(), "req-42")
	log.WithContext(ctx).Error("failed")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "req-42", logs.All()[0].ContextMap()["request_id"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" WARN "))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
	assert.Equal(t, "ERROR", LevelError.String())
}
