package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestErrorCarriesContextFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{ServiceName: "test", Level: zerolog.DebugLevel, Output: &buf})

	ctx := log.WithRequestID(context.Background(), "req-123")
	ctx = log.WithOrderID(ctx, "order-1")
	log.Error(ctx, "boom", errors.New("kaput"))

	entry := lastEntry(t, &buf)
	assert.Equal(t, "test", entry["service"])
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "order-1", entry["order_id"])
	assert.Equal(t, "kaput", entry["error"])
	assert.NotEmpty(t, entry["stack"])
}

func TestFieldsDoNotLeakToParentContext(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{ServiceName: "test", Output: &buf})

	parent := log.WithUserID(context.Background(), "u-1")
	_ = log.WithFields(parent, map[string]any{"step": "reserve"})
	log.Info(parent, "done")

	entry := lastEntry(t, &buf)
	assert.Equal(t, "u-1", entry["user_id"])
	assert.NotContains(t, entry, "step")
}

func TestWarnStackToggle(t *testing.T) {
	var buf bytes.Buffer
	New(Options{ServiceName: "test", Output: &buf, WarnStack: true}).Warn(context.Background(), "warny")
	assert.Contains(t, lastEntry(t, &buf), "stack")

	buf.Reset()
	New(Options{ServiceName: "test", Output: &buf}).Warn(context.Background(), "warny")
	assert.NotContains(t, lastEntry(t, &buf), "stack")
}

func TestRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{ServiceName: "test", Level: zerolog.WarnLevel, Output: &buf})
	log.Info(context.Background(), "hidden")
	assert.Zero(t, buf.Len())
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	New(Options{ServiceName: "test", Output: &buf, Format: "Console"}).Info(context.Background(), "hello")
	assert.Contains(t, buf.String(), "hello")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("invalid"))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
}
