package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		" warn ":  WarnLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"verbose": InfoLevel,
		"":        InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLogLevel(in), in)
	}
	assert.Equal(t, "WARN", WarnLevel.String())
}

func TestLogger_WritesJSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithField("document_id", 100).
		WithFields(map[string]interface{}{"level_requested": "READ"}).
		WithError(errors.New("boom")).
		Info("permission check failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "permission check failed", entry["msg"])
	assert.Equal(t, float64(100), entry["document_id"])
	assert.Equal(t, "READ", entry["level_requested"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WarnLevel, &buf)

	logger.Info("dropped")
	logger.Debugf("dropped %d", 1)
	assert.Zero(t, buf.Len())

	logger.Warnf("kept %d", 2)
	assert.Contains(t, buf.String(), "kept 2")
}

func TestFromContext_AddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), NewLogger(InfoLevel, &buf))
	ctx = WithRequestID(ctx, "req-123")

	FromContext(ctx).Info("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "req-123", GetRequestID(ctx))
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	logger.Error("nothing happens")
	assert.Equal(t, ErrorLevel, logger.Level())
}
