package log_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	applog "github.com/blackbelt-platform/core/internal/log"
	"github.com/blackbelt-platform/core/internal/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	return rec
}

func TestContextHandler_AddsRequestIDAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(applog.NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := requestid.WithRequestID(context.Background(), "req-1")
	ctx = applog.WithAttrs(ctx, slog.String("user_id", "u-1"))
	ctx = applog.WithAttrs(ctx, slog.String("tenant_id", "t-1"))
	logger.InfoContext(ctx, "hello")

	rec := decode(t, &buf)
	assert.Equal(t, "req-1", rec["request_id"])
	assert.Equal(t, "u-1", rec["user_id"])
	assert.Equal(t, "t-1", rec["tenant_id"])
}

func TestContextHandler_PlainContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(applog.NewContextHandler(slog.NewJSONHandler(&buf, nil))).With("component", "x")

	logger.InfoContext(context.Background(), "hello")

	rec := decode(t, &buf)
	assert.NotContains(t, rec, "request_id")
	assert.Equal(t, "x", rec["component"])
}
