package oteladapters_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/log/noop"

	"github.com/ceramicstudio/js-glaze-sub000/oteladapters"
)

func Test_SlogBridgeLogger_WithHandler_AllLevels(t *testing.T) {
	// setup
	var buf bytes.Buffer
	logger := oteladapters.NewSlogBridgeLoggerWithHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := context.Background()

	// act
	logger.DebugContext(ctx, "mutation applied", "document", "profiles")
	logger.InfoContext(ctx, "drain cycle completed", "mutation_count", 2)
	logger.WarnContext(ctx, "mutation failed", "error", "boom")
	logger.ErrorContext(ctx, "fetching document failed", "duration_ms", 1.5)

	// assert
	output := buf.String()
	assert.Contains(t, output, `"level":"DEBUG","msg":"mutation applied","document":"profiles"`)
	assert.Contains(t, output, `"level":"INFO","msg":"drain cycle completed","mutation_count":2`)
	assert.Contains(t, output, `"level":"WARN","msg":"mutation failed","error":"boom"`)
	assert.Contains(t, output, `"level":"ERROR","msg":"fetching document failed","duration_ms":1.5`)
}

func Test_NewSlogBridgeLogger_UsesTheGlobalProvider(t *testing.T) {
	logger := oteladapters.NewSlogBridgeLogger("glaze")

	assert.NotPanics(t, func() {
		logger.InfoContext(context.Background(), "document fetched", "document", "profiles")
	})
}

func Test_OTelLogger_AllLevelsAndArgumentShapes(t *testing.T) {
	logger := oteladapters.NewOTelLogger(noop.NewLoggerProvider().Logger("test"))
	ctx := context.Background()

	assert.NotPanics(t, func() {
		logger.DebugContext(ctx, "typed", "s", "v", "i", 1, "i64", int64(2), "u64", uint64(3), "f", 0.5, "b", true)
		logger.InfoContext(ctx, "error value", "error", errors.New("boom"))
		logger.WarnContext(ctx, "odd args", "dangling")
		logger.ErrorContext(ctx, "non-string key", 42, "ignored", "kept", struct{ A int }{A: 1})
	})
}
