package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/commerce-engine/logging"
	"go.opentelemetry.io/otel/trace"
)

func TestInfo_WithSpanContext_AddsTraceFields(t *testing.T) {
	var buf bytes.Buffer
	logging.Init("commerce-engine", false)
	logging.SetOutput(&buf)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02},
		SpanID:     trace.SpanID{0x03},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logging.Info(ctx).Int64("purchase_id", 7).Msg("purchase recorded")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "purchase recorded", entry["message"])
	assert.Equal(t, "commerce-engine", entry["service"])
	assert.Equal(t, sc.TraceID().String(), entry["traceId"])
	assert.Equal(t, sc.SpanID().String(), entry["spanId"])
	assert.EqualValues(t, 7, entry["purchase_id"])
}

func TestDebug_ProductionLevel_Suppressed(t *testing.T) {
	var buf bytes.Buffer
	logging.Init("commerce-engine", false)
	logging.SetOutput(&buf)

	logging.Debug(context.Background()).Msg("noise")

	assert.Empty(t, buf.String())
}
