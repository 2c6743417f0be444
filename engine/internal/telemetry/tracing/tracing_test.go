package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoopTracerWhenDisabled(t *testing.T) {
	tr := NewTracer(false, nil)
	require.True(t, tr.Noop())
	_, span := tr.StartSpan(context.Background(), "x")
	span.SetAttribute("k", "v")
	span.End()
}

func TestRealTracerStartsSpan(t *testing.T) {
	tr := NewTracer(true, nil)
	require.False(t, tr.Noop())
	ctx, span := tr.StartSpan(context.Background(), "company.scrape")
	span.SetAttribute("company.id", "123")
	span.End()

	traceID, spanID := ExtractIDs(ctx)
	require.NotEmpty(t, traceID)
	require.NotEmpty(t, spanID)
}
