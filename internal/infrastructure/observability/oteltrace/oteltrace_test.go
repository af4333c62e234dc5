package oteltrace

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestSetupExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Setup("minishop-test", &buf)
	require.NoError(t, err)

	ctx, span := New("test").Start(context.Background(), "UC.order.checkout", attribute.String("customer.id", "c-1"))
	assert.True(t, span.SpanContext().IsValid())
	assert.True(t, span.SpanContext().IsSampled())
	_, child := New("test").Start(ctx, "child")
	assert.Equal(t, span.SpanContext().TraceID(), child.SpanContext().TraceID())
	child.End()
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "UC.order.checkout")
	assert.Contains(t, buf.String(), "minishop-test")
}
