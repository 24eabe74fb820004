package middleware

import (
	"net/http/httptest"
	"testing"

	"quad/internal/models"
	"quad/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordingTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := observability.Tracer
	observability.Tracer = tp.Tracer("test")
	t.Cleanup(func() { observability.Tracer = prev })
	return recorder
}

func spanAttrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	return attrs
}

func TestTracingMiddlewareRecordsRequestSpan(t *testing.T) {
	recorder := recordingTracer(t)

	app := fiber.New()
	app.Use(TracingMiddleware())
	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendString("pong")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "GET /ping", span.Name())
	assert.Equal(t, span.SpanContext().TraceID().String(), resp.Header.Get("X-Trace-ID"))

	attrs := spanAttrs(span)
	assert.Equal(t, "GET", attrs["http.method"].AsString())
	assert.Equal(t, "/ping", attrs["http.path"].AsString())
	assert.EqualValues(t, fiber.StatusOK, attrs["http.status_code"].AsInt64())
}

func TestTracingMiddlewareRecordsHandlerError(t *testing.T) {
	recorder := recordingTracer(t)

	app := fiber.New()
	app.Use(TracingMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return models.NewInternalError(assert.AnError)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	attrs := spanAttrs(spans[0])
	assert.NotEmpty(t, attrs["error"].AsString())
	assert.NotEmpty(t, spans[0].Events(), "error should be recorded as a span event")
}
