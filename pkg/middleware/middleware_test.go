package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/yeisme/docvault/pkg/metrics"
	"github.com/yeisme/docvault/pkg/middleware"
)

func TestOpsMiddlewares(t *testing.T) {
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(middleware.TracingMiddleware(), middleware.GinLoggerMiddleware(zerolog.Nop()), middleware.PrometheusMiddleware())
	engine.GET("/health/:name", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	before := testutil.ToFloat64(metrics.OpsRequests.WithLabelValues("/health/:name", "204"))

	for range 2 {
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/db", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.InDelta(t, before+2, testutil.ToFloat64(metrics.OpsRequests.WithLabelValues("/health/:name", "204")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.OpsRequests.WithLabelValues("unmatched", "404")), 0)
}

func TestTracingMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})

	engine := gin.New()
	engine.Use(middleware.TracingMiddleware("/metrics"))
	engine.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/health/:name", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

	req := httptest.NewRequest(http.MethodGet, "/health/db", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	engine.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /health/:name", spans[0].Name())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext().TraceID().String())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}
