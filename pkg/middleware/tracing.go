package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/docvault/pkg/tracing"
)

// TracingMiddleware 为 ops 请求创建 server span，沿用上游传入的 trace 上下文.
// skip 中的路由（如 /metrics）不产生 span.
func TracingMiddleware(skip ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if slices.Contains(skip, route) {
			c.Next()

			return
		}

		if route == "" {
			route = "unmatched"
		}

		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		ctx, span := tracing.StartSpan(ctx, c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Request.Method),
				attribute.String("http.route", route),
				attribute.String("client.address", c.ClientIP()),
			),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.response.status_code", status))

		switch {
		case len(c.Errors) > 0:
			span.SetStatus(codes.Error, c.Errors.String())
		case status >= http.StatusInternalServerError:
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
