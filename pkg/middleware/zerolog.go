package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// GinLoggerMiddleware 使用 zerolog 记录请求日志，/metrics 的抓取只记 debug.
func GinLoggerMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		event := logger.Info()
		if path == "/metrics" {
			event = logger.Debug()
		}

		if len(c.Errors) > 0 {
			event = logger.Error().Str("error", c.Errors.String())
		}

		event.
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}
