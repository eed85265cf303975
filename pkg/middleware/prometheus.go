// Package middleware 提供运维 HTTP 服务使用的 Gin 中间件.
package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/docvault/pkg/metrics"
)

// PrometheusMiddleware 按路由模板与状态码统计请求数.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		metrics.OpsRequests.WithLabelValues(path, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
