package app

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/docvault/pkg/internal/storage/blob"
)

const healthTimeout = 2 * time.Second

// HealthCheck 检查一个依赖是否可用.
type HealthCheck func(ctx context.Context) error

// RegisterHealthRoutes 为每个检查注册 GET /<name>，并在 GET / 汇总全部结果.
func RegisterHealthRoutes(g *gin.RouterGroup, checks map[string]HealthCheck) {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		check := checks[name]

		g.GET("/"+name, func(c *gin.Context) {
			status, body := runCheck(c.Request.Context(), name, check)
			c.JSON(status, body)
		})
	}

	g.GET("", func(c *gin.Context) {
		code := http.StatusOK
		results := make([]gin.H, 0, len(names))

		for _, name := range names {
			status, body := runCheck(c.Request.Context(), name, checks[name])
			if status != http.StatusOK {
				code = status
			}

			results = append(results, body)
		}

		c.JSON(code, gin.H{"components": results})
	})
}

func runCheck(ctx context.Context, name string, check HealthCheck) (int, gin.H) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	if err := check(ctx); err != nil {
		return http.StatusServiceUnavailable, gin.H{"component": name, "status": "unhealthy", "error": err.Error()}
	}

	return http.StatusOK, gin.H{"component": name, "status": "ok"}
}

// healthChecks 按已初始化的资源生成检查项.
func (a *App) healthChecks() map[string]HealthCheck {
	checks := map[string]HealthCheck{
		"db": func(ctx context.Context) error {
			sqlDB, err := a.Storage.DB.DB.DB()
			if err != nil {
				return err
			}

			return sqlDB.PingContext(ctx)
		},
		"blob": func(ctx context.Context) error {
			_, err := a.Storage.Blob.Exists(ctx, blob.Live, ".health")

			return err
		},
		"kv": func(ctx context.Context) error {
			if p, ok := a.Storage.KV.KVStore.(interface{ Ping(context.Context) error }); ok {
				return p.Ping(ctx)
			}

			_, err := a.Storage.KV.Exists(ctx, "health")

			return err
		},
	}

	if a.Storage.MQ != nil {
		checks["mq"] = func(ctx context.Context) error {
			select {
			case <-a.Storage.MQ.Running():
				return nil
			case <-ctx.Done():
				return fmt.Errorf("event consumer not running: %w", ctx.Err())
			}
		}
	}

	if a.Storage.S3 != nil {
		checks["s3"] = a.Storage.S3.HealthCheck
	}

	return checks
}
