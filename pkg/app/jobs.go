package app

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/docvault/pkg/scheduler"
)

// RegisterJobRoutes 注册定时任务的查看、手动触发与移除接口.
func RegisterJobRoutes(g *gin.RouterGroup, s *scheduler.Scheduler) {
	g.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"jobs": s.GetJobInfos()})
	})

	g.GET("/:name", func(c *gin.Context) {
		info, err := s.GetJobInfoByName(c.Param("name"))
		if err != nil {
			jobError(c, err)

			return
		}

		c.JSON(http.StatusOK, info)
	})

	g.POST("/:name/run", func(c *gin.Context) {
		name := c.Param("name")
		if err := s.RunNow(name); err != nil {
			jobError(c, err)

			return
		}

		c.JSON(http.StatusAccepted, gin.H{"job": name, "status": "triggered"})
	})

	// 移除只影响当前进程
	g.DELETE("/:name", func(c *gin.Context) {
		name := c.Param("name")
		if err := s.RemoveJobByName(name); err != nil {
			jobError(c, err)

			return
		}

		c.JSON(http.StatusOK, gin.H{"job": name, "status": "removed"})
	})
}

func jobError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	if errors.Is(err, scheduler.ErrJobNotFound) {
		code = http.StatusNotFound
	}

	c.JSON(code, gin.H{"error": err.Error()})
}
