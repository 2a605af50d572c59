package api

import (
	"strconv"
	"time"
	"yourank/internal/metrics"

	"github.com/gin-gonic/gin"
)

// MetricsMiddleware 记录每个请求的计数与耗时。
// 使用路由模板（/api/tasks/:task_id/status）作为 path 标签，避免基数爆炸。
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		metrics.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
		).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
		).Observe(time.Since(start).Seconds())
	}
}
