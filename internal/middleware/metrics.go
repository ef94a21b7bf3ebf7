package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/yourorg/backtest-service/internal/metrics"
)

// Metrics counts requests by matched route template and status
func Metrics(collector *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		collector.HTTPRequest(route, c.Writer.Status())
	}
}
