package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fleet-service/internal/logging"
)

func RequestLoggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		entry := logger.WithFields(logrus.Fields{"method": method, "path": path, "status": status})
		if status >= 500 {
			entry.Errorf("Request failed in %v: %s", latency, c.Errors.String())
			return
		}
		entry.Infof("Request: %s %s, Status: %d, Latency: %v", method, path, status, latency)
	}
}
