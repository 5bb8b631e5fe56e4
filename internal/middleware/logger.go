package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/physio-outreach/pkg/logger"
)

// Logger returns a middleware that logs HTTP requests. Bodies are never
// logged since responses carry patient data.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		statusCode := c.Writer.Status()
		fields := []interface{}{
			"request_id", c.GetString(ContextRequestID),
			"method", c.Request.Method,
			"path", path,
			"ip", c.ClientIP(),
			"status", statusCode,
			"duration", time.Since(start).String(),
			"user_agent", c.Request.UserAgent(),
		}

		switch {
		case statusCode >= 500:
			var err error
			if last := c.Errors.Last(); last != nil {
				err = last.Err
			}
			log.Error(err, "Server error", fields...)
		case statusCode >= 400:
			log.Warn("Client error", fields...)
		default:
			log.Info("Request processed", fields...)
		}
	}
}
