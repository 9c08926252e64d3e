package middlewares

import (
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/restaurant-feedback/metrics"
	"github.com/yeremiapane/restaurant-feedback/utils"
)

// LoggerMiddleware logs one line per request and records it in the HTTP metrics.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		metrics.RecordHTTPRequest(c.Request.Method, c.FullPath(), status, latency)

		entry := utils.InfoLogger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    redactedPath(c.Request.URL),
			"status":  status,
			"latency": latency.String(),
			"ip":      c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}
		if status >= 500 {
			entry.Warn("request failed")
			return
		}
		entry.Info("request handled")
	}
}

// redactedPath hides session tokens passed as ?token= (websocket clients).
func redactedPath(u *url.URL) string {
	q := u.Query()
	if q.Get("token") == "" {
		if u.RawQuery == "" {
			return u.Path
		}
		return u.Path + "?" + u.RawQuery
	}
	q.Set("token", "REDACTED")
	return u.Path + "?" + q.Encode()
}
