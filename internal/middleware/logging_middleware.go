package middleware

import (
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ledger-api/internal/monitoring"
)

type LoggingMiddleware struct {
	logger               *logrus.Logger
	metrics              monitoring.MetricsService
	excludePaths         map[string]bool
	slowRequestThreshold time.Duration
}

func NewLoggingMiddleware(logger *logrus.Logger, metrics monitoring.MetricsService) *LoggingMiddleware {
	return &LoggingMiddleware{
		logger:  logger,
		metrics: metrics,
		excludePaths: map[string]bool{
			"/health":  true,
			"/ready":   true,
			"/metrics": true,
		},
		slowRequestThreshold: 2 * time.Second,
	}
}

// RequestLogger emits one structured line per request and feeds the HTTP
// metrics. Health and metrics probes are excluded to keep the log readable.
func (l *LoggingMiddleware) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		if l.excludePaths[path] {
			return
		}

		latency := time.Since(start)
		status := c.Writer.Status()

		l.metrics.RecordHTTPRequest(c.Request.Method, c.FullPath(), status, latency)

		entry := l.logger.WithFields(logrus.Fields{
			"request_id":    requestid.Get(c),
			"method":        c.Request.Method,
			"path":          path,
			"status_code":   status,
			"latency_ms":    latency.Milliseconds(),
			"client_ip":     c.ClientIP(),
			"response_size": c.Writer.Size(),
		})
		if userID, exists := c.Get("user_id"); exists {
			entry = entry.WithField("user_id", userID)
		}
		if latency > l.slowRequestThreshold {
			entry = entry.WithField("slow_request", true)
		}

		switch {
		case status >= 500:
			entry.Error("Request failed")
		case status >= 400:
			entry.Warn("Request rejected")
		default:
			entry.Info("Request completed")
		}
	}
}
