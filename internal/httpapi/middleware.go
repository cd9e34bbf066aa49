package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dshills/codecontext/internal/logging"
)

// trackRequests counts every request and every response with a 5xx status
func (s *Server) trackRequests(c *gin.Context) {
	s.requests.Add(1)
	c.Next()
	if c.Writer.Status() >= http.StatusInternalServerError {
		s.failures.Add(1)
	}
}

// logRequests attaches the server logger to the request context and logs
// each request with its duration once it completes.
func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Request = c.Request.WithContext(logging.WithLogger(c.Request.Context(), s.logger))
	c.Next()

	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", path),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("duration", time.Since(start)),
	}
	if len(c.Errors) > 0 {
		fields = append(fields, zap.String("error", c.Errors.String()))
	}
	if c.Writer.Status() >= http.StatusInternalServerError {
		s.logger.Warn("request failed", fields...)
		return
	}
	s.logger.Debug("request handled", fields...)
}
