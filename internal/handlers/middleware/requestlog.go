package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	logger = log.With().Str("component", "http").Logger()
)

const KeyRequestID = "REQUEST_ID"

// RequestLogger tags every request with a uuid and logs method, path,
// status, and latency on completion.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.New().String()
		c.Set(KeyRequestID, id)
		c.Header("X-Request-ID", id)

		start := time.Now()
		c.Next()

		logger.Info().
			Str("request_id", id).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Request")
	}
}
