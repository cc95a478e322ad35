package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"imagehost/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-ID"

// RequestID makes sure every request carries an id, echoing it back.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			c.Request.Header.Set(requestIDHeader, id)
		}
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// RequestLogger writes one line per request and turns panics into a 500
// JSON envelope.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	logger = logger.With().Str("component", "http").Logger()

	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			if recovered := recover(); recovered != nil {
				logger.Error().
					Str("method", c.Request.Method).
					Str("path", c.Request.URL.Path).
					Str("request_id", requestID(c)).
					Str("panic", fmt.Sprint(recovered)).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")

				response.Abort(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")
			}
			logRequest(c, logger, start)
		}()

		c.Next()
	}
}

func logRequest(c *gin.Context, logger zerolog.Logger, start time.Time) {
	status := c.Writer.Status()

	var ev *zerolog.Event
	switch {
	case status >= http.StatusInternalServerError:
		ev = logger.Error()
	case status >= http.StatusBadRequest:
		ev = logger.Warn()
	default:
		ev = logger.Info()
	}

	ev = ev.
		Int("status", status).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Str("query", c.Request.URL.RawQuery).
		Str("client_ip", c.ClientIP()).
		Int64("user_id", UserID(c)).
		Str("request_id", requestID(c)).
		Dur("latency", time.Since(start))
	if len(c.Errors) > 0 {
		ev = ev.Str("errors", c.Errors.String())
	}
	ev.Msg("request")
}

func requestID(c *gin.Context) string {
	return c.GetHeader(requestIDHeader)
}
