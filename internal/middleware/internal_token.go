package middleware

import (
	"crypto/subtle"
	"net/http"

	"imagehost/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// InternalTokenAuth protects operational endpoints with a static bearer
// token. An empty token leaves the endpoint open, which only config
// validation outside production allows.
func InternalTokenAuth(token string, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if header == "" {
			logAuthFailure(c, logger, http.StatusUnauthorized, "missing_auth")
			response.Abort(c, http.StatusUnauthorized, "AUTH_MISSING", "Authorization header is required")
			return
		}

		got, ok := bearerToken(header)
		if !ok {
			logAuthFailure(c, logger, http.StatusUnauthorized, "invalid_auth_format")
			response.Abort(c, http.StatusUnauthorized, "AUTH_INVALID", "Authorization header must be 'Bearer <token>'")
			return
		}

		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			logAuthFailure(c, logger, http.StatusForbidden, "token_mismatch")
			response.Abort(c, http.StatusForbidden, "AUTH_INVALID", "Invalid token")
			return
		}

		c.Next()
	}
}

func logAuthFailure(c *gin.Context, logger zerolog.Logger, status int, reason string) {
	logger.Warn().
		Int("status", status).
		Str("path", c.Request.URL.Path).
		Str("request_id", requestID(c)).
		Str("reason", reason).
		Msg("internal auth failed")
}
