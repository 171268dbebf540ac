package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/auth"
)

// Logger writes one line per request. Server errors log at error level,
// client errors at warn, and health checks at debug.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			status := c.Response().Status
			var evt *zerolog.Event
			switch {
			case status >= http.StatusInternalServerError:
				evt = logger.Error().Err(err)
			case status >= http.StatusBadRequest:
				evt = logger.Warn()
				if err != nil {
					evt = evt.Str("error", err.Error())
				}
			case c.Path() == "/health":
				evt = logger.Debug()
			default:
				evt = logger.Info()
			}

			ctx := req.Context()
			if org := auth.OrganizationFromContext(ctx); org != uuid.Nil {
				evt = evt.Str("organization_id", org.String())
			}
			if sub := auth.UserIDFromContext(ctx); sub != "" {
				evt = evt.Str("subject", sub)
			}
			rid, _ := c.Get(RequestIDKey).(string)
			evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("route", c.Path()).
				Int("status", status).
				Int64("bytes_out", c.Response().Size).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			return nil
		}
	}
}
