// Package mw holds the echo middleware of the local API.
package mw

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
)

// TokenQueryParam carries the token for EventSource clients, which cannot
// set headers.
const TokenQueryParam = "access_token"

// BearerAuth admits requests presenting the session's own token, either as a
// Bearer header or, for SSE, as the access_token query parameter.
func BearerAuth(token string) echo.MiddlewareFunc {
	expected := []byte(token)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			presented := ""
			if h := c.Request().Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				presented = strings.TrimPrefix(h, "Bearer ")
			} else {
				presented = c.QueryParam(TokenQueryParam)
			}
			if presented == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			if len(expected) == 0 || subtle.ConstantTimeCompare([]byte(presented), expected) != 1 {
				log.Warn().Str("path", c.Path()).Str("remote", c.RealIP()).Msg("rejected local API token")
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			return next(c)
		}
	}
}

// RequestLogger logs each request through zerolog.
func RequestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.
				Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	})
}
