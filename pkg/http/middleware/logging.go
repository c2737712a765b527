package middleware

import (
	"time"

	xlogger "SignalPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging logs one debug entry per request. Metrics handles slow and failed requests.
func RequestLogging(l *xlogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			req := c.Request()
			l.Debug("http request",
				xlogger.String("method", req.Method),
				xlogger.String("route", c.Path()),
				xlogger.String("remote", c.RealIP()),
				xlogger.Int("status", c.Response().Status),
				xlogger.Duration("latency_ms", time.Since(start)),
			)
			return err
		}
	}
}
