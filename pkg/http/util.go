package http

import (
	"strings"
	"time"

	xutil "SignalPulse/pkg/util"

	"github.com/labstack/echo/v4"
)

// ParseTimeDefault parses RFC3339 or unix time, falling back to def.
func ParseTimeDefault(s string, def time.Time) time.Time { return xutil.ParseTimeDefault(s, def) }

// ParseSince parses an optional lower time bound. Empty input yields the zero time.
func ParseSince(s string) (time.Time, *AppError) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, ok := xutil.ParseTime(s)
	if !ok {
		return time.Time{}, BadRequestErrorf("since %q is not a timestamp", s).WithParam("field", "since")
	}
	return t, nil
}

// ClientKey identifies the caller for per-client limits.
func ClientKey(c echo.Context) string {
	if ip := c.RealIP(); ip != "" {
		return ip
	}
	return c.Request().RemoteAddr
}
