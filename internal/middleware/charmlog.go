package middleware

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
)

// CharmLog logs one line per request through the charm logger.
func CharmLog() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			fields := []any{
				"method", req.Method,
				"uri", req.RequestURI,
				"status", res.Status,
				"latency", time.Since(start).Round(time.Microsecond),
				"bytes", res.Size,
			}

			switch {
			case res.Status >= 500:
				log.Error("http request", append(fields, "err", err)...)
			case res.Status >= 400:
				log.Warn("http request", fields...)
			default:
				log.Debug("http request", fields...)
			}

			// already handled by c.Error
			return nil
		}
	}
}
