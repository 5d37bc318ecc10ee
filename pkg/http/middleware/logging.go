package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trickingegg/golden-dragon/pkg/logger"
)

// quietPaths are scraped often and logged at debug level only.
var quietPaths = map[string]bool{"/metrics": true, "/healthz": true}

// RequestLogging logs one structured line per request.
func RequestLogging(l *logger.Logger) echo.MiddlewareFunc {
	if l == nil {
		l = logger.Nop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			req := c.Request()
			status := responseStatus(c, err)
			fields := []logger.Field{
				logger.String("method", req.Method),
				logger.String("uri", req.RequestURI),
				logger.String("route", routeOf(c)),
				logger.String("remote", c.RealIP()),
				logger.Int("status", status),
				logger.Duration("latency", time.Since(start)),
			}
			switch {
			case status >= 500:
				if err != nil {
					fields = append(fields, logger.Error(err))
				}
				l.Error("HTTP request failed", fields...)
			case quietPaths[req.URL.Path]:
				l.Debug("HTTP request", fields...)
			default:
				l.Info("HTTP request", fields...)
			}
			return err
		}
	}
}
