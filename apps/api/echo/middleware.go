package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/services/ratelimit"
)

// rateLimitMiddleware limits the requests of each client IP on a route.
// Limiter failures are logged and let the request through.
func rateLimitMiddleware(limiter ratelimit.Limiter, m *metrics, logger core.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			route := routeLabel(ctx)
			allowed, err := limiter.Allow(ctx.Request().Context(), route+":"+ctx.RealIP())
			if err != nil {
				logger.Error("rate limiter: "+err.Error(), errors.Wrap(err, "checking rate limit"))
				return next(ctx)
			}
			if !allowed {
				m.rateLimited.WithLabelValues(route).Inc()
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}
