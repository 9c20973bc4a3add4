package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/cdshooks/internal/platform/fhir"
)

// RequestTimeout gives each request a context deadline of d. Card generators
// never block, so a handler still running at the deadline is abandoned and
// the client gets a 504 OperationOutcome.
func RequestTimeout(d time.Duration, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), d)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			done := make(chan error, 1)
			go func() { done <- next(c) }()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
			}

			if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				// Client disconnected.
				return ctx.Err()
			}
			rid, _ := c.Get("request_id").(string)
			logger.Warn().
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Dur("timeout", d).
				Msg("request timed out")
			if c.Response().Committed {
				return nil
			}
			return c.JSON(http.StatusGatewayTimeout, fhir.TimeoutOutcome())
		}
	}
}
