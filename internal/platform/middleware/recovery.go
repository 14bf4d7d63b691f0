package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Recovery turns a handler panic into a 500 and logs the stack with the route
// and owner. The response carries the request id so a practitioner can quote
// it. A panic while a transaction is open still reaches the deferred rollback
// in db.InTx.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				var stack [4096]byte
				n := runtime.Stack(stack[:], false)
				rid, _ := c.Get("request_id").(string)
				owner, _ := c.Get("owner_id").(string)

				logger.Error().
					Str("request_id", rid).
					Str("owner_id", owner).
					Str("method", c.Request().Method).
					Str("route", c.Path()).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(stack[:n])).
					Msg("panic recovered")

				err = echo.NewHTTPError(http.StatusInternalServerError, map[string]string{
					"message":    "internal server error",
					"request_id": rid,
				})
			}()
			return next(c)
		}
	}
}
