package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core/account"
)

// roleMiddleware only lets accounts holding one of the allowed roles through.
// It must run after sessionMiddleware.
func roleMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			acct, err := getContextAccount(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context account")
			}
			if err = account.RequireRole(acct, roles...); err != nil {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}
