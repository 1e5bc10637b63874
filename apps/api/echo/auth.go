package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/account"
	"github.com/darasahq/darasa/core/session"
)

var (
	contextAccountKey = "account"
	contextSessionKey = "sessionID"

	errAcctNotFoundInCtx = errors.New("account object not found in echo.Context")
)

// sessionMiddleware resolves the session cookie to an Account and stores it in
// the request context. Requests without a resolvable session are rejected; the
// response never says whether the session was missing, expired or orphaned.
func sessionMiddleware(auth *session.Authenticator, cookieName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			var sessionID string
			if cookie, err := ctx.Cookie(cookieName); err == nil {
				sessionID = cookie.Value
			}

			acct, err := auth.Resolve(ctx.Request().Context(), sessionID)
			if err != nil {
				if errors.Cause(err) == session.ErrNoSession {
					return errUnauthorized
				}
				return errors.Wrap(err, "resolving session")
			}

			ctx.Set(contextAccountKey, acct)
			ctx.Set(contextSessionKey, sessionID)
			return next(ctx)
		}
	}
}

func getContextAccount(ctx echo.Context) (account.Account, error) {
	if acct, ok := ctx.Get(contextAccountKey).(account.Account); ok {
		return acct, nil
	}
	return account.Account{}, errAcctNotFoundInCtx
}

func getContextSessionID(ctx echo.Context) string {
	if id, ok := ctx.Get(contextSessionKey).(string); ok {
		return id
	}
	return ""
}

func setSessionCookie(ctx echo.Context, sess session.Session, conf *core.Config) {
	ctx.SetCookie(&http.Cookie{
		Name:     conf.Server.SessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   !conf.Debug,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(ctx echo.Context, conf *core.Config) {
	ctx.SetCookie(&http.Cookie{
		Name:     conf.Server.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !conf.Debug,
		SameSite: http.SameSiteLaxMode,
	})
}
