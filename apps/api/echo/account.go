package echoapi

import (
	"net/http"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/account"
	"github.com/darasahq/darasa/core/session"
)

type accountApi struct {
	svc        account.Service
	auth       *session.Authenticator
	conf       *core.Config
	validate   *validator.Validate
	translator ut.Translator
}

func registerAccountAPI(g *echo.Group, authed echo.MiddlewareFunc, deps ServerDeps) {
	api := accountApi{
		svc:        deps.AccountSvc,
		auth:       deps.Auth,
		conf:       deps.Conf,
		validate:   deps.Validate,
		translator: deps.Translator,
	}

	ag := g.Group("/accounts")

	// un-authed endpoints
	// TODO: rate limit `/password-reset` & `/password-reset-confirm`
	ag.POST("/register", api.register)
	ag.POST("/login", api.login)
	ag.POST("/password-reset", api.resetPassword)
	ag.POST("/password-reset-confirm", api.confirmPasswordReset)
	ag.GET("/roles", api.queryRoles)

	// authed endpoints
	sg := ag.Group("", authed)
	sg.POST("/logout", api.logout)
	sg.GET("", api.query, roleMiddleware(account.RoleTeacher))
	sg.GET("/me", api.retrieve)
	sg.PUT("/me", api.update)
	sg.DELETE("/me", api.destroy)

	// parent-child linking
	cg := sg.Group("/children", roleMiddleware(account.RoleParent))
	cg.GET("", api.queryChildren)
	cg.POST("", api.linkChild)
	cg.DELETE("/:id", api.unlinkChild)
}

// Handlers

func (api *accountApi) register(ctx echo.Context) error {
	var data account.NewAccount
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAccount")
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	acct, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating account")
	}

	// a fresh account is signed in right away
	sess, err := api.auth.Open(ctx.Request().Context(), acct)
	if err != nil {
		return errors.Wrap(err, "opening session")
	}
	setSessionCookie(ctx, sess, api.conf)

	return ctx.JSON(http.StatusCreated, acct)
}

func (api *accountApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	acct, err := api.svc.Authenticate(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		if errors.Cause(err) == account.ErrAuthenticationFailed {
			// wrong password and unknown email look the same
			return core.NewValidationError(errors.New("invalid credentials"))
		}
		return errors.Wrap(err, "authenticating")
	}

	sess, err := api.auth.Open(ctx.Request().Context(), acct)
	if err != nil {
		return errors.Wrap(err, "opening session")
	}
	setSessionCookie(ctx, sess, api.conf)

	return ctx.JSON(http.StatusOK, acct)
}

func (api *accountApi) logout(ctx echo.Context) error {
	if err := api.auth.Destroy(ctx.Request().Context(), getContextSessionID(ctx)); err != nil {
		return errors.Wrap(err, "destroying session")
	}
	clearSessionCookie(ctx, api.conf)
	return ctx.NoContent(http.StatusNoContent)
}

func (api *accountApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email); err != nil {
		// do not return errors to attackers
		ctx.Logger().Errorf("%+v", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *accountApi) confirmPasswordReset(ctx echo.Context) error {
	var data account.ResetAccountPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetAccountPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ConfirmPasswordReset(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *accountApi) query(ctx echo.Context) error {
	accts, err := api.svc.QueryAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying accounts")
	}
	if accts == nil {
		accts = []account.Account{}
	}
	return ctx.JSON(http.StatusOK, accts)
}

func (api *accountApi) retrieve(ctx echo.Context) error {
	acct, err := getContextAccount(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}
	return ctx.JSON(http.StatusOK, acct)
}

func (api *accountApi) update(ctx echo.Context) error {
	acct, err := getContextAccount(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}

	var data account.UpdateAccount
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAccount")
	}
	if err = data.Validate(ctx.Request().Context(), acct, api.validate, api.svc); err != nil {
		return err
	}

	acct, err = api.svc.Update(ctx.Request().Context(), acct.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating account")
	}
	return ctx.JSON(http.StatusOK, acct)
}

func (api *accountApi) destroy(ctx echo.Context) error {
	acct, err := getContextAccount(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}

	if err = api.svc.Delete(ctx.Request().Context(), acct.ID); err != nil {
		return errors.Wrap(err, "deleting account")
	}
	if err = api.auth.Destroy(ctx.Request().Context(), getContextSessionID(ctx)); err != nil {
		return errors.Wrap(err, "destroying session")
	}
	clearSessionCookie(ctx, api.conf)
	return ctx.NoContent(http.StatusNoContent)
}

func (api *accountApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, account.Roles)
}

func (api *accountApi) queryChildren(ctx echo.Context) error {
	acct, err := getContextAccount(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}

	children, err := api.svc.Children(ctx.Request().Context(), acct.ID)
	if err != nil {
		return errors.Wrap(err, "querying children")
	}
	if children == nil {
		children = []account.Account{}
	}
	return ctx.JSON(http.StatusOK, children)
}

func (api *accountApi) linkChild(ctx echo.Context) error {
	acct, err := getContextAccount(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}

	var data LinkChildRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LinkChildRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	child, err := api.svc.LinkChild(ctx.Request().Context(), acct.ID, data.StudentCode)
	if err != nil {
		if errors.Cause(err) == account.ErrNotFound {
			// an unknown code must not reveal whether it ever existed
			return core.NewValidationError(nil, core.FieldError{Field: "student_code", Error: "unknown student code"})
		}
		return errors.Wrap(err, "linking child account")
	}
	return ctx.JSON(http.StatusCreated, child)
}

func (api *accountApi) unlinkChild(ctx echo.Context) error {
	acct, err := getContextAccount(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}

	if err = api.svc.UnlinkChild(ctx.Request().Context(), acct.ID, ctx.Param("id")); err != nil {
		if errors.Cause(err) == account.ErrNotLinked {
			return errHttpNotFound
		}
		return errors.Wrap(err, "unlinking child account")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	LinkChildRequest struct {
		StudentCode string `json:"student_code" validate:"required"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}

func (lc *LinkChildRequest) Validate(validate *validator.Validate) error {
	lc.StudentCode = strings.ToUpper(core.CleanString(lc.StudentCode))
	return validate.Struct(lc)
}
