package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/account"
	"github.com/darasahq/darasa/core/classroom"
)

type classApi struct {
	svc      classroom.Service
	validate *validator.Validate
}

func registerClassAPI(g *echo.Group, authed echo.MiddlewareFunc, deps ServerDeps) {
	api := classApi{
		svc:      deps.ClassSvc,
		validate: deps.Validate,
	}

	cg := g.Group("/classes", authed)

	cg.POST("", api.create, roleMiddleware(account.RoleTeacher))
	cg.POST("/join", api.join, roleMiddleware(account.RoleStudent))
	cg.GET("", api.query, roleMiddleware(account.RoleTeacher, account.RoleStudent))

	// detail endpoints, class owner only
	dg := cg.Group("/:id", roleMiddleware(account.RoleTeacher), api.ownedClassMiddleware)
	dg.GET("/students", api.queryStudents)
	dg.DELETE("", api.destroy)
}

// ownedClassMiddleware loads the class and makes sure the context account owns
// it. A class owned by someone else looks exactly like a missing one.
func (api *classApi) ownedClassMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		acct, err := getContextAccount(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context account")
		}

		cls, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			if errors.Cause(err) == classroom.ErrNotFound {
				return errHttpNotFound
			}
			return errors.Wrap(err, "finding class by ID")
		}
		if cls.TeacherID != acct.ID {
			return errHttpNotFound
		}

		ctx.Set("object", cls)
		return next(ctx)
	}
}

// Handlers

func (api *classApi) create(ctx echo.Context) error {
	acct, err := getContextAccount(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}

	var data classroom.NewClass
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	cls, err := api.svc.Create(ctx.Request().Context(), data, acct.ID)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, cls)
}

func (api *classApi) join(ctx echo.Context) error {
	acct, err := getContextAccount(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}

	var data classroom.JoinClass
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to JoinClass")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	cls, err := api.svc.Join(ctx.Request().Context(), data.Code, acct.ID)
	if err != nil {
		switch errors.Cause(err) {
		case classroom.ErrNotFound:
			return core.NewValidationError(nil, core.FieldError{Field: "code", Error: "unknown join code"})
		case classroom.ErrAlreadyEnrolled:
			return core.NewValidationError(errors.New(classroom.ErrAlreadyEnrolled.Error()))
		}
		return errors.Wrap(err, "joining class")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *classApi) query(ctx echo.Context) error {
	acct, err := getContextAccount(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}

	var classes []classroom.Class
	if acct.IsTeacher() {
		classes, err = api.svc.ByTeacher(ctx.Request().Context(), acct.ID)
	} else {
		classes, err = api.svc.ByStudent(ctx.Request().Context(), acct.ID)
	}
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	if classes == nil {
		classes = []classroom.Class{}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *classApi) queryStudents(ctx echo.Context) error {
	cls, ok := ctx.Get("object").(classroom.Class)
	if !ok {
		return errors.New("class object not found in echo.Context")
	}

	students, err := api.svc.Students(ctx.Request().Context(), cls.ID)
	if err != nil {
		return errors.Wrap(err, "querying enrolled students")
	}
	if students == nil {
		students = []account.Account{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *classApi) destroy(ctx echo.Context) error {
	cls, ok := ctx.Get("object").(classroom.Class)
	if !ok {
		return errors.New("class object not found in echo.Context")
	}

	if err := api.svc.Delete(ctx.Request().Context(), cls.ID); err != nil {
		return errors.Wrap(err, "deleting class")
	}
	return ctx.NoContent(http.StatusNoContent)
}
