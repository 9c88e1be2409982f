package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tallman/core/mentorship"
	"github.com/trezcool/tallman/core/user"
)

type mentorshipApi struct {
	svc      *mentorship.Service
	users    *user.Service
	validate *validator.Validate
}

func registerMentorshipAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := mentorshipApi{svc: deps.MentorshipSvc, users: deps.UserSvc, validate: deps.Validate}

	mg := g.Group("/mentorship", jwt)
	mg.GET("", api.query)
	mg.POST("", api.create, staffMiddleware(api.users))
	mg.DELETE("/:log_id", api.destroy)
}

// query lists the logs. Learners only see the sessions they attended.
func (api *mentorshipApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return err
	}

	filter := mentorship.QueryFilter{
		MentorID: ctx.QueryParam("mentor_id"),
		MenteeID: ctx.QueryParam("mentee_id"),
	}
	if !(usr.IsAdmin() || usr.IsInstructor()) {
		filter.MenteeID = usr.ID
	}

	logs, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying mentorship logs")
	}
	if logs == nil {
		logs = []mentorship.Log{}
	}
	return ctx.JSON(http.StatusOK, logs)
}

func (api *mentorshipApi) create(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return err
	}

	var data mentorship.NewLog
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLog")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	l, err := api.svc.Add(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "adding mentorship log")
	}
	return ctx.JSON(http.StatusCreated, l)
}

func (api *mentorshipApi) destroy(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), usr, ctx.Param("log_id")); err != nil {
		return errors.Wrap(err, "deleting mentorship log")
	}
	return ctx.NoContent(http.StatusNoContent)
}
