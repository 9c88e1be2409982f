package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tallman/core/forum"
	"github.com/trezcool/tallman/core/user"
)

type forumApi struct {
	svc      *forum.Service
	users    *user.Service
	validate *validator.Validate
}

func registerForumAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := forumApi{svc: deps.ForumSvc, users: deps.UserSvc, validate: deps.Validate}

	fg := g.Group("/forum", jwt)
	fg.GET("", api.query)
	fg.GET("/channels", api.channels)
	fg.POST("", api.create, learnerMiddleware(api.users))
	fg.PUT("/:post_id/pin", api.pin, staffMiddleware(api.users))
	fg.DELETE("/:post_id", api.destroy)
}

func (api *forumApi) query(ctx echo.Context) error {
	posts, err := api.svc.Query(ctx.Request().Context(), forum.QueryFilter{Category: ctx.QueryParam("category")})
	if err != nil {
		return errors.Wrap(err, "querying forum posts")
	}
	return ctx.JSON(http.StatusOK, posts)
}

func (api *forumApi) channels(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, forum.Channels)
}

func (api *forumApi) create(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return err
	}

	var data forum.NewPost
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPost")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	p, err := api.svc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating forum post")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *forumApi) pin(ctx echo.Context) error {
	data := struct {
		IsPinned *bool `json:"is_pinned"`
	}{}
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding pin")
	}
	pinned := true
	if data.IsPinned != nil {
		pinned = *data.IsPinned
	}

	p, err := api.svc.Pin(ctx.Request().Context(), ctx.Param("post_id"), pinned)
	if err != nil {
		return errors.Wrap(err, "pinning forum post")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *forumApi) destroy(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), usr, ctx.Param("post_id")); err != nil {
		return errors.Wrap(err, "deleting forum post")
	}
	return ctx.NoContent(http.StatusNoContent)
}
