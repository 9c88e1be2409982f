package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tallman/core/curriculum"
	"github.com/trezcool/tallman/core/user"
)

type (
	GenerateRequest struct {
		Topic string `json:"topic"`
	}

	BulkGenerateRequest struct {
		Topics []string `json:"topics"` // defaults to the bootstrap topics
	}

	AbortResponse struct {
		Aborted bool              `json:"aborted"`
		Status  curriculum.Status `json:"status"`
	}
)

type curriculumApi struct {
	architect *curriculum.Architect
	users     *user.Service
}

func registerCurriculumAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := curriculumApi{architect: deps.Architect, users: deps.UserSvc}

	cg := g.Group("/curriculum", jwt, adminMiddleware(api.users))
	cg.GET("/status", api.status)
	cg.POST("/generate", api.generate)
	cg.POST("/bulk", api.bulk)
	cg.POST("/abort", api.abort)
}

func (api *curriculumApi) status(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.architect.Status())
}

func (api *curriculumApi) generate(ctx echo.Context) error {
	var data GenerateRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GenerateRequest")
	}
	if err := api.architect.StartSingle(data.Topic); err != nil {
		return err
	}
	return ctx.JSON(http.StatusAccepted, api.architect.Status())
}

func (api *curriculumApi) bulk(ctx echo.Context) error {
	var data BulkGenerateRequest
	if ctx.Request().ContentLength != 0 {
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to BulkGenerateRequest")
		}
	}
	if err := api.architect.StartBulk(data.Topics); err != nil {
		return err
	}
	return ctx.JSON(http.StatusAccepted, api.architect.Status())
}

func (api *curriculumApi) abort(ctx echo.Context) error {
	aborted := api.architect.Abort()
	return ctx.JSON(http.StatusOK, AbortResponse{Aborted: aborted, Status: api.architect.Status()})
}
