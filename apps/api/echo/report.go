package echoapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tallman/core/report"
	"github.com/trezcool/tallman/core/user"
)

type reportApi struct {
	svc   *report.Service
	users *user.Service
}

func registerReportAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := reportApi{svc: deps.ReportSvc, users: deps.UserSvc}

	rg := g.Group("/reports", jwt, adminMiddleware(api.users))
	rg.GET("", api.retrieve)
	rg.GET("/xlsx", api.export)
}

func (api *reportApi) retrieve(ctx echo.Context) error {
	rep, err := api.svc.Build(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "building report")
	}
	return ctx.JSON(http.StatusOK, rep)
}

func (api *reportApi) export(ctx echo.Context) error {
	rep, err := api.svc.Build(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "building report")
	}

	resp := ctx.Response()
	filename := fmt.Sprintf("training-report-%s.xlsx", rep.GeneratedAt.Format("2006-01-02"))
	resp.Header().Set(echo.HeaderContentType, report.ContentTypeXLSX)
	resp.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	resp.WriteHeader(http.StatusOK)
	return errors.Wrap(report.WriteXLSX(resp, rep), "writing report")
}
