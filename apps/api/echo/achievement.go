package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tallman/core/achievement"
	"github.com/trezcool/tallman/core/user"
)

var errBadgeNotFoundInCtx = errors.New("badge object not found in echo.Context")

type achievementApi struct {
	svc      *achievement.Service
	users    *user.Service
	validate *validator.Validate
}

func registerAchievementAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := achievementApi{svc: deps.AchievementSvc, users: deps.UserSvc, validate: deps.Validate}
	admin := adminMiddleware(api.users)

	bg := g.Group("/badges", jwt)
	bg.GET("", api.queryBadges)
	bg.POST("", api.createBadge, admin)
	dg := bg.Group("/:badge_id", api.badgeMiddleware)
	dg.GET("", api.retrieveBadge)
	dg.PUT("", api.updateBadge, admin)
	dg.DELETE("", api.destroyBadge, admin)

	mg := g.Group("/me", jwt)
	mg.GET("/badges", api.myBadges)
	mg.GET("/certificates", api.myCertificates)
	mg.GET("/progress", api.myProgress)

	g.GET("/certificates", api.queryCertificates, jwt, admin)
	g.GET("/certificates/:certificate_id", api.retrieveCertificate, jwt)
	g.GET("/leaderboard", api.leaderboard, jwt)
}

func (api *achievementApi) badgeMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		b, err := api.svc.GetBadge(ctx.Request().Context(), ctx.Param("badge_id"))
		if err != nil {
			return err
		}
		ctx.Set(objectKey, b)
		return next(ctx)
	}
}

func (api *achievementApi) queryBadges(ctx echo.Context) error {
	badges, err := api.svc.QueryBadges(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying badges")
	}
	if badges == nil {
		badges = []achievement.Badge{}
	}
	return ctx.JSON(http.StatusOK, badges)
}

func (api *achievementApi) createBadge(ctx echo.Context) error {
	var data achievement.SaveBadge
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SaveBadge")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	b, err := api.svc.CreateBadge(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating badge")
	}
	return ctx.JSON(http.StatusCreated, b)
}

func (api *achievementApi) retrieveBadge(ctx echo.Context) error {
	b, ok := ctx.Get(objectKey).(achievement.Badge)
	if !ok {
		return errors.Wrap(errBadgeNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *achievementApi) updateBadge(ctx echo.Context) error {
	b, ok := ctx.Get(objectKey).(achievement.Badge)
	if !ok {
		return errors.Wrap(errBadgeNotFoundInCtx, "retrieving object from context")
	}

	var data achievement.SaveBadge
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SaveBadge")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	b, err := api.svc.UpdateBadge(ctx.Request().Context(), b, data)
	if err != nil {
		return errors.Wrap(err, "updating badge")
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *achievementApi) destroyBadge(ctx echo.Context) error {
	b, ok := ctx.Get(objectKey).(achievement.Badge)
	if !ok {
		return errors.Wrap(errBadgeNotFoundInCtx, "retrieving object from context")
	}
	if err := api.svc.DeleteBadge(ctx.Request().Context(), b.ID); err != nil {
		return errors.Wrap(err, "deleting badge")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *achievementApi) myBadges(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return err
	}
	badges, err := api.svc.UserBadges(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "querying user badges")
	}
	if badges == nil {
		badges = []achievement.EarnedBadge{}
	}
	return ctx.JSON(http.StatusOK, badges)
}

func (api *achievementApi) myCertificates(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return err
	}
	return api.certificates(ctx, achievement.CertificateFilter{UserID: usr.ID})
}

func (api *achievementApi) myProgress(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, achievement.GetLevelProgress(usr))
}

func (api *achievementApi) queryCertificates(ctx echo.Context) error {
	return api.certificates(ctx, achievement.CertificateFilter{
		UserID:   ctx.QueryParam("user_id"),
		CourseID: ctx.QueryParam("course_id"),
	})
}

func (api *achievementApi) certificates(ctx echo.Context, filter achievement.CertificateFilter) error {
	certs, err := api.svc.Certificates(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying certificates")
	}
	if certs == nil {
		certs = []achievement.Certificate{}
	}
	return ctx.JSON(http.StatusOK, certs)
}

// retrieveCertificate serves the certificate to its holder and to admins.
func (api *achievementApi) retrieveCertificate(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return err
	}
	cert, err := api.svc.GetCertificate(ctx.Request().Context(), ctx.Param("certificate_id"))
	if err != nil {
		return err
	}
	if cert.UserID != usr.ID && !usr.IsAdmin() {
		return achievement.ErrCertificateNotFound
	}
	return ctx.JSON(http.StatusOK, cert)
}

func (api *achievementApi) leaderboard(ctx echo.Context) error {
	limit := queryInt(ctx, "limit", achievement.DefaultLeaderboardSize)
	entries, err := api.svc.Leaderboard(ctx.Request().Context(), limit, ctx.QueryParam("branch_id"))
	if err != nil {
		return errors.Wrap(err, "building leaderboard")
	}
	if entries == nil {
		entries = []achievement.LeaderboardEntry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}
