package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tallman/core/course"
	"github.com/trezcool/tallman/core/enrollment"
	"github.com/trezcool/tallman/core/user"
)

var errCourseNotFoundInCtx = errors.New("course object not found in echo.Context")

type catalogApi struct {
	svc         *course.Service
	enrollments *enrollment.Service
	users       *user.Service
	validate    *validator.Validate
}

func registerCatalogAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := catalogApi{
		svc:         deps.CourseSvc,
		enrollments: deps.EnrollmentSvc,
		users:       deps.UserSvc,
		validate:    deps.Validate,
	}
	admin := adminMiddleware(api.users)

	g.GET("/categories", api.queryCategories)

	cg := g.Group("/courses", jwt)
	cg.GET("", api.query)
	cg.POST("", api.create, admin)

	dg := cg.Group("/:course_id", api.courseMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, admin)
	dg.DELETE("", api.destroy, admin)
	dg.POST("/reset-enrollments", api.resetEnrollments, admin)
}

// courseMiddleware loads the `:course_id` course as "object".
// Only staff can see courses that are not published.
func (api *catalogApi) courseMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := getContextUser(ctx, api.users)
		if err != nil {
			return err
		}
		c, err := api.svc.Get(ctx.Request().Context(), ctx.Param("course_id"))
		if err != nil {
			return err
		}
		if c.Status != course.StatusPublished && !(usr.IsAdmin() || usr.IsInstructor()) {
			return course.ErrNotFound
		}
		ctx.Set(objectKey, c)
		return next(ctx)
	}
}

func (api *catalogApi) queryCategories(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, course.Categories)
}

func (api *catalogApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return err
	}

	filter := &course.QueryFilter{
		Search:     ctx.QueryParam("search"),
		CategoryID: ctx.QueryParam("category_id"),
		Difficulty: course.Difficulty(ctx.QueryParam("difficulty")),
	}
	if usr.IsAdmin() || usr.IsInstructor() {
		for _, st := range queryList(ctx, "status") {
			filter.Statuses = append(filter.Statuses, course.Status(st))
		}
	} else {
		filter.Statuses = []course.Status{course.StatusPublished}
	}
	filter.Clean()

	courses, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *catalogApi) create(ctx echo.Context) error {
	var data course.SaveCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SaveCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *catalogApi) retrieve(ctx echo.Context) error {
	c, ok := ctx.Get(objectKey).(course.Course)
	if !ok {
		return errors.Wrap(errCourseNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *catalogApi) update(ctx echo.Context) error {
	c, ok := ctx.Get(objectKey).(course.Course)
	if !ok {
		return errors.Wrap(errCourseNotFoundInCtx, "retrieving object from context")
	}

	var data course.SaveCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SaveCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Update(ctx.Request().Context(), c, data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *catalogApi) destroy(ctx echo.Context) error {
	c, ok := ctx.Get(objectKey).(course.Course)
	if !ok {
		return errors.Wrap(errCourseNotFoundInCtx, "retrieving object from context")
	}
	if err := api.svc.Delete(ctx.Request().Context(), c); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *catalogApi) resetEnrollments(ctx echo.Context) error {
	c, ok := ctx.Get(objectKey).(course.Course)
	if !ok {
		return errors.Wrap(errCourseNotFoundInCtx, "retrieving object from context")
	}
	n, err := api.enrollments.ResetForCourse(ctx.Request().Context(), c.ID)
	if err != nil {
		return errors.Wrap(err, "resetting enrollments")
	}
	return ctx.JSON(http.StatusOK, ResetResponse{Reset: n})
}

type ResetResponse struct {
	Reset int `json:"reset"`
}
