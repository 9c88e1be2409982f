package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tallman/core/enrollment"
	"github.com/trezcool/tallman/core/user"
)

var errEnrollmentNotFoundInCtx = errors.New("enrollment object not found in echo.Context")

type playerApi struct {
	svc      *enrollment.Service
	users    *user.Service
	validate *validator.Validate
}

func registerPlayerAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := playerApi{
		svc:      deps.EnrollmentSvc,
		users:    deps.UserSvc,
		validate: deps.Validate,
	}
	learner := learnerMiddleware(api.users)

	g.POST("/courses/:course_id/enroll", api.enroll, jwt, learner)

	eg := g.Group("/enrollments", jwt, learner)
	eg.GET("", api.query)

	dg := eg.Group("/:enrollment_id", api.enrollmentMiddleware)
	dg.GET("", api.retrieve)
	dg.POST("/lessons/:lesson_id/complete", api.completeLesson, api.ownerMiddleware)
	dg.POST("/lessons/:lesson_id/quiz", api.submitQuiz, api.ownerMiddleware)
}

// enrollmentMiddleware loads the `:enrollment_id` enrollment as "object"
// when it belongs to the authenticated user, or when the authenticated user is an admin.
func (api *playerApi) enrollmentMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := getContextUser(ctx, api.users)
		if err != nil {
			return err
		}
		e, err := api.svc.Get(ctx.Request().Context(), ctx.Param("enrollment_id"))
		if err != nil {
			return err
		}
		if e.UserID != usr.ID && !usr.IsAdmin() {
			return enrollment.ErrNotFound
		}
		ctx.Set(objectKey, e)
		return next(ctx)
	}
}

// ownerMiddleware keeps the player actions to the enrolled learner.
func (api *playerApi) ownerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := getContextUser(ctx, api.users)
		if err != nil {
			return err
		}
		e, ok := ctx.Get(objectKey).(enrollment.Enrollment)
		if !ok {
			return errors.Wrap(errEnrollmentNotFoundInCtx, "retrieving object from context")
		}
		if e.UserID != usr.ID {
			return errHttpForbidden
		}
		return next(ctx)
	}
}

func (api *playerApi) enroll(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return err
	}

	e, created, err := api.svc.Enroll(ctx.Request().Context(), usr, ctx.Param("course_id"))
	if err != nil {
		return errors.Wrap(err, "enrolling user")
	}
	if created {
		return ctx.JSON(http.StatusCreated, e)
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *playerApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return err
	}

	filter := &enrollment.QueryFilter{
		UserID:   usr.ID,
		CourseID: ctx.QueryParam("course_id"),
		Status:   enrollment.Status(ctx.QueryParam("status")),
	}
	if usr.IsAdmin() {
		filter.UserID = ctx.QueryParam("user_id")
	}

	list, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying enrollments")
	}
	if list == nil {
		list = []enrollment.Enrollment{}
	}
	return ctx.JSON(http.StatusOK, list)
}

func (api *playerApi) retrieve(ctx echo.Context) error {
	e, ok := ctx.Get(objectKey).(enrollment.Enrollment)
	if !ok {
		return errors.Wrap(errEnrollmentNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *playerApi) completeLesson(ctx echo.Context) error {
	e, ok := ctx.Get(objectKey).(enrollment.Enrollment)
	if !ok {
		return errors.Wrap(errEnrollmentNotFoundInCtx, "retrieving object from context")
	}

	prog, err := api.svc.CompleteLesson(ctx.Request().Context(), e.ID, ctx.Param("lesson_id"))
	if err != nil {
		return errors.Wrap(err, "completing lesson")
	}
	return ctx.JSON(http.StatusOK, prog)
}

func (api *playerApi) submitQuiz(ctx echo.Context) error {
	e, ok := ctx.Get(objectKey).(enrollment.Enrollment)
	if !ok {
		return errors.Wrap(errEnrollmentNotFoundInCtx, "retrieving object from context")
	}

	var data enrollment.QuizAttempt
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to QuizAttempt")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	out, err := api.svc.RecordQuizAttempt(ctx.Request().Context(), e.ID, ctx.Param("lesson_id"), data.Answers)
	if err != nil {
		return errors.Wrap(err, "recording quiz attempt")
	}
	return ctx.JSON(http.StatusOK, out)
}
