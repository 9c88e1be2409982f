package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tallman/core/user"
)

// adminMiddleware lets through admins holding any of `roles` (any admin when empty).
func adminMiddleware(svc *user.Service, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return err
			}
			if usr.IsAdmin() && hasAnyRole(usr, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// staffMiddleware lets through instructors and admins.
func staffMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return err
			}
			if usr.IsAdmin() || usr.IsInstructor() {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// learnerMiddleware refuses the accounts still waiting for approval.
func learnerMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return err
			}
			if usr.IsOnHold() {
				return errAccountOnHold
			}
			return next(ctx)
		}
	}
}

// ctxUserOrAdminMiddleware loads the user in the `:id` path param as "object"
// when it is the authenticated user, or when the authenticated user is an admin.
func ctxUserOrAdminMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx, svc)
			if err != nil {
				return err
			}

			if ctx.Param("id") == ctxUsr.ID || ctxUsr.IsAdmin() {
				if usr, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id")); err == nil {
					ctx.Set(objectKey, usr)
					return next(ctx)
				} else if errors.Cause(err) != user.ErrNotFound {
					return errors.Wrap(err, "finding user by ID")
				}
			}
			return errHttpNotFound
		}
	}
}

func hasAnyRole(usr user.User, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, role := range roles {
		for _, r := range usr.Roles {
			if r == role {
				return true
			}
		}
	}
	return false
}
