package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/wtlassist/backend/core/user"
)

// activeUserMiddleware loads the token's user into the context and rejects deactivated accounts.
// It must run after the JWT middleware.
func activeUserMiddleware(svc user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if !usr.IsActive {
				return errAccountDeactivated
			}
			return next(ctx)
		}
	}
}

// rolesMiddleware lets through users having any of roles.
func rolesMiddleware(svc user.Service, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			for _, role := range roles {
				if usr.HasRole(role) {
					return next(ctx)
				}
			}
			return errHttpForbidden
		}
	}
}

func superadminMiddleware(svc user.Service) echo.MiddlewareFunc {
	return rolesMiddleware(svc, user.RoleSuperadmin)
}

// staffMiddleware lets through teachers and superadmins.
func staffMiddleware(svc user.Service) echo.MiddlewareFunc {
	return rolesMiddleware(svc, user.RoleTeacher, user.RoleSuperadmin)
}
