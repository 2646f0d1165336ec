package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/mahudhurio/core/user"
)

// roleMiddleware only lets through active users holding role. The loaded user is cached in the context.
func roleMiddleware(auth *jwtAuth, svc user.Service, role user.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := auth.contextClaims(ctx)
			if err != nil {
				return err
			}
			if claims.Role != role {
				return errHttpForbidden
			}
			usr, err := auth.contextUser(ctx, svc)
			if err != nil {
				return err
			}
			// the role may have changed since the token was issued
			if usr.Role != role {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

func teacherMiddleware(auth *jwtAuth, svc user.Service) echo.MiddlewareFunc {
	return roleMiddleware(auth, svc, user.RoleTeacher)
}

func studentMiddleware(auth *jwtAuth, svc user.Service) echo.MiddlewareFunc {
	return roleMiddleware(auth, svc, user.RoleStudent)
}
