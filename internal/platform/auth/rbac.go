package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole returns middleware that checks the session holds at least one
// of roles. Admins pass every check.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess, ok := SessionFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "no session")
			}
			if sess.HasRole(RoleAdmin) {
				return next(c)
			}
			for _, required := range roles {
				if sess.HasRole(required) {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// AllRoles is every role that may use the diary API.
var AllRoles = []string{RoleAdmin, RolePhysician, RoleNurse, RolePatient}

// SessionFromEcho returns the request session or a 401 error.
func SessionFromEcho(c echo.Context) (Session, error) {
	sess, ok := SessionFromContext(c.Request().Context())
	if !ok {
		return Session{}, echo.NewHTTPError(http.StatusUnauthorized, "no session")
	}
	return sess, nil
}
