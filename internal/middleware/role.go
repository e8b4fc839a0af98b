package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/shop-backend/internal/apperr"
	"github.com/iliyamo/shop-backend/internal/model"
)

// RequireRole lets the request through only when the authenticated caller
// has one of roles.  It must run after Authenticate.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFrom(c)
			if !ok {
				return apperr.ErrTokenMissing
			}
			if !allowed[p.Role] {
				return apperr.ErrForbidden.With("insufficient role", map[string]any{"role": string(p.Role)})
			}
			return next(c)
		}
	}
}
