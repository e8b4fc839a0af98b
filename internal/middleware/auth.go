package middleware

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/shop-backend/internal/service"
	"github.com/iliyamo/shop-backend/internal/token"
)

// Authorizer resolves a bearer token into the calling identity.
type Authorizer interface {
	Authorize(ctx context.Context, raw string) (*service.Principal, error)
}

// Authenticate requires a valid access token that is still present in the
// session cache.  The caller is available to handlers via PrincipalFrom.
func Authenticate(a Authorizer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := token.FromHeader(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				return err
			}
			p, err := a.Authorize(c.Request().Context(), raw)
			if err != nil {
				return err
			}
			SetPrincipal(c, p)
			return next(c)
		}
	}
}

// AuthCookie copies the named cookie into the Authorization header when the
// request carries no header of its own, so cookie-based clients pass
// through the same checks.
func AuthCookie(name string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Header.Get(echo.HeaderAuthorization) == "" {
				if ck, err := req.Cookie(name); err == nil && ck.Value != "" {
					req.Header.Set(echo.HeaderAuthorization, "Bearer "+ck.Value)
				}
			}
			return next(c)
		}
	}
}
