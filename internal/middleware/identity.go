package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/shop-backend/internal/service"
)

const principalKey = "principal"

// SetPrincipal stores the authenticated caller on the context.
func SetPrincipal(c echo.Context, p *service.Principal) {
	c.Set(principalKey, p)
	c.Set("user_id", p.ID)
	c.Set("role", string(p.Role))
}

// PrincipalFrom returns the caller stored by Authenticate.
func PrincipalFrom(c echo.Context) (*service.Principal, bool) {
	p, ok := c.Get(principalKey).(*service.Principal)
	return p, ok && p != nil
}

// currentUserID returns the caller's id, or "anon" before authentication.
func currentUserID(c echo.Context) string {
	if p, ok := PrincipalFrom(c); ok {
		return p.ID
	}
	return "anon"
}
