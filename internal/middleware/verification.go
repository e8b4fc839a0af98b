package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/shop-backend/internal/apperr"
	"github.com/iliyamo/shop-backend/internal/token"
)

// ResendURL is advertised to limited callers that hit a gated endpoint.
const ResendURL = "/api/v1/verification/resend"

// GateRule matches a path prefix on segment boundaries, optionally for one
// method only.  "GET /api/v1/profile" matches GET /api/v1/profile and
// GET /api/v1/profile/x but not PUT /api/v1/profile.
type GateRule string

func (r GateRule) match(method, path string) bool {
	rule := string(r)
	if m, p, ok := strings.Cut(rule, " "); ok {
		if !strings.EqualFold(m, method) {
			return false
		}
		rule = p
	}
	rule = strings.TrimRight(rule, "/")
	if rule == "" {
		return true
	}
	return path == rule || strings.HasPrefix(path, rule+"/")
}

// DefaultPublic needs no token at all.
var DefaultPublic = []GateRule{
	"/healthz",
	"/metrics",
	"/api/v1/auth",
	"/api/v1/register",
}

// DefaultUnverified stays usable with a limited token.
var DefaultUnverified = []GateRule{
	"/api/v1/verification",
	"/api/v1/auth/logout",
	"GET /api/v1/profile",
	"/api/v1/presence",
}

// VerificationGate blocks limited tokens from every path that is neither
// public nor allow-listed.  It only inspects the token: a missing or bad
// token passes through so that Authenticate can reject it with the precise
// error.
func VerificationGate(tokens *token.Issuer, public, unverified []GateRule) echo.MiddlewareFunc {
	rules := append(append([]GateRule{}, public...), unverified...)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			for _, r := range rules {
				if r.match(req.Method, req.URL.Path) {
					return next(c)
				}
			}
			raw, err := token.FromHeader(req.Header.Get(echo.HeaderAuthorization))
			if err != nil {
				return next(c)
			}
			claims, err := tokens.Verify(raw)
			if err != nil {
				return next(c)
			}
			if claims.Limited {
				return apperr.ErrVerificationRequired.With(
					"verify your email address to use this endpoint",
					map[string]any{"verification_url": ResendURL})
			}
			return next(c)
		}
	}
}
