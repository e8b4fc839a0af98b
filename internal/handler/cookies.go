package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/shop-backend/internal/config"
	"github.com/iliyamo/shop-backend/internal/service"
)

const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"

	// RefreshHeader carries the refresh token for non-cookie clients.
	RefreshHeader = "refresh-token"
)

// Cookies issues and clears the two auth cookies.  The refresh cookie is
// scoped to the refresh endpoint so other requests never carry it.
type Cookies struct {
	cfg config.CookieConfig
}

func NewCookies(cfg config.CookieConfig) Cookies {
	if cfg.RefreshPath == "" {
		cfg.RefreshPath = "/api/v1/auth/refresh"
	}
	return Cookies{cfg: cfg}
}

func (k Cookies) Set(c echo.Context, p *service.TokenPair) {
	c.SetCookie(k.cookie(AccessCookie, p.AccessToken, "/", p.AccessExpiresAt))
	c.SetCookie(k.cookie(RefreshCookie, p.RefreshToken, k.cfg.RefreshPath, p.RefreshExpiresAt))
}

func (k Cookies) Clear(c echo.Context) {
	for _, ck := range []*http.Cookie{
		k.cookie(AccessCookie, "", "/", time.Time{}),
		k.cookie(RefreshCookie, "", k.cfg.RefreshPath, time.Time{}),
	} {
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
		c.SetCookie(ck)
	}
}

func (k Cookies) cookie(name, value, path string, expires time.Time) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   k.cfg.Domain,
		HttpOnly: true,
		Secure:   k.cfg.Secure,
		SameSite: k.cfg.SameSite,
	}
	if !expires.IsZero() {
		ck.Expires = expires
		ck.MaxAge = int(time.Until(expires).Seconds())
	}
	return ck
}

// queryFlag reads a boolean query parameter such as ?use_cookies=true.
func queryFlag(c echo.Context, name string, def bool) bool {
	v := c.QueryParam(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
