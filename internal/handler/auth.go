package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/shop-backend/internal/apperr"
	"github.com/iliyamo/shop-backend/internal/service"
	"github.com/iliyamo/shop-backend/internal/token"
)

// AuthHandler serves login, refresh, logout and password reset.
type AuthHandler struct {
	auth    *service.AuthService
	cookies Cookies
}

func NewAuthHandler(auth *service.AuthService, cookies Cookies) *AuthHandler {
	return &AuthHandler{auth: auth, cookies: cookies}
}

type forgotReq struct {
	Email string `json:"email"`
}

type resetReq struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// Login takes form fields username and password.  username may hold a
// username, an email address or a phone number.
func (h *AuthHandler) Login(c echo.Context) error {
	identifier := strings.TrimSpace(c.FormValue("username"))
	password := c.FormValue("password")
	if identifier == "" || password == "" {
		return apperr.ErrValidation.With("username and password are required", nil)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	pair, err := h.auth.Authenticate(ctx, identifier, password)
	if err != nil {
		return err
	}
	return h.respondTokens(c, "authenticated", pair)
}

// Refresh redeems the refresh token from the refresh-token header or, for
// cookie clients, from the refresh cookie.
func (h *AuthHandler) Refresh(c echo.Context) error {
	raw := strings.TrimSpace(c.Request().Header.Get(RefreshHeader))
	fromCookie := false
	if raw == "" {
		if ck, err := c.Cookie(RefreshCookie); err == nil {
			raw = strings.TrimSpace(ck.Value)
			fromCookie = raw != ""
		}
	}
	if raw == "" {
		return apperr.ErrTokenMissing.With("refresh token is missing", nil)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	pair, err := h.auth.Refresh(ctx, raw)
	if err != nil {
		return err
	}
	if fromCookie {
		h.cookies.Set(c, pair)
		return c.JSON(http.StatusOK, ok("tokens refreshed", tokensOf(pair, true)))
	}
	return h.respondTokens(c, "tokens refreshed", pair)
}

// Logout revokes the caller's session.  With clear_cookies=true the auth
// cookies are expired as well, even when the token turns out to be unusable.
func (h *AuthHandler) Logout(c echo.Context) error {
	if queryFlag(c, "clear_cookies", false) {
		h.cookies.Clear(c)
	}
	raw, err := token.FromHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.auth.Logout(ctx, raw); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ok("logged out", nil))
}

// ForgotPassword always answers the same way so that it cannot be used to
// discover registered addresses.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotReq
	if err := c.Bind(&req); err != nil {
		return invalidBody
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return apperr.ErrValidation.With("email is required", map[string]any{"field": "email"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.auth.RequestPasswordReset(ctx, email); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ok("if the address is registered, a reset link has been sent", nil))
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := c.Bind(&req); err != nil {
		return invalidBody
	}
	if strings.TrimSpace(req.Token) == "" {
		return apperr.ErrTokenMissing
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.auth.ResetPassword(ctx, strings.TrimSpace(req.Token), req.NewPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ok("password has been reset", nil))
}

// respondTokens returns the pair in the body, or as cookies when the caller
// asked for ?use_cookies=true.
func (h *AuthHandler) respondTokens(c echo.Context, message string, pair *service.TokenPair) error {
	return respondTokens(c, h.cookies, http.StatusOK, message, pair, nil)
}

func respondTokens(c echo.Context, cookies Cookies, status int, message string, pair *service.TokenPair, extra map[string]any) error {
	useCookies := queryFlag(c, "use_cookies", false)
	if useCookies {
		cookies.Set(c, pair)
	}
	data := map[string]any{"tokens": tokensOf(pair, useCookies)}
	for k, v := range extra {
		data[k] = v
	}
	return c.JSON(status, ok(message, data))
}
