package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/shop-backend/internal/apperr"
	"github.com/iliyamo/shop-backend/internal/service"
)

// RegistrationHandler serves sign-up and the email verification endpoints.
type RegistrationHandler struct {
	reg     *service.RegistrationService
	cookies Cookies
}

func NewRegistrationHandler(reg *service.RegistrationService, cookies Cookies) *RegistrationHandler {
	return &RegistrationHandler{reg: reg, cookies: cookies}
}

type registerReq struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type resendReq struct {
	Email string `json:"email"`
}

// Register creates an unverified account and answers with limited tokens.
func (h *RegistrationHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return invalidBody
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.reg.Register(ctx, service.RegisterInput{
		Username: strings.TrimSpace(req.Username),
		Email:    strings.TrimSpace(req.Email),
		Phone:    strings.TrimSpace(req.Phone),
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return respondTokens(c, h.cookies, http.StatusOK,
		"registration successful, check your email to verify the address",
		res.Tokens, map[string]any{"user": viewOf(res.User)})
}

// VerifyEmail redeems a verification token.  Redeeming it again for an
// already verified account succeeds with fresh tokens.
func (h *RegistrationHandler) VerifyEmail(c echo.Context) error {
	raw := strings.TrimSpace(c.Param("token"))
	if raw == "" {
		return apperr.ErrTokenMissing
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	v, err := h.reg.VerifyEmail(ctx, raw)
	if err != nil {
		return err
	}
	msg := "email verified"
	if v.AlreadyVerified {
		msg = "email already verified"
	}
	return respondTokens(c, h.cookies, http.StatusOK, msg, v.Tokens, map[string]any{"user": viewOf(v.User)})
}

func (h *RegistrationHandler) Resend(c echo.Context) error {
	var req resendReq
	if err := c.Bind(&req); err != nil {
		return invalidBody
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return apperr.ErrValidation.With("email is required", map[string]any{"field": "email"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	already, err := h.reg.ResendVerification(ctx, email)
	if err != nil {
		return err
	}
	if already {
		return c.JSON(http.StatusOK, ok("email already verified", map[string]any{"is_verified": true}))
	}
	return c.JSON(http.StatusOK, ok("verification email sent", map[string]any{"is_verified": false}))
}

func (h *RegistrationHandler) Status(c echo.Context) error {
	email := strings.TrimSpace(c.Param("email"))

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	verified, err := h.reg.VerificationStatus(ctx, email)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ok("verification status", map[string]any{
		"email":       email,
		"is_verified": verified,
	}))
}
