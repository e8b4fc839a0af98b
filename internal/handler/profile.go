package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/shop-backend/internal/apperr"
	"github.com/iliyamo/shop-backend/internal/middleware"
	"github.com/iliyamo/shop-backend/internal/service"
	"github.com/iliyamo/shop-backend/internal/storage"
)

// ProfileHandler serves the caller's own account and presence lookups.
// Every route runs behind middleware.Authenticate.
type ProfileHandler struct {
	profile *service.ProfileService
}

func NewProfileHandler(profile *service.ProfileService) *ProfileHandler {
	return &ProfileHandler{profile: profile}
}

type passwordReq struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type profileReq struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
}

func caller(c echo.Context) (*service.Principal, error) {
	p, found := middleware.PrincipalFrom(c)
	if !found {
		return nil, apperr.ErrTokenMissing
	}
	return p, nil
}

func (h *ProfileHandler) Get(c echo.Context) error {
	p, err := caller(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.profile.Profile(ctx, p.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ok("profile", viewOf(u)))
}

// Update changes any of username, email and phone.  Absent fields are kept;
// "phone": "" removes the number.
func (h *ProfileHandler) Update(c echo.Context) error {
	p, err := caller(c)
	if err != nil {
		return err
	}
	var req profileReq
	if err := c.Bind(&req); err != nil {
		return invalidBody
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.profile.UpdateProfile(ctx, p.ID, service.ProfileUpdate{
		Username: req.Username,
		Email:    req.Email,
		Phone:    req.Phone,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ok("profile updated", viewOf(u)))
}

func (h *ProfileHandler) ChangePassword(c echo.Context) error {
	p, err := caller(c)
	if err != nil {
		return err
	}
	var req passwordReq
	if err := c.Bind(&req); err != nil {
		return invalidBody
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.profile.ChangePassword(ctx, p.ID, p.Token, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ok("password changed", nil))
}

// UploadAvatar takes a multipart form with the image in field "file".
func (h *ProfileHandler) UploadAvatar(c echo.Context) error {
	p, err := caller(c)
	if err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return apperr.ErrValidation.With("multipart field \"file\" is required", map[string]any{"field": "file"})
	}
	if fh.Size > storage.MaxAvatarSize {
		return apperr.ErrValidation.With("file too large",
			map[string]any{"field": "file", "max_bytes": storage.MaxAvatarSize})
	}
	f, err := fh.Open()
	if err != nil {
		return apperr.ErrValidation.With("cannot read uploaded file", map[string]any{"field": "file"})
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	url, err := h.profile.UploadAvatar(ctx, p.ID, fh.Header.Get(echo.HeaderContentType), fh.Size, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ok("avatar uploaded", map[string]any{"avatar": url}))
}

// Presence reports whether :id is online.  Last activity is included only
// when callers ask about themselves.
func (h *ProfileHandler) Presence(c echo.Context) error {
	p, err := caller(c)
	if err != nil {
		return err
	}
	id := c.Param("id")
	own := ""
	if id == p.ID {
		own = p.Token
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	return c.JSON(http.StatusOK, ok("presence", h.profile.Presence(ctx, id, own)))
}
