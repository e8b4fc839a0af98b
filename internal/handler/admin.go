package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/shop-backend/internal/apperr"
	"github.com/iliyamo/shop-backend/internal/model"
	"github.com/iliyamo/shop-backend/internal/service"
)

// AdminHandler exposes account moderation.  Role checks happen in the
// router.
type AdminHandler struct {
	admin *service.AdminService
}

func NewAdminHandler(admin *service.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

type activeReq struct {
	IsActive *bool `json:"is_active"`
}

type roleReq struct {
	Role string `json:"role"`
}

type listedUserView struct {
	userView
	IsOnline bool `json:"is_online"`
}

// ListUsers serves ?skip=&limit=&role=&search=.
func (h *AdminHandler) ListUsers(c echo.Context) error {
	var f model.UserFilter
	var role string
	if err := echo.QueryParamsBinder(c).
		Int("skip", &f.Offset).
		Int("limit", &f.Limit).
		String("role", &role).
		String("search", &f.Search).
		BindError(); err != nil {
		return apperr.ErrValidation.With("skip and limit must be integers", nil)
	}
	f.Role = model.Role(role)

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	page, err := h.admin.ListUsers(ctx, f)
	if err != nil {
		return err
	}
	items := make([]listedUserView, 0, len(page.Users))
	for i := range page.Users {
		items = append(items, listedUserView{userView: viewOf(&page.Users[i].User), IsOnline: page.Users[i].Online})
	}
	return c.JSON(http.StatusOK, ok("users", map[string]any{
		"items": items,
		"total": page.Total,
		"skip":  page.Offset,
		"limit": page.Limit,
	}))
}

func (h *AdminHandler) Sessions(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	sum, err := h.admin.Sessions(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ok("sessions", sum))
}

func (h *AdminHandler) SetActive(c echo.Context) error {
	p, err := caller(c)
	if err != nil {
		return err
	}
	var req activeReq
	if err := c.Bind(&req); err != nil {
		return invalidBody
	}
	if req.IsActive == nil {
		return apperr.ErrValidation.With("is_active is required", map[string]any{"field": "is_active"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.admin.SetActive(ctx, p.ID, c.Param("id"), *req.IsActive); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ok("account updated", map[string]any{"is_active": *req.IsActive}))
}

func (h *AdminHandler) SetRole(c echo.Context) error {
	p, err := caller(c)
	if err != nil {
		return err
	}
	var req roleReq
	if err := c.Bind(&req); err != nil {
		return invalidBody
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	role := model.Role(req.Role)
	if err := h.admin.SetRole(ctx, p.ID, c.Param("id"), role); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ok("role updated", map[string]any{"role": role}))
}
