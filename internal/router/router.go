// Package router assembles the echo instance: global middleware, the
// verification gate and every /api/v1 route.
package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/shop-backend/internal/config"
	"github.com/iliyamo/shop-backend/internal/handler"
	"github.com/iliyamo/shop-backend/internal/metrics"
	"github.com/iliyamo/shop-backend/internal/middleware"
	"github.com/iliyamo/shop-backend/internal/model"
	"github.com/iliyamo/shop-backend/internal/service"
	"github.com/iliyamo/shop-backend/internal/token"
)

// Deps is everything the routes need.  Limiter may be nil, which disables
// rate limiting.
type Deps struct {
	Log          *zap.Logger
	Tokens       *token.Issuer
	Auth         *service.AuthService
	Registration *service.RegistrationService
	Profile      *service.ProfileService
	Admin        *service.AdminService
	Cookies      handler.Cookies
	RateLimit    config.RateLimitConfig
	Limiter      redis.Scripter
	Checks       map[string]handler.Check
}

// New builds the HTTP server.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(d.Log)

	e.Use(echomw.Recover())
	e.Use(requestLogger(d.Log))
	e.Use(metrics.Middleware())
	e.Use(middleware.AuthCookie(handler.AccessCookie))
	e.Use(middleware.VerificationGate(d.Tokens, middleware.DefaultPublic, middleware.DefaultUnverified))

	e.GET("/healthz", handler.Health(d.Checks))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	limit := middleware.NewTokenBucket(d.RateLimit, d.Limiter, d.Log)
	authn := middleware.Authenticate(d.Auth)

	v1 := e.Group("/api/v1")
	registerAuth(v1, handler.NewAuthHandler(d.Auth, d.Cookies), limit)
	registerVerification(v1, handler.NewRegistrationHandler(d.Registration, d.Cookies), limit)
	registerProfile(v1, handler.NewProfileHandler(d.Profile), authn)
	registerAdmin(v1, handler.NewAdminHandler(d.Admin), authn)
	return e
}

func registerAuth(g *echo.Group, h *handler.AuthHandler, limit echo.MiddlewareFunc) {
	g.POST("/auth", h.Login, limit)
	g.POST("/auth/refresh", h.Refresh)
	g.POST("/auth/logout", h.Logout)
	g.POST("/auth/forgot-password", h.ForgotPassword, limit)
	g.POST("/auth/reset-password", h.ResetPassword, limit)
}

func registerVerification(g *echo.Group, h *handler.RegistrationHandler, limit echo.MiddlewareFunc) {
	g.POST("/register", h.Register, limit)

	v := g.Group("/verification")
	v.GET("/verify-email/:token", h.VerifyEmail)
	v.POST("/resend", h.Resend, limit)
	v.GET("/status/:email", h.Status)
}

func registerProfile(g *echo.Group, h *handler.ProfileHandler, authn echo.MiddlewareFunc) {
	p := g.Group("/profile", authn)
	p.GET("", h.Get)
	p.PUT("", h.Update)
	p.PUT("/password", h.ChangePassword)
	p.POST("/avatar", h.UploadAvatar)

	g.GET("/presence/:id", h.Presence, authn)
}

func registerAdmin(g *echo.Group, h *handler.AdminHandler, authn echo.MiddlewareFunc) {
	a := g.Group("/admin/users", authn, middleware.RequireRole(model.RoleAdmin, model.RoleModerator))
	a.GET("", h.ListUsers)
	a.GET("/:id/sessions", h.Sessions)
	a.PATCH("/:id/active", h.SetActive, middleware.RequireRole(model.RoleAdmin))
	a.PATCH("/:id/role", h.SetRole, middleware.RequireRole(model.RoleAdmin))
}

func requestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogRoutePath: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.String("route", v.RoutePath),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			log.Info("request", fields...)
			return nil
		},
	})
}
