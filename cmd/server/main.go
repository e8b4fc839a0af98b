package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/shop-backend/internal/config"
	"github.com/iliyamo/shop-backend/internal/database"
	"github.com/iliyamo/shop-backend/internal/handler"
	"github.com/iliyamo/shop-backend/internal/logger"
	"github.com/iliyamo/shop-backend/internal/queue"
	"github.com/iliyamo/shop-backend/internal/repository"
	"github.com/iliyamo/shop-backend/internal/router"
	"github.com/iliyamo/shop-backend/internal/service"
	"github.com/iliyamo/shop-backend/internal/session"
	"github.com/iliyamo/shop-backend/internal/storage"
	"github.com/iliyamo/shop-backend/internal/token"
)

func main() {
	cfg := config.Load()

	zl, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		zl.Fatal("mysql", zap.Error(err))
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		zl.Fatal("migrate", zap.Error(err))
	}

	rdb, err := config.NewRedisClient(config.LoadRedisConfig())
	if err != nil {
		zl.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	publisher := queue.NewPublisher(cfg.AMQPURL, zl.Named("publisher"))
	defer publisher.Close()

	var avatars service.AvatarUploader
	if cfg.S3.Bucket != "" {
		store, err := storage.NewAvatarStore(ctx, cfg.S3)
		if err != nil {
			zl.Fatal("s3", zap.Error(err))
		}
		avatars = store
	} else {
		zl.Info("S3_BUCKET not set, avatar uploads disabled")
	}

	tokens := token.NewIssuer(token.Config{
		Secret:          cfg.JWTSecret,
		AccessTTL:       cfg.AccessTTL,
		RefreshTTL:      cfg.RefreshTTL,
		VerificationTTL: cfg.VerificationTTL,
		ResetTTL:        cfg.ResetTTL,
	})
	cache := session.NewCache(rdb, session.Config{
		AccessTTL:       cfg.AccessTTL,
		RefreshTTL:      cfg.RefreshTTL,
		InactiveTimeout: cfg.InactiveTimeout,
	})
	users := repository.NewUserRepo(db)
	svcLog := zl.Named("service")
	notifier := service.NewNotifier(publisher, tokens, cfg.PublicURL, int(cfg.ResetTTL/time.Minute), svcLog)

	e := router.New(router.Deps{
		Log:          zl.Named("http"),
		Tokens:       tokens,
		Auth:         service.NewAuthService(users, cache, tokens, notifier, cfg.BcryptCost, svcLog),
		Registration: service.NewRegistrationService(users, cache, tokens, notifier, cfg.BcryptCost, svcLog),
		Profile:      service.NewProfileService(users, cache, avatars, cfg.BcryptCost, svcLog),
		Admin:        service.NewAdminService(users, cache, svcLog),
		Cookies:      handler.NewCookies(cfg.Cookie),
		RateLimit:    config.LoadRateLimitConfig(),
		Limiter:      rdb,
		Checks: map[string]handler.Check{
			"mysql": db.PingContext,
			"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
	})

	go func() {
		addr := ":" + cfg.Port
		zl.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zl.Error("graceful shutdown", zap.Error(err))
	}
	zl.Info("server stopped")
}
