// Command mailer consumes the email queues and delivers each message over
// SMTP, or to the log when SMTP_HOST is unset.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/iliyamo/shop-backend/internal/config"
	"github.com/iliyamo/shop-backend/internal/logger"
	"github.com/iliyamo/shop-backend/internal/mailer"
	"github.com/iliyamo/shop-backend/internal/queue"
)

func main() {
	url := config.LoadAMQPURL()
	smtp := config.LoadSMTPConfig()

	zl, err := logger.New(os.Getenv("LOG_LEVEL"), os.Getenv("APP_ENV"))
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	var sender mailer.Sender
	if smtp.Host != "" {
		sender = mailer.NewSMTPSender(smtp)
		zl.Info("delivering over smtp", zap.String("host", smtp.Host), zap.Int("port", smtp.Port))
	} else {
		sender = mailer.NewLogSender(zl.Named("mail"))
		zl.Warn("SMTP_HOST not set, emails are only logged")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := queue.NewConsumer(url, mailer.NewHandler(sender), zl.Named("consumer"))
	zl.Info("mailer started", zap.Strings("queues", queue.EmailQueues))
	if err := c.Run(ctx); err != nil {
		zl.Error("consumer stopped", zap.Error(err))
	}
	zl.Info("mailer stopped")
}
