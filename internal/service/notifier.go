package service

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/shop-backend/internal/metrics"
	"github.com/iliyamo/shop-backend/internal/model"
	"github.com/iliyamo/shop-backend/internal/queue"
	"github.com/iliyamo/shop-backend/internal/token"
)

// Notifier enqueues transactional email.  Every method is best effort:
// failures are logged and counted, never returned, so a broker outage does
// not fail registration, verification or a reset request.
type Notifier struct {
	q         Enqueuer
	tokens    *token.Issuer
	publicURL string
	resetTTL  int
	log       *zap.Logger
}

func NewNotifier(q Enqueuer, tokens *token.Issuer, publicURL string, resetTTLMinutes int, log *zap.Logger) *Notifier {
	return &Notifier{
		q:         q,
		tokens:    tokens,
		publicURL: strings.TrimRight(publicURL, "/"),
		resetTTL:  resetTTLMinutes,
		log:       log,
	}
}

func (n *Notifier) SendVerification(ctx context.Context, u *model.User) {
	tok, err := n.tokens.CreateVerificationToken(u.ID)
	if err != nil {
		n.log.Error("create verification token", zap.String("user_id", u.ID), zap.Error(err))
		return
	}
	n.enqueue(ctx, u, queue.QueueVerification, queue.VerificationEmail{
		To:       u.Email,
		UserName: u.Username,
		Token:    tok.Value,
		Link:     n.publicURL + "/api/v1/verification/verify-email/" + url.PathEscape(tok.Value),
	})
}

func (n *Notifier) SendPasswordReset(ctx context.Context, u *model.User) {
	tok, err := n.tokens.CreatePasswordResetToken(u.ID)
	if err != nil {
		n.log.Error("create password reset token", zap.String("user_id", u.ID), zap.Error(err))
		return
	}
	n.enqueue(ctx, u, queue.QueuePasswordReset, queue.PasswordResetEmail{
		To:               u.Email,
		UserName:         u.Username,
		Token:            tok.Value,
		Link:             n.publicURL + "/reset-password?token=" + url.QueryEscape(tok.Value),
		ExpiresInMinutes: n.resetTTL,
	})
}

func (n *Notifier) SendRegistrationSuccess(ctx context.Context, u *model.User) {
	n.enqueue(ctx, u, queue.QueueRegistrationSuccess, queue.RegistrationSuccessEmail{
		To:       u.Email,
		UserName: u.Username,
	})
}

// enqueueTimeout caps how much of a request's budget a broker outage can use.
const enqueueTimeout = 2 * time.Second

func (n *Notifier) enqueue(ctx context.Context, u *model.User, q string, payload any) {
	ctx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()
	err := n.q.Enqueue(ctx, q, payload)
	metrics.RecordEmail(q, err)
	if err != nil {
		n.log.Error("enqueue email failed",
			zap.String("queue", q), zap.String("user_id", u.ID), zap.Error(err))
		return
	}
	n.log.Info("email enqueued", zap.String("queue", q), zap.String("user_id", u.ID))
}
