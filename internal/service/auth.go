package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/shop-backend/internal/apperr"
	"github.com/iliyamo/shop-backend/internal/metrics"
	"github.com/iliyamo/shop-backend/internal/model"
	"github.com/iliyamo/shop-backend/internal/repository"
	"github.com/iliyamo/shop-backend/internal/session"
	"github.com/iliyamo/shop-backend/internal/token"
	"github.com/iliyamo/shop-backend/internal/utils"
)

// Principal is the caller identity attached to an authenticated request.
type Principal struct {
	session.Snapshot
	Token   string
	Limited bool
}

// AuthService runs login, refresh, logout, request authorization and the
// password reset flow.
type AuthService struct {
	users      UserStore
	sessions   sessions
	notifier   *Notifier
	bcryptCost int
	log        *zap.Logger
	now        func() time.Time
}

func NewAuthService(users UserStore, cache SessionStore, tokens *token.Issuer, notifier *Notifier, bcryptCost int, log *zap.Logger) *AuthService {
	return &AuthService{
		users:      users,
		sessions:   sessions{tokens: tokens, cache: cache, log: log},
		notifier:   notifier,
		bcryptCost: bcryptCost,
		log:        log,
		now:        time.Now,
	}
}

// credentialCheck separates the reasons a login is refused before they are
// collapsed into one client-facing error.
type credentialCheck int

const (
	credentialsOK credentialCheck = iota
	unknownIdentity
	wrongPassword
)

func (c credentialCheck) String() string {
	switch c {
	case unknownIdentity:
		return "unknown identity"
	case wrongPassword:
		return "wrong password"
	}
	return "ok"
}

// Authenticate verifies identifier and password and opens a session.  The
// identifier may be a username, an email or a phone number.  Unverified
// users get a limited access token.
func (s *AuthService) Authenticate(ctx context.Context, identifier, password string) (*TokenPair, error) {
	u, err := s.users.FindByIdentifier(ctx, identifier)
	if errors.Is(err, repository.ErrNotFound) {
		utils.BurnPasswordCheck(password)
		return nil, s.refuse(identifier, unknownIdentity)
	}
	if err != nil {
		metrics.RecordLogin(metrics.ResultError)
		return nil, err
	}
	if !u.IsActive {
		metrics.RecordLogin(metrics.ResultFailure)
		s.log.Info("login refused: account deactivated", zap.String("user_id", u.ID))
		return nil, apperr.ErrForbidden.With("account deactivated", nil)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return nil, s.refuse(identifier, wrongPassword)
	}

	pair, err := s.sessions.issue(u)
	if err != nil {
		metrics.RecordLogin(metrics.ResultError)
		return nil, err
	}
	if err := s.sessions.record(ctx, u, pair); err != nil {
		metrics.RecordLogin(metrics.ResultError)
		return nil, err
	}
	now := s.now().UTC()
	if err := s.users.Update(ctx, u.ID, model.UserUpdate{LastLogin: &now}); err != nil {
		s.log.Warn("update last login failed", zap.String("user_id", u.ID), zap.Error(err))
	}
	metrics.RecordLogin(metrics.ResultSuccess)
	s.log.Info("login", zap.String("user_id", u.ID), zap.Bool("limited", pair.Limited))
	return pair, nil
}

func (s *AuthService) refuse(identifier string, why credentialCheck) error {
	metrics.RecordLogin(metrics.ResultFailure)
	s.log.Info("login refused", zap.String("identifier", identifier), zap.Stringer("reason", why))
	return apperr.ErrInvalidCredentials
}

// Refresh redeems a refresh token for a new pair.  Each refresh token works
// once; a replay fails with ErrTokenInvalid even while the signature is
// still valid.
func (s *AuthService) Refresh(ctx context.Context, raw string) (*TokenPair, error) {
	raw = strings.TrimSpace(raw)
	pair, err := s.refresh(ctx, raw)
	switch {
	case err == nil:
		metrics.RecordRefresh(metrics.ResultSuccess)
	case apperr.As(err) != nil:
		metrics.RecordRefresh(metrics.ResultFailure)
	default:
		metrics.RecordRefresh(metrics.ResultError)
	}
	return pair, err
}

func (s *AuthService) refresh(ctx context.Context, raw string) (*TokenPair, error) {
	claims, err := s.sessions.tokens.Verify(raw)
	if err != nil {
		return nil, err
	}
	userID, err := s.sessions.tokens.ValidateRefresh(claims)
	if err != nil {
		return nil, err
	}
	ok, err := s.sessions.cache.ConsumeRefreshToken(ctx, userID, raw)
	if err != nil {
		return nil, s.sessions.unavailable("consume refresh token", err)
	}
	if !ok {
		s.log.Warn("refresh token reuse or revoked token", zap.String("user_id", userID))
		return nil, apperr.ErrTokenInvalid.With("refresh token has already been used or revoked", nil)
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, userErr(err)
	}
	if !u.IsActive {
		return nil, apperr.ErrForbidden.With("account deactivated", nil)
	}
	pair, err := s.sessions.issue(u)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.record(ctx, u, pair); err != nil {
		return nil, err
	}
	return pair, nil
}

// Logout ends the session of an access token.  A token that no longer
// verifies still has its cache entry removed; only a valid token also
// clears presence and every refresh token of its owner.
func (s *AuthService) Logout(ctx context.Context, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return apperr.ErrTokenMissing
	}
	claims, err := s.sessions.tokens.Verify(raw)
	if err != nil {
		s.log.Info("logout with unusable token", zap.Error(err))
	} else if _, err := s.sessions.tokens.ValidatePayload(claims); err == nil {
		if err := s.sessions.cache.SetOnlineStatus(ctx, claims.UserID, false); err != nil {
			s.log.Warn("set offline failed", zap.String("user_id", claims.UserID), zap.Error(err))
		}
		if err := s.sessions.cache.RemoveAllRefreshTokens(ctx, claims.UserID); err != nil {
			return s.sessions.unavailable("remove refresh tokens", err)
		}
		s.log.Info("logout", zap.String("user_id", claims.UserID))
	}
	if err := s.sessions.cache.RemoveToken(ctx, raw); err != nil {
		return s.sessions.unavailable("remove token", err)
	}
	return nil
}

// Authorize resolves a bearer token into a Principal.  Both a valid
// signature and a live cache entry are required; if the cache cannot be
// reached the request is refused.
func (s *AuthService) Authorize(ctx context.Context, raw string) (*Principal, error) {
	claims, err := s.sessions.tokens.Verify(raw)
	if err != nil {
		return nil, err
	}
	if _, err := s.sessions.tokens.ValidatePayload(claims); err != nil {
		return nil, err
	}
	snap, err := s.sessions.cache.GetUserByToken(ctx, raw)
	if err != nil {
		return nil, s.sessions.unavailable("get token", err)
	}
	// bound by id: a profile update may change the email after issue
	if snap == nil || snap.ID != claims.UserID {
		return nil, apperr.ErrTokenInvalid.With("session expired or revoked", nil)
	}
	if !snap.IsActive {
		return nil, apperr.ErrForbidden.With("account deactivated", nil)
	}

	if err := s.sessions.cache.UpdateLastActivity(ctx, raw); err != nil {
		s.log.Warn("update last activity failed", zap.String("user_id", snap.ID), zap.Error(err))
	}
	if err := s.sessions.cache.SetOnlineStatus(ctx, snap.ID, true); err != nil {
		s.log.Warn("set online status failed", zap.String("user_id", snap.ID), zap.Error(err))
	}
	return &Principal{Snapshot: *snap, Token: raw, Limited: claims.Limited}, nil
}

// RequestPasswordReset enqueues a reset link.  The outcome is the same
// whether or not the address is registered.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.Info("password reset for unknown email")
		return nil
	}
	if err != nil {
		return err
	}
	if !u.IsActive {
		s.log.Info("password reset for deactivated account", zap.String("user_id", u.ID))
		return nil
	}
	s.notifier.SendPasswordReset(ctx, u)
	return nil
}

// ResetPassword sets a new password from a reset token and signs the user
// out everywhere.
func (s *AuthService) ResetPassword(ctx context.Context, raw, newPassword string) error {
	claims, err := s.sessions.tokens.Verify(raw)
	if err != nil {
		return err
	}
	userID, err := s.sessions.tokens.ValidatePasswordReset(claims)
	if err != nil {
		return err
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return userErr(err)
	}
	hash, err := hashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	if err := s.users.Update(ctx, u.ID, model.UserUpdate{PasswordHash: &hash}); err != nil {
		return userErr(err)
	}
	s.log.Info("password reset", zap.String("user_id", u.ID))
	return s.sessions.revokeAll(ctx, u)
}

// hashPassword maps a too-short password onto a validation error.
func hashPassword(plain string, cost int) (string, error) {
	hash, err := utils.HashPassword(plain, cost)
	if errors.Is(err, utils.ErrPasswordTooShort) {
		return "", apperr.ErrValidation.With("password too short",
			map[string]any{"field": "password", "min_length": utils.MinPasswordLength})
	}
	return hash, err
}
