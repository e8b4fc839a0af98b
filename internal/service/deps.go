// Package service implements the identity flows: login, refresh, logout,
// registration, email verification, password reset, profile and admin
// operations.  Collaborators are injected as small interfaces so each flow
// can be exercised against in-memory or miniredis-backed fakes.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/shop-backend/internal/apperr"
	"github.com/iliyamo/shop-backend/internal/model"
	"github.com/iliyamo/shop-backend/internal/repository"
	"github.com/iliyamo/shop-backend/internal/session"
	"github.com/iliyamo/shop-backend/internal/token"
)

// UserStore is the credential store.  Lookups return repository.ErrNotFound
// on a miss; Create and Update return apperr.ErrUserExists on a uniqueness
// clash.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	FindByIdentifier(ctx context.Context, identifier string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Update(ctx context.Context, id string, upd model.UserUpdate) error
	List(ctx context.Context, f model.UserFilter) ([]model.User, int, error)
}

// SessionStore is the session cache.
type SessionStore interface {
	SaveToken(ctx context.Context, s session.Snapshot, token string) error
	GetUserByToken(ctx context.Context, token string) (*session.Snapshot, error)
	RemoveToken(ctx context.Context, token string) error
	Sessions(ctx context.Context, email string) ([]string, error)
	RemoveAllSessions(ctx context.Context, email string) error
	RemoveOtherSessions(ctx context.Context, email, keep string) error
	UpdateSessions(ctx context.Context, oldEmail string, s session.Snapshot) error
	SaveRefreshToken(ctx context.Context, userID, token string) error
	ConsumeRefreshToken(ctx context.Context, userID, token string) (bool, error)
	RemoveAllRefreshTokens(ctx context.Context, userID string) error
	SetOnlineStatus(ctx context.Context, userID string, online bool) error
	GetOnlineStatus(ctx context.Context, userID string) (bool, error)
	UpdateLastActivity(ctx context.Context, token string) error
	GetLastActivity(ctx context.Context, token string) (int64, error)
}

// Enqueuer hands a payload to the message broker.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, payload any) error
}

// TokenPair is what login, refresh and verification hand back.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	Limited          bool      `json:"limited"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

// sessions mints token pairs and records them in the cache.  Every flow that
// hands out tokens goes through it.
type sessions struct {
	tokens *token.Issuer
	cache  SessionStore
	log    *zap.Logger
}

func (s sessions) issue(u *model.User) (*TokenPair, error) {
	access, err := s.tokens.CreateAccessToken(token.Subject{
		UserID:   u.ID,
		Email:    u.Email,
		Role:     u.Role,
		Verified: u.IsVerified,
	})
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.CreateRefreshToken(u.ID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access.Value,
		RefreshToken:     refresh.Value,
		TokenType:        token.Type,
		ExpiresIn:        int64(s.tokens.AccessTTL().Seconds()),
		Limited:          !u.IsVerified,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// record stores the pair.  The access and refresh entries are required for
// the tokens to work at all; presence and activity are best effort.
func (s sessions) record(ctx context.Context, u *model.User, p *TokenPair) error {
	if err := s.cache.SaveToken(ctx, session.SnapshotOf(u), p.AccessToken); err != nil {
		return s.unavailable("save access token", err)
	}
	if err := s.cache.SaveRefreshToken(ctx, u.ID, p.RefreshToken); err != nil {
		return s.unavailable("save refresh token", err)
	}
	if err := s.cache.SetOnlineStatus(ctx, u.ID, true); err != nil {
		s.log.Warn("set online status failed", zap.String("user_id", u.ID), zap.Error(err))
	}
	if err := s.cache.UpdateLastActivity(ctx, p.AccessToken); err != nil {
		s.log.Warn("update last activity failed", zap.String("user_id", u.ID), zap.Error(err))
	}
	return nil
}

// revokeAll drops every access and refresh token of u and marks it offline.
func (s sessions) revokeAll(ctx context.Context, u *model.User) error {
	if err := s.cache.RemoveAllSessions(ctx, u.Email); err != nil {
		return s.unavailable("remove sessions", err)
	}
	if err := s.cache.RemoveAllRefreshTokens(ctx, u.ID); err != nil {
		return s.unavailable("remove refresh tokens", err)
	}
	if err := s.cache.SetOnlineStatus(ctx, u.ID, false); err != nil {
		s.log.Warn("set offline failed", zap.String("user_id", u.ID), zap.Error(err))
	}
	return nil
}

// unavailable logs a cache failure and maps it to a 503.
func (s sessions) unavailable(op string, err error) error {
	s.log.Error("session cache: "+op, zap.Error(err))
	return apperr.ErrServiceUnavailable
}

// userErr maps a store miss onto the domain kind.
func userErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.ErrUserNotFound
	}
	return err
}
