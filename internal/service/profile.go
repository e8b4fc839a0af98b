package service

import (
	"context"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/shop-backend/internal/apperr"
	"github.com/iliyamo/shop-backend/internal/model"
	"github.com/iliyamo/shop-backend/internal/repository"
	"github.com/iliyamo/shop-backend/internal/session"
	"github.com/iliyamo/shop-backend/internal/utils"
)

// AvatarUploader stores an avatar and returns its public URL.
type AvatarUploader interface {
	Upload(ctx context.Context, userID, contentType string, size int64, body io.Reader) (string, error)
}

// Presence is the online state of a user.  LastActivity is only known for
// the caller's own token and is zero otherwise.
type Presence struct {
	UserID       string `json:"user_id"`
	Online       bool   `json:"online"`
	LastActivity int64  `json:"last_activity,omitempty"`
}

// ProfileService serves the signed-in user's own account.
type ProfileService struct {
	users      UserStore
	sessions   sessions
	avatars    AvatarUploader
	bcryptCost int
	log        *zap.Logger
}

// NewProfileService accepts a nil avatars; uploads then fail with
// ErrServiceUnavailable.
func NewProfileService(users UserStore, cache SessionStore, avatars AvatarUploader, bcryptCost int, log *zap.Logger) *ProfileService {
	return &ProfileService{
		users:      users,
		sessions:   sessions{cache: cache, log: log},
		avatars:    avatars,
		bcryptCost: bcryptCost,
		log:        log,
	}
}

func (s *ProfileService) Profile(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, userErr(err)
	}
	return u, nil
}

// ProfileUpdate carries the identity fields a user may change.  Nil fields
// stay as they are; an empty Phone removes the number.
type ProfileUpdate struct {
	Username *string
	Email    *string
	Phone    *string
}

// UpdateProfile changes username, email or phone under the same rules as
// registration.  Live sessions are refiled under the new identity so that
// revoking by email still reaches every token.
func (s *ProfileService) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (*model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, userErr(err)
	}

	var upd model.UserUpdate
	if in.Username != nil {
		name := strings.TrimSpace(*in.Username)
		if err := validateUsername(name); err != nil {
			return nil, err
		}
		if name != u.Username {
			upd.Username = &name
		}
	}
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		if email = repository.NormalizeEmail(email); email != u.Email {
			upd.Email = &email
		}
	}
	if in.Phone != nil {
		phone := strings.TrimSpace(*in.Phone)
		if phone != "" {
			if err := validatePhone(phone); err != nil {
				return nil, err
			}
		}
		cur := ""
		if u.Phone != nil {
			cur = *u.Phone
		}
		if phone != cur {
			upd.Phone = &phone
		}
	}
	if upd.Empty() {
		return u, nil
	}

	if err := s.users.Update(ctx, userID, upd); err != nil {
		if errors.Is(err, apperr.ErrUserExists) {
			return nil, apperr.ErrUserExists.With("username, email or phone already registered", nil)
		}
		return nil, userErr(err)
	}
	updated, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, userErr(err)
	}
	if upd.Username != nil || upd.Email != nil {
		if err := s.sessions.cache.UpdateSessions(ctx, u.Email, session.SnapshotOf(updated)); err != nil {
			return nil, s.sessions.unavailable("update sessions", err)
		}
	}
	s.log.Info("profile updated", zap.String("user_id", userID),
		zap.Bool("username", upd.Username != nil), zap.Bool("email", upd.Email != nil),
		zap.Bool("phone", upd.Phone != nil))
	return updated, nil
}

// ChangePassword replaces the password after checking the current one.
// Every other session and all refresh tokens are revoked; ownToken, the
// caller's access token, stays valid.
func (s *ProfileService) ChangePassword(ctx context.Context, userID, ownToken, current, next string) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return userErr(err)
	}
	if !utils.VerifyPassword(u.PasswordHash, current) {
		return apperr.ErrInvalidCredentials.With("current password is incorrect", nil)
	}
	hash, err := hashPassword(next, s.bcryptCost)
	if err != nil {
		return err
	}
	if err := s.users.Update(ctx, userID, model.UserUpdate{PasswordHash: &hash}); err != nil {
		return userErr(err)
	}
	if err := s.sessions.cache.RemoveOtherSessions(ctx, u.Email, ownToken); err != nil {
		return s.sessions.unavailable("remove other sessions", err)
	}
	if err := s.sessions.cache.RemoveAllRefreshTokens(ctx, userID); err != nil {
		return s.sessions.unavailable("remove refresh tokens", err)
	}
	s.log.Info("password changed", zap.String("user_id", userID))
	return nil
}

// UploadAvatar stores the image and records its URL on the account.
func (s *ProfileService) UploadAvatar(ctx context.Context, userID, contentType string, size int64, body io.Reader) (string, error) {
	if s.avatars == nil {
		return "", apperr.ErrServiceUnavailable.With("avatar storage is not configured", nil)
	}
	url, err := s.avatars.Upload(ctx, userID, contentType, size, body)
	if err != nil {
		if apperr.As(err) == nil {
			s.log.Error("avatar upload failed", zap.String("user_id", userID), zap.Error(err))
			return "", apperr.ErrStorage
		}
		s.log.Warn("avatar upload refused", zap.String("user_id", userID), zap.Error(err))
		return "", err
	}
	if err := s.users.Update(ctx, userID, model.UserUpdate{Avatar: &url}); err != nil {
		return "", userErr(err)
	}
	return url, nil
}

// Presence reads the online flag of userID.  Cache failures report offline.
// ownToken, when non-empty, also yields the caller's last activity.
func (s *ProfileService) Presence(ctx context.Context, userID, ownToken string) Presence {
	p := Presence{UserID: userID}
	online, err := s.sessions.cache.GetOnlineStatus(ctx, userID)
	if err != nil {
		s.log.Warn("get online status failed", zap.String("user_id", userID), zap.Error(err))
	}
	p.Online = online
	if ownToken != "" {
		ts, err := s.sessions.cache.GetLastActivity(ctx, ownToken)
		if err != nil {
			s.log.Warn("get last activity failed", zap.String("user_id", userID), zap.Error(err))
		}
		p.LastActivity = ts
	}
	return p
}
