package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/iliyamo/shop-backend/internal/apperr"
	"github.com/iliyamo/shop-backend/internal/model"
)

// SessionSummary describes the live sessions of one user without exposing
// the tokens themselves.
type SessionSummary struct {
	UserID         string `json:"user_id"`
	Email          string `json:"email"`
	ActiveSessions int    `json:"active_sessions"`
	Online         bool   `json:"online"`
}

// Page size bounds for ListUsers.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// ListedUser is a user row plus its presence flag from the session cache.
type ListedUser struct {
	model.User
	Online bool
}

// UserPage is one page of the user list.  Total counts every match.
type UserPage struct {
	Users  []ListedUser
	Total  int
	Offset int
	Limit  int
}

// AdminService holds account moderation operations.
type AdminService struct {
	users    UserStore
	sessions sessions
	log      *zap.Logger
}

func NewAdminService(users UserStore, cache SessionStore, log *zap.Logger) *AdminService {
	return &AdminService{
		users:    users,
		sessions: sessions{cache: cache, log: log},
		log:      log,
	}
}

// ListUsers pages through accounts, optionally filtered by role or a
// username/email substring.  A zero Limit means DefaultPageSize.  Presence
// is read per row; a cache failure reports the row offline.
func (s *AdminService) ListUsers(ctx context.Context, f model.UserFilter) (*UserPage, error) {
	if f.Limit == 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit < 1 || f.Limit > MaxPageSize {
		return nil, apperr.ErrValidation.With("limit must be between 1 and 100",
			map[string]any{"field": "limit", "value": f.Limit})
	}
	if f.Offset < 0 {
		return nil, apperr.ErrValidation.With("skip must not be negative",
			map[string]any{"field": "skip", "value": f.Offset})
	}
	if f.Role != "" && !f.Role.Valid() {
		return nil, apperr.ErrValidation.With("unknown role", map[string]any{"field": "role", "value": string(f.Role)})
	}

	users, total, err := s.users.List(ctx, f)
	if err != nil {
		return nil, err
	}
	page := &UserPage{Users: make([]ListedUser, 0, len(users)), Total: total, Offset: f.Offset, Limit: f.Limit}
	for _, u := range users {
		online, err := s.sessions.cache.GetOnlineStatus(ctx, u.ID)
		if err != nil {
			s.log.Warn("get online status failed", zap.String("user_id", u.ID), zap.Error(err))
		}
		page.Users = append(page.Users, ListedUser{User: u, Online: online})
	}
	return page, nil
}

func (s *AdminService) Sessions(ctx context.Context, userID string) (*SessionSummary, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, userErr(err)
	}
	tokens, err := s.sessions.cache.Sessions(ctx, u.Email)
	if err != nil {
		return nil, s.sessions.unavailable("list sessions", err)
	}
	live := 0
	for _, t := range tokens {
		snap, err := s.sessions.cache.GetUserByToken(ctx, t)
		if err != nil {
			return nil, s.sessions.unavailable("get token", err)
		}
		if snap != nil {
			live++
		}
	}
	online, err := s.sessions.cache.GetOnlineStatus(ctx, u.ID)
	if err != nil {
		s.log.Warn("get online status failed", zap.String("user_id", u.ID), zap.Error(err))
	}
	return &SessionSummary{UserID: u.ID, Email: u.Email, ActiveSessions: live, Online: online}, nil
}

// SetActive activates or deactivates an account.  Deactivation also ends
// every session of the user.
func (s *AdminService) SetActive(ctx context.Context, actorID, userID string, active bool) error {
	if actorID == userID && !active {
		return apperr.ErrForbidden.With("cannot deactivate your own account", nil)
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return userErr(err)
	}
	if err := s.users.Update(ctx, userID, model.UserUpdate{IsActive: &active}); err != nil {
		return userErr(err)
	}
	s.log.Info("account active flag changed",
		zap.String("actor_id", actorID), zap.String("user_id", userID), zap.Bool("active", active))
	if active {
		return nil
	}
	return s.sessions.revokeAll(ctx, u)
}

// SetRole changes the role of an account.  Existing sessions carry the old
// role, so they are ended.
func (s *AdminService) SetRole(ctx context.Context, actorID, userID string, role model.Role) error {
	if !role.Valid() {
		return apperr.ErrValidation.With("unknown role", map[string]any{"field": "role", "value": string(role)})
	}
	if actorID == userID {
		return apperr.ErrForbidden.With("cannot change your own role", nil)
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return userErr(err)
	}
	if err := s.users.Update(ctx, userID, model.UserUpdate{Role: &role}); err != nil {
		return userErr(err)
	}
	s.log.Info("role changed",
		zap.String("actor_id", actorID), zap.String("user_id", userID), zap.String("role", string(role)))
	return s.sessions.revokeAll(ctx, u)
}
