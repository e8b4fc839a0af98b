// Package testutil provides in-memory collaborators for service, middleware
// and handler tests.
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/shop-backend/internal/apperr"
	"github.com/iliyamo/shop-backend/internal/model"
	"github.com/iliyamo/shop-backend/internal/repository"
	"github.com/iliyamo/shop-backend/internal/session"
)

// UserStore keeps users in a map and enforces the same uniqueness rules as
// the users table.  Safe for concurrent use.
type UserStore struct {
	mu    sync.Mutex
	users map[string]model.User

	// Err, when set, is returned by every call.
	Err error
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]model.User)}
}

func (s *UserStore) Create(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	u.Email = repository.NormalizeEmail(u.Email)
	for _, other := range s.users {
		if clash(*u, other) {
			return apperr.ErrUserExists
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.ID] = *u
	return nil
}

func clash(a, b model.User) bool {
	return a.Username == b.Username || a.Email == b.Email ||
		(a.Phone != nil && b.Phone != nil && *a.Phone == *b.Phone)
}

func (s *UserStore) FindByIdentifier(_ context.Context, identifier string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	ident := strings.TrimSpace(identifier)
	email := repository.NormalizeEmail(identifier)
	matchers := []func(model.User) bool{
		func(u model.User) bool { return u.Username == ident },
		func(u model.User) bool { return u.Email == email },
		func(u model.User) bool { return u.Phone != nil && *u.Phone == ident },
	}
	for _, match := range matchers {
		for _, u := range s.users {
			if match(u) {
				cp := u
				return &cp, nil
			}
		}
	}
	return nil, repository.ErrNotFound
}

func (s *UserStore) GetByID(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	email = repository.NormalizeEmail(email)
	for _, u := range s.users {
		if u.Email == email {
			cp := u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *UserStore) Update(_ context.Context, id string, upd model.UserUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	u, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	if upd.Username != nil {
		u.Username = strings.TrimSpace(*upd.Username)
	}
	if upd.Email != nil {
		u.Email = repository.NormalizeEmail(*upd.Email)
	}
	if upd.Phone != nil {
		if phone := strings.TrimSpace(*upd.Phone); phone != "" {
			u.Phone = &phone
		} else {
			u.Phone = nil
		}
	}
	for otherID, other := range s.users {
		if otherID != id && clash(u, other) {
			return apperr.ErrUserExists
		}
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.IsActive != nil {
		u.IsActive = *upd.IsActive
	}
	if upd.IsVerified != nil {
		u.IsVerified = *upd.IsVerified
	}
	if upd.Avatar != nil {
		avatar := *upd.Avatar
		u.Avatar = &avatar
	}
	if upd.LastLogin != nil {
		ts := *upd.LastLogin
		u.LastLogin = &ts
	}
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return nil
}

// List pages users in creation order, like the users table query.
func (s *UserStore) List(_ context.Context, f model.UserFilter) ([]model.User, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, 0, s.Err
	}
	search := strings.ToLower(strings.TrimSpace(f.Search))
	var matched []model.User
	for _, u := range s.users {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(u.Username), search) &&
			!strings.Contains(u.Email, search) {
			continue
		}
		matched = append(matched, u)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	total := len(matched)
	if f.Offset >= total {
		return nil, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	return matched[f.Offset:end], total, nil
}

// Put stores u as is, bypassing uniqueness checks.
func (s *UserStore) Put(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// Message is one payload handed to Publisher.
type Message struct {
	Queue   string
	Payload any
}

// Publisher records enqueued payloads.
type Publisher struct {
	mu       sync.Mutex
	messages []Message

	// Err, when set, is returned by Enqueue and nothing is recorded.
	Err error
}

func (p *Publisher) Enqueue(_ context.Context, queue string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.messages = append(p.messages, Message{Queue: queue, Payload: payload})
	return nil
}

// Messages returns the payloads sent to queue, in order.
func (p *Publisher) Messages(queue string) []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Message
	for _, m := range p.messages {
		if m.Queue == queue {
			out = append(out, m)
		}
	}
	return out
}

// SessionConfig is the cache configuration used by NewSessionCache.
var SessionConfig = session.Config{
	AccessTTL:       30 * time.Minute,
	RefreshTTL:      30 * 24 * time.Hour,
	InactiveTimeout: 15 * time.Minute,
}

// NewSessionCache returns a session cache backed by a private miniredis.
func NewSessionCache(t *testing.T) (*session.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return session.NewCache(rdb, SessionConfig), mr
}
