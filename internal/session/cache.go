// Package session keeps short-lived authentication state in Redis: active
// access tokens, per-user refresh token sets, and online presence.  Nothing
// here touches the durable user store.
//
// Keys:
//
//	token:<token>                 JSON Snapshot, TTL = access token lifetime
//	sessions:<email>              set of active access tokens
//	last_activity:<token>         unix seconds of the last authenticated request
//	online:<user_id>              "true" (TTL = inactivity timeout) or "false" (no TTL)
//	user:<user_id>:refresh_tokens set of outstanding refresh tokens
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/shop-backend/internal/model"
)

// Snapshot is the identity stored next to an access token.
type Snapshot struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	Email      string     `json:"email"`
	Role       model.Role `json:"role"`
	IsActive   bool       `json:"is_active"`
	IsVerified bool       `json:"is_verified"`
}

// SnapshotOf copies the cacheable part of a user record.
func SnapshotOf(u *model.User) Snapshot {
	return Snapshot{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		Role:       u.Role,
		IsActive:   u.IsActive,
		IsVerified: u.IsVerified,
	}
}

// Config holds the TTLs applied to each key family.
type Config struct {
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	InactiveTimeout time.Duration
}

// Cache is the Redis-backed session store.
type Cache struct {
	rdb redis.Cmdable
	cfg Config
	now func() time.Time
}

func NewCache(rdb redis.Cmdable, cfg Config) *Cache {
	return &Cache{rdb: rdb, cfg: cfg, now: time.Now}
}

func tokenKey(token string) string { return "token:" + token }
func sessionsKey(email string) string { return "sessions:" + email }
func activityKey(token string) string { return "last_activity:" + token }
func onlineKey(userID string) string { return "online:" + userID }
func refreshKey(userID string) string { return "user:" + userID + ":refresh_tokens" }

// SaveToken stores the snapshot under the token and adds the token to the
// owner's session set.
func (c *Cache) SaveToken(ctx context.Context, s Snapshot, token string) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: marshal snapshot: %w", err)
	}
	if err := c.rdb.Set(ctx, tokenKey(token), data, c.cfg.AccessTTL).Err(); err != nil {
		return fmt.Errorf("session: save token: %w", err)
	}
	if err := c.rdb.SAdd(ctx, sessionsKey(s.Email), token).Err(); err != nil {
		return fmt.Errorf("session: add to session set: %w", err)
	}
	// the set outlives any single token it holds
	if err := c.rdb.Expire(ctx, sessionsKey(s.Email), c.cfg.AccessTTL).Err(); err != nil {
		return fmt.Errorf("session: expire session set: %w", err)
	}
	return nil
}

// GetUserByToken returns the snapshot stored for token, or nil when the
// token is unknown or expired from the cache.
func (c *Cache) GetUserByToken(ctx context.Context, token string) (*Snapshot, error) {
	val, err := c.rdb.Get(ctx, tokenKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: get token: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, fmt.Errorf("session: unmarshal snapshot: %w", err)
	}
	return &s, nil
}

// RemoveToken deletes the token entry, its activity key and its membership
// in the owner's session set.
func (c *Cache) RemoveToken(ctx context.Context, token string) error {
	s, err := c.GetUserByToken(ctx, token)
	if err != nil {
		return err
	}
	if s != nil {
		if err := c.rdb.SRem(ctx, sessionsKey(s.Email), token).Err(); err != nil {
			return fmt.Errorf("session: remove from session set: %w", err)
		}
	}
	if err := c.rdb.Del(ctx, tokenKey(token), activityKey(token)).Err(); err != nil {
		return fmt.Errorf("session: delete token: %w", err)
	}
	return nil
}

// Sessions lists the access tokens recorded for email.  Tokens whose entry
// already expired may still be listed until the set itself expires.
func (c *Cache) Sessions(ctx context.Context, email string) ([]string, error) {
	tokens, err := c.rdb.SMembers(ctx, sessionsKey(email)).Result()
	if err != nil {
		return nil, fmt.Errorf("session: list sessions: %w", err)
	}
	return tokens, nil
}

// RemoveAllSessions drops every access token recorded for email.
func (c *Cache) RemoveAllSessions(ctx context.Context, email string) error {
	tokens, err := c.Sessions(ctx, email)
	if err != nil {
		return err
	}
	keys := make([]string, 0, 2*len(tokens)+1)
	for _, t := range tokens {
		keys = append(keys, tokenKey(t), activityKey(t))
	}
	keys = append(keys, sessionsKey(email))
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("session: remove sessions: %w", err)
	}
	return nil
}

// RemoveOtherSessions drops every access token recorded for email except
// keep.
func (c *Cache) RemoveOtherSessions(ctx context.Context, email, keep string) error {
	tokens, err := c.Sessions(ctx, email)
	if err != nil {
		return err
	}
	var keys, gone []string
	for _, t := range tokens {
		if t == keep {
			continue
		}
		keys = append(keys, tokenKey(t), activityKey(t))
		gone = append(gone, t)
	}
	if len(gone) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("session: remove sessions: %w", err)
	}
	if err := c.rdb.SRem(ctx, sessionsKey(email), gone).Err(); err != nil {
		return fmt.Errorf("session: remove from session set: %w", err)
	}
	return nil
}

// UpdateSessions rewrites the snapshot of every live token recorded under
// oldEmail and files the tokens under s.Email.  Each entry keeps its TTL.
func (c *Cache) UpdateSessions(ctx context.Context, oldEmail string, s Snapshot) error {
	tokens, err := c.Sessions(ctx, oldEmail)
	if err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: marshal snapshot: %w", err)
	}
	var live []string
	for _, t := range tokens {
		// XX skips tokens whose entry already expired
		err := c.rdb.SetArgs(ctx, tokenKey(t), data, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fmt.Errorf("session: rewrite snapshot: %w", err)
		}
		live = append(live, t)
	}
	if oldEmail != s.Email {
		if err := c.rdb.Del(ctx, sessionsKey(oldEmail)).Err(); err != nil {
			return fmt.Errorf("session: delete session set: %w", err)
		}
	}
	if len(live) == 0 {
		return nil
	}
	if err := c.rdb.SAdd(ctx, sessionsKey(s.Email), live).Err(); err != nil {
		return fmt.Errorf("session: add to session set: %w", err)
	}
	if err := c.rdb.Expire(ctx, sessionsKey(s.Email), c.cfg.AccessTTL).Err(); err != nil {
		return fmt.Errorf("session: expire session set: %w", err)
	}
	return nil
}

// SaveRefreshToken adds token to the user's refresh set and pushes the set
// expiry out to a full refresh lifetime.
func (c *Cache) SaveRefreshToken(ctx context.Context, userID, token string) error {
	key := refreshKey(userID)
	if err := c.rdb.SAdd(ctx, key, token).Err(); err != nil {
		return fmt.Errorf("session: save refresh token: %w", err)
	}
	if err := c.rdb.Expire(ctx, key, c.cfg.RefreshTTL).Err(); err != nil {
		return fmt.Errorf("session: expire refresh set: %w", err)
	}
	return nil
}

func (c *Cache) CheckRefreshToken(ctx context.Context, userID, token string) (bool, error) {
	ok, err := c.rdb.SIsMember(ctx, refreshKey(userID), token).Result()
	if err != nil {
		return false, fmt.Errorf("session: check refresh token: %w", err)
	}
	return ok, nil
}

func (c *Cache) RemoveRefreshToken(ctx context.Context, userID, token string) error {
	if err := c.rdb.SRem(ctx, refreshKey(userID), token).Err(); err != nil {
		return fmt.Errorf("session: remove refresh token: %w", err)
	}
	return nil
}

// ConsumeRefreshToken removes token from the user's set and reports whether
// it was there.  SREM is atomic, so of two concurrent redemptions of the
// same token exactly one observes true.
func (c *Cache) ConsumeRefreshToken(ctx context.Context, userID, token string) (bool, error) {
	n, err := c.rdb.SRem(ctx, refreshKey(userID), token).Result()
	if err != nil {
		return false, fmt.Errorf("session: consume refresh token: %w", err)
	}
	return n == 1, nil
}

func (c *Cache) RemoveAllRefreshTokens(ctx context.Context, userID string) error {
	if err := c.rdb.Del(ctx, refreshKey(userID)).Err(); err != nil {
		return fmt.Errorf("session: remove refresh tokens: %w", err)
	}
	return nil
}

// SetOnlineStatus records presence.  Online expires after the inactivity
// timeout; offline is written without expiry and persists until the next
// login overwrites it.
func (c *Cache) SetOnlineStatus(ctx context.Context, userID string, online bool) error {
	var ttl time.Duration
	if online {
		ttl = c.cfg.InactiveTimeout
	}
	if err := c.rdb.Set(ctx, onlineKey(userID), strconv.FormatBool(online), ttl).Err(); err != nil {
		return fmt.Errorf("session: set online status: %w", err)
	}
	return nil
}

// GetOnlineStatus treats a missing key as offline.
func (c *Cache) GetOnlineStatus(ctx context.Context, userID string) (bool, error) {
	val, err := c.rdb.Get(ctx, onlineKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("session: get online status: %w", err)
	}
	return val == "true", nil
}

// UpdateLastActivity stamps the token with the current time.  The stamp
// expires with the token it describes.
func (c *Cache) UpdateLastActivity(ctx context.Context, token string) error {
	ts := strconv.FormatInt(c.now().Unix(), 10)
	if err := c.rdb.Set(ctx, activityKey(token), ts, c.cfg.AccessTTL).Err(); err != nil {
		return fmt.Errorf("session: update last activity: %w", err)
	}
	return nil
}

// GetLastActivity returns unix seconds, or 0 when nothing was recorded.
func (c *Cache) GetLastActivity(ctx context.Context, token string) (int64, error) {
	val, err := c.rdb.Get(ctx, activityKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("session: get last activity: %w", err)
	}
	ts, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("session: parse last activity %q: %w", val, err)
	}
	return ts, nil
}
