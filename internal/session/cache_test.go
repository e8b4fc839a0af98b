package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/shop-backend/internal/model"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	c := NewCache(rdb, Config{
		AccessTTL:       30 * time.Minute,
		RefreshTTL:      24 * time.Hour,
		InactiveTimeout: 15 * time.Minute,
	})
	return c, mr
}

var bob = Snapshot{ID: "u-2", Username: "bob", Email: "bob@example.com", Role: model.RoleUser, IsActive: true}

func TestSaveAndGetToken(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SaveToken(ctx, bob, "tok-1"))

	got, err := c.GetUserByToken(ctx, "tok-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, bob, *got)
	assert.Equal(t, 30*time.Minute, mr.TTL("token:tok-1"))

	sessions, err := c.Sessions(ctx, bob.Email)
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-1"}, sessions)
}

func TestGetUserByToken_Unknown(t *testing.T) {
	c, _ := newTestCache(t)

	got, err := c.GetUserByToken(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetUserByToken_ExpiresWithAccessTTL(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.SaveToken(ctx, bob, "tok-1"))

	mr.FastForward(31 * time.Minute)

	got, err := c.GetUserByToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRemoveToken(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.SaveToken(ctx, bob, "tok-1"))
	require.NoError(t, c.SaveToken(ctx, bob, "tok-2"))
	require.NoError(t, c.UpdateLastActivity(ctx, "tok-1"))

	require.NoError(t, c.RemoveToken(ctx, "tok-1"))

	got, err := c.GetUserByToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, mr.Exists("last_activity:tok-1"))

	sessions, err := c.Sessions(ctx, bob.Email)
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-2"}, sessions)

	// removing an unknown token is not an error
	assert.NoError(t, c.RemoveToken(ctx, "tok-1"))
}

func TestRemoveAllSessions(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.SaveToken(ctx, bob, "tok-1"))
	require.NoError(t, c.SaveToken(ctx, bob, "tok-2"))

	require.NoError(t, c.RemoveAllSessions(ctx, bob.Email))

	for _, tok := range []string{"tok-1", "tok-2"} {
		got, err := c.GetUserByToken(ctx, tok)
		require.NoError(t, err)
		assert.Nil(t, got, tok)
	}
	assert.False(t, mr.Exists("sessions:"+bob.Email))
}

func TestRemoveOtherSessions(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	for _, tok := range []string{"tok-1", "tok-2", "tok-3"} {
		require.NoError(t, c.SaveToken(ctx, bob, tok))
		require.NoError(t, c.UpdateLastActivity(ctx, tok))
	}

	require.NoError(t, c.RemoveOtherSessions(ctx, bob.Email, "tok-2"))

	sessions, err := c.Sessions(ctx, bob.Email)
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-2"}, sessions)
	assert.True(t, mr.Exists("token:tok-2"))
	assert.False(t, mr.Exists("token:tok-1"))
	assert.False(t, mr.Exists("last_activity:tok-3"))

	require.NoError(t, c.RemoveOtherSessions(ctx, bob.Email, "tok-2"), "nothing left to remove")
}

func TestUpdateSessions_MovesToNewEmail(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.SaveToken(ctx, bob, "tok-1"))
	require.NoError(t, c.SaveToken(ctx, bob, "tok-2"))
	mr.FastForward(10 * time.Minute)
	mr.Del("token:tok-2")

	renamed := bob
	renamed.Email = "robert@example.com"
	renamed.Username = "robert"
	require.NoError(t, c.UpdateSessions(ctx, bob.Email, renamed))

	got, err := c.GetUserByToken(ctx, "tok-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, renamed, *got)
	assert.Equal(t, 20*time.Minute, mr.TTL("token:tok-1"), "entry keeps its remaining lifetime")
	assert.False(t, mr.Exists("token:tok-2"), "expired entries are not resurrected")

	old, err := c.Sessions(ctx, bob.Email)
	require.NoError(t, err)
	assert.Empty(t, old)
	moved, err := c.Sessions(ctx, renamed.Email)
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-1"}, moved)

	// force logout under the new address still finds the token
	require.NoError(t, c.RemoveAllSessions(ctx, renamed.Email))
	got, err = c.GetUserByToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRefreshToken_SingleUse(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SaveRefreshToken(ctx, "u-2", "r-1"))
	assert.Equal(t, 24*time.Hour, mr.TTL("user:u-2:refresh_tokens"))

	ok, err := c.CheckRefreshToken(ctx, "u-2", "r-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.ConsumeRefreshToken(ctx, "u-2", "r-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.ConsumeRefreshToken(ctx, "u-2", "r-1")
	require.NoError(t, err)
	assert.False(t, ok, "replayed refresh token must not be accepted")
}

func TestRefreshToken_RemoveAndRemoveAll(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.SaveRefreshToken(ctx, "u-2", "r-1"))
	require.NoError(t, c.SaveRefreshToken(ctx, "u-2", "r-2"))
	require.NoError(t, c.SaveRefreshToken(ctx, "u-2", "r-3"))

	require.NoError(t, c.RemoveRefreshToken(ctx, "u-2", "r-1"))
	ok, err := c.CheckRefreshToken(ctx, "u-2", "r-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.RemoveAllRefreshTokens(ctx, "u-2"))
	for _, tok := range []string{"r-2", "r-3"} {
		ok, err := c.CheckRefreshToken(ctx, "u-2", tok)
		require.NoError(t, err)
		assert.False(t, ok, tok)
	}
}

func TestOnlineStatus(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	online, err := c.GetOnlineStatus(ctx, "u-2")
	require.NoError(t, err)
	assert.False(t, online, "absent key means offline")

	require.NoError(t, c.SetOnlineStatus(ctx, "u-2", true))
	online, err = c.GetOnlineStatus(ctx, "u-2")
	require.NoError(t, err)
	assert.True(t, online)
	assert.Equal(t, 15*time.Minute, mr.TTL("online:u-2"))

	mr.FastForward(16 * time.Minute)
	online, err = c.GetOnlineStatus(ctx, "u-2")
	require.NoError(t, err)
	assert.False(t, online, "online flag expires after inactivity timeout")

	require.NoError(t, c.SetOnlineStatus(ctx, "u-2", false))
	online, err = c.GetOnlineStatus(ctx, "u-2")
	require.NoError(t, err)
	assert.False(t, online)
	assert.Zero(t, mr.TTL("online:u-2"), "offline is stored without expiry")
}

func TestLastActivity(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	c.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	ts, err := c.GetLastActivity(ctx, "tok-1")
	require.NoError(t, err)
	assert.Zero(t, ts)

	require.NoError(t, c.UpdateLastActivity(ctx, "tok-1"))
	ts, err = c.GetLastActivity(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000), ts)
	assert.Equal(t, 30*time.Minute, mr.TTL("last_activity:tok-1"))
}

func TestCacheUnavailable_ReturnsErrors(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.SaveToken(ctx, bob, "tok-1"))
	mr.Close()

	got, err := c.GetUserByToken(ctx, "tok-1")
	assert.Error(t, err)
	assert.Nil(t, got)

	_, err = c.ConsumeRefreshToken(ctx, "u-2", "r-1")
	assert.Error(t, err)
}
