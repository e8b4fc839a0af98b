package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/shop-backend/internal/apperr"
	"github.com/iliyamo/shop-backend/internal/queue"
)

func TestAuthenticate_LimitedFollowsVerification(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	unverified := e.addUser(t, "anna", "anna@example.com", "password-1", false, true)
	verified := e.addUser(t, "ben", "ben@example.com", "password-2", true, true)

	cases := []struct {
		username, password, email string
		wantLimited               bool
	}{
		{unverified.Username, "password-1", unverified.Email, true},
		{verified.Username, "password-2", verified.Email, false},
	}
	for _, tc := range cases {
		pair, err := e.auth.Authenticate(ctx, tc.username, tc.password)
		require.NoError(t, err, tc.username)

		claims, err := e.tokens.Verify(pair.AccessToken)
		require.NoError(t, err)
		sub, err := e.tokens.ValidatePayload(claims)
		require.NoError(t, err)
		assert.Equal(t, tc.email, sub)
		assert.Equal(t, tc.wantLimited, claims.Limited)
		assert.Equal(t, tc.wantLimited, pair.Limited)
		assert.Equal(t, "bearer", pair.TokenType)
	}
}

func TestAuthenticate_RecordsSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.addUser(t, "carl", "carl@example.com", "password-1", true, true)

	pair, err := e.auth.Authenticate(ctx, "carl", "password-1")
	require.NoError(t, err)

	snap, err := e.cache.GetUserByToken(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, u.ID, snap.ID)

	online, err := e.cache.GetOnlineStatus(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, online)

	stored, err := e.users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLogin)
}

func TestAuthenticate_IdentifierKinds(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.addUser(t, "dora", "dora@example.com", "password-1", true, true)
	phone := "+15550001111"
	withPhone := *u
	withPhone.Phone = &phone
	e.users.Put(withPhone)

	for _, ident := range []string{"dora", "DORA@example.com", "+15550001111"} {
		_, err := e.auth.Authenticate(ctx, ident, "password-1")
		assert.NoError(t, err, ident)
	}
}

func TestAuthenticate_WrongPasswordIndistinguishableFromUnknownUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addUser(t, "eve", "eve@example.com", "password-1", true, true)

	_, wrongPw := e.auth.Authenticate(ctx, "eve", "not-the-password")
	_, unknown := e.auth.Authenticate(ctx, "nobody", "not-the-password")

	require.ErrorIs(t, wrongPw, apperr.ErrInvalidCredentials)
	require.ErrorIs(t, unknown, apperr.ErrInvalidCredentials)
	a, b := apperr.As(wrongPw), apperr.As(unknown)
	assert.Equal(t, a.Status, b.Status)
	assert.Equal(t, a.Type, b.Type)
	assert.Equal(t, a.Detail, b.Detail)
}

func TestAuthenticate_InactiveAccountForbidden(t *testing.T) {
	e := newEnv(t)
	e.addUser(t, "fred", "fred@example.com", "password-1", true, false)

	_, err := e.auth.Authenticate(context.Background(), "fred", "password-1")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestAuthenticate_CacheDownFailsLogin(t *testing.T) {
	e := newEnv(t)
	e.addUser(t, "gil", "gil@example.com", "password-1", true, true)
	e.mr.Close()

	_, err := e.auth.Authenticate(context.Background(), "gil", "password-1")
	assert.ErrorIs(t, err, apperr.ErrServiceUnavailable)
}

func TestRefresh_SingleUse(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addUser(t, "hana", "hana@example.com", "password-1", true, true)
	pair, err := e.auth.Authenticate(ctx, "hana", "password-1")
	require.NoError(t, err)

	next, err := e.auth.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	_, err = e.auth.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)

	// the replacement still works
	_, err = e.auth.Refresh(ctx, next.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_ConcurrentRedemptionSucceedsOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addUser(t, "ivan", "ivan@example.com", "password-1", true, true)
	pair, err := e.auth.Authenticate(ctx, "ivan", "password-1")
	require.NoError(t, err)

	const n = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		losses int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.auth.Refresh(ctx, pair.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if errors.Is(err, apperr.ErrTokenInvalid) {
				losses++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, losses)
}

func TestRefresh_RejectsOtherPurposes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addUser(t, "jade", "jade@example.com", "password-1", true, true)
	pair, err := e.auth.Authenticate(ctx, "jade", "password-1")
	require.NoError(t, err)

	_, err = e.auth.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)

	_, err = e.auth.Refresh(ctx, "")
	assert.ErrorIs(t, err, apperr.ErrTokenMissing)
}

func TestRefresh_DeactivatedUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.addUser(t, "kim", "kim@example.com", "password-1", true, true)
	pair, err := e.auth.Authenticate(ctx, "kim", "password-1")
	require.NoError(t, err)

	u.IsActive = false
	e.users.Put(*u)

	_, err = e.auth.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestLogout_RevokesAccessAndRefresh(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.addUser(t, "lena", "lena@example.com", "password-1", true, true)
	pair, err := e.auth.Authenticate(ctx, "lena", "password-1")
	require.NoError(t, err)
	_, err = e.auth.Authorize(ctx, pair.AccessToken)
	require.NoError(t, err)

	require.NoError(t, e.auth.Logout(ctx, pair.AccessToken))

	snap, err := e.cache.GetUserByToken(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Nil(t, snap)

	_, err = e.auth.Authorize(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)

	_, err = e.auth.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)

	online, err := e.cache.GetOnlineStatus(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, online)
}

func TestLogout_UnusableToken(t *testing.T) {
	e := newEnv(t)

	assert.NoError(t, e.auth.Logout(context.Background(), "garbage"))
	assert.ErrorIs(t, e.auth.Logout(context.Background(), "  "), apperr.ErrTokenMissing)
}

func TestAuthorize(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.addUser(t, "mia", "mia@example.com", "password-1", false, true)
	pair, err := e.auth.Authenticate(ctx, "mia", "password-1")
	require.NoError(t, err)

	p, err := e.auth.Authorize(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, p.ID)
	assert.True(t, p.Limited)
	assert.Equal(t, pair.AccessToken, p.Token)

	ts, err := e.cache.GetLastActivity(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.NotZero(t, ts)
}

func TestAuthorize_SignatureAloneIsNotEnough(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addUser(t, "nia", "nia@example.com", "password-1", true, true)
	pair, err := e.auth.Authenticate(ctx, "nia", "password-1")
	require.NoError(t, err)

	e.mr.Del("token:" + pair.AccessToken)

	_, err = e.auth.Authorize(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)
}

func TestAuthorize_FailsClosedWhenCacheDown(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addUser(t, "otto", "otto@example.com", "password-1", true, true)
	pair, err := e.auth.Authenticate(ctx, "otto", "password-1")
	require.NoError(t, err)

	e.mr.Close()

	_, err = e.auth.Authorize(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrServiceUnavailable)
}

func TestPasswordReset(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.addUser(t, "pia", "pia@example.com", "password-1", true, true)
	old, err := e.auth.Authenticate(ctx, "pia", "password-1")
	require.NoError(t, err)

	require.NoError(t, e.auth.RequestPasswordReset(ctx, "nobody@example.com"))
	assert.Empty(t, e.pub.Messages(queue.QueuePasswordReset), "unknown address sends nothing")

	require.NoError(t, e.auth.RequestPasswordReset(ctx, "PIA@example.com"))
	msgs := e.pub.Messages(queue.QueuePasswordReset)
	require.Len(t, msgs, 1)
	mail := msgs[0].Payload.(queue.PasswordResetEmail)
	assert.Equal(t, u.Email, mail.To)
	assert.Equal(t, 30, mail.ExpiresInMinutes)

	err = e.auth.ResetPassword(ctx, mail.Token, "short")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	require.NoError(t, e.auth.ResetPassword(ctx, mail.Token, "brand-new-password"))

	_, err = e.auth.Authenticate(ctx, "pia", "password-1")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
	_, err = e.auth.Authenticate(ctx, "pia", "brand-new-password")
	assert.NoError(t, err)

	_, err = e.auth.Refresh(ctx, old.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid, "reset signs out other sessions")
	_, err = e.auth.Authorize(ctx, old.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)
}

func TestResetPassword_RejectsVerificationToken(t *testing.T) {
	e := newEnv(t)
	u := e.addUser(t, "quin", "quin@example.com", "password-1", false, true)
	tok, err := e.tokens.CreateVerificationToken(u.ID)
	require.NoError(t, err)

	err = e.auth.ResetPassword(context.Background(), tok.Value, "brand-new-password")
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)
}
