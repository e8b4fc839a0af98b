package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/shop-backend/internal/apperr"
	"github.com/iliyamo/shop-backend/internal/model"
)

func newTestIssuer() *Issuer {
	return NewIssuer(Config{
		Secret:          "test-secret",
		AccessTTL:       15 * time.Minute,
		RefreshTTL:      24 * time.Hour,
		VerificationTTL: time.Hour,
		ResetTTL:        10 * time.Minute,
	})
}

var alice = Subject{UserID: "u-1", Email: "alice@example.com", Role: model.RoleUser}

func TestCreateAccessToken_LimitedFollowsVerification(t *testing.T) {
	iss := newTestIssuer()

	for _, verified := range []bool{false, true} {
		s := alice
		s.Verified = verified
		tok, err := iss.CreateAccessToken(s)
		require.NoError(t, err)

		claims, err := iss.Verify(tok.Value)
		require.NoError(t, err)
		assert.Equal(t, !verified, claims.Limited)
		assert.Equal(t, model.RoleUser, claims.Role)
		assert.Equal(t, "u-1", claims.UserID)

		sub, err := iss.ValidatePayload(claims)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", sub)
	}
}

func TestCreateFullAndLimited(t *testing.T) {
	iss := newTestIssuer()

	full, err := iss.CreateFullToken(alice)
	require.NoError(t, err)
	limited, err := iss.CreateLimitedToken(alice)
	require.NoError(t, err)

	fc, err := iss.Verify(full.Value)
	require.NoError(t, err)
	lc, err := iss.Verify(limited.Value)
	require.NoError(t, err)
	assert.False(t, fc.Limited)
	assert.True(t, lc.Limited)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), full.ExpiresAt, 5*time.Second)
}

func TestRefreshTokens_AreUnique(t *testing.T) {
	iss := newTestIssuer()
	a, err := iss.CreateRefreshToken("u-1")
	require.NoError(t, err)
	b, err := iss.CreateRefreshToken("u-1")
	require.NoError(t, err)
	assert.NotEqual(t, a.Value, b.Value)
}

func TestVerify_Errors(t *testing.T) {
	iss := newTestIssuer()

	_, err := iss.Verify("")
	assert.ErrorIs(t, err, apperr.ErrTokenMissing)

	_, err = iss.Verify("not-a-jwt")
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)

	other := NewIssuer(Config{Secret: "other", AccessTTL: time.Minute})
	foreign, err := other.CreateFullToken(alice)
	require.NoError(t, err)
	_, err = iss.Verify(foreign.Value)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)

	expired := NewIssuer(Config{Secret: "test-secret", AccessTTL: -time.Minute})
	old, err := expired.CreateFullToken(alice)
	require.NoError(t, err)
	_, err = iss.Verify(old.Value)
	assert.ErrorIs(t, err, apperr.ErrTokenExpired)
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	iss := newTestIssuer()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   alice.Email,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
		Purpose: PurposeAccess,
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = iss.Verify(raw)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)
}

func TestPurposeValidators_NoCrossPurpose(t *testing.T) {
	iss := newTestIssuer()

	access, _ := iss.CreateFullToken(alice)
	refresh, _ := iss.CreateRefreshToken("u-1")
	verify, _ := iss.CreateVerificationToken("u-1")
	reset, _ := iss.CreatePasswordResetToken("u-1")

	validators := map[string]func(*Claims) (string, error){
		PurposeAccess:        iss.ValidatePayload,
		PurposeRefresh:       iss.ValidateRefresh,
		PurposeVerification:  iss.ValidateVerification,
		PurposePasswordReset: iss.ValidatePasswordReset,
	}
	tokens := map[string]Token{
		PurposeAccess:        access,
		PurposeRefresh:       refresh,
		PurposeVerification:  verify,
		PurposePasswordReset: reset,
	}

	for tokPurpose, tok := range tokens {
		claims, err := iss.Verify(tok.Value)
		require.NoError(t, err)
		for valPurpose, validate := range validators {
			_, err := validate(claims)
			if tokPurpose == valPurpose {
				assert.NoError(t, err, "%s token with %s validator", tokPurpose, valPurpose)
			} else {
				assert.ErrorIs(t, err, apperr.ErrTokenInvalid, "%s token with %s validator", tokPurpose, valPurpose)
			}
		}
	}
}

func TestFromHeader(t *testing.T) {
	tok, err := FromHeader("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", tok)

	tok, err = FromHeader("bearer   xyz ")
	require.NoError(t, err)
	assert.Equal(t, "xyz", tok)

	for _, h := range []string{"", "Bearer", "Bearer ", "Basic abc"} {
		_, err := FromHeader(h)
		assert.ErrorIs(t, err, apperr.ErrTokenMissing, "header %q", h)
	}
}
