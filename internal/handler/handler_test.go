package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/shop-backend/internal/apperr"
	"github.com/iliyamo/shop-backend/internal/config"
	"github.com/iliyamo/shop-backend/internal/service"
)

func render(t *testing.T, log *zap.Logger, method string, err error) (*httptest.ResponseRecorder, errorBody) {
	t.Helper()
	req := httptest.NewRequest(method, "/api/v1/x", nil)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	ErrorHandler(log)(err, c)

	var b errorBody
	if method != http.MethodHead {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	}
	return rec, b
}

func TestErrorHandler_DomainError(t *testing.T) {
	err := fmt.Errorf("refresh: %w", apperr.ErrVerificationRequired.With("verify first",
		map[string]any{"verification_url": "/api/v1/verification/resend"}))

	rec, b := render(t, zap.NewNop(), http.MethodGet, err)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "verify first", b.Detail)
	assert.Equal(t, "email_verification_required", b.ErrorType)
	assert.Equal(t, http.StatusForbidden, b.StatusCode)
	assert.Equal(t, "/api/v1/verification/resend", b.Extra["verification_url"])
}

func TestErrorHandler_TokenExpiredStatus(t *testing.T) {
	rec, b := render(t, zap.NewNop(), http.MethodGet, apperr.ErrTokenExpired)
	assert.Equal(t, apperr.StatusTokenExpired, rec.Code)
	assert.Equal(t, "token_expired", b.ErrorType)
}

func TestErrorHandler_EchoError(t *testing.T) {
	rec, b := render(t, zap.NewNop(), http.MethodGet, echo.ErrMethodNotAllowed)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "method_not_allowed", b.ErrorType)
}

func TestErrorHandler_UnknownErrorIsHidden(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	rec, b := render(t, zap.New(core), http.MethodGet, errors.New("dial tcp 10.0.0.5:3306: refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", b.ErrorType)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "unhandled error", logs.All()[0].Message)
}

func TestErrorHandler_Head(t *testing.T) {
	rec, _ := render(t, zap.NewNop(), http.MethodHead, apperr.ErrUserNotFound)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestStatusType(t *testing.T) {
	assert.Equal(t, "not_found", statusType(http.StatusNotFound))
	assert.Equal(t, "http_error", statusType(599))
}

func TestCookies_SetAndClear(t *testing.T) {
	k := NewCookies(config.CookieConfig{Secure: true, SameSite: http.SameSiteStrictMode})
	pair := &service.TokenPair{
		AccessToken:      "acc",
		RefreshToken:     "ref",
		AccessExpiresAt:  time.Now().Add(30 * time.Minute),
		RefreshExpiresAt: time.Now().Add(24 * time.Hour),
	}

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	k.Set(c, pair)

	got := map[string]*http.Cookie{}
	for _, ck := range rec.Result().Cookies() {
		got[ck.Name] = ck
	}
	require.Len(t, got, 2)
	assert.Equal(t, "acc", got[AccessCookie].Value)
	assert.Equal(t, "/", got[AccessCookie].Path)
	assert.Equal(t, "ref", got[RefreshCookie].Value)
	assert.Equal(t, "/api/v1/auth/refresh", got[RefreshCookie].Path)
	for _, ck := range got {
		assert.True(t, ck.HttpOnly)
		assert.True(t, ck.Secure)
		assert.Equal(t, http.SameSiteStrictMode, ck.SameSite)
	}
	assert.InDelta(t, (30 * time.Minute).Seconds(), float64(got[AccessCookie].MaxAge), 5)
	assert.InDelta(t, (24 * time.Hour).Seconds(), float64(got[RefreshCookie].MaxAge), 5)

	rec = httptest.NewRecorder()
	c = echo.New().NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	k.Clear(c)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 2)
	for _, ck := range cleared {
		assert.Empty(t, ck.Value)
		assert.Equal(t, -1, ck.MaxAge)
	}
}

func TestQueryFlag(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/?use_cookies=true&clear_cookies=nah", nil), httptest.NewRecorder())
	assert.True(t, queryFlag(c, "use_cookies", false))
	assert.True(t, queryFlag(c, "clear_cookies", true))
	assert.False(t, queryFlag(c, "missing", false))
}

func TestTokensOf(t *testing.T) {
	p := &service.TokenPair{AccessToken: "a", RefreshToken: "r", TokenType: "bearer", ExpiresIn: 60, Limited: true}
	assert.Equal(t, tokensView{AccessToken: "a", RefreshToken: "r", TokenType: "bearer", ExpiresIn: 60, Limited: true}, tokensOf(p, false))
	assert.Equal(t, tokensView{TokenType: "bearer", ExpiresIn: 60, Limited: true}, tokensOf(p, true))
}
