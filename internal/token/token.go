// Package token issues and validates the signed HS256 JWTs used by the
// service.  One Issuer mints five kinds of token (full access, limited
// access, refresh, email verification, password reset) and every validator
// checks the purpose claim explicitly, so a token of one kind is never
// accepted where another is expected.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/shop-backend/internal/apperr"
	"github.com/iliyamo/shop-backend/internal/model"
)

// Purpose values carried in the "purpose" claim.
const (
	PurposeAccess        = "access"
	PurposeRefresh       = "refresh"
	PurposeVerification  = "verification"
	PurposePasswordReset = "password_reset"
)

// Type is the token_type returned to clients.
const Type = "bearer"

// Claims is the payload of every token the Issuer signs.  Subject holds the
// email for access tokens; UserID is set on all kinds.
type Claims struct {
	jwt.RegisteredClaims
	UserID  string     `json:"user_id"`
	Role    model.Role `json:"role,omitempty"`
	Limited bool       `json:"limited"`
	Purpose string     `json:"purpose"`
}

// Subject is the identity snapshot needed to mint an access token.
type Subject struct {
	UserID   string
	Email    string
	Role     model.Role
	Verified bool
}

// Token is a signed token with its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Config carries the secret and per-purpose lifetimes.
type Config struct {
	Secret          string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

// Issuer signs and verifies tokens.  It is safe for concurrent use.
type Issuer struct {
	cfg    Config
	secret []byte
}

func NewIssuer(cfg Config) *Issuer {
	return &Issuer{cfg: cfg, secret: []byte(cfg.Secret)}
}

// AccessTTL is the lifetime of access tokens; the session cache and the
// access cookie use the same value.
func (i *Issuer) AccessTTL() time.Duration { return i.cfg.AccessTTL }

// RefreshTTL is the lifetime of refresh tokens.
func (i *Issuer) RefreshTTL() time.Duration { return i.cfg.RefreshTTL }

// CreateFullToken issues an unrestricted access token.
func (i *Issuer) CreateFullToken(s Subject) (Token, error) {
	return i.access(s, false)
}

// CreateLimitedToken issues an access token that the verification gate
// blocks from verification-required endpoints.
func (i *Issuer) CreateLimitedToken(s Subject) (Token, error) {
	return i.access(s, true)
}

// CreateAccessToken picks full or limited from s.Verified.
func (i *Issuer) CreateAccessToken(s Subject) (Token, error) {
	return i.access(s, !s.Verified)
}

func (i *Issuer) access(s Subject, limited bool) (Token, error) {
	return i.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: s.Email},
		UserID:           s.UserID,
		Role:             s.Role,
		Limited:          limited,
		Purpose:          PurposeAccess,
	}, i.cfg.AccessTTL)
}

func (i *Issuer) CreateRefreshToken(userID string) (Token, error) {
	return i.sign(Claims{UserID: userID, Purpose: PurposeRefresh}, i.cfg.RefreshTTL)
}

func (i *Issuer) CreateVerificationToken(userID string) (Token, error) {
	return i.sign(Claims{UserID: userID, Purpose: PurposeVerification}, i.cfg.VerificationTTL)
}

func (i *Issuer) CreatePasswordResetToken(userID string) (Token, error) {
	return i.sign(Claims{UserID: userID, Purpose: PurposePasswordReset}, i.cfg.ResetTTL)
}

func (i *Issuer) sign(c Claims, ttl time.Duration) (Token, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(exp)
	// jti keeps two tokens minted in the same second distinct
	c.ID = uuid.NewString()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return Token{}, err
	}
	return Token{Value: signed, ExpiresAt: exp}, nil
}

// Verify checks signature, algorithm and expiry and returns the claims.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apperr.ErrTokenMissing
	}
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.ErrTokenExpired
		}
		return nil, apperr.ErrTokenInvalid
	}
	if !tok.Valid {
		return nil, apperr.ErrTokenInvalid
	}
	return claims, nil
}

// ValidatePayload returns the subject (email) of an access token.
func (i *Issuer) ValidatePayload(c *Claims) (string, error) {
	if c == nil || c.Purpose != PurposeAccess || c.Subject == "" {
		return "", apperr.ErrTokenInvalid
	}
	return c.Subject, nil
}

func (i *Issuer) ValidateRefresh(c *Claims) (string, error) {
	return userIDFor(c, PurposeRefresh)
}

func (i *Issuer) ValidateVerification(c *Claims) (string, error) {
	return userIDFor(c, PurposeVerification)
}

func (i *Issuer) ValidatePasswordReset(c *Claims) (string, error) {
	return userIDFor(c, PurposePasswordReset)
}

func userIDFor(c *Claims, purpose string) (string, error) {
	if c == nil || c.Purpose != purpose || c.UserID == "" {
		return "", apperr.ErrTokenInvalid
	}
	return c.UserID, nil
}

// FromHeader extracts the token from an "Authorization: Bearer <t>" value.
func FromHeader(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", apperr.ErrTokenMissing
	}
	scheme, raw, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
		return "", apperr.ErrTokenMissing
	}
	return strings.TrimSpace(raw), nil
}
