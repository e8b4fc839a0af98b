package service

import (
	"context"
	"errors"
	"net/mail"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/shop-backend/internal/apperr"
	"github.com/iliyamo/shop-backend/internal/metrics"
	"github.com/iliyamo/shop-backend/internal/model"
	"github.com/iliyamo/shop-backend/internal/repository"
	"github.com/iliyamo/shop-backend/internal/token"
)

var (
	usernameRe = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,64}$`)
	phoneRe    = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
)

// RegisterInput is a sign-up request.
type RegisterInput struct {
	Username string
	Email    string
	Phone    string
	Password string
}

// Validate checks the shape of every field.
func (in RegisterInput) Validate() error {
	if err := validateUsername(in.Username); err != nil {
		return err
	}
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	if in.Phone != "" {
		return validatePhone(in.Phone)
	}
	return nil
}

func validateUsername(name string) error {
	if !usernameRe.MatchString(name) {
		return fieldError("username", "username must be 3-64 letters, digits, '.', '_' or '-'")
	}
	if strings.Contains(name, "@") || phoneRe.MatchString(name) {
		return fieldError("username", "username must not look like an email or phone number")
	}
	return nil
}

func validateEmail(email string) error {
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != strings.TrimSpace(email) {
		return fieldError("email", "invalid email address")
	}
	return nil
}

func validatePhone(phone string) error {
	if !phoneRe.MatchString(phone) {
		return fieldError("phone", "invalid phone number")
	}
	return nil
}

func fieldError(field, detail string) error {
	return apperr.ErrValidation.With(detail, map[string]any{"field": field})
}

// Registration is the result of a successful sign-up.
type Registration struct {
	User   *model.User
	Tokens *TokenPair
}

// Verification is the result of redeeming a verification token.
type Verification struct {
	User            *model.User
	Tokens          *TokenPair
	AlreadyVerified bool
}

// RegistrationService creates accounts and drives email verification.
type RegistrationService struct {
	users      UserStore
	sessions   sessions
	notifier   *Notifier
	bcryptCost int
	log        *zap.Logger
}

func NewRegistrationService(users UserStore, cache SessionStore, tokens *token.Issuer, notifier *Notifier, bcryptCost int, log *zap.Logger) *RegistrationService {
	return &RegistrationService{
		users:      users,
		sessions:   sessions{tokens: tokens, cache: cache, log: log},
		notifier:   notifier,
		bcryptCost: bcryptCost,
		log:        log,
	}
}

// Register creates an unverified account and returns limited tokens.
// Uniqueness is decided by the store alone: of two concurrent sign-ups with
// the same email exactly one succeeds and the other gets ErrUserExists.
func (s *RegistrationService) Register(ctx context.Context, in RegisterInput) (*Registration, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	if err := in.Validate(); err != nil {
		metrics.RecordRegistration(metrics.ResultFailure)
		return nil, err
	}
	hash, err := hashPassword(in.Password, s.bcryptCost)
	if err != nil {
		metrics.RecordRegistration(metrics.ResultFailure)
		return nil, err
	}

	u := &model.User{
		Username:     in.Username,
		Email:        repository.NormalizeEmail(in.Email),
		PasswordHash: hash,
		Role:         model.RoleUser,
		IsActive:     true,
	}
	if in.Phone != "" {
		phone := in.Phone
		u.Phone = &phone
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, apperr.ErrUserExists) {
			metrics.RecordRegistration(metrics.ResultFailure)
			return nil, apperr.ErrUserExists.With("username, email or phone already registered", nil)
		}
		metrics.RecordRegistration(metrics.ResultError)
		return nil, err
	}
	metrics.RecordRegistration(metrics.ResultSuccess)
	s.log.Info("user registered", zap.String("user_id", u.ID))

	pair, err := s.sessions.issue(u)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.record(ctx, u, pair); err != nil {
		// the account exists; the user can still log in later
		s.log.Warn("registration session not recorded", zap.String("user_id", u.ID), zap.Error(err))
	}
	s.notifier.SendVerification(ctx, u)
	return &Registration{User: u, Tokens: pair}, nil
}

// VerifyEmail redeems a verification token and returns full tokens.
// Redeeming again after success is not an error.
func (s *RegistrationService) VerifyEmail(ctx context.Context, raw string) (*Verification, error) {
	claims, err := s.sessions.tokens.Verify(raw)
	if err != nil {
		return nil, err
	}
	userID, err := s.sessions.tokens.ValidateVerification(claims)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, userErr(err)
	}

	already := u.IsVerified
	if !already {
		verified := true
		if err := s.users.Update(ctx, u.ID, model.UserUpdate{IsVerified: &verified}); err != nil {
			return nil, userErr(err)
		}
		u.IsVerified = true
		s.log.Info("email verified", zap.String("user_id", u.ID))
	}

	pair, err := s.sessions.issue(u)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.record(ctx, u, pair); err != nil {
		return nil, err
	}
	if !already {
		s.notifier.SendRegistrationSuccess(ctx, u)
	}
	return &Verification{User: u, Tokens: pair, AlreadyVerified: already}, nil
}

// ResendVerification enqueues a new verification email.  It reports true
// without sending when the address is already verified.
func (s *RegistrationService) ResendVerification(ctx context.Context, email string) (alreadyVerified bool, err error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return false, userErr(err)
	}
	if u.IsVerified {
		return true, nil
	}
	s.notifier.SendVerification(ctx, u)
	return false, nil
}

// VerificationStatus reports whether email belongs to a verified account.
func (s *RegistrationService) VerificationStatus(ctx context.Context, email string) (bool, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return false, userErr(err)
	}
	return u.IsVerified, nil
}
