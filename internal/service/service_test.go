package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/shop-backend/internal/model"
	"github.com/iliyamo/shop-backend/internal/queue"
	"github.com/iliyamo/shop-backend/internal/session"
	"github.com/iliyamo/shop-backend/internal/testutil"
	"github.com/iliyamo/shop-backend/internal/token"
	"github.com/iliyamo/shop-backend/internal/utils"
)

type env struct {
	users   *testutil.UserStore
	cache   *session.Cache
	mr      *miniredis.Miniredis
	pub     *testutil.Publisher
	tokens  *token.Issuer
	auth    *AuthService
	reg     *RegistrationService
	profile *ProfileService
	admin   *AdminService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := zap.NewNop()
	users := testutil.NewUserStore()
	cache, mr := testutil.NewSessionCache(t)
	pub := &testutil.Publisher{}
	tokens := token.NewIssuer(token.Config{
		Secret:          "service-test-secret",
		AccessTTL:       30 * time.Minute,
		RefreshTTL:      30 * 24 * time.Hour,
		VerificationTTL: 24 * time.Hour,
		ResetTTL:        30 * time.Minute,
	})
	notifier := NewNotifier(pub, tokens, "https://shop.test", 30, log)
	return &env{
		users:   users,
		cache:   cache,
		mr:      mr,
		pub:     pub,
		tokens:  tokens,
		auth:    NewAuthService(users, cache, tokens, notifier, bcrypt.MinCost, log),
		reg:     NewRegistrationService(users, cache, tokens, notifier, bcrypt.MinCost, log),
		profile: NewProfileService(users, cache, nil, bcrypt.MinCost, log),
		admin:   NewAdminService(users, cache, log),
	}
}

func (e *env) addUser(t *testing.T, username, email, password string, verified, active bool) *model.User {
	t.Helper()
	hash, err := utils.HashPassword(password, bcrypt.MinCost)
	require.NoError(t, err)
	u := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleUser,
		IsActive:     active,
		IsVerified:   verified,
	}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}

// lastVerificationToken returns the token of the newest verification email.
func (e *env) lastVerificationToken(t *testing.T) string {
	t.Helper()
	msgs := e.pub.Messages(queue.QueueVerification)
	require.NotEmpty(t, msgs, "no verification email enqueued")
	return msgs[len(msgs)-1].Payload.(queue.VerificationEmail).Token
}
