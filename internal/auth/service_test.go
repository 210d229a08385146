package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saypex/auth-service/internal/config"
	"github.com/saypex/auth-service/internal/user"
)

func newTestConfig() *config.AuthConfig {
	return &config.AuthConfig{
		JWTSecret:         "test-secret",
		TokenExpiration:   time.Hour,
		BcryptCost:        4, // keep hashing fast in tests
		PasswordMinLength: 8,
		MaxLoginAttempts:  3,
		LockoutDuration:   15 * time.Minute,
	}
}

func newTestChallengeStore(t *testing.T) *ChallengeStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewChallengeStore(client, &config.TFAConfig{
		ChallengeTTL:         5 * time.Minute,
		ChallengeMaxAttempts: 3,
	})
}

// stubVerifier accepts exactly one code.
type stubVerifier struct {
	code string
}

func (v *stubVerifier) VerifyLogin(_ context.Context, _ string, code string) error {
	if code == v.code {
		return nil
	}
	return errors.New("wrong code")
}

func newTestService(t *testing.T, repo user.Repository) *Service {
	t.Helper()
	return NewService(newTestConfig(), zap.NewNop(), repo, newTestChallengeStore(t), &stubVerifier{code: "123456"})
}

func registerTestUser(t *testing.T, svc *Service, email string) *user.User {
	t.Helper()
	u, err := svc.Register(context.Background(), RegisterInput{
		Username: "testuser",
		Email:    email,
		Password: "testpassword123",
	})
	require.NoError(t, err)
	return u
}

func TestService_HashPassword(t *testing.T) {
	svc := newTestService(t, user.NewMockRepository())

	hash, err := svc.HashPassword("testpassword123")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.True(t, svc.CheckPasswordHash("testpassword123", hash))
	assert.False(t, svc.CheckPasswordHash("wrongpassword", hash))
}

func TestService_GenerateToken(t *testing.T) {
	svc := newTestService(t, user.NewMockRepository())
	u := &user.User{ID: "user-1", Username: "testuser", Role: user.RoleViewer}

	token, expiresAt, err := svc.GenerateToken(u)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "testuser", claims.Username)
	assert.Equal(t, string(user.RoleViewer), claims.Role)
}

func TestService_ValidateToken(t *testing.T) {
	svc := newTestService(t, user.NewMockRepository())
	u := &user.User{ID: "user-1", Username: "testuser", Role: user.RoleViewer}

	tests := []struct {
		name       string
		setupToken func(t *testing.T) string
		wantErr    bool
	}{
		{
			name: "valid token",
			setupToken: func(t *testing.T) string {
				token, _, err := svc.GenerateToken(u)
				require.NoError(t, err)
				return token
			},
		},
		{
			name: "expired token",
			setupToken: func(t *testing.T) string {
				cfg := newTestConfig()
				cfg.TokenExpiration = -time.Hour
				expired := NewService(cfg, zap.NewNop(), user.NewMockRepository(), newTestChallengeStore(t), nil)
				token, _, err := expired.GenerateToken(u)
				require.NoError(t, err)
				return token
			},
			wantErr: true,
		},
		{
			name: "wrong secret",
			setupToken: func(t *testing.T) string {
				cfg := newTestConfig()
				cfg.JWTSecret = "another-secret"
				other := NewService(cfg, zap.NewNop(), user.NewMockRepository(), newTestChallengeStore(t), nil)
				token, _, err := other.GenerateToken(u)
				require.NoError(t, err)
				return token
			},
			wantErr: true,
		},
		{
			name:       "garbage token",
			setupToken: func(t *testing.T) string { return "not-a-token" },
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := svc.ValidateToken(tt.setupToken(t))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, u.ID, claims.Subject)
		})
	}
}

func TestService_Register(t *testing.T) {
	tests := []struct {
		name    string
		input   RegisterInput
		wantErr error
	}{
		{
			name:  "valid registration",
			input: RegisterInput{Username: "newuser", Email: "new@example.com", Password: "password123"},
		},
		{
			name:    "username too short",
			input:   RegisterInput{Username: "ab", Email: "new@example.com", Password: "password123"},
			wantErr: ErrInvalidUsername,
		},
		{
			name:    "username with invalid characters",
			input:   RegisterInput{Username: "bad user!", Email: "new@example.com", Password: "password123"},
			wantErr: ErrInvalidUsername,
		},
		{
			name:    "invalid email",
			input:   RegisterInput{Username: "newuser", Email: "not-an-email", Password: "password123"},
			wantErr: ErrInvalidEmail,
		},
		{
			name:    "weak password",
			input:   RegisterInput{Username: "newuser", Email: "new@example.com", Password: "short"},
			wantErr: ErrWeakPassword,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, user.NewMockRepository())
			u, err := svc.Register(context.Background(), tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, u.ID)
			assert.Equal(t, user.StatusActive, u.Status)
			assert.False(t, u.IsEmailVerified)
			assert.NotNil(t, u.EmailVerificationToken)
		})
	}
}

func TestService_Register_Duplicates(t *testing.T) {
	svc := newTestService(t, user.NewMockRepository())
	registerTestUser(t, svc, "test@example.com")

	_, err := svc.Register(context.Background(), RegisterInput{
		Username: "otheruser",
		Email:    "test@example.com",
		Password: "password123",
	})
	assert.ErrorIs(t, err, user.ErrDuplicateEmail)

	_, err = svc.Register(context.Background(), RegisterInput{
		Username: "testuser",
		Email:    "other@example.com",
		Password: "password123",
	})
	assert.ErrorIs(t, err, user.ErrDuplicateUsername)

	// Uniqueness is case-insensitive.
	_, err = svc.Register(context.Background(), RegisterInput{
		Username: "TestUser",
		Email:    "TEST@example.com",
		Password: "password123",
	})
	assert.ErrorIs(t, err, user.ErrDuplicateEmail)
}

func TestService_Login(t *testing.T) {
	svc := newTestService(t, user.NewMockRepository())
	registerTestUser(t, svc, "test@example.com")

	result, err := svc.Login(context.Background(), "test@example.com", "testpassword123")
	require.NoError(t, err)
	assert.False(t, result.TFARequired)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, "testuser", result.User.Username)

	claims, err := svc.ValidateToken(result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, claims.Subject)
}

func TestService_Login_InvalidCredentials(t *testing.T) {
	svc := newTestService(t, user.NewMockRepository())
	registerTestUser(t, svc, "test@example.com")

	// Unknown email and wrong password must be indistinguishable.
	_, err := svc.Login(context.Background(), "unknown@example.com", "testpassword123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "test@example.com", "wrongpassword")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_Login_Lockout(t *testing.T) {
	repo := user.NewMockRepository()
	svc := newTestService(t, repo)
	u := registerTestUser(t, svc, "test@example.com")

	for i := 0; i < 3; i++ {
		_, err := svc.Login(context.Background(), "test@example.com", "wrongpassword")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// Locked now, even with the right password.
	_, err := svc.Login(context.Background(), "test@example.com", "testpassword123")
	assert.ErrorIs(t, err, ErrAccountLocked)

	// Expired lock unlocks on the next attempt.
	require.NoError(t, repo.LockAccount(context.Background(), u.ID, -time.Minute))
	result, err := svc.Login(context.Background(), "test@example.com", "testpassword123")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)

	stored, err := repo.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.FailedLoginCount)
	assert.False(t, stored.Locked)
}

func TestService_Login_NotActive(t *testing.T) {
	repo := user.NewMockRepository()
	svc := newTestService(t, repo)
	u := registerTestUser(t, svc, "test@example.com")

	require.NoError(t, repo.UpdateFields(context.Background(), u.ID, map[string]interface{}{
		"status": user.StatusSuspended,
	}))

	_, err := svc.Login(context.Background(), "test@example.com", "testpassword123")
	assert.ErrorIs(t, err, ErrAccountNotActive)
}

func TestService_Login_TwoPhase(t *testing.T) {
	repo := user.NewMockRepository()
	svc := newTestService(t, repo)
	u := registerTestUser(t, svc, "test@example.com")

	secret := "JBSWY3DPEHPK3PXP"
	ok, err := repo.StorePendingTFASecret(context.Background(), u.ID, secret)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.EnableTFA(context.Background(), u.ID)
	require.NoError(t, err)
	require.True(t, ok)

	// Phase one never issues a token.
	result, err := svc.Login(context.Background(), "test@example.com", "testpassword123")
	require.NoError(t, err)
	assert.True(t, result.TFARequired)
	assert.NotEmpty(t, result.ChallengeID)
	assert.Empty(t, result.Token)

	// Wrong code keeps the challenge alive.
	_, err = svc.CompleteTFALogin(context.Background(), result.ChallengeID, "000000")
	assert.ErrorIs(t, err, ErrInvalidTFACode)

	// Right code completes the session.
	session, err := svc.CompleteTFALogin(context.Background(), result.ChallengeID, "123456")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, u.ID, session.User.ID)

	// The challenge is single use.
	_, err = svc.CompleteTFALogin(context.Background(), result.ChallengeID, "123456")
	assert.ErrorIs(t, err, ErrChallengeInvalid)
}

func TestService_CompleteTFALogin_AttemptsExceeded(t *testing.T) {
	repo := user.NewMockRepository()
	svc := newTestService(t, repo)
	u := registerTestUser(t, svc, "test@example.com")

	ok, err := repo.StorePendingTFASecret(context.Background(), u.ID, "JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.EnableTFA(context.Background(), u.ID)
	require.NoError(t, err)
	require.True(t, ok)

	result, err := svc.Login(context.Background(), "test@example.com", "testpassword123")
	require.NoError(t, err)
	require.True(t, result.TFARequired)

	_, err = svc.CompleteTFALogin(context.Background(), result.ChallengeID, "000000")
	assert.ErrorIs(t, err, ErrInvalidTFACode)
	_, err = svc.CompleteTFALogin(context.Background(), result.ChallengeID, "000000")
	assert.ErrorIs(t, err, ErrInvalidTFACode)

	// Third failure burns the challenge.
	_, err = svc.CompleteTFALogin(context.Background(), result.ChallengeID, "000000")
	assert.ErrorIs(t, err, ErrChallengeInvalid)

	// Even the right code no longer works.
	_, err = svc.CompleteTFALogin(context.Background(), result.ChallengeID, "123456")
	assert.ErrorIs(t, err, ErrChallengeInvalid)
}
