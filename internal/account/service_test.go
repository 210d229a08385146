package account

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/saypex/auth-service/internal/config"
	"github.com/saypex/auth-service/internal/user"
)

func newTestService(t *testing.T) (*Service, *user.MockRepository) {
	t.Helper()
	repo := user.NewMockRepository()
	svc := NewService(&config.AuthConfig{
		BcryptCost:        4,
		PasswordMinLength: 8,
	}, zap.NewNop(), repo)
	return svc, repo
}

func seedUser(t *testing.T, repo *user.MockRepository, id, username, email string) *user.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	u := &user.User{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         user.RoleViewer,
		Status:       user.StatusActive,
		Preferences:  user.DefaultPreferences(),
	}
	require.NoError(t, repo.Create(context.Background(), u))
	return u
}

func strPtr(s string) *string { return &s }

func TestService_UpdateProfile(t *testing.T) {
	svc, repo := newTestService(t)
	u := seedUser(t, repo, "user-1", "testuser", "test@example.com")

	updated, err := svc.UpdateProfile(context.Background(), u, UpdateProfileInput{
		FullName: strPtr("Test User"),
		Bio:      strPtr("hello"),
		Country:  strPtr("US"),
	})
	require.NoError(t, err)
	require.NotNil(t, updated.FullName)
	assert.Equal(t, "Test User", *updated.FullName)
	require.NotNil(t, updated.Bio)
	assert.Equal(t, "hello", *updated.Bio)

	// An empty patch is a no-op.
	same, err := svc.UpdateProfile(context.Background(), updated, UpdateProfileInput{})
	require.NoError(t, err)
	assert.Equal(t, updated.ID, same.ID)
}

func TestService_UpdateProfile_Username(t *testing.T) {
	svc, repo := newTestService(t)
	u := seedUser(t, repo, "user-1", "testuser", "test@example.com")
	seedUser(t, repo, "user-2", "takenname", "other@example.com")

	tests := []struct {
		name     string
		username string
		wantErr  error
	}{
		{"valid rename", "freshname", nil},
		{"own name is not a conflict", "testuser", nil},
		{"taken name", "takenname", user.ErrDuplicateUsername},
		{"too short", "ab", ErrInvalidUsername},
		{"invalid characters", "bad name!", ErrInvalidUsername},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			current, err := repo.GetByID(context.Background(), u.ID)
			require.NoError(t, err)

			_, err = svc.UpdateProfile(context.Background(), current, UpdateProfileInput{
				Username: strPtr(tt.username),
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestService_UpdateProfile_BirthDate(t *testing.T) {
	svc, repo := newTestService(t)
	u := seedUser(t, repo, "user-1", "testuser", "test@example.com")

	future := time.Now().Add(24 * time.Hour)
	_, err := svc.UpdateProfile(context.Background(), u, UpdateProfileInput{
		DateOfBirth: &future,
	})
	assert.ErrorIs(t, err, ErrInvalidBirthDate)

	past := time.Date(2000, 1, 15, 0, 0, 0, 0, time.UTC)
	updated, err := svc.UpdateProfile(context.Background(), u, UpdateProfileInput{
		DateOfBirth: &past,
	})
	require.NoError(t, err)
	require.NotNil(t, updated.DateOfBirth)
	assert.True(t, updated.DateOfBirth.Equal(past))
}

func TestService_ChangePassword(t *testing.T) {
	svc, repo := newTestService(t)
	u := seedUser(t, repo, "user-1", "testuser", "test@example.com")

	tests := []struct {
		name    string
		current string
		next    string
		wantErr error
	}{
		{"wrong current password", "nope", "newpassword123", ErrInvalidPassword},
		{"weak new password", "password123", "short", ErrWeakPassword},
		{"same password", "password123", "password123", ErrSamePassword},
		{"valid change", "password123", "newpassword123", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.ChangePassword(context.Background(), u, tt.current, tt.next)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			stored, err := repo.GetByID(context.Background(), u.ID)
			require.NoError(t, err)
			assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte(tt.next)))
		})
	}
}

func TestService_CreateChannel(t *testing.T) {
	svc, repo := newTestService(t)
	u := seedUser(t, repo, "user-1", "testuser", "test@example.com")

	updated, err := svc.CreateChannel(context.Background(), u, CreateChannelInput{
		Name:        "My Channel",
		Description: strPtr("videos"),
	})
	require.NoError(t, err)
	require.NotNil(t, updated.ChannelID)
	require.NotNil(t, updated.ChannelName)
	assert.Equal(t, "My Channel", *updated.ChannelName)
	assert.Equal(t, user.RoleCreator, updated.Role)

	// A user gets exactly one channel.
	_, err = svc.CreateChannel(context.Background(), updated, CreateChannelInput{Name: "Second"})
	assert.ErrorIs(t, err, user.ErrChannelExists)
}

func TestService_Subscriptions(t *testing.T) {
	svc, repo := newTestService(t)
	viewer := seedUser(t, repo, "user-1", "viewer", "viewer@example.com")
	owner := seedUser(t, repo, "user-2", "owner", "owner@example.com")
	nochannel := seedUser(t, repo, "user-3", "nochannel", "nochannel@example.com")

	_, err := svc.CreateChannel(context.Background(), owner, CreateChannelInput{Name: "Owner Channel"})
	require.NoError(t, err)

	// Self-subscription is rejected before any lookup.
	assert.ErrorIs(t, svc.Subscribe(context.Background(), viewer, viewer.ID), user.ErrSelfSubscription)

	// Target must exist and own a channel.
	assert.ErrorIs(t, svc.Subscribe(context.Background(), viewer, "missing"), user.ErrNotFound)
	assert.ErrorIs(t, svc.Subscribe(context.Background(), viewer, nochannel.ID), ErrNoChannel)

	require.NoError(t, svc.Subscribe(context.Background(), viewer, owner.ID))
	assert.ErrorIs(t, svc.Subscribe(context.Background(), viewer, owner.ID), user.ErrAlreadySubscribed)

	subs, err := svc.GetSubscriptions(context.Background(), viewer)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, owner.ID, subs[0].ID)

	require.NoError(t, svc.Unsubscribe(context.Background(), viewer, owner.ID))
	assert.ErrorIs(t, svc.Unsubscribe(context.Background(), viewer, owner.ID), user.ErrNotSubscribed)
}

func TestService_Search(t *testing.T) {
	svc, repo := newTestService(t)
	seedUser(t, repo, "user-1", "alpha", "alpha@example.com")
	seedUser(t, repo, "user-2", "alphabeta", "beta@example.com")
	seedUser(t, repo, "user-3", "gamma", "gamma@example.com")

	results, err := svc.Search(context.Background(), "alpha", 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	// Blank query returns nothing instead of everything.
	results, err = svc.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
