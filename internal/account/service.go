package account

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/saypex/auth-service/internal/config"
	"github.com/saypex/auth-service/internal/user"
)

var (
	ErrInvalidUsername  = errors.New("username must be 3-30 characters of letters, digits, and underscores")
	ErrWeakPassword     = errors.New("password does not meet the minimum length")
	ErrInvalidPassword  = errors.New("current password is incorrect")
	ErrSamePassword     = errors.New("new password must differ from the current one")
	ErrNoChannel        = errors.New("user has no channel")
	ErrInvalidBirthDate = errors.New("date of birth cannot be in the future")
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)

type Service struct {
	config     *config.AuthConfig
	log        *zap.Logger
	repository user.Repository
}

func NewService(cfg *config.AuthConfig, log *zap.Logger, repo user.Repository) *Service {
	return &Service{config: cfg, log: log, repository: repo}
}

// UpdateProfileInput carries partial profile updates; nil fields are
// left untouched.
type UpdateProfileInput struct {
	Username    *string
	FullName    *string
	Bio         *string
	AvatarURL   *string
	Country     *string
	Timezone    *string
	DateOfBirth *time.Time
	Preferences *user.Preferences
}

func (s *Service) UpdateProfile(ctx context.Context, u *user.User, input UpdateProfileInput) (*user.User, error) {
	fields := make(map[string]interface{})

	if input.Username != nil {
		username := strings.ToLower(strings.TrimSpace(*input.Username))
		if !usernamePattern.MatchString(username) {
			return nil, ErrInvalidUsername
		}
		if username != u.Username {
			existing, err := s.repository.GetByUsername(ctx, username)
			if err == nil && existing.ID != u.ID {
				return nil, user.ErrDuplicateUsername
			}
			if err != nil && !errors.Is(err, user.ErrNotFound) {
				return nil, err
			}
			fields["username"] = username
		}
	}
	if input.FullName != nil {
		fields["full_name"] = *input.FullName
	}
	if input.Bio != nil {
		fields["bio"] = *input.Bio
	}
	if input.AvatarURL != nil {
		fields["avatar_url"] = *input.AvatarURL
	}
	if input.Country != nil {
		fields["country"] = *input.Country
	}
	if input.Timezone != nil {
		fields["timezone"] = *input.Timezone
	}
	if input.DateOfBirth != nil {
		if input.DateOfBirth.After(time.Now()) {
			return nil, ErrInvalidBirthDate
		}
		fields["date_of_birth"] = *input.DateOfBirth
	}
	if input.Preferences != nil {
		fields["preferences"] = *input.Preferences
	}

	if len(fields) == 0 {
		return u, nil
	}

	if err := s.repository.UpdateFields(ctx, u.ID, fields); err != nil {
		return nil, err
	}

	updated, err := s.repository.GetByID(ctx, u.ID)
	if err != nil {
		return nil, err
	}

	s.log.Info("updated profile", zap.String("user_id", u.ID))
	return updated, nil
}

func (s *Service) ChangePassword(ctx context.Context, u *user.User, current, next string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidPassword
	}
	if len(next) < s.passwordMinLength() {
		return ErrWeakPassword
	}
	if current == next {
		return ErrSamePassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.bcryptCost())
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.repository.UpdateFields(ctx, u.ID, map[string]interface{}{
		"password_hash": string(hash),
	}); err != nil {
		return err
	}

	s.log.Info("changed password", zap.String("user_id", u.ID))
	return nil
}

type CreateChannelInput struct {
	Name        string
	Description *string
}

func (s *Service) CreateChannel(ctx context.Context, u *user.User, input CreateChannelInput) (*user.User, error) {
	channelID := uuid.NewString()

	created, err := s.repository.CreateChannel(ctx, u.ID, channelID, input.Name, input.Description)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, user.ErrChannelExists
	}

	updated, err := s.repository.GetByID(ctx, u.ID)
	if err != nil {
		return nil, err
	}

	s.log.Info("created channel",
		zap.String("user_id", u.ID),
		zap.String("channel_id", channelID))
	return updated, nil
}

func (s *Service) Subscribe(ctx context.Context, u *user.User, channelUserID string) error {
	if u.ID == channelUserID {
		return user.ErrSelfSubscription
	}

	target, err := s.repository.GetByID(ctx, channelUserID)
	if err != nil {
		return err
	}
	if target.ChannelID == nil {
		return ErrNoChannel
	}

	return s.repository.Subscribe(ctx, u.ID, channelUserID)
}

func (s *Service) Unsubscribe(ctx context.Context, u *user.User, channelUserID string) error {
	removed, err := s.repository.Unsubscribe(ctx, u.ID, channelUserID)
	if err != nil {
		return err
	}
	if !removed {
		return user.ErrNotSubscribed
	}
	return nil
}

func (s *Service) GetSubscriptions(ctx context.Context, u *user.User) ([]user.User, error) {
	return s.repository.GetSubscriptions(ctx, u.ID)
}

func (s *Service) GetPublicUser(ctx context.Context, id string) (*user.User, error) {
	return s.repository.GetByID(ctx, id)
}

func (s *Service) Search(ctx context.Context, query string, limit int) ([]user.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	return s.repository.Search(ctx, query, limit)
}

func (s *Service) passwordMinLength() int {
	if s.config.PasswordMinLength > 0 {
		return s.config.PasswordMinLength
	}
	return 8
}

func (s *Service) bcryptCost() int {
	if s.config.BcryptCost > 0 {
		return s.config.BcryptCost
	}
	return 12
}
