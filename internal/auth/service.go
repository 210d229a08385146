package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/saypex/auth-service/internal/config"
	"github.com/saypex/auth-service/internal/user"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account is locked")
	ErrAccountNotActive   = errors.New("account is not active")
	ErrInvalidUsername    = errors.New("username must be 3-30 characters of letters, numbers or underscores")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password does not meet the minimum length")
	ErrInvalidTFACode     = errors.New("invalid two-factor code")
	ErrChallengeInvalid   = errors.New("two-factor challenge not found or expired")
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)

// TFAVerifier is the second login phase: it accepts a current TOTP code
// or consumes an unused backup code for the given user.
type TFAVerifier interface {
	VerifyLogin(ctx context.Context, userID, code string) error
}

type Service struct {
	config     *config.AuthConfig
	log        *zap.Logger
	repository user.Repository
	challenges *ChallengeStore
	tfa        TFAVerifier
}

type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func NewService(cfg *config.AuthConfig, log *zap.Logger, repo user.Repository, challenges *ChallengeStore, tfa TFAVerifier) *Service {
	return &Service{
		config:     cfg,
		log:        log,
		repository: repo,
		challenges: challenges,
		tfa:        tfa,
	}
}

func (s *Service) bcryptCost() int {
	if s.config.BcryptCost >= bcrypt.MinCost {
		return s.config.BcryptCost
	}
	return 12
}

func (s *Service) passwordMinLength() int {
	if s.config.PasswordMinLength > 0 {
		return s.config.PasswordMinLength
	}
	return 8
}

func (s *Service) maxLoginAttempts() int {
	if s.config.MaxLoginAttempts > 0 {
		return s.config.MaxLoginAttempts
	}
	return 5
}

func (s *Service) lockoutDuration() time.Duration {
	if s.config.LockoutDuration > 0 {
		return s.config.LockoutDuration
	}
	return 15 * time.Minute
}

func (s *Service) tokenExpiration() time.Duration {
	if s.config.TokenExpiration > 0 {
		return s.config.TokenExpiration
	}
	return 30 * time.Minute
}

func (s *Service) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost())
	return string(bytes), err
}

func (s *Service) CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

func (s *Service) GenerateToken(u *user.User) (string, time.Time, error) {
	expirationTime := time.Now().Add(s.tokenExpiration())
	claims := &Claims{
		Username: u.Username,
		Role:     string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.JWTSecret))
	return signed, expirationTime, err
}

func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.config.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		return nil, err
	}

	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	FullName    *string
	DateOfBirth *time.Time
	Country     *string
}

// Register validates and persists a new account. Uniqueness is
// case-insensitive: username and email are normalized to lowercase
// before any check or write.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*user.User, error) {
	username := strings.ToLower(strings.TrimSpace(in.Username))
	email := strings.ToLower(strings.TrimSpace(in.Email))

	if !usernamePattern.MatchString(username) {
		return nil, ErrInvalidUsername
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(in.Password) < s.passwordMinLength() {
		return nil, ErrWeakPassword
	}

	if _, err := s.repository.GetByEmail(ctx, email); err == nil {
		return nil, user.ErrDuplicateEmail
	} else if !errors.Is(err, user.ErrNotFound) {
		return nil, err
	}
	if _, err := s.repository.GetByUsername(ctx, username); err == nil {
		return nil, user.ErrDuplicateUsername
	} else if !errors.Is(err, user.ErrNotFound) {
		return nil, err
	}

	hashedPassword, err := s.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	verificationToken := uuid.NewString()
	newUser := &user.User{
		ID:                     uuid.NewString(),
		Username:               username,
		Email:                  email,
		PasswordHash:           hashedPassword,
		EmailVerificationToken: &verificationToken,
		Role:                   user.RoleViewer,
		Status:                 user.StatusActive,
		FullName:               in.FullName,
		DateOfBirth:            in.DateOfBirth,
		Country:                in.Country,
		Preferences:            user.DefaultPreferences(),
	}

	if err := s.repository.Create(ctx, newUser); err != nil {
		return nil, err
	}

	s.log.Info("user registered", zap.String("user_id", newUser.ID), zap.String("username", username))
	return newUser, nil
}

// LoginResult is either a full session (Token set) or a pending
// two-factor challenge (TFARequired set, no token issued yet).
type LoginResult struct {
	TFARequired bool
	ChallengeID string
	Token       string
	ExpiresAt   time.Time
	User        *user.User
}

func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	u, err := s.repository.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.HashPassword("dummy") // Prevent timing attacks
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	// Check if account is locked
	if u.Locked {
		if u.LockUntil != nil && time.Now().After(*u.LockUntil) {
			if err := s.repository.UnlockAccount(ctx, u.ID); err != nil {
				return nil, err
			}
		} else {
			return nil, ErrAccountLocked
		}
	}

	if !s.CheckPasswordHash(password, u.PasswordHash) {
		if err := s.repository.UpdateLoginAttempts(ctx, u.ID, true); err != nil {
			s.log.Error("failed to update login attempts", zap.Error(err))
		}

		if u.FailedLoginCount+1 >= s.maxLoginAttempts() {
			if err := s.repository.LockAccount(ctx, u.ID, s.lockoutDuration()); err != nil {
				s.log.Error("failed to lock account", zap.Error(err))
			}
		}

		return nil, ErrInvalidCredentials
	}

	if u.Status != user.StatusActive {
		return nil, ErrAccountNotActive
	}

	// Two-phase login: when 2FA is on, the password alone buys only a
	// short-lived challenge. The token is issued in CompleteTFALogin.
	if u.TFAEnabled {
		challengeID, err := s.challenges.Create(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to create login challenge: %w", err)
		}
		return &LoginResult{TFARequired: true, ChallengeID: challengeID}, nil
	}

	return s.issueSession(ctx, u)
}

func (s *Service) CompleteTFALogin(ctx context.Context, challengeID, code string) (*LoginResult, error) {
	userID, err := s.challenges.Get(ctx, challengeID)
	if err != nil {
		if errors.Is(err, ErrChallengeNotFound) {
			return nil, ErrChallengeInvalid
		}
		return nil, err
	}

	if err := s.tfa.VerifyLogin(ctx, userID, code); err != nil {
		exceeded, recErr := s.challenges.RecordFailure(ctx, challengeID)
		if recErr != nil && !errors.Is(recErr, ErrChallengeNotFound) {
			s.log.Error("failed to record challenge failure", zap.Error(recErr))
		}
		if exceeded {
			s.log.Warn("two-factor challenge attempts exceeded", zap.String("user_id", userID))
			return nil, ErrChallengeInvalid
		}
		return nil, ErrInvalidTFACode
	}

	if err := s.challenges.Delete(ctx, challengeID); err != nil {
		s.log.Error("failed to delete consumed challenge", zap.Error(err))
	}

	u, err := s.repository.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Status != user.StatusActive {
		return nil, ErrAccountNotActive
	}

	return s.issueSession(ctx, u)
}

func (s *Service) issueSession(ctx context.Context, u *user.User) (*LoginResult, error) {
	// Reset failed login attempts on successful login
	if err := s.repository.UpdateLoginAttempts(ctx, u.ID, false); err != nil {
		s.log.Error("failed to reset login attempts", zap.Error(err))
	}
	// Best-effort, the login response does not depend on it.
	if err := s.repository.UpdateLastLogin(ctx, u.ID); err != nil {
		s.log.Warn("failed to update last login", zap.String("user_id", u.ID), zap.Error(err))
	}

	token, expiresAt, err := s.GenerateToken(u)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: u}, nil
}
