package tfa

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/saypex/auth-service/internal/config"
	"github.com/saypex/auth-service/internal/user"
)

var (
	ErrAlreadyEnabled  = errors.New("two-factor authentication already enabled")
	ErrNotEnabled      = errors.New("two-factor authentication not enabled")
	ErrSetupNotFound   = errors.New("two-factor setup not found, start setup again")
	ErrInvalidCode     = errors.New("invalid two-factor code")
	ErrInvalidPassword = errors.New("invalid password")
)

const backupCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type Service struct {
	config     *config.TFAConfig
	log        *zap.Logger
	repository user.Repository
	totp       *TOTP
}

func NewService(cfg *config.TFAConfig, log *zap.Logger, repo user.Repository) *Service {
	return &Service{
		config:     cfg,
		log:        log,
		repository: repo,
		totp:       NewTOTP(cfg),
	}
}

func (s *Service) backupCodeCount() int {
	if s.config.BackupCodeCount > 0 {
		return s.config.BackupCodeCount
	}
	return 10
}

func (s *Service) backupCodeLength() int {
	if s.config.BackupCodeLength > 0 {
		return s.config.BackupCodeLength
	}
	return 8
}

// SetupResult carries the secret and codes in plaintext. This is the
// only time they are ever returned; afterwards the store holds only
// the secret and the code hashes.
type SetupResult struct {
	Secret      string
	OTPAuthURL  string
	QRCodeImage string
	BackupCodes []string
}

// Setup generates a fresh secret and backup-code set and stores them
// pending verification. The account stays in the PendingSetup state
// until VerifySetup confirms a code from the authenticator.
func (s *Service) Setup(ctx context.Context, userID string) (*SetupResult, error) {
	u, err := s.repository.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.TFAEnabled {
		return nil, ErrAlreadyEnabled
	}

	secret, err := s.totp.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}

	codes, hashes, err := s.generateBackupCodes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate backup codes: %w", err)
	}

	ok, err := s.repository.StorePendingTFASecret(ctx, userID, secret)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Enabled concurrently between the read above and the write.
		return nil, ErrAlreadyEnabled
	}
	if err := s.repository.ReplaceBackupCodes(ctx, userID, hashes); err != nil {
		return nil, err
	}

	uri := s.totp.ProvisioningURI(secret, u.Email)
	png, err := qrcode.Encode(uri, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to render qr code: %w", err)
	}

	s.log.Info("two-factor setup initiated", zap.String("user_id", userID))

	return &SetupResult{
		Secret:      secret,
		OTPAuthURL:  uri,
		QRCodeImage: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		BackupCodes: codes,
	}, nil
}

// VerifySetup confirms the pending secret with a live code and flips
// the account to Enabled. A wrong code leaves the state untouched.
func (s *Service) VerifySetup(ctx context.Context, userID, code string) error {
	u, err := s.repository.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.TFAEnabled {
		return ErrAlreadyEnabled
	}
	if u.TFASecret == nil {
		return ErrSetupNotFound
	}

	if !s.totp.Verify(*u.TFASecret, code, time.Now()) {
		return ErrInvalidCode
	}

	ok, err := s.repository.EnableTFA(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSetupNotFound
	}

	s.log.Info("two-factor enabled", zap.String("user_id", userID))
	return nil
}

// VerifyLogin accepts a current TOTP code or consumes an unused backup
// code. Each backup code works exactly once; consumption is a
// conditional delete, so concurrent use of the same code succeeds at
// most once.
func (s *Service) VerifyLogin(ctx context.Context, userID, code string) error {
	u, err := s.repository.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !u.TFAEnabled || u.TFASecret == nil {
		return ErrNotEnabled
	}

	if s.totp.Verify(*u.TFASecret, code, time.Now()) {
		return nil
	}

	consumed, err := s.repository.ConsumeBackupCode(ctx, userID, hashBackupCode(code))
	if err != nil {
		return err
	}
	if consumed {
		s.log.Info("backup code used", zap.String("user_id", userID))
		return nil
	}

	return ErrInvalidCode
}

// Disable requires the account password before clearing the secret,
// the backup codes and the enabled flag.
func (s *Service) Disable(ctx context.Context, userID, password string) error {
	u, err := s.repository.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidPassword
	}
	if !u.TFAEnabled {
		return ErrNotEnabled
	}

	if err := s.repository.DisableTFA(ctx, userID); err != nil {
		return err
	}

	s.log.Info("two-factor disabled", zap.String("user_id", userID))
	return nil
}

// RegenerateBackupCodes replaces the whole set, invalidating any
// remaining codes.
func (s *Service) RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	u, err := s.repository.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.TFAEnabled {
		return nil, ErrNotEnabled
	}

	codes, hashes, err := s.generateBackupCodes()
	if err != nil {
		return nil, err
	}
	if err := s.repository.ReplaceBackupCodes(ctx, userID, hashes); err != nil {
		return nil, err
	}

	s.log.Info("backup codes regenerated", zap.String("user_id", userID))
	return codes, nil
}

type StatusResult struct {
	Enabled              bool       `json:"enabled"`
	SetupDate            *time.Time `json:"setup_date"`
	VerifiedDate         *time.Time `json:"verified_date"`
	BackupCodesRemaining int64      `json:"backup_codes_remaining"`
}

func (s *Service) Status(ctx context.Context, userID string) (*StatusResult, error) {
	u, err := s.repository.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	remaining, err := s.repository.CountBackupCodes(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &StatusResult{
		Enabled:              u.TFAEnabled,
		SetupDate:            u.TFASetupAt,
		VerifiedDate:         u.TFAVerifiedAt,
		BackupCodesRemaining: remaining,
	}, nil
}

func (s *Service) generateBackupCodes() (codes []string, hashes []string, err error) {
	count := s.backupCodeCount()
	length := s.backupCodeLength()

	codes = make([]string, 0, count)
	hashes = make([]string, 0, count)
	for i := 0; i < count; i++ {
		code, err := randomBackupCode(length)
		if err != nil {
			return nil, nil, err
		}
		codes = append(codes, code)
		hashes = append(hashes, hashBackupCode(code))
	}
	return codes, hashes, nil
}

func randomBackupCode(length int) (string, error) {
	buf := make([]byte, length)
	max := big.NewInt(int64(len(backupCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = backupCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

func hashBackupCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
