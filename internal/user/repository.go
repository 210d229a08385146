package user

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("user not found")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrDuplicateUsername = errors.New("username already taken")
	ErrChannelExists     = errors.New("user already has a channel")
	ErrSelfSubscription  = errors.New("cannot subscribe to own channel")
	ErrAlreadySubscribed = errors.New("already subscribed")
	ErrNotSubscribed     = errors.New("not subscribed")
	ErrProviderLinked    = errors.New("provider already linked to another identity")
)

// Repository is the credential store boundary. All conditional updates
// are expressed as single SQL statements so that conflicting operations
// on the same user serialize at the database, not in process.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error

	UpdateLoginAttempts(ctx context.Context, id string, failed bool) error
	LockAccount(ctx context.Context, id string, duration time.Duration) error
	UnlockAccount(ctx context.Context, id string) error
	UpdateLastLogin(ctx context.Context, id string) error

	StorePendingTFASecret(ctx context.Context, id, secret string) (bool, error)
	EnableTFA(ctx context.Context, id string) (bool, error)
	DisableTFA(ctx context.Context, id string) error
	ReplaceBackupCodes(ctx context.Context, id string, hashes []string) error
	ConsumeBackupCode(ctx context.Context, id, hash string) (bool, error)
	CountBackupCodes(ctx context.Context, id string) (int64, error)

	GetByProviderSubject(ctx context.Context, provider, subjectID string) (*User, error)
	LinkProvider(ctx context.Context, id, provider, subjectID string) error

	CreateChannel(ctx context.Context, id, channelID, name string, description *string) (bool, error)
	Subscribe(ctx context.Context, subscriberID, channelUserID string) error
	Unsubscribe(ctx context.Context, subscriberID, channelUserID string) (bool, error)
	GetSubscriptions(ctx context.Context, subscriberID string) ([]User, error)
	Search(ctx context.Context, query string, limit int) ([]User, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, u *User) error {
	err := r.db.WithContext(ctx).Create(u).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		// Lost a race after the uniqueness pre-checks. Figure out which
		// field conflicts so callers can still report it precisely.
		if _, lookupErr := r.GetByEmail(ctx, u.Email); lookupErr == nil {
			return ErrDuplicateEmail
		}
		return ErrDuplicateUsername
	}
	return err
}

func (r *repository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getBy(ctx, "id = ?", id)
}

func (r *repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getBy(ctx, "email = ?", email)
}

func (r *repository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.getBy(ctx, "username = ?", username)
}

func (r *repository) getBy(ctx context.Context, query string, arg interface{}) (*User, error) {
	var u User
	if err := r.db.WithContext(ctx).Where(query, arg).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *repository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicateUsername
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) UpdateLoginAttempts(ctx context.Context, id string, failed bool) error {
	fields := map[string]interface{}{"last_login_attempt": time.Now()}
	if failed {
		fields["failed_login_count"] = gorm.Expr("failed_login_count + 1")
	} else {
		fields["failed_login_count"] = 0
	}
	return r.UpdateFields(ctx, id, fields)
}

func (r *repository) LockAccount(ctx context.Context, id string, duration time.Duration) error {
	return r.UpdateFields(ctx, id, map[string]interface{}{
		"locked":     true,
		"lock_until": time.Now().Add(duration),
	})
}

func (r *repository) UnlockAccount(ctx context.Context, id string) error {
	return r.UpdateFields(ctx, id, map[string]interface{}{
		"locked":             false,
		"lock_until":         nil,
		"failed_login_count": 0,
	})
}

func (r *repository) UpdateLastLogin(ctx context.Context, id string) error {
	return r.UpdateFields(ctx, id, map[string]interface{}{"last_login": time.Now()})
}

func (r *repository) StorePendingTFASecret(ctx context.Context, id, secret string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&User{}).
		Where("id = ? AND tfa_enabled = ?", id, false).
		Updates(map[string]interface{}{
			"tfa_secret":      secret,
			"tfa_setup_at":    time.Now(),
			"tfa_verified_at": nil,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *repository) EnableTFA(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&User{}).
		Where("id = ? AND tfa_enabled = ? AND tfa_secret IS NOT NULL", id, false).
		Updates(map[string]interface{}{
			"tfa_enabled":     true,
			"tfa_verified_at": time.Now(),
		})
	return res.RowsAffected > 0, res.Error
}

func (r *repository) DisableTFA(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&User{}).Where("id = ?", id).
			Updates(map[string]interface{}{
				"tfa_enabled":     false,
				"tfa_secret":      nil,
				"tfa_setup_at":    nil,
				"tfa_verified_at": nil,
			}).Error
		if err != nil {
			return err
		}
		return tx.Where("user_id = ?", id).Delete(&BackupCode{}).Error
	})
}

func (r *repository) ReplaceBackupCodes(ctx context.Context, id string, hashes []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&BackupCode{}).Error; err != nil {
			return err
		}
		codes := make([]BackupCode, 0, len(hashes))
		for _, h := range hashes {
			codes = append(codes, BackupCode{UserID: id, CodeHash: h})
		}
		if len(codes) == 0 {
			return nil
		}
		return tx.Create(&codes).Error
	})
}

func (r *repository) ConsumeBackupCode(ctx context.Context, id, hash string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND code_hash = ?", id, hash).
		Delete(&BackupCode{})
	return res.RowsAffected > 0, res.Error
}

func (r *repository) CountBackupCodes(ctx context.Context, id string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&BackupCode{}).
		Where("user_id = ?", id).Count(&count).Error
	return count, err
}

func (r *repository) GetByProviderSubject(ctx context.Context, provider, subjectID string) (*User, error) {
	var link OAuthLink
	err := r.db.WithContext(ctx).
		Where("provider = ? AND subject_id = ?", provider, subjectID).
		First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r.GetByID(ctx, link.UserID)
}

func (r *repository) LinkProvider(ctx context.Context, id, provider, subjectID string) error {
	var existing OAuthLink
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", id, provider).
		First(&existing).Error
	switch {
	case err == nil:
		if existing.SubjectID == subjectID {
			return nil
		}
		return ErrProviderLinked
	case errors.Is(err, gorm.ErrRecordNotFound):
		// fall through to insert
	default:
		return err
	}

	link := OAuthLink{UserID: id, Provider: provider, SubjectID: subjectID}
	if err := r.db.WithContext(ctx).Create(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrProviderLinked
		}
		return err
	}
	return nil
}

func (r *repository) CreateChannel(ctx context.Context, id, channelID, name string, description *string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&User{}).
		Where("id = ? AND channel_id IS NULL", id).
		Updates(map[string]interface{}{
			"channel_id":          channelID,
			"channel_name":        name,
			"channel_description": description,
			"role":                RoleCreator,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *repository) Subscribe(ctx context.Context, subscriberID, channelUserID string) error {
	sub := Subscription{SubscriberID: subscriberID, ChannelUserID: channelUserID}
	if err := r.db.WithContext(ctx).Create(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAlreadySubscribed
		}
		return err
	}
	return nil
}

func (r *repository) Unsubscribe(ctx context.Context, subscriberID, channelUserID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("subscriber_id = ? AND channel_user_id = ?", subscriberID, channelUserID).
		Delete(&Subscription{})
	return res.RowsAffected > 0, res.Error
}

func (r *repository) GetSubscriptions(ctx context.Context, subscriberID string) ([]User, error) {
	var users []User
	err := r.db.WithContext(ctx).
		Joins("JOIN subscriptions ON subscriptions.channel_user_id = users.id").
		Where("subscriptions.subscriber_id = ?", subscriberID).
		Order("subscriptions.created_at DESC").
		Find(&users).Error
	return users, err
}

func (r *repository) Search(ctx context.Context, query string, limit int) ([]User, error) {
	var users []User
	pattern := "%" + query + "%"
	err := r.db.WithContext(ctx).
		Where("username LIKE ? OR LOWER(channel_name) LIKE LOWER(?)", pattern, pattern).
		Limit(limit).
		Find(&users).Error
	return users, err
}
