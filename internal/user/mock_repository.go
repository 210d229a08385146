package user

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockRepository is an in-memory Repository used by service tests.
type MockRepository struct {
	mu    sync.RWMutex
	users map[string]*User
	codes map[string]map[string]bool
	links map[string][]OAuthLink
	subs  map[string]map[string]bool
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		users: make(map[string]*User),
		codes: make(map[string]map[string]bool),
		links: make(map[string][]OAuthLink),
		subs:  make(map[string]map[string]bool),
	}
}

func (r *MockRepository) Create(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.Email == u.Email {
			return ErrDuplicateEmail
		}
		if existing.Username == u.Username {
			return ErrDuplicateUsername
		}
	}

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt

	clone := *u
	r.users[u.ID] = &clone
	return nil
}

func (r *MockRepository) GetByID(_ context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (r *MockRepository) GetByEmail(_ context.Context, email string) (*User, error) {
	return r.find(func(u *User) bool { return u.Email == email })
}

func (r *MockRepository) GetByUsername(_ context.Context, username string) (*User, error) {
	return r.find(func(u *User) bool { return u.Username == username })
}

func (r *MockRepository) find(match func(*User) bool) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if match(u) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MockRepository) UpdateFields(_ context.Context, id string, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}

	if username, ok := fields["username"].(string); ok {
		for otherID, other := range r.users {
			if otherID != id && other.Username == username {
				return ErrDuplicateUsername
			}
		}
		u.Username = username
	}
	if v, ok := fields["full_name"]; ok {
		u.FullName = toStringPtr(v)
	}
	if v, ok := fields["bio"]; ok {
		u.Bio = toStringPtr(v)
	}
	if v, ok := fields["avatar_url"]; ok {
		u.AvatarURL = toStringPtr(v)
	}
	if v, ok := fields["country"]; ok {
		u.Country = toStringPtr(v)
	}
	if v, ok := fields["timezone"]; ok {
		u.Timezone = toStringPtr(v)
	}
	if v, ok := fields["date_of_birth"].(time.Time); ok {
		u.DateOfBirth = &v
	}
	if v, ok := fields["preferences"].(Preferences); ok {
		u.Preferences = v
	}
	if v, ok := fields["password_hash"].(string); ok {
		u.PasswordHash = v
	}
	if v, ok := fields["status"].(Status); ok {
		u.Status = v
	}
	u.UpdatedAt = time.Now()
	return nil
}

func toStringPtr(v interface{}) *string {
	switch s := v.(type) {
	case *string:
		return s
	case string:
		return &s
	default:
		return nil
	}
}

func (r *MockRepository) UpdateLoginAttempts(_ context.Context, id string, failed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	u.LastLoginAttempt = &now
	if failed {
		u.FailedLoginCount++
	} else {
		u.FailedLoginCount = 0
	}
	return nil
}

func (r *MockRepository) LockAccount(_ context.Context, id string, duration time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Locked = true
	until := time.Now().Add(duration)
	u.LockUntil = &until
	return nil
}

func (r *MockRepository) UnlockAccount(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Locked = false
	u.LockUntil = nil
	u.FailedLoginCount = 0
	return nil
}

func (r *MockRepository) UpdateLastLogin(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	u.LastLogin = &now
	return nil
}

func (r *MockRepository) StorePendingTFASecret(_ context.Context, id, secret string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || u.TFAEnabled {
		return false, nil
	}
	now := time.Now()
	u.TFASecret = &secret
	u.TFASetupAt = &now
	u.TFAVerifiedAt = nil
	return true, nil
}

func (r *MockRepository) EnableTFA(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || u.TFAEnabled || u.TFASecret == nil {
		return false, nil
	}
	now := time.Now()
	u.TFAEnabled = true
	u.TFAVerifiedAt = &now
	return true, nil
}

func (r *MockRepository) DisableTFA(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.TFAEnabled = false
	u.TFASecret = nil
	u.TFASetupAt = nil
	u.TFAVerifiedAt = nil
	delete(r.codes, id)
	return nil
}

func (r *MockRepository) ReplaceBackupCodes(_ context.Context, id string, hashes []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		set[h] = true
	}
	r.codes[id] = set
	return nil
}

func (r *MockRepository) ConsumeBackupCode(_ context.Context, id, hash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.codes[id]
	if !set[hash] {
		return false, nil
	}
	delete(set, hash)
	return true, nil
}

func (r *MockRepository) CountBackupCodes(_ context.Context, id string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.codes[id])), nil
}

func (r *MockRepository) GetByProviderSubject(_ context.Context, provider, subjectID string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for userID, links := range r.links {
		for _, link := range links {
			if link.Provider == provider && link.SubjectID == subjectID {
				if u, ok := r.users[userID]; ok {
					clone := *u
					return &clone, nil
				}
			}
		}
	}
	return nil, ErrNotFound
}

func (r *MockRepository) LinkProvider(_ context.Context, id, provider, subjectID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, link := range r.links[id] {
		if link.Provider == provider {
			if link.SubjectID == subjectID {
				return nil
			}
			return ErrProviderLinked
		}
	}
	r.links[id] = append(r.links[id], OAuthLink{UserID: id, Provider: provider, SubjectID: subjectID})
	return nil
}

func (r *MockRepository) CreateChannel(_ context.Context, id, channelID, name string, description *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || u.ChannelID != nil {
		return false, nil
	}
	u.ChannelID = &channelID
	u.ChannelName = &name
	u.ChannelDescription = description
	u.Role = RoleCreator
	return true, nil
}

func (r *MockRepository) Subscribe(_ context.Context, subscriberID, channelUserID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subs[subscriberID] == nil {
		r.subs[subscriberID] = make(map[string]bool)
	}
	if r.subs[subscriberID][channelUserID] {
		return ErrAlreadySubscribed
	}
	r.subs[subscriberID][channelUserID] = true
	return nil
}

func (r *MockRepository) Unsubscribe(_ context.Context, subscriberID, channelUserID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.subs[subscriberID][channelUserID] {
		return false, nil
	}
	delete(r.subs[subscriberID], channelUserID)
	return true, nil
}

func (r *MockRepository) GetSubscriptions(_ context.Context, subscriberID string) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var users []User
	for channelUserID := range r.subs[subscriberID] {
		if u, ok := r.users[channelUserID]; ok {
			users = append(users, *u)
		}
	}
	return users, nil
}

func (r *MockRepository) Search(_ context.Context, query string, limit int) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	query = strings.ToLower(query)
	var users []User
	for _, u := range r.users {
		if len(users) >= limit {
			break
		}
		if strings.Contains(u.Username, query) {
			users = append(users, *u)
			continue
		}
		if u.ChannelName != nil && strings.Contains(strings.ToLower(*u.ChannelName), query) {
			users = append(users, *u)
		}
	}
	return users, nil
}
