package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/saypex/auth-service/internal/user"
)

var (
	ErrUnknownProvider = errors.New("unsupported oauth provider")
	ErrStateMismatch   = errors.New("invalid oauth state")
	ErrEmailMissing    = errors.New("email not provided by oauth provider")
	ErrExchangeFailed  = errors.New("failed to exchange oauth code")
)

// TokenIssuer signs a session token for an authenticated user.
type TokenIssuer interface {
	GenerateToken(u *user.User) (string, time.Time, error)
}

type Service struct {
	log        *zap.Logger
	repository user.Repository
	states     *StateStore
	issuer     TokenIssuer
	providers  map[string]Provider
	httpClient *http.Client
}

func NewService(providers map[string]Provider, log *zap.Logger, repo user.Repository, states *StateStore, issuer TokenIssuer, httpClient *http.Client) *Service {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Service{
		log:        log,
		repository: repo,
		states:     states,
		issuer:     issuer,
		providers:  providers,
		httpClient: httpClient,
	}
}

// Providers lists the configured providers in a stable order.
func (s *Service) Providers() []ProviderInfo {
	infos := make([]ProviderInfo, 0, len(s.providers))
	for _, p := range s.providers {
		infos = append(infos, ProviderInfo{Name: p.Name, DisplayName: p.DisplayName})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

type BeginResult struct {
	AuthURL string `json:"auth_url"`
	State   string `json:"state"`
}

func (s *Service) BeginLogin(ctx context.Context, provider, redirectURI string) (*BeginResult, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, ErrUnknownProvider
	}

	state, err := s.states.Create(ctx, provider, redirectURI)
	if err != nil {
		return nil, err
	}

	return &BeginResult{
		AuthURL: p.Config(redirectURI).AuthCodeURL(state),
		State:   state,
	}, nil
}

type CompleteResult struct {
	Token     string
	ExpiresAt time.Time
	User      *user.User
}

// CompleteLogin validates the callback, exchanges the code, and either
// resolves an existing identity or creates one. Provider links are
// additive; a provider never maps to more than one subject per user.
func (s *Service) CompleteLogin(ctx context.Context, provider, code, state string) (*CompleteResult, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, ErrUnknownProvider
	}

	storedProvider, redirectURI, err := s.states.Consume(ctx, state)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			s.log.Warn("oauth state mismatch", zap.String("provider", provider))
			return nil, ErrStateMismatch
		}
		return nil, err
	}
	if storedProvider != provider {
		s.log.Warn("oauth provider mismatch",
			zap.String("expected", storedProvider),
			zap.String("got", provider))
		return nil, ErrStateMismatch
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	token, err := p.Config(redirectURI).Exchange(ctx, code)
	if err != nil {
		s.log.Error("oauth code exchange failed", zap.String("provider", provider), zap.Error(err))
		return nil, ErrExchangeFailed
	}

	profile, err := s.fetchProfile(ctx, p, token.AccessToken)
	if err != nil {
		return nil, err
	}
	if profile.Email == "" {
		return nil, ErrEmailMissing
	}

	u, err := s.findOrCreateUser(ctx, provider, profile)
	if err != nil {
		return nil, err
	}

	signed, expiresAt, err := s.issuer.GenerateToken(u)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &CompleteResult{Token: signed, ExpiresAt: expiresAt, User: u}, nil
}

type profile struct {
	Subject   string
	Email     string
	FullName  string
	AvatarURL string
}

func (s *Service) fetchProfile(ctx context.Context, p Provider, accessToken string) (*profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if p.Name == ProviderFacebook {
		q := req.URL.Query()
		q.Set("fields", "id,email,name,picture")
		req.URL.RawQuery = q.Encode()
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		s.log.Error("user info request failed",
			zap.String("provider", p.Name),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body))
		return nil, ErrExchangeFailed
	}

	switch p.Name {
	case ProviderFacebook:
		var info struct {
			ID      string `json:"id"`
			Email   string `json:"email"`
			Name    string `json:"name"`
			Picture struct {
				Data struct {
					URL string `json:"url"`
				} `json:"data"`
			} `json:"picture"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			return nil, err
		}
		return &profile{Subject: info.ID, Email: info.Email, FullName: info.Name, AvatarURL: info.Picture.Data.URL}, nil
	default:
		var info struct {
			ID      string `json:"id"`
			Email   string `json:"email"`
			Name    string `json:"name"`
			Picture string `json:"picture"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			return nil, err
		}
		return &profile{Subject: info.ID, Email: info.Email, FullName: info.Name, AvatarURL: info.Picture}, nil
	}
}

func (s *Service) findOrCreateUser(ctx context.Context, provider string, p *profile) (*user.User, error) {
	// Exact provider link wins.
	if u, err := s.repository.GetByProviderSubject(ctx, provider, p.Subject); err == nil {
		s.fillMissingProfile(ctx, u, p)
		return u, nil
	} else if !errors.Is(err, user.ErrNotFound) {
		return nil, err
	}

	email := strings.ToLower(p.Email)

	// Otherwise link additively to the account owning the email.
	if u, err := s.repository.GetByEmail(ctx, email); err == nil {
		if err := s.repository.LinkProvider(ctx, u.ID, provider, p.Subject); err != nil {
			return nil, err
		}
		s.fillMissingProfile(ctx, u, p)
		return u, nil
	} else if !errors.Is(err, user.ErrNotFound) {
		return nil, err
	}

	return s.createUser(ctx, provider, email, p)
}

func (s *Service) createUser(ctx context.Context, provider, email string, p *profile) (*user.User, error) {
	username, err := s.generateUsername(ctx, provider, p.FullName, email)
	if err != nil {
		return nil, err
	}

	// OAuth accounts never use this password; the hash just keeps the
	// column non-null and unguessable.
	placeholder, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	newUser := &user.User{
		ID:              uuid.NewString(),
		Username:        username,
		Email:           email,
		PasswordHash:    string(placeholder),
		IsEmailVerified: true, // the provider verified it
		Role:            user.RoleViewer,
		Status:          user.StatusActive,
		Preferences:     user.DefaultPreferences(),
	}
	if p.FullName != "" {
		newUser.FullName = &p.FullName
	}
	if p.AvatarURL != "" {
		newUser.AvatarURL = &p.AvatarURL
	}

	if err := s.repository.Create(ctx, newUser); err != nil {
		return nil, err
	}
	if err := s.repository.LinkProvider(ctx, newUser.ID, provider, p.Subject); err != nil {
		return nil, err
	}

	s.log.Info("created oauth user",
		zap.String("user_id", newUser.ID),
		zap.String("provider", provider),
		zap.String("username", username))
	return newUser, nil
}

func (s *Service) generateUsername(ctx context.Context, provider, fullName, email string) (string, error) {
	base := strings.ToLower(strings.ReplaceAll(fullName, " ", ""))
	if base == "" {
		base = strings.SplitN(email, "@", 2)[0]
	}
	base = sanitizeUsername(base)
	if len(base) < 3 {
		base = "user"
	}

	candidate := provider + "_" + base
	if len(candidate) > 25 {
		candidate = candidate[:25]
	}

	for i := 0; ; i++ {
		name := candidate
		if i > 0 {
			name = fmt.Sprintf("%s%d", candidate, i)
		}
		_, err := s.repository.GetByUsername(ctx, name)
		if errors.Is(err, user.ErrNotFound) {
			return name, nil
		}
		if err != nil {
			return "", err
		}
	}
}

func sanitizeUsername(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (s *Service) fillMissingProfile(ctx context.Context, u *user.User, p *profile) {
	fields := make(map[string]interface{})
	if u.AvatarURL == nil && p.AvatarURL != "" {
		fields["avatar_url"] = p.AvatarURL
		avatar := p.AvatarURL
		u.AvatarURL = &avatar
	}
	if u.FullName == nil && p.FullName != "" {
		fields["full_name"] = p.FullName
		name := p.FullName
		u.FullName = &name
	}
	if len(fields) == 0 {
		return
	}
	if err := s.repository.UpdateFields(ctx, u.ID, fields); err != nil {
		s.log.Warn("failed to backfill oauth profile", zap.String("user_id", u.ID), zap.Error(err))
	}
}
