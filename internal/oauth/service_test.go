package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saypex/auth-service/internal/user"
)

type stubIssuer struct{}

func (stubIssuer) GenerateToken(u *user.User) (string, time.Time, error) {
	return "token-for-" + u.ID, time.Now().Add(time.Hour), nil
}

// fakeProvider serves the token and userinfo endpoints of an oauth
// provider from a single httptest server.
func fakeProvider(t *testing.T, userInfo map[string]interface{}) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.FormValue("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "provider-access-token",
			"token_type":   "bearer",
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer provider-access-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(userInfo)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestOAuthService(t *testing.T, repo user.Repository, userInfo map[string]interface{}) (*Service, *StateStore) {
	t.Helper()
	server := fakeProvider(t, userInfo)

	providers := map[string]Provider{
		ProviderGoogle: {
			Name:         ProviderGoogle,
			DisplayName:  "Google",
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			AuthURL:      server.URL + "/auth",
			TokenURL:     server.URL + "/token",
			UserInfoURL:  server.URL + "/userinfo",
			Scopes:       []string{"openid", "email", "profile"},
		},
	}

	states, _ := newTestStateStore(t)
	svc := NewService(providers, zap.NewNop(), repo, states, stubIssuer{}, server.Client())
	return svc, states
}

func googleUserInfo() map[string]interface{} {
	return map[string]interface{}{
		"id":      "google-subject-1",
		"email":   "oauth@example.com",
		"name":    "OAuth User",
		"picture": "https://example.com/avatar.png",
	}
}

func TestService_Providers(t *testing.T) {
	svc, _ := newTestOAuthService(t, user.NewMockRepository(), googleUserInfo())

	infos := svc.Providers()
	require.Len(t, infos, 1)
	assert.Equal(t, ProviderGoogle, infos[0].Name)
	assert.Equal(t, "Google", infos[0].DisplayName)
}

func TestService_BeginLogin(t *testing.T) {
	svc, _ := newTestOAuthService(t, user.NewMockRepository(), googleUserInfo())

	result, err := svc.BeginLogin(context.Background(), ProviderGoogle, "https://app.example.com/callback")
	require.NoError(t, err)
	assert.NotEmpty(t, result.State)
	assert.Contains(t, result.AuthURL, "/auth?")
	assert.Contains(t, result.AuthURL, "state="+result.State)
	assert.Contains(t, result.AuthURL, "client_id=client-id")

	_, err = svc.BeginLogin(context.Background(), "github", "https://app.example.com/callback")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestService_CompleteLogin_CreatesUser(t *testing.T) {
	repo := user.NewMockRepository()
	svc, _ := newTestOAuthService(t, repo, googleUserInfo())
	ctx := context.Background()

	begin, err := svc.BeginLogin(ctx, ProviderGoogle, "https://app.example.com/callback")
	require.NoError(t, err)

	result, err := svc.CompleteLogin(ctx, ProviderGoogle, "good-code", begin.State)
	require.NoError(t, err)
	assert.Equal(t, "token-for-"+result.User.ID, result.Token)

	created := result.User
	assert.Equal(t, "oauth@example.com", created.Email)
	assert.True(t, created.IsEmailVerified)
	assert.Equal(t, user.StatusActive, created.Status)
	assert.Contains(t, created.Username, "google_")
	require.NotNil(t, created.FullName)
	assert.Equal(t, "OAuth User", *created.FullName)

	linked, err := repo.GetByProviderSubject(ctx, ProviderGoogle, "google-subject-1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, linked.ID)
}

func TestService_CompleteLogin_LinksExistingEmail(t *testing.T) {
	repo := user.NewMockRepository()
	svc, _ := newTestOAuthService(t, repo, googleUserInfo())
	ctx := context.Background()

	existing := &user.User{
		ID:           "user-1",
		Username:     "existing",
		Email:        "oauth@example.com",
		PasswordHash: "irrelevant",
		Status:       user.StatusActive,
	}
	require.NoError(t, repo.Create(ctx, existing))

	begin, err := svc.BeginLogin(ctx, ProviderGoogle, "https://app.example.com/callback")
	require.NoError(t, err)

	result, err := svc.CompleteLogin(ctx, ProviderGoogle, "good-code", begin.State)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, result.User.ID)

	// The link resolves directly on the next login.
	begin, err = svc.BeginLogin(ctx, ProviderGoogle, "https://app.example.com/callback")
	require.NoError(t, err)
	again, err := svc.CompleteLogin(ctx, ProviderGoogle, "good-code", begin.State)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, again.User.ID)
}

func TestService_CompleteLogin_StateErrors(t *testing.T) {
	svc, states := newTestOAuthService(t, user.NewMockRepository(), googleUserInfo())
	ctx := context.Background()

	// Forged state.
	_, err := svc.CompleteLogin(ctx, ProviderGoogle, "good-code", "forged")
	assert.ErrorIs(t, err, ErrStateMismatch)

	// State issued for a different provider.
	state, err := states.Create(ctx, ProviderFacebook, "https://app.example.com/callback")
	require.NoError(t, err)
	_, err = svc.CompleteLogin(ctx, ProviderGoogle, "good-code", state)
	assert.ErrorIs(t, err, ErrStateMismatch)

	// Replayed state.
	begin, err := svc.BeginLogin(ctx, ProviderGoogle, "https://app.example.com/callback")
	require.NoError(t, err)
	_, err = svc.CompleteLogin(ctx, ProviderGoogle, "good-code", begin.State)
	require.NoError(t, err)
	_, err = svc.CompleteLogin(ctx, ProviderGoogle, "good-code", begin.State)
	assert.ErrorIs(t, err, ErrStateMismatch)
}

func TestService_CompleteLogin_ExchangeFails(t *testing.T) {
	svc, _ := newTestOAuthService(t, user.NewMockRepository(), googleUserInfo())
	ctx := context.Background()

	begin, err := svc.BeginLogin(ctx, ProviderGoogle, "https://app.example.com/callback")
	require.NoError(t, err)

	_, err = svc.CompleteLogin(ctx, ProviderGoogle, "bad-code", begin.State)
	assert.ErrorIs(t, err, ErrExchangeFailed)
}

func TestService_CompleteLogin_EmailMissing(t *testing.T) {
	info := googleUserInfo()
	info["email"] = ""
	svc, _ := newTestOAuthService(t, user.NewMockRepository(), info)
	ctx := context.Background()

	begin, err := svc.BeginLogin(ctx, ProviderGoogle, "https://app.example.com/callback")
	require.NoError(t, err)

	_, err = svc.CompleteLogin(ctx, ProviderGoogle, "good-code", begin.State)
	assert.ErrorIs(t, err, ErrEmailMissing)
}

func TestService_CompleteLogin_UsernameCollision(t *testing.T) {
	repo := user.NewMockRepository()
	svc, _ := newTestOAuthService(t, repo, googleUserInfo())
	ctx := context.Background()

	taken := &user.User{
		ID:           "user-1",
		Username:     "google_oauthuser",
		Email:        "other@example.com",
		PasswordHash: "irrelevant",
		Status:       user.StatusActive,
	}
	require.NoError(t, repo.Create(ctx, taken))

	begin, err := svc.BeginLogin(ctx, ProviderGoogle, "https://app.example.com/callback")
	require.NoError(t, err)

	result, err := svc.CompleteLogin(ctx, ProviderGoogle, "good-code", begin.State)
	require.NoError(t, err)
	assert.NotEqual(t, taken.Username, result.User.Username)
	assert.Contains(t, result.User.Username, "google_oauthuser")
}
