package oauth

import (
	"golang.org/x/oauth2"

	"github.com/saypex/auth-service/internal/config"
)

const (
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"
)

// Provider bundles the oauth2 endpoint configuration with the
// provider's user-info URL.
type Provider struct {
	Name         string
	DisplayName  string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string
}

// Config builds the x/oauth2 config for one authorization request.
func (p *Provider) Config(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       p.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.AuthURL,
			TokenURL: p.TokenURL,
		},
	}
}

// ProviderInfo is the public descriptor returned by /oauth/providers.
type ProviderInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

func defaultProviders() map[string]Provider {
	return map[string]Provider{
		ProviderGoogle: {
			Name:        ProviderGoogle,
			DisplayName: "Google",
			AuthURL:     "https://accounts.google.com/o/oauth2/auth",
			TokenURL:    "https://oauth2.googleapis.com/token",
			UserInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
			Scopes:      []string{"openid", "email", "profile"},
		},
		ProviderFacebook: {
			Name:        ProviderFacebook,
			DisplayName: "Facebook",
			AuthURL:     "https://www.facebook.com/v18.0/dialog/oauth",
			TokenURL:    "https://graph.facebook.com/v18.0/oauth/access_token",
			UserInfoURL: "https://graph.facebook.com/v18.0/me",
			Scopes:      []string{"email"},
		},
	}
}

// buildProviders merges configured credentials and endpoint overrides
// into the provider defaults. Only providers with a client id are
// considered configured.
func buildProviders(cfg *config.OAuthConfig) map[string]Provider {
	providers := make(map[string]Provider)
	for name, defaults := range defaultProviders() {
		pc, ok := cfg.Providers[name]
		if !ok || pc.ClientID == "" {
			continue
		}
		p := defaults
		p.ClientID = pc.ClientID
		p.ClientSecret = pc.ClientSecret
		if pc.AuthURL != "" {
			p.AuthURL = pc.AuthURL
		}
		if pc.TokenURL != "" {
			p.TokenURL = pc.TokenURL
		}
		if pc.UserInfoURL != "" {
			p.UserInfoURL = pc.UserInfoURL
		}
		if len(pc.Scopes) > 0 {
			p.Scopes = pc.Scopes
		}
		providers[name] = p
	}
	return providers
}
