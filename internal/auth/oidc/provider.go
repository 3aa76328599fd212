// Package oidc implements the OpenID Connect login flow for admin SSO.
// It handles provider discovery, token exchange, and claims extraction.
// Providers are built from Settings rather than the static config file because
// the platform stores its SSO configuration in the database, where operators
// can change the identity provider at runtime.
package oidc

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Settings holds the values needed to talk to an OIDC identity provider.
// Scopes defaults to openid/email/profile when empty.
type Settings struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// Provider wraps a discovered OIDC identity provider
type Provider struct {
	verifier *oidc.IDTokenVerifier
	config   *oauth2.Config
	provider *oidc.Provider
}

// New initializes a Provider with the given context, allowing callers to set
// deadlines or cancellation for the OIDC discovery request.
func New(ctx context.Context, s Settings) (*Provider, error) {
	if s.IssuerURL == "" {
		return nil, fmt.Errorf("OIDC issuer URL is required")
	}

	if s.ClientID == "" {
		return nil, fmt.Errorf("OIDC client ID is required")
	}

	if s.ClientSecret == "" {
		return nil, fmt.Errorf("OIDC client secret is required")
	}

	scopes := s.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}

	// Discovery fetches the provider metadata document
	provider, err := oidc.NewProvider(ctx, s.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	// Create ID token verifier
	verifier := provider.Verifier(&oidc.Config{
		ClientID: s.ClientID,
	})

	// Configure OAuth2
	oauth2Config := &oauth2.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		RedirectURL:  s.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       scopes,
	}

	return &Provider{
		verifier: verifier,
		config:   oauth2Config,
		provider: provider,
	}, nil
}

// AuthURL returns the OAuth2 authorization URL
func (p *Provider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// EndSessionEndpoint returns the OIDC end_session_endpoint from the discovery
// document, or an empty string if the provider does not advertise one.
func (p *Provider) EndSessionEndpoint() string {
	var claims struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := p.provider.Claims(&claims); err != nil {
		return ""
	}
	return claims.EndSessionEndpoint
}

// ExchangeCode exchanges the authorization code for tokens
func (p *Provider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}

	return token, nil
}

// VerifyIDToken verifies and extracts claims from the ID token
func (p *Provider) VerifyIDToken(ctx context.Context, rawIDToken string) (*oidc.IDToken, error) {
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	return idToken, nil
}

// ExtractAccountInfo extracts account identity from the ID token. The sub and
// email claims are required; name falls back to the email address.
func (p *Provider) ExtractAccountInfo(idToken *oidc.IDToken) (sub, email, name string, err error) {
	var claims struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}

	if err := idToken.Claims(&claims); err != nil {
		return "", "", "", fmt.Errorf("failed to parse ID token claims: %w", err)
	}

	if claims.Sub == "" {
		return "", "", "", fmt.Errorf("ID token missing 'sub' claim")
	}

	if claims.Email == "" {
		return "", "", "", fmt.Errorf("ID token missing 'email' claim")
	}

	if claims.Name == "" {
		claims.Name = claims.Email
	}

	return claims.Sub, claims.Email, claims.Name, nil
}
