package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleProvider handles the OAuth2 authorization code flow with Google.
//
// THE FLOW:
//  1. /auth/google redirects the browser to AuthURL(state)
//  2. Google redirects back to /auth/google/callback?code=...&state=...
//  3. Exchange(code) trades the code for access + refresh tokens
//  4. The access token is verified against userinfo and the user reconciled
//  5. Later, Refresh(refreshToken) gets a new access token when it expires
//
// We ask for offline access with a consent prompt so Google always returns a
// refresh token, even for accounts that have signed in before.
type GoogleProvider struct {
	config *oauth2.Config
	client *http.Client
}

// NewGoogleProvider creates a provider. client is used for the token
// endpoint calls; nil means http.DefaultClient.
func NewGoogleProvider(clientID, clientSecret, redirectURL string, client *http.Client) *GoogleProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		client: client,
	}
}

// WithEndpoint overrides the OAuth endpoints (tests point this at httptest).
func (p *GoogleProvider) WithEndpoint(ep oauth2.Endpoint) *GoogleProvider {
	p.config.Endpoint = ep
	return p
}

// AuthURL returns the consent screen URL for state.
func (p *GoogleProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Exchange trades an authorization code for tokens.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := p.config.Exchange(p.withClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}
	return tok, nil
}

// Refresh obtains a fresh access token. Google usually omits a new refresh
// token; the oauth2 package then carries the old one over.
func (p *GoogleProvider) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, errors.New("auth: no refresh token")
	}
	src := p.config.TokenSource(p.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("auth: refreshing access token: %w", err)
	}
	return tok, nil
}

// withClient makes the oauth2 package use our (instrumented) client.
func (p *GoogleProvider) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}
