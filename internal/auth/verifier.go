package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// GoogleUserinfoURL is the v2 userinfo endpoint. It answers for any access
// token issued with the email/profile scopes.
const GoogleUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

var (
	// ErrInvalidToken means Google rejected the token (non-2xx response).
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrDomainNotAllowed means the token is valid but the account is
	// outside the organisation domain.
	ErrDomainNotAllowed = errors.New("auth: email domain not allowed")
	// ErrProviderUnavailable wraps transport failures talking to Google.
	ErrProviderUnavailable = errors.New("auth: identity provider unavailable")
)

// Verifier exchanges a bearer token for the Google profile behind it.
type Verifier struct {
	client      *http.Client
	userinfoURL string
	domain      string
	logger      *slog.Logger
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithUserinfoURL points the verifier at a different endpoint (tests).
func WithUserinfoURL(u string) VerifierOption {
	return func(v *Verifier) { v.userinfoURL = u }
}

// WithHTTPClient sets the client used for the userinfo call.
func WithHTTPClient(c *http.Client) VerifierOption {
	return func(v *Verifier) { v.client = c }
}

// NewVerifier creates a Verifier for domain. An empty domain falls back to
// DefaultAllowedDomain.
func NewVerifier(domain string, logger *slog.Logger, opts ...VerifierOption) *Verifier {
	if domain == "" {
		domain = DefaultAllowedDomain
	}
	v := &Verifier{
		client:      http.DefaultClient,
		userinfoURL: GoogleUserinfoURL,
		domain:      domain,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Domain returns the allowed email domain.
func (v *Verifier) Domain() string { return v.domain }

// Verify calls the userinfo endpoint with token. It returns ErrInvalidToken
// or ErrDomainNotAllowed when there is no usable identity, and an error
// wrapping ErrProviderUnavailable when Google could not be reached. The
// Authenticator treats all three as an invalid token.
func (v *Verifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.userinfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		v.logger.Debug("google token validation failed", slog.Int("status", resp.StatusCode))
		return nil, ErrInvalidToken
	}

	var id Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return nil, fmt.Errorf("%w: decoding userinfo: %w", ErrInvalidToken, err)
	}
	if id.ID == "" || id.Email == "" {
		return nil, fmt.Errorf("%w: userinfo missing id or email", ErrInvalidToken)
	}

	if !DomainAllowed(id.Email, v.domain) {
		v.logger.Info("domain not allowed", slog.String("email", id.Email))
		return nil, ErrDomainNotAllowed
	}

	return &id, nil
}
