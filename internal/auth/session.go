package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/blockful/backoffice/internal/model"
)

// SessionCookieName is the cookie holding the signed session.
const SessionCookieName = "session"

// RefreshAccessTokenError marks a session whose access token expired and
// could not be refreshed. Such a session must not be trusted until the user
// signs in again.
const RefreshAccessTokenError = "RefreshAccessTokenError"

// defaultAccessTokenLifetime is assumed when the token response has no expiry.
const defaultAccessTokenLifetime = time.Hour

// SessionUser is the user snapshot embedded in a session.
type SessionUser struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar"`
}

// Session is the server-side view of a browser session.
type Session struct {
	AccessToken  string
	RefreshToken string
	// AccessTokenExpires is in epoch milliseconds.
	AccessTokenExpires int64
	User               SessionUser
	Error              string
}

// Expired reports whether the access token has expired at now.
func (s *Session) Expired(now time.Time) bool {
	return now.UnixMilli() >= s.AccessTokenExpires
}

// PublicSession is what the frontend gets to see. The refresh token stays
// on the server side.
type PublicSession struct {
	User        SessionUser `json:"user"`
	AccessToken string      `json:"accessToken"`
	Expires     int64       `json:"accessTokenExpires"`
	Error       string      `json:"error,omitempty"`
}

// Public returns the frontend-visible subset of s.
func (s *Session) Public() PublicSession {
	return PublicSession{
		User:        s.User,
		AccessToken: s.AccessToken,
		Expires:     s.AccessTokenExpires,
		Error:       s.Error,
	}
}

// Refresher trades a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// SessionIssuer creates, encodes and refreshes sessions.
type SessionIssuer struct {
	tokens    *TokenService
	sealer    *Sealer
	refresher Refresher
	maxAge    time.Duration
	secure    bool
	logger    *slog.Logger
	now       func() time.Time
}

// NewSessionIssuer builds an issuer. refresher may be nil when Google OAuth
// isn't configured; expired sessions are then marked immediately.
func NewSessionIssuer(tokens *TokenService, sealer *Sealer, refresher Refresher, maxAge time.Duration, secure bool, logger *slog.Logger) *SessionIssuer {
	return &SessionIssuer{
		tokens:    tokens,
		sealer:    sealer,
		refresher: refresher,
		maxAge:    maxAge,
		secure:    secure,
		logger:    logger,
		now:       time.Now,
	}
}

// Issue builds the session for a fresh sign-in.
func (si *SessionIssuer) Issue(tok *oauth2.Token, user *model.User) *Session {
	return &Session{
		AccessToken:        tok.AccessToken,
		RefreshToken:       tok.RefreshToken,
		AccessTokenExpires: si.expiresAt(tok),
		User: SessionUser{
			ID:     user.ID,
			Name:   user.Name,
			Email:  user.Email,
			Avatar: user.Avatar,
		},
	}
}

// Encode signs s into the cookie value.
func (si *SessionIssuer) Encode(s *Session) (string, error) {
	sealed, err := si.sealer.Seal(s.RefreshToken)
	if err != nil {
		return "", err
	}
	return si.tokens.Generate(sessionClaims{
		AccessToken:        s.AccessToken,
		SealedRefreshToken: sealed,
		AccessTokenExpires: s.AccessTokenExpires,
		User:               s.User,
		Error:              s.Error,
	}, si.maxAge)
}

// Decode verifies a cookie value and returns the session in it.
func (si *SessionIssuer) Decode(raw string) (*Session, error) {
	c, err := si.tokens.Validate(raw)
	if err != nil {
		return nil, err
	}
	refresh, err := si.sealer.Open(c.SealedRefreshToken)
	if err != nil {
		return nil, err
	}
	return &Session{
		AccessToken:        c.AccessToken,
		RefreshToken:       refresh,
		AccessTokenExpires: c.AccessTokenExpires,
		User:               c.User,
		Error:              c.Error,
	}, nil
}

// Resume decodes raw and refreshes the access token if it has expired.
// refreshed reports whether the session changed and should be written back.
//
// A failed refresh is not an error: the old payload is returned with Error
// set to RefreshAccessTokenError.
func (si *SessionIssuer) Resume(ctx context.Context, raw string) (s *Session, refreshed bool, err error) {
	s, err = si.Decode(raw)
	if err != nil {
		return nil, false, err
	}
	if s.Error != "" || !s.Expired(si.now()) {
		return s, false, nil
	}
	return si.refresh(ctx, s), true, nil
}

func (si *SessionIssuer) refresh(ctx context.Context, s *Session) *Session {
	if si.refresher == nil {
		s.Error = RefreshAccessTokenError
		return s
	}
	tok, err := si.refresher.Refresh(ctx, s.RefreshToken)
	if err != nil {
		si.logger.Warn("error refreshing access token",
			slog.String("user_id", s.User.ID),
			slog.String("error", err.Error()),
		)
		s.Error = RefreshAccessTokenError
		return s
	}

	next := *s
	next.AccessToken = tok.AccessToken
	next.AccessTokenExpires = si.expiresAt(tok)
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}
	next.Error = ""
	return &next
}

// expiresAt returns tok's expiry in epoch milliseconds. Token endpoints may
// omit expires_in; Google access tokens live for an hour, so that is assumed.
func (si *SessionIssuer) expiresAt(tok *oauth2.Token) int64 {
	if tok.Expiry.IsZero() {
		return si.now().Add(defaultAccessTokenLifetime).Unix() * 1000
	}
	return tok.Expiry.Unix() * 1000
}

// SetCookie encodes s and writes it as the session cookie.
func (si *SessionIssuer) SetCookie(w http.ResponseWriter, s *Session) error {
	value, err := si.Encode(s)
	if err != nil {
		return fmt.Errorf("auth: encoding session: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(si.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   si.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ClearCookie deletes the session cookie.
func (si *SessionIssuer) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   si.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
