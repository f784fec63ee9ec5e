package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/blockful/backoffice/internal/apperror"
	"github.com/blockful/backoffice/internal/model"
)

// LoginURL is the hint sent with every 401 so clients know where to restart
// the sign-in flow.
const LoginURL = "/auth/google"

// Rejection reasons. They double as the "error" field of the 401/500 body.
const (
	ReasonAuthRequired   = "Authentication required"
	ReasonInvalidToken   = "Invalid token"
	ReasonUserNotFound   = "User not found"
	ReasonInactiveUser   = "Inactive user"
	ReasonSessionExpired = "Session expired"
	ReasonInternal       = "Authentication error"
)

var reasonMessages = map[string]string{
	ReasonAuthRequired:   "Please provide a valid Bearer token",
	ReasonInvalidToken:   "The provided token is invalid or expired",
	ReasonUserNotFound:   "User not registered in our system. Please sign in through the application first.",
	ReasonInactiveUser:   "User account is inactive",
	ReasonSessionExpired: "Your session has expired. Please sign in again.",
	ReasonInternal:       "Failed to verify authentication",
}

// Status is the outcome of authenticating a request.
type Status int

const (
	Unauthenticated Status = iota
	Authenticated
	Failed
)

func (s Status) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	default:
		return "unauthenticated"
	}
}

// Result is handed to every handler behind the Authenticator instead of
// stashing the user in the request context.
//
// Authenticated results carry Identity, and User unless the route only asked
// for the identity. Unauthenticated results carry the Reason they were
// rejected. Failed means something broke on our side (Google unreachable,
// store error) and Err holds the cause.
type Result struct {
	Status   Status
	User     *model.User
	Identity *Identity
	Reason   string
	Err      error
}

// OK reports whether the request is authenticated.
func (r Result) OK() bool { return r.Status == Authenticated }

// HandlerFunc is an http.HandlerFunc that also receives the auth result.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, res Result)

// IdentityVerifier checks a bearer token with the identity provider.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// UserResolver maps a verified identity to the local user. It returns an
// error wrapping apperror.ErrNotFound when there is no such user.
type UserResolver interface {
	ResolveUser(ctx context.Context, id *Identity) (*model.User, error)
}

// Authenticator gates requests on a Google access token. The token comes
// from the Authorization header or, failing that, from the session cookie.
type Authenticator struct {
	verifier IdentityVerifier
	users    UserResolver
	sessions *SessionIssuer
	logger   *slog.Logger
}

// NewAuthenticator creates an Authenticator. sessions may be nil, in which
// case only bearer tokens are accepted.
func NewAuthenticator(verifier IdentityVerifier, users UserResolver, sessions *SessionIssuer, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		verifier: verifier,
		users:    users,
		sessions: sessions,
		logger:   logger,
	}
}

// Require rejects the request unless it is authenticated as an active user.
func (a *Authenticator) Require(next HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := a.Authenticate(w, r, true)
		if !res.OK() {
			a.reject(w, r, res)
			return
		}
		next(w, r, res)
	}
}

// Optional runs next whether or not the request is authenticated. Failures
// are logged and the request continues as anonymous.
func (a *Authenticator) Optional(next HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := a.Authenticate(w, r, true)
		if !res.OK() {
			if res.Status == Failed {
				a.logger.Warn("optional auth error", slog.String("error", errString(res.Err)))
			}
			res = Result{Status: Unauthenticated, Reason: res.Reason}
		}
		next(w, r, res)
	}
}

// RequireIdentity only checks the token with Google. res.User is nil.
func (a *Authenticator) RequireIdentity(next HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := a.Authenticate(w, r, false)
		if !res.OK() {
			a.reject(w, r, res)
			return
		}
		next(w, r, res)
	}
}

// Authenticate resolves the request's credentials. With resolveUser false it
// stops after verifying the token. w is used to write back a refreshed
// session cookie.
func (a *Authenticator) Authenticate(w http.ResponseWriter, r *http.Request, resolveUser bool) Result {
	token, res, ok := a.accessToken(w, r)
	if !ok {
		return res
	}

	ctx := r.Context()
	identity, err := a.verifier.Verify(ctx, token)
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrDomainNotAllowed):
		return unauthenticated(ReasonInvalidToken)
	case errors.Is(err, ErrProviderUnavailable):
		// Fail closed: a token Google can't vouch for right now is not valid.
		a.logger.Warn("identity provider unavailable", slog.String("error", err.Error()))
		return unauthenticated(ReasonInvalidToken)
	default:
		return Result{Status: Failed, Reason: ReasonInternal, Err: err}
	}

	if !resolveUser {
		return Result{Status: Authenticated, Identity: identity}
	}

	user, err := a.users.ResolveUser(ctx, identity)
	switch {
	case err == nil:
	case errors.Is(err, apperror.ErrNotFound):
		return unauthenticated(ReasonUserNotFound)
	case errors.Is(err, apperror.ErrForbidden):
		return unauthenticated(ReasonInvalidToken)
	default:
		return Result{Status: Failed, Reason: ReasonInternal, Err: err}
	}

	if !user.IsActive {
		return unauthenticated(ReasonInactiveUser)
	}
	return Result{Status: Authenticated, User: user, Identity: identity}
}

// accessToken pulls the Google access token from the Authorization header,
// or from the session cookie when there is no header. ok is false when the
// request should stop with res.
func (a *Authenticator) accessToken(w http.ResponseWriter, r *http.Request) (token string, res Result, ok bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", unauthenticated(ReasonAuthRequired), false
		}
		return strings.TrimSpace(parts[1]), Result{}, true
	}

	if a.sessions == nil {
		return "", unauthenticated(ReasonAuthRequired), false
	}
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", unauthenticated(ReasonAuthRequired), false
	}

	s, refreshed, err := a.sessions.Resume(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return "", unauthenticated(ReasonSessionExpired), false
		}
		return "", unauthenticated(ReasonInvalidToken), false
	}
	if refreshed {
		if err := a.sessions.SetCookie(w, s); err != nil {
			a.logger.Error("failed to write refreshed session", slog.String("error", err.Error()))
		}
	}
	if s.Error != "" {
		return "", unauthenticated(ReasonSessionExpired), false
	}
	return s.AccessToken, Result{}, true
}

func (a *Authenticator) reject(w http.ResponseWriter, r *http.Request, res Result) {
	if res.Status == Failed {
		a.logger.Error("authentication error",
			slog.String("path", r.URL.Path),
			slog.String("error", errString(res.Err)),
		)
		writeAuthError(w, http.StatusInternalServerError, ReasonInternal, "")
		return
	}
	writeAuthError(w, http.StatusUnauthorized, res.Reason, LoginURL)
}

func unauthenticated(reason string) Result {
	return Result{Status: Unauthenticated, Reason: reason}
}

// writeAuthError writes the rejection body. loginURL is omitted when empty.
func writeAuthError(w http.ResponseWriter, status int, reason, loginURL string) {
	body := map[string]string{
		"error":   reason,
		"message": reasonMessages[reason],
	}
	if loginURL != "" {
		body["loginUrl"] = loginURL
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
