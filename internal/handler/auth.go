package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/xid"
	"golang.org/x/oauth2"

	"github.com/blockful/backoffice/internal/apperror"
	"github.com/blockful/backoffice/internal/auth"
	"github.com/blockful/backoffice/internal/model"
	"github.com/blockful/backoffice/internal/service"
)

const stateCookieName = "oauth_state"

// OAuthProvider runs the browser side of the Google sign-in.
// *auth.GoogleProvider implements it.
type OAuthProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// Reconciler maps a verified identity onto the local user, creating it when
// needed. *service.Reconciler implements it.
type Reconciler interface {
	Reconcile(ctx context.Context, id *auth.Identity) (*model.User, error)
}

// AuthHandler manages the Google OAuth login flow, browser sessions, and
// the user creation endpoint used by the frontend's sign-in adapter.
//
// HANDLER RESPONSIBILITIES:
//   - HandleGoogleLogin    → redirect the browser to Google's consent page
//   - HandleGoogleCallback → exchange the code, reconcile the user, set the session
//   - HandleSession        → the frontend-visible part of the session
//   - HandleLogout         → clear the session cookie
//   - HandleMe             → the authenticated user
//   - HandleCreateUser     → create or update the user behind a bearer token
type AuthHandler struct {
	google      OAuthProvider
	verifier    auth.IdentityVerifier
	reconciler  Reconciler
	users       *service.UserService
	sessions    *auth.SessionIssuer
	frontendURL string
	domain      string
	logger      *slog.Logger
}

// NewAuthHandler creates an AuthHandler. google may be nil when OAuth client
// credentials aren't configured; the login routes are then not registered.
func NewAuthHandler(
	google OAuthProvider,
	verifier auth.IdentityVerifier,
	reconciler Reconciler,
	users *service.UserService,
	sessions *auth.SessionIssuer,
	frontendURL, domain string,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		google:      google,
		verifier:    verifier,
		reconciler:  reconciler,
		users:       users,
		sessions:    sessions,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		domain:      domain,
		logger:      logger,
	}
}

// HandleGoogleLogin redirects the user to Google's consent page.
//
// HTTP: GET /auth/google
//
// A random state is stored in a short-lived HttpOnly cookie and checked on
// callback, so only flows started here can complete.
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.google.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGoogleCallback completes the OAuth login flow.
//
// HTTP: GET /auth/google/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for Google tokens
//  3. Verify the access token and reconcile the local user
//  4. Store the session in an HttpOnly cookie
//  5. Redirect to the frontend
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// --- Step 1: Validate CSRF state ---
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || q.Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		writeError(w, apperror.ValidationFailed("state", "Invalid OAuth state"))
		return
	}

	// Single use.
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := q.Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, h.frontendURL+"/login?error="+url.QueryEscape(errParam), http.StatusSeeOther)
		return
	}

	// --- Step 2: Exchange code for tokens ---
	code := q.Get("code")
	if code == "" {
		writeError(w, apperror.ValidationFailed("code", "Missing OAuth code"))
		return
	}

	tok, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: code exchange failed", slog.String("error", err.Error()))
		h.loginFailed(w)
		return
	}

	// --- Step 3: Verify and reconcile ---
	identity, err := h.verifier.Verify(r.Context(), tok.AccessToken)
	if err != nil {
		if errors.Is(err, auth.ErrDomainNotAllowed) {
			h.accessDenied(w, fmt.Sprintf("Only %s email addresses are allowed", h.domain))
			return
		}
		h.logger.Error("auth callback: verification failed", slog.String("error", err.Error()))
		h.loginFailed(w)
		return
	}

	user, err := h.reconciler.Reconcile(r.Context(), identity)
	if err != nil {
		var appErr *apperror.AppError
		if errors.Is(err, apperror.ErrForbidden) && errors.As(err, &appErr) {
			h.accessDenied(w, appErr.Message)
			return
		}
		h.logger.Error("auth callback: reconcile failed",
			slog.String("email", identity.Email),
			slog.String("error", err.Error()),
		)
		h.loginFailed(w)
		return
	}
	if !user.IsActive {
		h.accessDenied(w, "User account is inactive")
		return
	}

	// --- Step 4: Session cookie ---
	if err := h.sessions.SetCookie(w, h.sessions.Issue(tok, user)); err != nil {
		h.logger.Error("auth callback: writing session failed", slog.String("error", err.Error()))
		h.loginFailed(w)
		return
	}

	h.logger.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	// --- Step 5: Back to the app ---
	http.Redirect(w, r, h.frontendURL+"/dashboard", http.StatusSeeOther)
}

// HandleSession returns the frontend-visible part of the browser session,
// refreshing the access token first when it has expired.
//
// HTTP: GET /auth/session
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(auth.SessionCookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, apperror.Unauthorized("No active session"))
		return
	}

	s, refreshed, err := h.sessions.Resume(r.Context(), cookie.Value)
	if err != nil {
		h.sessions.ClearCookie(w)
		writeError(w, apperror.Unauthorized("No active session"))
		return
	}
	if refreshed {
		if err := h.sessions.SetCookie(w, s); err != nil {
			h.logger.Error("failed to write refreshed session", slog.String("error", err.Error()))
		}
	}

	writeJSON(w, http.StatusOK, s.Public())
}

// HandleLogout clears the session cookie.
//
// HTTP: GET /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.ClearCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{
		"message":  "Logged out successfully",
		"loginUrl": auth.LoginURL,
	})
}

// HandleMe returns the authenticated user.
//
// HTTP: GET /auth/me
// Auth: Required
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request, res auth.Result) {
	writeJSON(w, http.StatusOK, map[string]*model.User{"user": res.User})
}

type createUserRequest struct {
	Name     string `json:"name" validate:"max=200"`
	Email    string `json:"email" validate:"required,email"`
	Image    string `json:"image" validate:"omitempty,url"`
	GoogleID string `json:"googleId"`
}

// HandleCreateUser creates or updates the user behind the bearer token.
//
// HTTP: POST /auth/users
// Auth: Google token only (the user may not exist yet)
// REQUEST BODY: {"name": "...", "email": "...", "image": "...", "googleId": "..."}
func (h *AuthHandler) HandleCreateUser(w http.ResponseWriter, r *http.Request, res auth.Result) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.CreateFromProfile(r.Context(), res.Identity, service.ProfileInput{
		Name:     req.Name,
		Email:    req.Email,
		Image:    req.Image,
		GoogleID: req.GoogleID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]*model.User{"user": user})
}

func (h *AuthHandler) loginFailed(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "authentication_failed",
		Message: "Could not complete Google login",
	})
}

func (h *AuthHandler) accessDenied(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusForbidden, ErrorResponse{
		Error:   "access_denied",
		Message: message,
	})
}
