// Package service holds the business logic between handlers and repositories.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/blockful/backoffice/internal/apperror"
	"github.com/blockful/backoffice/internal/auth"
	"github.com/blockful/backoffice/internal/inflight"
	"github.com/blockful/backoffice/internal/model"
	"github.com/blockful/backoffice/internal/repository"
)

// matcher is one strategy for finding the local user behind an identity.
// Matchers are tried in order; the first one that finds a row updates it.
type matcher struct {
	name   string
	find   func(ctx context.Context, id *auth.Identity) (*model.User, error)
	update func(ctx context.Context, id *auth.Identity, now time.Time) (*model.User, error)
}

// Reconciler maps verified Google identities onto local user rows.
//
// Reconcile is idempotent per identity: the user is matched by Google ID,
// then by email (a user created before their Google account was linked), and
// only inserted when neither matches. Concurrent calls for the same identity
// share one reconciliation through an inflight.Group, so two near-identical
// requests for a brand-new user can't race each other into the insert.
//
// The guard is process-local. Across several processes the UNIQUE
// constraints on email and google_id are what keeps the table consistent; the
// loser of such a race gets an apperror.ErrConflict.
type Reconciler struct {
	users     repository.UserRepository
	domain    string
	provision bool
	group     *inflight.Group[*model.User]
	matchers  []matcher
	logger    *slog.Logger
	now       func() time.Time
}

// NewReconciler creates a Reconciler. With provision false, identities that
// match no row are rejected with apperror.ErrNotFound instead of inserted.
// grace is how long a finished reconciliation keeps answering for its key.
func NewReconciler(users repository.UserRepository, domain string, provision bool, grace time.Duration, logger *slog.Logger) *Reconciler {
	if domain == "" {
		domain = auth.DefaultAllowedDomain
	}
	r := &Reconciler{
		users:     users,
		domain:    domain,
		provision: provision,
		group:     inflight.New[*model.User](grace),
		logger:    logger,
		now:       time.Now,
	}
	r.matchers = []matcher{
		{name: "google_id", find: r.findByGoogleID, update: r.updateByGoogleID},
		{name: "email", find: r.findByEmail, update: r.updateByEmail},
	}
	return r
}

// Reconcile finds or creates the local user for id and refreshes its
// profile. It runs detached from ctx cancellation: a client that hangs up
// mid-request doesn't abort a reconciliation other callers may be sharing.
func (r *Reconciler) Reconcile(ctx context.Context, id *auth.Identity) (*model.User, error) {
	if id == nil || id.Email == "" {
		return nil, apperror.ValidationFailed("email", "Email is required")
	}

	detached := context.WithoutCancel(ctx)
	user, err, shared := r.group.Do(id.Key(), func() (*model.User, error) {
		return r.reconcile(detached, id)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.logger.Debug("reconciliation shared", slog.String("key", id.Key()))
	}

	// Callers share the pointer; hand each one its own copy.
	u := *user
	return &u, nil
}

// Invalidate drops the remembered reconciliation for u, so the next request
// for that identity reads the row again. Call it after any change to a user
// made outside Reconcile, deactivation in particular.
func (r *Reconciler) Invalidate(u *model.User) {
	id := auth.Identity{ID: u.GoogleID, Email: u.Email}
	r.group.Forget(id.Key())
}

// Lookup runs the matchers without writing anything. It returns
// apperror.ErrNotFound when no row matches.
func (r *Reconciler) Lookup(ctx context.Context, id *auth.Identity) (*model.User, error) {
	if err := r.checkDomain(id.Email); err != nil {
		return nil, err
	}
	for _, m := range r.matchers {
		u, err := m.find(ctx, id)
		if errors.Is(err, apperror.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lookup by %s: %w", m.name, err)
		}
		return u, nil
	}
	return nil, apperror.NotFound("user", id.Email)
}

// ResolveUser implements auth.UserResolver. When provisioning is on, every
// verified request goes through Reconcile (auto-creating first-time users);
// otherwise the user must already exist.
func (r *Reconciler) ResolveUser(ctx context.Context, id *auth.Identity) (*model.User, error) {
	if r.provision {
		return r.Reconcile(ctx, id)
	}
	return r.Lookup(ctx, id)
}

func (r *Reconciler) reconcile(ctx context.Context, id *auth.Identity) (*model.User, error) {
	if err := r.checkDomain(id.Email); err != nil {
		return nil, err
	}
	now := r.now().UTC()

	for _, m := range r.matchers {
		if _, err := m.find(ctx, id); err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("reconcile: lookup by %s: %w", m.name, err)
		}

		u, err := m.update(ctx, id, now)
		if err != nil {
			r.logger.Error("failed to update user",
				slog.String("matched_by", m.name),
				slog.String("email", id.Email),
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("reconcile: update by %s: %w", m.name, err)
		}
		r.logger.Info("user updated",
			slog.String("id", u.ID),
			slog.String("matched_by", m.name),
		)
		return u, nil
	}

	if !r.provision {
		return nil, apperror.NotFound("user", id.Email)
	}

	user := &model.User{
		GoogleID:  id.ID,
		Email:     strings.ToLower(id.Email),
		Name:      id.Name,
		Avatar:    id.Picture,
		IsActive:  true,
		LastLogin: &now,
	}
	if err := r.users.CreateUser(ctx, user); err != nil {
		r.logger.Error("failed to create user",
			slog.String("email", id.Email),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("reconcile: create: %w", err)
	}

	r.logger.Info("user created",
		slog.String("id", user.ID),
		slog.String("email", user.Email),
	)
	return user, nil
}

func (r *Reconciler) checkDomain(email string) error {
	if !auth.DomainAllowed(email, r.domain) {
		return apperror.Forbidden(fmt.Sprintf("Only %s email addresses are allowed", r.domain))
	}
	return nil
}

func (r *Reconciler) findByGoogleID(ctx context.Context, id *auth.Identity) (*model.User, error) {
	if id.ID == "" {
		return nil, apperror.NotFound("user", "")
	}
	return r.users.GetUserByGoogleID(ctx, id.ID)
}

func (r *Reconciler) updateByGoogleID(ctx context.Context, id *auth.Identity, now time.Time) (*model.User, error) {
	return r.users.UpdateUserByGoogleID(ctx, id.ID, repository.ProfileUpdate{
		Name:      id.Name,
		Avatar:    id.Picture,
		LastLogin: now,
	})
}

func (r *Reconciler) findByEmail(ctx context.Context, id *auth.Identity) (*model.User, error) {
	return r.users.GetUserByEmail(ctx, id.Email)
}

func (r *Reconciler) updateByEmail(ctx context.Context, id *auth.Identity, now time.Time) (*model.User, error) {
	return r.users.UpdateUserByEmail(ctx, id.Email, repository.ProfileUpdate{
		GoogleID:  id.ID,
		Name:      id.Name,
		Avatar:    id.Picture,
		LastLogin: now,
	})
}
