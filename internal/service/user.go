package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/blockful/backoffice/internal/apperror"
	"github.com/blockful/backoffice/internal/auth"
	"github.com/blockful/backoffice/internal/model"
	"github.com/blockful/backoffice/internal/repository"
)

// ProviderGoogle is the only identity provider we support.
const ProviderGoogle = "google"

// ProfileInput is the body of POST /auth/users: a profile pushed by the
// frontend's sign-in adapter.
type ProfileInput struct {
	Name     string
	Email    string
	Image    string
	GoogleID string
}

// UserPatch holds optional changes for PUT /auth/users/{id}. Nil fields are
// left alone.
type UserPatch struct {
	Name     *string
	Avatar   *string
	IsActive *bool
}

// UserService handles user administration on top of the Reconciler.
type UserService struct {
	users      repository.UserRepository
	reconciler *Reconciler
	logger     *slog.Logger
}

func NewUserService(users repository.UserRepository, reconciler *Reconciler, logger *slog.Logger) *UserService {
	return &UserService{
		users:      users,
		reconciler: reconciler,
		logger:     logger,
	}
}

// CreateFromProfile creates or updates the user for a profile pushed by the
// frontend. verified is the identity behind the request's bearer token; the
// profile email must match it so a token can't be used to create someone
// else's account.
func (s *UserService) CreateFromProfile(ctx context.Context, verified *auth.Identity, in ProfileInput) (*model.User, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "Email is required")
	}
	if !strings.EqualFold(email, verified.Email) {
		return nil, apperror.ValidationFailed("email", "Email in request body must match the authenticated user's email")
	}

	// The Google ID always comes from the verified token. A different one in
	// the body is ignored.
	if in.GoogleID != "" && in.GoogleID != verified.ID {
		s.logger.Warn("ignoring mismatched googleId in profile",
			slog.String("email", email),
		)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = verified.Name
	}
	picture := in.Image
	if picture == "" {
		picture = verified.Picture
	}

	return s.reconciler.Reconcile(ctx, &auth.Identity{
		ID:      verified.ID,
		Email:   email,
		Name:    name,
		Picture: picture,
	})
}

func (s *UserService) GetByID(ctx context.Context, id string) (*model.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}
	return s.users.GetUserByID(ctx, id)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "Email is required")
	}
	return s.users.GetUserByEmail(ctx, email)
}

// GetByProvider looks a user up by provider account ID. Only "google" is
// supported.
func (s *UserService) GetByProvider(ctx context.Context, provider, accountID string) (*model.User, error) {
	if provider != ProviderGoogle {
		return nil, apperror.ValidationFailed("provider", "Unsupported provider")
	}
	if accountID == "" {
		return nil, apperror.ValidationFailed("providerAccountId", "provider account ID is required")
	}
	return s.users.GetUserByGoogleID(ctx, accountID)
}

// Update applies p to the user. Email and Google ID are owned by the
// identity provider and can't be changed here.
func (s *UserService) Update(ctx context.Context, id string, p UserPatch) (*model.User, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, apperror.ValidationFailed("name", "name cannot be empty")
		}
		user.Name = name
	}
	if p.Avatar != nil {
		user.Avatar = strings.TrimSpace(*p.Avatar)
	}
	if p.IsActive != nil {
		user.IsActive = *p.IsActive
	}

	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("updating user: %w", err)
	}
	if s.reconciler != nil {
		s.reconciler.Invalidate(user)
	}
	s.logger.Info("user updated", slog.String("id", user.ID))
	return user, nil
}

// Deactivate clears the active flag. Users are never hard-deleted.
func (s *UserService) Deactivate(ctx context.Context, id string) error {
	inactive := false
	if _, err := s.Update(ctx, id, UserPatch{IsActive: &inactive}); err != nil {
		return err
	}
	s.logger.Info("user deactivated", slog.String("id", id))
	return nil
}
