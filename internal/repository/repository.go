// Package repository declares the storage contracts the service layer
// depends on. The sqlite subpackage implements them.
package repository

import (
	"context"
	"time"

	"github.com/blockful/backoffice/internal/model"
)

// ListOptions controls pagination. Implementations clamp Limit to a sane range.
type ListOptions struct {
	Limit  int
	Offset int
}

// ProfileUpdate carries the fields refreshed on every verified login.
// GoogleID is only applied by UpdateUserByEmail, which links the identity.
type ProfileUpdate struct {
	GoogleID  string
	Name      string
	Avatar    string
	LastLogin time.Time
}

// UserRepository is the keyed record store behind reconciliation.
//
// Getters return an *apperror.AppError wrapping apperror.ErrNotFound when no
// row matches. CreateUser returns apperror.ErrConflict on a unique violation
// (email or google_id).
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByGoogleID(ctx context.Context, googleID string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	CreateUser(ctx context.Context, user *model.User) error
	UpdateUserByGoogleID(ctx context.Context, googleID string, p ProfileUpdate) (*model.User, error)
	UpdateUserByEmail(ctx context.Context, email string, p ProfileUpdate) (*model.User, error)
	// UpdateUser writes the administrative fields (name, avatar, active).
	UpdateUser(ctx context.Context, user *model.User) error
}

// OOOFilter narrows an OOO listing. A nil Active means "any".
type OOOFilter struct {
	Active *bool
	ListOptions
}

type OOORepository interface {
	CreateOOO(ctx context.Context, o *model.OOO) error
	GetOOO(ctx context.Context, id string) (*model.OOO, error)
	ListOOO(ctx context.Context, f OOOFilter) ([]model.OOO, error)
	UpdateOOO(ctx context.Context, o *model.OOO) error
	DeleteOOO(ctx context.Context, id string) error
}

type ReimbursementRepository interface {
	CreateReimbursement(ctx context.Context, r *model.Reimbursement) error
	GetReimbursement(ctx context.Context, id string) (*model.Reimbursement, error)
	// ListReimbursements returns userID's reimbursements, newest first.
	// An empty status matches every status.
	ListReimbursements(ctx context.Context, userID string, status model.ReimbursementStatus) ([]model.Reimbursement, error)
	UpdateReimbursement(ctx context.Context, r *model.Reimbursement) error
	DeleteReimbursement(ctx context.Context, id string) error
	ReimbursementStats(ctx context.Context, userID string) (model.ReimbursementStats, error)
}
