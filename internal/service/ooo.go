package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/blockful/backoffice/internal/apperror"
	"github.com/blockful/backoffice/internal/model"
	"github.com/blockful/backoffice/internal/repository"
)

const (
	DefaultOOOListLimit = 50
	MaxOOOListLimit     = 100
	MaxOOOTextLength    = 2000
)

// OOOInput is a new out-of-office record. Active defaults to true.
type OOOInput struct {
	Active           *bool
	StartDate        time.Time
	EndDate          time.Time
	Reason           string
	Message          string
	EmergencyContact string
}

// OOOPatch holds optional changes; nil fields are left alone.
type OOOPatch struct {
	Active           *bool
	StartDate        *time.Time
	EndDate          *time.Time
	Reason           *string
	Message          *string
	EmergencyContact *string
}

// OOOService manages out-of-office records.
//
// Anyone may read the team calendar, but anonymous callers only see active
// records and never the emergency contact. Only the author can change or
// delete a record.
type OOOService struct {
	repo   repository.OOORepository
	logger *slog.Logger
}

func NewOOOService(repo repository.OOORepository, logger *slog.Logger) *OOOService {
	return &OOOService{repo: repo, logger: logger}
}

// Create stores a record authored by author. Name and email are copied from
// the author's account.
func (s *OOOService) Create(ctx context.Context, author *model.User, in OOOInput) (*model.OOO, error) {
	reason := strings.TrimSpace(in.Reason)
	message := strings.TrimSpace(in.Message)
	if err := validateOOOText(reason, message); err != nil {
		return nil, err
	}
	if err := validateOOODates(in.StartDate, in.EndDate); err != nil {
		return nil, err
	}

	active := true
	if in.Active != nil {
		active = *in.Active
	}

	o := &model.OOO{
		UserID:           author.ID,
		UserName:         author.Name,
		UserEmail:        author.Email,
		Active:           active,
		StartDate:        in.StartDate,
		EndDate:          in.EndDate,
		Reason:           reason,
		Message:          message,
		EmergencyContact: strings.TrimSpace(in.EmergencyContact),
	}
	if err := s.repo.CreateOOO(ctx, o); err != nil {
		s.logger.Error("failed to create ooo",
			slog.String("user_id", author.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating ooo: %w", err)
	}

	s.logger.Info("ooo created",
		slog.String("id", o.ID),
		slog.String("user_id", author.ID),
	)
	return o, nil
}

// List returns records visible to viewer (nil for anonymous callers).
func (s *OOOService) List(ctx context.Context, viewer *model.User, active *bool, limit, offset int) ([]model.OOO, error) {
	if limit <= 0 {
		limit = DefaultOOOListLimit
	}
	if limit > MaxOOOListLimit {
		limit = MaxOOOListLimit
	}
	if offset < 0 {
		offset = 0
	}

	if viewer == nil {
		// Anonymous callers only ever see active records.
		if active != nil && !*active {
			return []model.OOO{}, nil
		}
		t := true
		active = &t
	}

	records, err := s.repo.ListOOO(ctx, repository.OOOFilter{
		Active:      active,
		ListOptions: repository.ListOptions{Limit: limit, Offset: offset},
	})
	if err != nil {
		s.logger.Error("failed to list ooo", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing ooo: %w", err)
	}

	if viewer == nil {
		for i := range records {
			records[i].EmergencyContact = ""
		}
	}
	return records, nil
}

// Get returns one record if viewer may see it.
func (s *OOOService) Get(ctx context.Context, viewer *model.User, id string) (*model.OOO, error) {
	o, err := s.repo.GetOOO(ctx, id)
	if err != nil {
		return nil, err
	}
	if viewer == nil {
		if !o.Active {
			return nil, apperror.NotFound("ooo", id)
		}
		o.EmergencyContact = ""
	}
	return o, nil
}

// Update applies p to the record. Only the author may update it.
func (s *OOOService) Update(ctx context.Context, actor *model.User, id string, p OOOPatch) (*model.OOO, error) {
	o, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if p.Active != nil {
		o.Active = *p.Active
	}
	if p.StartDate != nil {
		o.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		o.EndDate = *p.EndDate
	}
	if p.Reason != nil {
		o.Reason = strings.TrimSpace(*p.Reason)
	}
	if p.Message != nil {
		o.Message = strings.TrimSpace(*p.Message)
	}
	if p.EmergencyContact != nil {
		o.EmergencyContact = strings.TrimSpace(*p.EmergencyContact)
	}

	if err := validateOOOText(o.Reason, o.Message); err != nil {
		return nil, err
	}
	if err := validateOOODates(o.StartDate, o.EndDate); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateOOO(ctx, o); err != nil {
		return nil, fmt.Errorf("updating ooo: %w", err)
	}
	s.logger.Info("ooo updated", slog.String("id", o.ID))
	return o, nil
}

// Delete removes the record. Only the author may delete it.
func (s *OOOService) Delete(ctx context.Context, actor *model.User, id string) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	if err := s.repo.DeleteOOO(ctx, id); err != nil {
		return fmt.Errorf("deleting ooo: %w", err)
	}
	s.logger.Info("ooo deleted", slog.String("id", id))
	return nil
}

func (s *OOOService) owned(ctx context.Context, actor *model.User, id string) (*model.OOO, error) {
	o, err := s.repo.GetOOO(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != actor.ID {
		return nil, apperror.Forbidden("You can only modify your own OOO records")
	}
	return o, nil
}

func validateOOOText(reason, message string) error {
	if reason == "" {
		return apperror.ValidationFailed("reason", "reason is required")
	}
	if message == "" {
		return apperror.ValidationFailed("message", "message is required")
	}
	if len(reason) > MaxOOOTextLength || len(message) > MaxOOOTextLength {
		return apperror.ValidationFailed("message",
			fmt.Sprintf("reason and message must be %d characters or less", MaxOOOTextLength))
	}
	return nil
}

func validateOOODates(start, end time.Time) error {
	if start.IsZero() {
		return apperror.ValidationFailed("startDate", "Invalid start date")
	}
	if end.IsZero() {
		return apperror.ValidationFailed("endDate", "Invalid end date")
	}
	if !end.After(start) {
		return apperror.ValidationFailed("endDate", "End date must be after start date")
	}
	return nil
}
