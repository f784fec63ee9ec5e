package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/blockful/backoffice/internal/apperror"
	"github.com/blockful/backoffice/internal/model"
	"github.com/blockful/backoffice/internal/repository"
	"github.com/blockful/backoffice/internal/storage"
)

const (
	DefaultCurrency      = "USD"
	MaxDescriptionLength = 1000
	MaxFileNameLength    = 255
)

// FileStore is where attachments live. *storage.Store implements it.
type FileStore interface {
	Save(src io.Reader) (*storage.Object, error)
	Open(name string) (*os.File, error)
	Remove(name string) error
}

// ReimbursementInput is a new reimbursement request with its invoice file.
type ReimbursementInput struct {
	Amount      string // decimal, e.g. "123.45"
	Currency    string
	Description string
	InvoiceDate time.Time
	FileName    string
	File        io.Reader
}

// ReimbursementService manages reimbursement requests. Every operation is
// scoped to the owner; another user's records look like they don't exist.
type ReimbursementService struct {
	repo   repository.ReimbursementRepository
	files  FileStore
	logger *slog.Logger
}

func NewReimbursementService(repo repository.ReimbursementRepository, files FileStore, logger *slog.Logger) *ReimbursementService {
	return &ReimbursementService{repo: repo, files: files, logger: logger}
}

// Create validates the request, stores the file and inserts the record.
// If the insert fails the stored file is removed again.
func (s *ReimbursementService) Create(ctx context.Context, owner *model.User, in ReimbursementInput) (*model.Reimbursement, error) {
	cents, err := ParseAmountCents(in.Amount)
	if err != nil {
		return nil, err
	}
	if in.InvoiceDate.IsZero() {
		return nil, apperror.ValidationFailed("invoiceDate", "Invalid invoice date")
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	if len(currency) != 3 {
		return nil, apperror.ValidationFailed("currency", "currency must be a 3-letter code")
	}
	description := strings.TrimSpace(in.Description)
	if len(description) > MaxDescriptionLength {
		return nil, apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}
	if in.File == nil {
		return nil, apperror.ValidationFailed("file", "No file uploaded")
	}

	obj, err := s.files.Save(in.File)
	if err != nil {
		return nil, mapStorageError(err)
	}

	r := &model.Reimbursement{
		UserID:      owner.ID,
		AmountCents: cents,
		Currency:    currency,
		Description: description,
		InvoiceDate: in.InvoiceDate,
		Status:      model.StatusPending,
		FilePath:    obj.Name,
		FileName:    cleanFileName(in.FileName, obj.Name),
		FileSize:    obj.Size,
		MimeType:    obj.MimeType,
	}
	if err := s.repo.CreateReimbursement(ctx, r); err != nil {
		if rmErr := s.files.Remove(obj.Name); rmErr != nil {
			s.logger.Warn("failed to remove orphaned upload",
				slog.String("file", obj.Name),
				slog.String("error", rmErr.Error()),
			)
		}
		return nil, fmt.Errorf("creating reimbursement: %w", err)
	}

	s.logger.Info("reimbursement created",
		slog.String("id", r.ID),
		slog.String("user_id", owner.ID),
		slog.Int64("amount_cents", cents),
	)
	return r, nil
}

// List returns owner's reimbursements, optionally filtered by status.
func (s *ReimbursementService) List(ctx context.Context, owner *model.User, status string) ([]model.Reimbursement, error) {
	st := model.ReimbursementStatus(strings.ToLower(strings.TrimSpace(status)))
	if st != "" && !st.Valid() {
		return nil, apperror.ValidationFailed("status", "Invalid status")
	}
	list, err := s.repo.ListReimbursements(ctx, owner.ID, st)
	if err != nil {
		return nil, fmt.Errorf("listing reimbursements: %w", err)
	}
	return list, nil
}

// Get returns one of owner's reimbursements.
func (s *ReimbursementService) Get(ctx context.Context, owner *model.User, id string) (*model.Reimbursement, error) {
	r, err := s.repo.GetReimbursement(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.UserID != owner.ID {
		return nil, apperror.NotFound("reimbursement", id)
	}
	return r, nil
}

// OpenFile returns the record and its attachment. The caller closes the file.
func (s *ReimbursementService) OpenFile(ctx context.Context, owner *model.User, id string) (*model.Reimbursement, *os.File, error) {
	r, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, nil, err
	}
	f, err := s.files.Open(r.FilePath)
	if err != nil {
		s.logger.Error("attachment missing",
			slog.String("id", r.ID),
			slog.String("file", r.FilePath),
			slog.String("error", err.Error()),
		)
		return nil, nil, apperror.NotFound("file", id)
	}
	return r, f, nil
}

// UpdateDescription changes the description of a pending reimbursement.
func (s *ReimbursementService) UpdateDescription(ctx context.Context, owner *model.User, id, description string) (*model.Reimbursement, error) {
	r, err := s.pending(ctx, owner, id, "updated")
	if err != nil {
		return nil, err
	}
	description = strings.TrimSpace(description)
	if len(description) > MaxDescriptionLength {
		return nil, apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}

	r.Description = description
	if err := s.repo.UpdateReimbursement(ctx, r); err != nil {
		return nil, fmt.Errorf("updating reimbursement: %w", err)
	}
	s.logger.Info("reimbursement updated", slog.String("id", r.ID))
	return r, nil
}

// Delete removes a pending reimbursement and its attachment.
func (s *ReimbursementService) Delete(ctx context.Context, owner *model.User, id string) error {
	r, err := s.pending(ctx, owner, id, "deleted")
	if err != nil {
		return err
	}
	if err := s.repo.DeleteReimbursement(ctx, r.ID); err != nil {
		return fmt.Errorf("deleting reimbursement: %w", err)
	}
	if err := s.files.Remove(r.FilePath); err != nil {
		// The row is gone; a leftover file is only wasted disk.
		s.logger.Warn("failed to remove attachment",
			slog.String("file", r.FilePath),
			slog.String("error", err.Error()),
		)
	}
	s.logger.Info("reimbursement deleted", slog.String("id", r.ID))
	return nil
}

// Stats counts owner's reimbursements by status.
func (s *ReimbursementService) Stats(ctx context.Context, owner *model.User) (model.ReimbursementStats, error) {
	stats, err := s.repo.ReimbursementStats(ctx, owner.ID)
	if err != nil {
		return stats, fmt.Errorf("reimbursement stats: %w", err)
	}
	return stats, nil
}

func (s *ReimbursementService) pending(ctx context.Context, owner *model.User, id, verb string) (*model.Reimbursement, error) {
	r, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if r.Status != model.StatusPending {
		return nil, apperror.ValidationFailed("status",
			fmt.Sprintf("Only pending reimbursements can be %s", verb))
	}
	return r, nil
}

// ParseAmountCents parses a positive decimal amount with at most two
// fractional digits into cents: "12" is 1200, "12.5" and "12.50" are 1250.
func ParseAmountCents(s string) (int64, error) {
	invalid := apperror.ValidationFailed("amount", "Invalid amount")

	s = strings.TrimSpace(s)
	whole, frac, hasFrac := strings.Cut(s, ".")
	if !isDigits(whole) || (hasFrac && (!isDigits(frac) || len(frac) > 2)) {
		return 0, invalid
	}
	for len(frac) < 2 {
		frac += "0"
	}

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || w > (1<<62)/100 {
		return 0, invalid
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, invalid
	}
	cents := w*100 + f
	if cents <= 0 {
		return 0, invalid
	}
	return cents, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func cleanFileName(name, fallback string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if name == "" || name == "." || name == "/" {
		return fallback
	}
	if len(name) > MaxFileNameLength {
		name = name[len(name)-MaxFileNameLength:]
	}
	return name
}

func mapStorageError(err error) error {
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		return apperror.ValidationFailed("file", "File is too large")
	case errors.Is(err, storage.ErrUnsupportedType):
		return apperror.ValidationFailed("file", "Unsupported file type")
	case errors.Is(err, storage.ErrEmpty):
		return apperror.ValidationFailed("file", "No file uploaded")
	default:
		return fmt.Errorf("storing attachment: %w", err)
	}
}
