package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/blockful/backoffice/internal/apperror"
	"github.com/blockful/backoffice/internal/model"
	"github.com/blockful/backoffice/internal/repository"
)

var _ repository.ReimbursementRepository = (*DB)(nil)

const reimbursementColumns = `id, user_id, amount_cents, currency, description, invoice_date,
	status, file_path, file_name, file_size, mime_type, created_at, updated_at`

func scanReimbursement(row rowScanner) (*model.Reimbursement, error) {
	var r model.Reimbursement
	err := row.Scan(
		&r.ID,
		&r.UserID,
		&r.AmountCents,
		&r.Currency,
		&r.Description,
		&r.InvoiceDate,
		&r.Status,
		&r.FilePath,
		&r.FileName,
		&r.FileSize,
		&r.MimeType,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateReimbursement inserts r, filling in ID and timestamps. An empty
// status is stored as pending.
func (db *DB) CreateReimbursement(ctx context.Context, r *model.Reimbursement) error {
	now := time.Now().UTC()
	r.ID = xid.New().String()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = model.StatusPending
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO reimbursements (`+reimbursementColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID,
		r.UserID,
		r.AmountCents,
		r.Currency,
		r.Description,
		r.InvoiceDate.UTC(),
		r.Status,
		r.FilePath,
		r.FileName,
		r.FileSize,
		r.MimeType,
		r.CreatedAt,
		r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating reimbursement: %w", err)
	}
	return nil
}

func (db *DB) GetReimbursement(ctx context.Context, id string) (*model.Reimbursement, error) {
	r, err := scanReimbursement(db.conn.QueryRowContext(ctx,
		`SELECT `+reimbursementColumns+` FROM reimbursements WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("reimbursement", id)
		}
		return nil, fmt.Errorf("sqlite: getting reimbursement %s: %w", id, err)
	}
	return r, nil
}

func (db *DB) ListReimbursements(ctx context.Context, userID string, status model.ReimbursementStatus) ([]model.Reimbursement, error) {
	query := `SELECT ` + reimbursementColumns + ` FROM reimbursements WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing reimbursements: %w", err)
	}
	defer rows.Close()

	var list []model.Reimbursement
	for rows.Next() {
		r, err := scanReimbursement(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning reimbursement row: %w", err)
		}
		list = append(list, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating reimbursement rows: %w", err)
	}
	if list == nil {
		list = []model.Reimbursement{}
	}
	return list, nil
}

// UpdateReimbursement writes description and status.
func (db *DB) UpdateReimbursement(ctx context.Context, r *model.Reimbursement) error {
	r.UpdatedAt = time.Now().UTC()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE reimbursements SET description = ?, status = ?, updated_at = ? WHERE id = ?`,
		r.Description,
		r.Status,
		r.UpdatedAt,
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating reimbursement %s: %w", r.ID, err)
	}
	return expectOneRow(res, "reimbursement", r.ID)
}

func (db *DB) DeleteReimbursement(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM reimbursements WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting reimbursement %s: %w", id, err)
	}
	return expectOneRow(res, "reimbursement", id)
}

// ReimbursementStats counts userID's reimbursements grouped by status.
func (db *DB) ReimbursementStats(ctx context.Context, userID string) (model.ReimbursementStats, error) {
	var stats model.ReimbursementStats

	rows, err := db.conn.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM reimbursements WHERE user_id = ? GROUP BY status`, userID)
	if err != nil {
		return stats, fmt.Errorf("sqlite: reimbursement stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status model.ReimbursementStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return stats, fmt.Errorf("sqlite: scanning stats row: %w", err)
		}
		stats.Total += n
		switch status {
		case model.StatusPending:
			stats.Pending = n
		case model.StatusApproved:
			stats.Approved = n
		case model.StatusRejected:
			stats.Rejected = n
		case model.StatusPaid:
			stats.Paid = n
		}
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("sqlite: iterating stats rows: %w", err)
	}
	return stats, nil
}
