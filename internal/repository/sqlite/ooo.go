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

var _ repository.OOORepository = (*DB)(nil)

const oooColumns = `id, user_id, user_name, user_email, active, start_date, end_date,
	reason, message, emergency_contact, created_at, updated_at`

func scanOOO(row rowScanner) (*model.OOO, error) {
	var o model.OOO
	err := row.Scan(
		&o.ID,
		&o.UserID,
		&o.UserName,
		&o.UserEmail,
		&o.Active,
		&o.StartDate,
		&o.EndDate,
		&o.Reason,
		&o.Message,
		&o.EmergencyContact,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateOOO inserts an out-of-office record, filling in ID and timestamps.
func (db *DB) CreateOOO(ctx context.Context, o *model.OOO) error {
	now := time.Now().UTC()
	o.ID = xid.New().String()
	o.CreatedAt = now
	o.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO ooo (`+oooColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID,
		o.UserID,
		o.UserName,
		o.UserEmail,
		o.Active,
		o.StartDate.UTC(),
		o.EndDate.UTC(),
		o.Reason,
		o.Message,
		o.EmergencyContact,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating ooo: %w", err)
	}
	return nil
}

func (db *DB) GetOOO(ctx context.Context, id string) (*model.OOO, error) {
	o, err := scanOOO(db.conn.QueryRowContext(ctx,
		`SELECT `+oooColumns+` FROM ooo WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("ooo", id)
		}
		return nil, fmt.Errorf("sqlite: getting ooo %s: %w", id, err)
	}
	return o, nil
}

// ListOOO returns records ordered by start date, most recent first.
func (db *DB) ListOOO(ctx context.Context, f repository.OOOFilter) ([]model.OOO, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	offset := max(f.Offset, 0)

	query := `SELECT ` + oooColumns + ` FROM ooo`
	args := make([]any, 0, 3)
	if f.Active != nil {
		query += ` WHERE active = ?`
		args = append(args, *f.Active)
	}
	query += ` ORDER BY start_date DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing ooo: %w", err)
	}
	defer rows.Close()

	records := make([]model.OOO, 0, limit)
	for rows.Next() {
		o, err := scanOOO(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning ooo row: %w", err)
		}
		records = append(records, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating ooo rows: %w", err)
	}
	return records, nil
}

// UpdateOOO writes the mutable fields of o. Owner and author snapshot are
// fixed at creation.
func (db *DB) UpdateOOO(ctx context.Context, o *model.OOO) error {
	o.UpdatedAt = time.Now().UTC()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE ooo SET active = ?, start_date = ?, end_date = ?, reason = ?,
		 message = ?, emergency_contact = ?, updated_at = ?
		 WHERE id = ?`,
		o.Active,
		o.StartDate.UTC(),
		o.EndDate.UTC(),
		o.Reason,
		o.Message,
		o.EmergencyContact,
		o.UpdatedAt,
		o.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating ooo %s: %w", o.ID, err)
	}
	return expectOneRow(res, "ooo", o.ID)
}

func (db *DB) DeleteOOO(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM ooo WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting ooo %s: %w", id, err)
	}
	return expectOneRow(res, "ooo", id)
}
