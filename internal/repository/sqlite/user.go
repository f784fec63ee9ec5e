package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/blockful/backoffice/internal/apperror"
	"github.com/blockful/backoffice/internal/model"
	"github.com/blockful/backoffice/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, google_id, email, name, avatar, is_active, last_login, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u         model.User
		googleID  sql.NullString
		lastLogin sql.NullTime
	)
	err := row.Scan(
		&u.ID,
		&googleID,
		&u.Email,
		&u.Name,
		&u.Avatar,
		&u.IsActive,
		&lastLogin,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.GoogleID = googleID.String
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return &u, nil
}

// getUserBy runs a single-row SELECT on the given column. The column name is
// always one of our constants, never user input.
func (db *DB) getUserBy(ctx context.Context, column, value string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s %s: %w", column, value, err)
	}
	return u, nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUserBy(ctx, "id", id)
}

// GetUserByGoogleID retrieves the user linked to a Google account.
func (db *DB) GetUserByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	if googleID == "" {
		return nil, apperror.NotFound("user", googleID)
	}
	return db.getUserBy(ctx, "google_id", googleID)
}

// GetUserByEmail retrieves a user by email. Emails are stored lowercased.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUserBy(ctx, "email", strings.ToLower(email))
}

// CreateUser inserts a new user, filling in ID and timestamps.
// A duplicate email or google_id returns apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now

	var lastLogin sql.NullTime
	if user.LastLogin != nil {
		lastLogin = sql.NullTime{Time: *user.LastLogin, Valid: true}
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, google_id, email, name, avatar, is_active, last_login, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		nullString(user.GoogleID),
		user.Email,
		user.Name,
		user.Avatar,
		user.IsActive,
		lastLogin,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Email, err)
	}
	return nil
}

// UpdateUserByGoogleID refreshes name, avatar and last login for the user
// linked to googleID and returns the updated row.
func (db *DB) UpdateUserByGoogleID(ctx context.Context, googleID string, p repository.ProfileUpdate) (*model.User, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET name = ?, avatar = ?, last_login = ?, updated_at = ?
		 WHERE google_id = ?`,
		p.Name,
		p.Avatar,
		p.LastLogin.UTC(),
		time.Now().UTC(),
		googleID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating user by google_id %s: %w", googleID, err)
	}
	if err := expectOneRow(res, "user", googleID); err != nil {
		return nil, err
	}
	return db.getUserBy(ctx, "google_id", googleID)
}

// UpdateUserByEmail links p.GoogleID to the user with this email and
// refreshes name, avatar and last login. An empty p.GoogleID keeps the
// existing link.
func (db *DB) UpdateUserByEmail(ctx context.Context, email string, p repository.ProfileUpdate) (*model.User, error) {
	email = strings.ToLower(email)
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET google_id = COALESCE(?, google_id), name = ?, avatar = ?, last_login = ?, updated_at = ?
		 WHERE email = ?`,
		nullString(p.GoogleID),
		p.Name,
		p.Avatar,
		p.LastLogin.UTC(),
		time.Now().UTC(),
		email,
	)
	if err != nil {
		if isUniqueViolation(err, "google_id") {
			return nil, apperror.Conflict("user", p.GoogleID)
		}
		return nil, fmt.Errorf("sqlite: updating user by email %s: %w", email, err)
	}
	if err := expectOneRow(res, "user", email); err != nil {
		return nil, err
	}
	return db.getUserBy(ctx, "email", email)
}

// UpdateUser writes name, avatar and active flag for user.ID.
func (db *DB) UpdateUser(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET name = ?, avatar = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		user.Name,
		user.Avatar,
		user.IsActive,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}
	return expectOneRow(res, "user", user.ID)
}

// expectOneRow turns "no rows affected" into a NotFound for resource/key.
func expectOneRow(res sql.Result, resource, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, key)
	}
	return nil
}

// CountUsers returns the number of user rows.
func (db *DB) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting users: %w", err)
	}
	return n, nil
}
