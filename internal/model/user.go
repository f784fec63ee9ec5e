// Package model defines the data structures used throughout the application.
// These are plain structs with JSON tags; persistence details live in the
// repository layer.
package model

import "time"

// User represents a person authorized to use the backoffice.
//
// We use Google OAuth as the identity provider, but we still generate our own
// internal string ID (xid) so our primary keys are not tied to Google's
// numbering scheme.
//
// WHY GoogleID string (not *string)?
// A user can exist before their Google account is linked (e.g. created by an
// admin by email). The column is nullable in the DB so the UNIQUE constraint
// only applies to linked accounts; in Go we use "" as "not linked yet" and the
// repository translates it to NULL.
//
// LastLogin is a pointer because a pre-registered user has never logged in.
type User struct {
	ID        string     `json:"id"`
	GoogleID  string     `json:"googleId,omitempty"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Avatar    string     `json:"avatar"`
	IsActive  bool       `json:"isActive"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// HasGoogleID reports whether the user has been linked to a Google account.
func (u *User) HasGoogleID() bool {
	return u.GoogleID != ""
}
