package auth

import (
	"encoding/json"
	"strings"
)

// DefaultAllowedDomain is used when no domain is configured.
const DefaultAllowedDomain = "blockful.io"

// Identity is the Google profile behind a verified access token.
type Identity struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// UnmarshalJSON accepts both the v2 userinfo shape (id, picture) and the
// OpenID Connect shape (sub), plus "image" as an avatar fallback.
func (i *Identity) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID      string `json:"id"`
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
		Image   string `json:"image"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*i = Identity{
		ID:      firstNonEmpty(raw.ID, raw.Sub),
		Email:   raw.Email,
		Name:    raw.Name,
		Picture: firstNonEmpty(raw.Picture, raw.Image),
	}
	return nil
}

// Key identifies the identity for in-flight de-duplication.
func (i *Identity) Key() string {
	return i.ID + "|" + strings.ToLower(i.Email)
}

// DomainAllowed reports whether email belongs to domain. The comparison is
// on the "@domain" suffix, so "evilblockful.io" doesn't pass for
// "blockful.io".
func DomainAllowed(email, domain string) bool {
	if domain == "" {
		domain = DefaultAllowedDomain
	}
	return strings.HasSuffix(strings.ToLower(email), "@"+strings.ToLower(domain))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
