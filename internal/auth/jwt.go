package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "backoffice"

// ErrSessionExpired is returned by Validate when the cookie JWT itself has
// passed its exp claim (the session max age), as opposed to the Google
// access token inside it expiring.
var ErrSessionExpired = errors.New("auth: session expired")

// TokenService signs and verifies the session cookie JWT.
//
// HS256 with a shared secret is enough here: the same process signs and
// verifies, and nothing outside the server ever needs to read the token.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService. The secret must be at least 16
// characters.
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// sessionClaims is the JWT payload of the session cookie. The refresh token
// is stored sealed; see Sealer.
type sessionClaims struct {
	AccessToken        string      `json:"at"`
	SealedRefreshToken string      `json:"rt,omitempty"`
	AccessTokenExpires int64       `json:"ate"`
	User               SessionUser `json:"user"`
	Error              string      `json:"err,omitempty"`
	jwt.RegisteredClaims
}

// Generate signs c with an expiry of ttl from now.
func (s *TokenService) Generate(c sessionClaims, ttl time.Duration) (string, error) {
	now := time.Now()
	c.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   c.User.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    tokenIssuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a session JWT and returns its claims.
//
// We pin the algorithm with WithValidMethods so a token claiming "none" or an
// asymmetric algorithm is rejected before the key func runs.
func (s *TokenService) Validate(tokenStr string) (*sessionClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&sessionClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("auth: token has no subject")
	}
	return c, nil
}
