package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

func testClaims(userID string) sessionClaims {
	return sessionClaims{
		AccessToken:        "ya29.access",
		SealedRefreshToken: "sealed",
		AccessTokenExpires: 1_700_000_000_000,
		User: SessionUser{
			ID:    userID,
			Name:  "Alice",
			Email: "alice@blockful.io",
		},
	}
}

// =========================================================================
// CONSTRUCTOR TESTS
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService("short")
	if err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestNewTokenService_ValidSecret(t *testing.T) {
	_, err := NewTokenService("this-is-16-chars")
	if err != nil {
		t.Fatalf("NewTokenService() unexpected error for valid secret: %v", err)
	}
}

// =========================================================================
// GENERATE / VALIDATE TESTS
// =========================================================================

func TestGenerate_LooksLikeJWT(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate(testClaims("user-123"), time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("Generate() token doesn't look like a JWT: %q", token)
	}
}

func TestValidate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate(testClaims("user-abc"), time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	c, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if c.Subject != "user-abc" || c.User.Email != "alice@blockful.io" {
		t.Errorf("claims = %+v", c)
	}
	if c.AccessToken != "ya29.access" || c.AccessTokenExpires != 1_700_000_000_000 {
		t.Errorf("token fields lost: %+v", c)
	}
	if c.Issuer != tokenIssuer {
		t.Errorf("Issuer = %q, want %q", c.Issuer, tokenIssuer)
	}
}

func TestValidate_ExpiredToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate(testClaims("user-123"), -time.Second)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	_, err = ts.Validate(token)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("Validate() error = %v, want ErrSessionExpired", err)
	}
}

func TestValidate_TamperedToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, _ := ts.Generate(testClaims("user-123"), time.Hour)
	tampered := token[:len(token)-3] + "xxx"

	if _, err := ts.Validate(tampered); err == nil {
		t.Fatal("Validate() should return an error for a tampered token")
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	ts1, _ := NewTokenService("correct-secret-32-chars-long!!!!")
	ts2, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!")

	token, _ := ts1.Generate(testClaims("user-123"), time.Hour)

	if _, err := ts2.Validate(token); err == nil {
		t.Fatal("Validate() should fail when using a different secret")
	}
}

func TestValidate_NoSubject(t *testing.T) {
	ts := newTestTokenService(t)

	token, _ := ts.Generate(testClaims(""), time.Hour)

	if _, err := ts.Validate(token); err == nil {
		t.Fatal("Validate() should reject a token without a subject")
	}
}

func TestValidate_Garbage(t *testing.T) {
	ts := newTestTokenService(t)

	for _, in := range []string{"", "not.a.jwt.token"} {
		if _, err := ts.Validate(in); err == nil {
			t.Errorf("Validate(%q) should return an error", in)
		}
	}
}
