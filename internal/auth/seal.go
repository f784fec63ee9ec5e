package auth

import (
	"crypto/cipher"
	"crypto/hkdf"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Sealer encrypts the Google refresh token before it goes into the session
// cookie. The JWT is signed, not encrypted, so anything placed in its claims
// is readable by the browser.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives an XChaCha20-Poly1305 key from the session secret.
func NewSealer(secret string) (*Sealer, error) {
	key, err := hkdf.Key(sha256.New, []byte(secret), nil, "backoffice:session:refresh-token", chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("auth: derive sealing key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("auth: new aead: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts value and returns base64(nonce || ciphertext).
// An empty value seals to "".
func (s *Sealer) Seal(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(value)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("auth: read nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(value), nil)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	payload, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("auth: decode sealed value: %w", err)
	}
	n := s.aead.NonceSize()
	if len(payload) < n {
		return "", errors.New("auth: sealed value is too short")
	}
	plain, err := s.aead.Open(nil, payload[:n], payload[n:], nil)
	if err != nil {
		return "", fmt.Errorf("auth: decrypt sealed value: %w", err)
	}
	return string(plain), nil
}
