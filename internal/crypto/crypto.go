// Package crypto encrypts service credentials before they reach the
// settings table. The key is derived from APP_SECRET_KEY, so rotating
// that key invalidates every stored secret.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Static salt: the derived key only changes with the secret key.
	salt       = "ghostarr_encryption_salt_v1"
	iterations = 100_000
	keyLength  = 32

	// prefix marks encrypted values so plaintext from older installs
	// can be detected and migrated.
	prefix = "enc:v1:"
)

// Service performs AES-256-GCM encryption with a PBKDF2-derived key.
type Service struct {
	aead cipher.AEAD
}

// New derives the encryption key from the application secret.
func New(secretKey string) (*Service, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("secret key is empty")
	}

	key := pbkdf2.Key([]byte(secretKey), []byte(salt), iterations, keyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Service{aead: aead}, nil
}

// Encrypt returns the prefixed base64 ciphertext. Empty input stays
// empty.
func (s *Service) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return prefix + base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Values without the encryption prefix are
// returned unchanged so plaintext from before encryption was introduced
// keeps working.
func (s *Service) Decrypt(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if !IsEncrypted(value) {
		return value, nil
	}

	raw, err := base64.URLEncoding.DecodeString(strings.TrimPrefix(value, prefix))
	if err != nil {
		return "", fmt.Errorf("invalid encrypted data: %w", err)
	}
	if len(raw) < s.aead.NonceSize() {
		return "", fmt.Errorf("invalid encrypted data: too short")
	}

	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("invalid or corrupted encrypted data")
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether a stored value carries the encryption
// prefix.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, prefix)
}
