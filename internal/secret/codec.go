package secret

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// ErrDecrypt is returned when a token cannot be opened: wrong key,
// corrupt ciphertext, or a truncated token.
var ErrDecrypt = errors.New("secret: decrypt failed")

const (
	KeySize   = 32
	nonceSize = 24
)

// Key is the process-wide symmetric key for credential storage.
type Key = [KeySize]byte

// GenerateKey returns a fresh random key.
func GenerateKey() (*Key, error) {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		return nil, fmt.Errorf("secret: generate key: %w", err)
	}
	return &k, nil
}

// EncodeKey renders a key as the base64 form used in .env / environment.
func EncodeKey(k *Key) string {
	return base64.RawURLEncoding.EncodeToString(k[:])
}

// DecodeKey parses the base64 form produced by EncodeKey.
func DecodeKey(s string) (*Key, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("secret: invalid key encoding: %w", err)
	}
	if len(b) != KeySize {
		return nil, fmt.Errorf("secret: key must be %d bytes, got %d", KeySize, len(b))
	}
	var k Key
	copy(k[:], b)
	return &k, nil
}

// Encrypt seals plaintext under key and returns an opaque base64 token
// (random nonce prepended to the box).
func Encrypt(plain string, key *Key) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("secret: nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], []byte(plain), &nonce, key)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Decrypt opens a token produced by Encrypt. Any tampering, truncation or
// key mismatch yields ErrDecrypt.
func Decrypt(token string, key *Key) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", ErrDecrypt
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plain), nil
}
