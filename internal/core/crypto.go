package core

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const (
	// KeySize is the length in bytes of an AES-256 key.
	KeySize = 32
	// NonceSize is the length in bytes of a GCM nonce.
	NonceSize = 12
	// TagSize is the length in bytes of a GCM authentication tag.
	TagSize = 16
)

var (
	// ErrIntegrity is returned when an envelope fails authentication:
	// a tampered ciphertext, a truncated envelope, or the wrong key.
	// No plaintext is ever returned alongside it.
	ErrIntegrity = errors.New("envelope integrity check failed")

	// ErrInvalidKey is returned for keys that are not exactly KeySize bytes
	// or for key strings that do not decode.
	ErrInvalidKey = errors.New("invalid encryption key")
)

// Key is a 256-bit symmetric secret. It is generated on the sender's machine
// and travels to the receiver inside the URL fragment of the share link;
// the server never sees it.
type Key []byte

// GenerateKey produces a fresh random key from the system CSPRNG.
// A randomness failure is returned as an error, never degraded.
func GenerateKey() (Key, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("crypto/rand failure: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext into a self-contained envelope using AES-256-GCM:
// a fresh random 12-byte nonce followed by the ciphertext with its 16-byte
// authentication tag appended. The nonce is never reused with the same key.
func Encrypt(plaintext []byte, key Key) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto/rand failure: %w", err)
	}

	// Seal appends to the nonce, producing nonce || ciphertext || tag.
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens an envelope produced by Encrypt. It fails closed: any
// truncation, tag mismatch, or wrong key yields ErrIntegrity and zero
// plaintext bytes.
func Decrypt(envelope []byte, key Key) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(envelope) < NonceSize+TagSize {
		return nil, ErrIntegrity
	}

	nonce, ciphertext := envelope[:NonceSize], envelope[NonceSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}

// EncodeKey renders a key as unpadded URL-safe base64, suitable for a URL
// fragment.
func EncodeKey(key Key) string {
	return base64.RawURLEncoding.EncodeToString(key)
}

// DecodeKey reverses EncodeKey. It accepts only canonical encodings of
// exactly KeySize bytes.
func DecodeKey(s string) (Key, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(raw) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(raw), KeySize)
	}
	return raw, nil
}

func newGCM(key Key) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(key), KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithTagSize(block, TagSize)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}
	return aead, nil
}
