package core

import (
	"bytes"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
)

func mustKey(t *testing.T) Key {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return key
}

func TestGenerateKey(t *testing.T) {
	t.Run("generates 32-byte keys", func(t *testing.T) {
		key := mustKey(t)
		if len(key) != KeySize {
			t.Errorf("expected %d bytes, got %d", KeySize, len(key))
		}
	})

	t.Run("generates unique keys", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			key := mustKey(t)
			if seen[string(key)] {
				t.Fatal("duplicate key generated")
			}
			seen[string(key)] = true
		}
	})
}

func TestEncryptDecrypt(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		key := mustKey(t)
		for _, plaintext := range [][]byte{
			[]byte("hello world"),
			{},
			[]byte(strings.Repeat("a", 1<<16)),
		} {
			envelope, err := Encrypt(plaintext, key)
			if err != nil {
				t.Fatalf("encrypt failed: %v", err)
			}

			got, err := Decrypt(envelope, key)
			if err != nil {
				t.Fatalf("decrypt failed: %v", err)
			}
			if !bytes.Equal(got, plaintext) {
				t.Errorf("round trip mismatch for %d-byte plaintext", len(plaintext))
			}
		}
	})

	t.Run("envelope layout is nonce plus ciphertext plus tag", func(t *testing.T) {
		key := mustKey(t)
		plaintext := []byte("layout check")

		envelope, err := Encrypt(plaintext, key)
		if err != nil {
			t.Fatalf("encrypt failed: %v", err)
		}
		if len(envelope) != NonceSize+len(plaintext)+TagSize {
			t.Errorf("expected envelope length %d, got %d",
				NonceSize+len(plaintext)+TagSize, len(envelope))
		}
	})

	t.Run("fresh nonce per encryption", func(t *testing.T) {
		key := mustKey(t)
		plaintext := []byte("same input")

		a, _ := Encrypt(plaintext, key)
		b, _ := Encrypt(plaintext, key)
		if bytes.Equal(a[:NonceSize], b[:NonceSize]) {
			t.Error("nonce reused across encryptions")
		}
		if bytes.Equal(a, b) {
			t.Error("identical envelopes for identical plaintext")
		}
	})

	t.Run("rejects wrong key size", func(t *testing.T) {
		if _, err := Encrypt([]byte("x"), Key("short")); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("expected ErrInvalidKey, got %v", err)
		}
	})
}

func TestDecryptFailsClosed(t *testing.T) {
	key := mustKey(t)
	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	envelope, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	t.Run("single bit flips anywhere in the envelope", func(t *testing.T) {
		for i := 0; i < len(envelope); i++ {
			mutated := bytes.Clone(envelope)
			mutated[i] ^= 0x01

			got, err := Decrypt(mutated, key)
			if !errors.Is(err, ErrIntegrity) {
				t.Fatalf("bit flip at byte %d: expected ErrIntegrity, got %v", i, err)
			}
			if got != nil {
				t.Fatalf("bit flip at byte %d: plaintext leaked", i)
			}
		}
	})

	t.Run("truncated envelope", func(t *testing.T) {
		for _, n := range []int{0, 1, NonceSize, NonceSize + TagSize - 1, len(envelope) - 1} {
			if _, err := Decrypt(envelope[:n], key); !errors.Is(err, ErrIntegrity) {
				t.Errorf("truncation to %d bytes: expected ErrIntegrity, got %v", n, err)
			}
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		other := mustKey(t)
		got, err := Decrypt(envelope, other)
		if !errors.Is(err, ErrIntegrity) {
			t.Errorf("expected ErrIntegrity, got %v", err)
		}
		if got != nil {
			t.Error("plaintext leaked under wrong key")
		}
	})

	t.Run("corrupted tag on a 10MB envelope", func(t *testing.T) {
		big := make([]byte, 10*1024*1024)
		if _, err := rand.Read(big); err != nil {
			t.Fatalf("failed to fill buffer: %v", err)
		}

		env, err := Encrypt(big, key)
		if err != nil {
			t.Fatalf("encrypt failed: %v", err)
		}
		for i := len(env) - TagSize; i < len(env); i++ {
			env[i] ^= 0xFF
		}

		if _, err := Decrypt(env, key); !errors.Is(err, ErrIntegrity) {
			t.Errorf("expected ErrIntegrity, got %v", err)
		}
	})
}

func TestKeyEncoding(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			key := mustKey(t)
			decoded, err := DecodeKey(EncodeKey(key))
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if !bytes.Equal(decoded, key) {
				t.Fatal("key round trip mismatch")
			}
		}
	})

	t.Run("output is URL-safe and unpadded", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			encoded := EncodeKey(mustKey(t))
			if strings.ContainsAny(encoded, "+/=") {
				t.Fatalf("encoded key contains non-URL-safe characters: %s", encoded)
			}
		}
	})

	t.Run("rejects malformed encodings", func(t *testing.T) {
		for _, bad := range []string{
			"",
			"not base64!!",
			"AAAA",                     // too short
			EncodeKey(mustKey(t)) + "AAAA", // too long
		} {
			if _, err := DecodeKey(bad); !errors.Is(err, ErrInvalidKey) {
				t.Errorf("DecodeKey(%q): expected ErrInvalidKey, got %v", bad, err)
			}
		}
	})
}
