// Package secrets implements the fail-closed credential decryptor. The key
// is derived once from the configured encryption key and salt; ciphertexts
// are base64(nonce||sealed). Decrypt returns the empty string on any failure
// so credential errors stay isolated per source.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const kdfIterations = 100_000

type AESGCM struct {
	aead cipher.AEAD
}

// New derives a 256-bit key from the encryption key using PBKDF2-SHA256 with
// the first 16 bytes of salt as the KDF salt.
func New(encryptionKey, salt string) (*AESGCM, error) {
	if encryptionKey == "" || len(salt) < 16 {
		return nil, fmt.Errorf("secrets: encryption key and a salt of at least 16 bytes are required")
	}
	key := pbkdf2.Key([]byte(encryptionKey), []byte(salt)[:16], kdfIterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secrets: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets: %w", err)
	}
	return &AESGCM{aead: aead}, nil
}

// Encrypt seals a plaintext for storage. Empty input stays empty.
func (s *AESGCM) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secrets: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a stored ciphertext. Any failure (bad encoding, truncated
// input, wrong key, tampering) yields the empty string.
func (s *AESGCM) Decrypt(ciphertext string) string {
	if ciphertext == "" {
		return ""
	}
	sealed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil || len(sealed) < s.aead.NonceSize() {
		return ""
	}
	nonce, rest := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, rest, nil)
	if err != nil {
		return ""
	}
	return string(plaintext)
}
