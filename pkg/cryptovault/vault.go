package cryptovault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// AbsentDigest is returned by Hash for empty input so that callers can store
// "payer data was missing" without a nil branch.
const AbsentDigest = "absent"

const nonceSize = 12

var (
	ErrEncrypt = errors.New("cryptovault: encrypt failed")
	// ErrDecrypt covers wrong key, truncated token and tampering alike; the
	// cause is deliberately not distinguishable from the error.
	ErrDecrypt = errors.New("cryptovault: decrypt failed")
)

// Vault hashes PII and encrypts gateway responses for audit storage.
// The key is 256-bit AES material, supplied base64-encoded by configuration.
type Vault struct {
	key []byte
}

func New(keyB64 string) (*Vault, error) {
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid key encoding", ErrEncrypt)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: key must be 256 bits, got %d bits", ErrEncrypt, len(key)*8)
	}
	return &Vault{key: key}, nil
}

// Hash returns the hex SHA-256 digest of plaintext. Deterministic; empty
// input yields AbsentDigest rather than the digest of "".
func (v *Vault) Hash(plaintext string) string {
	if plaintext == "" {
		return AbsentDigest
	}
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// Encrypt serializes value as JSON and seals it with AES-256-GCM under a
// fresh random nonce. The returned token is base64(nonce || ciphertext), so
// two calls on identical input produce different tokens.
func (v *Vault) Encrypt(value any) (string, error) {
	plaintext, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncrypt, err)
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncrypt, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncrypt, err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncrypt, err)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt is the inverse of Encrypt. It deserializes into out, which must be
// a pointer. Authentication failure, truncation and wrong key all return
// ErrDecrypt.
func (v *Vault) Decrypt(token string, out any) error {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return ErrDecrypt
	}
	if len(raw) <= nonceSize {
		return ErrDecrypt
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return ErrDecrypt
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return ErrDecrypt
	}

	plaintext, err := gcm.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return ErrDecrypt
	}
	if err := json.Unmarshal(plaintext, out); err != nil {
		return ErrDecrypt
	}
	return nil
}
