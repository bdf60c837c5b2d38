package cryptovault

import (
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	v, err := New(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	return v
}

func TestNew_RejectsBadKey(t *testing.T) {
	_, err := New("not base64!!!")
	require.ErrorIs(t, err, ErrEncrypt)

	short := base64.StdEncoding.EncodeToString([]byte("too-short"))
	_, err = New(short)
	require.ErrorIs(t, err, ErrEncrypt)
}

func TestHash_DeterministicWithAbsentSentinel(t *testing.T) {
	v := newTestVault(t)

	require.Equal(t, v.Hash("payer@example.com"), v.Hash("payer@example.com"))
	require.NotEqual(t, v.Hash("payer@example.com"), v.Hash("other@example.com"))
	require.Len(t, v.Hash("payer@example.com"), 64)
	require.Equal(t, AbsentDigest, v.Hash(""))
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	v := newTestVault(t)

	payload := map[string]any{"id": "CAP-1", "amount": "99.99", "currency": "USD"}
	token, err := v.Encrypt(payload)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, v.Decrypt(token, &got))
	require.Equal(t, "CAP-1", got["id"])
	require.Equal(t, "99.99", got["amount"])
}

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	v := newTestVault(t)

	a, err := v.Encrypt("same input")
	require.NoError(t, err)
	b, err := v.Encrypt("same input")
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	var x, y string
	require.NoError(t, v.Decrypt(a, &x))
	require.NoError(t, v.Decrypt(b, &y))
	require.Equal(t, x, y)
}

func TestDecrypt_FailuresAreIndistinguishable(t *testing.T) {
	v := newTestVault(t)
	other := newTestVault(t)

	token, err := v.Encrypt("secret")
	require.NoError(t, err)

	var out string

	// wrong key
	require.ErrorIs(t, other.Decrypt(token, &out), ErrDecrypt)

	// truncated token
	require.ErrorIs(t, v.Decrypt(token[:8], &out), ErrDecrypt)

	// tampered ciphertext
	raw, err := base64.StdEncoding.DecodeString(token)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	require.ErrorIs(t, v.Decrypt(base64.StdEncoding.EncodeToString(raw), &out), ErrDecrypt)
}
