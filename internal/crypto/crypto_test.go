package crypto

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "trailguard/pkg/domain-errors"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	svc, err := New(key, "unit-test-salt")
	require.NoError(t, err)
	return svc
}

func TestNew_MissingSalt(t *testing.T) {
	_, err := New(make([]byte, 32), "")
	require.Error(t, err)
}

func TestNew_BadKeyLength(t *testing.T) {
	_, err := New(make([]byte, 16), "salt")
	require.Error(t, err)
}

func TestPseudonymize_Deterministic(t *testing.T) {
	svc := newTestService(t)

	first := svc.Pseudonymize("a@example.com")
	second := svc.Pseudonymize("a@example.com")
	other := svc.Pseudonymize("b@example.com")

	assert.Equal(t, first, second)
	assert.NotEqual(t, first, other)
	assert.Len(t, first, 32)
	_, err := hex.DecodeString(first)
	assert.NoError(t, err, "pseudo ID should be hex")
}

func TestPseudonymize_SaltChangesOutput(t *testing.T) {
	key := make([]byte, 32)
	a, err := New(key, "salt-a")
	require.NoError(t, err)
	b, err := New(key, "salt-b")
	require.NoError(t, err)

	assert.NotEqual(t, a.Pseudonymize("a@example.com"), b.Pseudonymize("a@example.com"))
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	svc := newTestService(t)

	payloads := []map[string]any{
		{"clicks": []any{float64(1), float64(2), float64(3)}},
		{"name": "Ana", "age": float64(34), "nested": map[string]any{"k": "v"}},
		{},
	}
	for _, payload := range payloads {
		blob, err := svc.Encrypt(payload)
		require.NoError(t, err)

		var got map[string]any
		require.NoError(t, svc.Decrypt(blob, &got))
		assert.Equal(t, payload, got)
	}
}

func TestEncrypt_FreshIVPerCall(t *testing.T) {
	svc := newTestService(t)

	a, err := svc.Encrypt(map[string]string{"k": "v"})
	require.NoError(t, err)
	b, err := svc.Encrypt(map[string]string{"k": "v"})
	require.NoError(t, err)

	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	svc := newTestService(t)

	blob, err := svc.Encrypt(map[string]string{"secret": "value"})
	require.NoError(t, err)

	raw, err := hex.DecodeString(blob.Ciphertext)
	require.NoError(t, err)
	raw[0] ^= 0x01
	blob.Ciphertext = hex.EncodeToString(raw)

	var out map[string]string
	err = svc.Decrypt(blob, &out)
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeIntegrity), "tampering must surface as an integrity violation, got %v", err)
}

func TestDecrypt_TamperedTag(t *testing.T) {
	svc := newTestService(t)

	blob, err := svc.Encrypt(map[string]string{"secret": "value"})
	require.NoError(t, err)

	raw, err := hex.DecodeString(blob.AuthTag)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x80
	blob.AuthTag = hex.EncodeToString(raw)

	var out map[string]string
	err = svc.Decrypt(blob, &out)
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeIntegrity))
}

func TestDecrypt_WrongKey(t *testing.T) {
	svc := newTestService(t)
	otherKey := make([]byte, 32)
	otherKey[0] = 0xFF
	other, err := New(otherKey, "unit-test-salt")
	require.NoError(t, err)

	blob, err := svc.Encrypt(map[string]string{"secret": "value"})
	require.NoError(t, err)

	var out map[string]string
	err = other.Decrypt(blob, &out)
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeIntegrity))
}

func TestDecrypt_MalformedEncoding(t *testing.T) {
	svc := newTestService(t)

	var out map[string]string
	err := svc.Decrypt(Blob{Ciphertext: "zz", IV: "not-hex", AuthTag: ""}, &out)
	require.Error(t, err)
	assert.False(t, dErrors.Is(err, dErrors.CodeIntegrity), "encoding failures are not integrity events")
}
