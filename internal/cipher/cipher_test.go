package cipher_test

import (
	"strings"
	"testing"

	"secret-room/internal/apperr"
	"secret-room/internal/cipher"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	key := cipher.DeriveKey("Secr3t!!")
	for _, plaintext := range []string{"hello", "", "ünïcødé 🔐", strings.Repeat("x", 4096)} {
		blob, err := cipher.Encrypt(plaintext, key)
		require.NoError(t, err)

		got, err := cipher.Decrypt(blob, cipher.DeriveKey("Secr3t!!"))
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestDeriveKeyIsDeterministic(t *testing.T) {
	assert.Equal(t, cipher.DeriveKey("Secr3t!!"), cipher.DeriveKey("Secr3t!!"))
	assert.NotEqual(t, cipher.DeriveKey("Secr3t!!"), cipher.DeriveKey("Secr3t!?"))
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	key := cipher.DeriveKey("Secr3t!!")
	a, err := cipher.Encrypt("hello", key)
	require.NoError(t, err)
	b, err := cipher.Encrypt("hello", key)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "hello")
}

func TestDecryptFailures(t *testing.T) {
	key := cipher.DeriveKey("Secr3t!!")
	blob, err := cipher.Encrypt("hello", key)
	require.NoError(t, err)

	_, err = cipher.Decrypt(blob, cipher.DeriveKey("wrong-secret"))
	assert.ErrorIs(t, err, apperr.ErrDecryption)

	_, err = cipher.Decrypt("not hex at all", key)
	assert.ErrorIs(t, err, apperr.ErrDecryption)

	_, err = cipher.Decrypt("abcd", key)
	assert.ErrorIs(t, err, apperr.ErrDecryption)

	tampered := []byte(blob)
	if tampered[len(tampered)-1] == '0' {
		tampered[len(tampered)-1] = '1'
	} else {
		tampered[len(tampered)-1] = '0'
	}
	_, err = cipher.Decrypt(string(tampered), key)
	assert.ErrorIs(t, err, apperr.ErrDecryption)
}

func TestKeyCache(t *testing.T) {
	cache, err := cipher.NewKeyCache(2)
	require.NoError(t, err)

	k1 := cache.Key("server-1", "Secr3t!!")
	assert.Equal(t, cipher.DeriveKey("Secr3t!!"), k1)
	assert.Equal(t, k1, cache.Key("server-1", "Secr3t!!"))
	assert.Equal(t, 1, cache.Len())

	// Same room id with a different secret must not reuse the cached key.
	assert.Equal(t, cipher.DeriveKey("0ther-secret"), cache.Key("server-1", "0ther-secret"))

	cache.Forget("server-1")
	assert.Equal(t, 0, cache.Len())
}
