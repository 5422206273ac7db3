// Package cipher derives room keys from room secrets and seals message payloads.
package cipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"secret-room/internal/apperr"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// The salt is application-wide and not secret: a key must be re-derivable
	// from the room secret alone when messages are read back.
	kdfSalt       = "fixed-salt"
	kdfIterations = 100_000
	KeySize       = 32
	nonceSize     = 12
)

// Key is an AES-256 key derived from a room secret.
type Key [KeySize]byte

// DeriveKey runs PBKDF2-HMAC-SHA256 over secret. Same secret, same key.
func DeriveKey(secret string) Key {
	var k Key
	copy(k[:], pbkdf2.Key([]byte(secret), []byte(kdfSalt), kdfIterations, KeySize, sha256.New))
	return k
}

// Encrypt seals plaintext with AES-GCM under a fresh random nonce.
// The result is hex(nonce || ciphertext || tag).
func Encrypt(plaintext string, key Key) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("cipher: read nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. A malformed blob or the wrong key
// both yield apperr.ErrDecryption.
func Decrypt(blob string, key Key) (string, error) {
	raw, err := hex.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: blob is not hex", apperr.ErrDecryption)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	if len(raw) < nonceSize+gcm.Overhead() {
		return "", fmt.Errorf("%w: blob too short", apperr.ErrDecryption)
	}

	plaintext, err := gcm.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrDecryption, err)
	}
	return string(plaintext), nil
}

func newGCM(key Key) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cipher: new aes: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("cipher: new gcm: %w", err)
	}
	return gcm, nil
}
