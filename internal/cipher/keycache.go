package cipher

import (
	"crypto/sha256"

	lru "github.com/hashicorp/golang-lru/v2"
)

// KeyCache memoizes derived keys per room so the slow KDF runs once per room.
// Entries are keyed by room and tagged with a digest of the secret, so a
// stale entry is never served for a different secret.
type KeyCache struct {
	keys *lru.Cache[string, cachedKey]
}

type cachedKey struct {
	secretSum [sha256.Size]byte
	key       Key
}

func NewKeyCache(size int) (*KeyCache, error) {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New[string, cachedKey](size)
	if err != nil {
		return nil, err
	}
	return &KeyCache{keys: c}, nil
}

// Key returns the key for roomID, deriving it from secret on a miss.
func (c *KeyCache) Key(roomID, secret string) Key {
	sum := sha256.Sum256([]byte(secret))
	if entry, ok := c.keys.Get(roomID); ok && entry.secretSum == sum {
		return entry.key
	}
	k := DeriveKey(secret)
	c.keys.Add(roomID, cachedKey{secretSum: sum, key: k})
	return k
}

// Forget drops the key of a deleted room.
func (c *KeyCache) Forget(roomID string) {
	c.keys.Remove(roomID)
}

func (c *KeyCache) Len() int {
	return c.keys.Len()
}
