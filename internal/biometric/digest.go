// Package biometric derives the lookup digest stored for enrolled fingerprint identifiers.
package biometric

import (
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/blake2b"
)

// ErrKeyLength reports a key outside 1..64 bytes.
var ErrKeyLength = errors.New("biometric key must be between 1 and 64 bytes")

// Hasher computes a keyed BLAKE2b-256 digest of organization and identifier, so raw device
// identifiers are never stored and equal identifiers in different organizations never collide.
type Hasher struct {
	key []byte
}

// NewHasher constructs a Hasher from a secret key.
func NewHasher(key []byte) (*Hasher, error) {
	if len(key) == 0 || len(key) > blake2b.Size {
		return nil, ErrKeyLength
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Hasher{key: k}, nil
}

// Digest returns the hex digest for identifier within organizationID.
func (h *Hasher) Digest(organizationID, identifier string) string {
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// Key length is validated in NewHasher.
		panic(err)
	}
	mac.Write([]byte(organizationID))
	mac.Write([]byte{0})
	mac.Write([]byte(identifier))
	return hex.EncodeToString(mac.Sum(nil))
}
