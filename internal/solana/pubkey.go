package solana

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PublicKeySize is the length of a Solana account address.
const PublicKeySize = 32

// ErrInvalidPublicKey is returned for addresses that are not 32 base-58 bytes.
var ErrInvalidPublicKey = errors.New("solana: invalid public key")

// ParsePublicKey decodes a base-58 account address.
func ParsePublicKey(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPublicKey)
	}
	key, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPublicKey, s, err)
	}
	if len(key) != PublicKeySize {
		return nil, fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidPublicKey, s, len(key))
	}
	return key, nil
}

// IsOnCurve reports whether key is a valid ed25519 point. Program derived
// addresses are off the curve and have no private key.
func IsOnCurve(key []byte) bool {
	if len(key) != PublicKeySize {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(key)
	return err == nil
}
