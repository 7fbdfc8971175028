// Package crypto provides the cryptographic envelope for symsync blobs.
// This is AUDIT-CRITICAL code - changes here directly affect encryption/decryption.
package crypto

import (
	"crypto/rand"
	"fmt"

	errs "symsync/internal/errors"
)

// Key and IV sizes. The master key K and the image key H are both 256 bits;
// the AES-CBC initialization vector is one block.
const (
	KeySize = 32
	IVSize  = 16
)

// RandomBytes generates n cryptographically secure random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrRandFailure, err)
	}

	// Sanity check: bytes should not be all zeros
	allZero := true
	for _, v := range b {
		if v != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return nil, fmt.Errorf("%w: produced zero bytes", errs.ErrRandFailure)
	}

	return b, nil
}

// GenerateKey returns a fresh random 256-bit key, used for new image keys H.
// The master key K never comes from here; it is loaded from config.
func GenerateKey() ([]byte, error) {
	return RandomBytes(KeySize)
}

// GenerateIV returns a fresh random CBC initialization vector.
func GenerateIV() ([]byte, error) {
	return RandomBytes(IVSize)
}
