package crypto

import (
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"strconv"

	"github.com/dchest/siphash"
	"golang.org/x/crypto/blake2b"
)

// Sign computes the keyed 64-bit signature of data under the image key H,
// encoded as lowercase hex without leading zeros.
//
// This is SipHash-2-4 keyed with the first 16 bytes of H. It is a tamper
// detector for holders of H, not a cryptographic MAC; an attacker who knows
// H also knows the master key and has already won. What matters is that the
// construction is deterministic and identical on every machine, because
// signatures and name hashes computed on one machine are verified on another.
//
// CRITICAL: Changing the hash or its key derivation makes every existing
// image unreadable. Do not touch.
func Sign(data, key []byte) string {
	k0 := binary.LittleEndian.Uint64(key[0:8])
	k1 := binary.LittleEndian.Uint64(key[8:16])
	return strconv.FormatUint(siphash.Hash(k0, k1, data), 16)
}

// NameHash maps a logical path to its opaque blob name: the same keyed hash
// as Sign, applied to the slash-separated path string.
func NameHash(name string, key []byte) string {
	return Sign([]byte(name), key)
}

// Verify reports whether signature matches the signature of data under key.
func Verify(signature string, data, key []byte) bool {
	want := Sign(data, key)
	return subtle.ConstantTimeCompare([]byte(signature), []byte(want)) == 1
}

// Fingerprint returns a short identifier for a key, safe to log. Two
// machines showing the same fingerprint share the same master key.
func Fingerprint(key []byte) string {
	sum := blake2b.Sum256(key)
	return hex.EncodeToString(sum[:8])
}
