package crypto

import "crypto/subtle"

// SecureZero overwrites a byte slice with zeros to prevent sensitive data
// from persisting in memory.
//
// Due to Go's garbage collector and potential compiler optimizations, this
// cannot guarantee complete erasure, but it reduces the window during which
// keys are recoverable from RAM. The constant-time copy prevents the
// compiler from optimizing the zeroing away.
func SecureZero(b []byte) {
	if len(b) == 0 {
		return
	}
	zeros := make([]byte, len(b))
	subtle.ConstantTimeCopy(1, b, zeros)
}

// SecureZeroMultiple zeros multiple byte slices in a single call.
func SecureZeroMultiple(slices ...[]byte) {
	for _, s := range slices {
		SecureZero(s)
	}
}
