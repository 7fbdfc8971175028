package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"math/rand/v2"

	errs "symsync/internal/errors"
)

// Length obfuscation parameters.
//
// Individual file sizes leak through CBC ciphertext length, so every
// plaintext gets a random suffix before encryption. The suffix length is
// drawn from an exponential distribution (mean ~200 bytes) plus a fixed
// 3-byte trailer that records the total suffix length in big-endian form,
// so decryption can strip it again. The trailer sits inside the plaintext
// and is therefore encrypted along with everything else; only the total
// (random) ciphertext size is observable.
const (
	obfuscationRate    = 0.005
	obfuscationTrailer = 3
	maxSuffixLen       = 1 << 24 // the trailer is 24 bits
)

// obfuscationSuffix returns a fresh random-length suffix. All bytes are zero
// except the last three, which encode the suffix's own length.
func obfuscationSuffix() []byte {
	n := int(rand.ExpFloat64()/obfuscationRate) + obfuscationTrailer
	if n >= maxSuffixLen {
		n = maxSuffixLen - 1
	}
	s := make([]byte, n)
	s[n-3] = byte(n >> 16)
	s[n-2] = byte(n >> 8)
	s[n-1] = byte(n)
	return s
}

// Encrypt encrypts plaintext with AES-256-CBC under key, appending the
// length-obfuscation suffix first. It returns the ciphertext and the fresh
// random IV used for it.
func Encrypt(plaintext, key []byte) (ciphertext, iv []byte, err error) {
	if len(key) != KeySize {
		return nil, nil, errs.NewCryptoError("encrypt", errors.New("key must be 32 bytes"))
	}
	iv, err = GenerateIV()
	if err != nil {
		return nil, nil, errs.NewCryptoError("encrypt", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, errs.NewCryptoError("encrypt", err)
	}

	padded := pad(append(append([]byte{}, plaintext...), obfuscationSuffix()...))
	ciphertext = make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext, iv, nil
}

// Decrypt decrypts an AES-256-CBC ciphertext and strips the length
// obfuscation suffix, returning the original plaintext.
func Decrypt(ciphertext, key, iv []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, errs.NewCryptoError("decrypt", errors.New("key must be 32 bytes"))
	}
	if len(iv) != IVSize {
		return nil, errs.NewCryptoError("decrypt", errors.New("iv must be 16 bytes"))
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errs.ErrCorruptBlob
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.NewCryptoError("decrypt", err)
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	message, err := unpad(padded)
	if err != nil {
		return nil, errs.ErrCorruptBlob
	}
	if len(message) < obfuscationTrailer {
		return nil, errs.ErrCorruptBlob
	}

	l := len(message)
	suffixLen := int(message[l-3])<<16 | int(message[l-2])<<8 | int(message[l-1])
	if suffixLen < obfuscationTrailer || suffixLen > l {
		return nil, errs.ErrCorruptBlob
	}
	return message[:l-suffixLen], nil
}

// Seal encrypts plaintext and packages it in the on-disk blob envelope:
// ciphertext immediately followed by the 16-byte IV (IV is trailing).
// The IV is also returned separately for recording in image metadata.
func Seal(plaintext, key []byte) (blob, iv []byte, err error) {
	ciphertext, iv, err := Encrypt(plaintext, key)
	if err != nil {
		return nil, nil, err
	}
	return append(ciphertext, iv...), iv, nil
}

// Open unpacks and decrypts an on-disk blob envelope produced by Seal.
func Open(blob, key []byte) ([]byte, error) {
	if len(blob) < IVSize+aes.BlockSize {
		return nil, errs.ErrCorruptBlob
	}
	iv := blob[len(blob)-IVSize:]
	return Decrypt(blob[:len(blob)-IVSize], key, iv)
}
