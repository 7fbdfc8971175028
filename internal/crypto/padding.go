package crypto

import (
	"crypto/aes"
	"errors"
)

// pad applies PKCS#7 padding to fill a complete AES block.
//
// PKCS#7 padding works by appending N bytes, each with value N, where N is
// the number of bytes needed to reach a block boundary. If data is already a
// multiple of the block size, a full block of padding is added, so padding is
// always present and always removable.
func pad(data []byte) []byte {
	padLen := aes.BlockSize - len(data)%aes.BlockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

// unpad removes PKCS#7 padding.
//
// The padding length is the value of the last byte: if the last byte is 0x05,
// the last 5 bytes are removed. Invalid padding means the ciphertext was not
// produced under this key (or was corrupted) and is an error, not data.
func unpad(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-padLen], nil
}
