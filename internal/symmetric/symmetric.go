// Package symmetric decrypts and encrypts provider payloads with AES or
// 3DES in CBC mode using PKCS#7 padding. Decrypted payloads that carry the
// gzip magic number are decompressed transparently.
package symmetric

import (
	"bytes"
	"compress/gzip"
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"errors"
	"fmt"
	"io"

	"cncverse/internal/keys"
)

// Variant selects the block cipher.
type Variant int

const (
	AES Variant = iota
	TripleDES
)

func (v Variant) String() string {
	switch v {
	case AES:
		return "aes-cbc"
	case TripleDES:
		return "3des-cbc"
	default:
		return "unknown"
	}
}

// maxInflated caps gzip output so a hostile payload cannot exhaust memory.
const maxInflated = 64 << 20

// ErrCipher matches every error returned by this package.
var ErrCipher = errors.New("cipher failure")

// CipherError reports which step of a cipher operation failed.
type CipherError struct {
	Op  string
	Err error
}

func (e *CipherError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CipherError) Unwrap() []error { return []error{ErrCipher, e.Err} }

// BlockSize returns the block size of the variant in bytes.
func BlockSize(v Variant) int {
	if v == TripleDES {
		return des.BlockSize
	}
	return aes.BlockSize
}

func newBlock(key []byte, v Variant) (cipher.Block, error) {
	switch v {
	case AES:
		return aes.NewCipher(key)
	case TripleDES:
		return des.NewTripleDESCipher(key)
	default:
		return nil, fmt.Errorf("unknown variant %d", int(v))
	}
}

// Decrypt decrypts CBC ciphertext and strips the padding.
func Decrypt(ciphertext []byte, km keys.KeyMaterial, v Variant) ([]byte, error) {
	block, err := newBlock(km.Key, v)
	if err != nil {
		return nil, &CipherError{Op: "init " + v.String(), Err: err}
	}
	bs := block.BlockSize()
	if len(km.IV) != bs {
		return nil, &CipherError{Op: "init " + v.String(), Err: fmt.Errorf("iv length %d, want %d", len(km.IV), bs)}
	}
	if len(ciphertext) == 0 || len(ciphertext)%bs != 0 {
		return nil, &CipherError{Op: "decrypt", Err: fmt.Errorf("ciphertext length %d is not a multiple of %d", len(ciphertext), bs)}
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, km.IV).CryptBlocks(plain, ciphertext)

	plain, err = unpad(plain, bs)
	if err != nil {
		return nil, &CipherError{Op: "unpad", Err: err}
	}

	if isGzip(plain) {
		plain, err = gunzip(plain)
		if err != nil {
			return nil, &CipherError{Op: "gunzip", Err: err}
		}
	}
	return plain, nil
}

// Encrypt pads plaintext and encrypts it in CBC mode.
func Encrypt(plaintext []byte, km keys.KeyMaterial, v Variant) ([]byte, error) {
	block, err := newBlock(km.Key, v)
	if err != nil {
		return nil, &CipherError{Op: "init " + v.String(), Err: err}
	}
	bs := block.BlockSize()
	if len(km.IV) != bs {
		return nil, &CipherError{Op: "init " + v.String(), Err: fmt.Errorf("iv length %d, want %d", len(km.IV), bs)}
	}

	padded := pad(plaintext, bs)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, km.IV).CryptBlocks(out, padded)
	return out, nil
}

func pad(data []byte, bs int) []byte {
	n := bs - len(data)%bs
	return append(bytes.Clone(data), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte, bs int) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty plaintext")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > bs || n > len(data) {
		return nil, fmt.Errorf("invalid padding size %d", n)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("invalid padding bytes")
		}
	}
	return data[:len(data)-n], nil
}

func isGzip(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b
}

func gunzip(b []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, maxInflated+1))
	if err != nil {
		return nil, err
	}
	if len(out) > maxInflated {
		return nil, fmt.Errorf("inflated payload exceeds %d bytes", maxInflated)
	}
	return out, nil
}
