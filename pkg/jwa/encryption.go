package jwa

import (
	"bytes"
	"compress/flate"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"io"

	josecipher "github.com/go-jose/go-jose/v4/cipher"
	"golang.org/x/crypto/chacha20poly1305"
)

// aeadAlgorithm adapts a cipher.AEAD constructor, splitting the sealed
// output into the JWE ciphertext and authentication tag.
type aeadAlgorithm struct {
	descriptor
	keySize   int
	nonceSize int
	newAEAD   func(cek []byte) (cipher.AEAD, error)
}

func (a *aeadAlgorithm) KeySize() int   { return a.keySize }
func (a *aeadAlgorithm) NonceSize() int { return a.nonceSize }

func (a *aeadAlgorithm) aead(cek, iv []byte) (cipher.AEAD, error) {
	if len(cek) != a.keySize {
		return nil, fmt.Errorf("%s requires a %d byte key, got %d", a.code, a.keySize, len(cek))
	}

	aead, err := a.newAEAD(cek)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s cipher: %w", a.code, err)
	}

	if len(iv) != aead.NonceSize() {
		return nil, fmt.Errorf("%s requires a %d byte initialization vector, got %d", a.code, aead.NonceSize(), len(iv))
	}

	return aead, nil
}

func (a *aeadAlgorithm) Encrypt(cek, iv, plaintext, aad []byte) ([]byte, []byte, error) {
	aead, err := a.aead(cek, iv)
	if err != nil {
		return nil, nil, err
	}

	sealed := aead.Seal(nil, iv, plaintext, aad)
	split := len(sealed) - aead.Overhead()

	return sealed[:split], sealed[split:], nil
}

func (a *aeadAlgorithm) Decrypt(cek, iv, ciphertext, tag, aad []byte) ([]byte, error) {
	aead, err := a.aead(cek, iv)
	if err != nil {
		return nil, err
	}

	if len(tag) != aead.Overhead() {
		return nil, fmt.Errorf("%s requires a %d byte authentication tag, got %d", a.code, aead.Overhead(), len(tag))
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, iv, sealed, aad)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt content: %w", err)
	}

	return plaintext, nil
}

// AESGCM returns AES GCM content encryption with a key of keySize bytes.
//
// https://www.rfc-editor.org/rfc/rfc7518.html#section-5.3
func AESGCM(code Algorithm, keySize int) AuthenticatedEncryptionAlgorithm {
	return &aeadAlgorithm{
		descriptor: descriptor{code, CategoryAuthenticatedEncryption},
		keySize:    keySize,
		nonceSize:  12,
		newAEAD: func(cek []byte) (cipher.AEAD, error) {
			block, err := aes.NewCipher(cek)
			if err != nil {
				return nil, err
			}
			return cipher.NewGCM(block)
		},
	}
}

// AESCBCHMAC returns AES CBC with HMAC SHA-2 content encryption. The key
// is the concatenation of the MAC key and the encryption key, so keySize
// is twice the AES key size.
//
// https://www.rfc-editor.org/rfc/rfc7518.html#section-5.2
func AESCBCHMAC(code Algorithm, keySize int) AuthenticatedEncryptionAlgorithm {
	return &aeadAlgorithm{
		descriptor: descriptor{code, CategoryAuthenticatedEncryption},
		keySize:    keySize,
		nonceSize:  aes.BlockSize,
		newAEAD: func(cek []byte) (cipher.AEAD, error) {
			return josecipher.NewCBCHMAC(cek, aes.NewCipher)
		},
	}
}

// ChaCha20Poly1305 returns ChaCha20-Poly1305 content encryption, or
// XChaCha20-Poly1305 when extended is true.
func ChaCha20Poly1305(code Algorithm, extended bool) AuthenticatedEncryptionAlgorithm {
	a := &aeadAlgorithm{
		descriptor: descriptor{code, CategoryAuthenticatedEncryption},
		keySize:    chacha20poly1305.KeySize,
		nonceSize:  chacha20poly1305.NonceSize,
		newAEAD:    chacha20poly1305.New,
	}
	if extended {
		a.nonceSize = chacha20poly1305.NonceSizeX
		a.newAEAD = chacha20poly1305.NewX
	}
	return a
}

// maxDecompressedSize bounds DEFLATE output to guard against
// decompression bombs.
const maxDecompressedSize = 250 * 1024

// deflateAlgorithm is raw DEFLATE (RFC 1951) compression.
type deflateAlgorithm struct {
	descriptor
}

func (a *deflateAlgorithm) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress: %w", err)
	}

	return buf.Bytes(), nil
}

func (a *deflateAlgorithm) Decompress(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, maxDecompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress: %w", err)
	}
	if len(out) > maxDecompressedSize {
		return nil, fmt.Errorf("decompressed content exceeds %d bytes", maxDecompressedSize)
	}

	return out, nil
}
