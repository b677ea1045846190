package jwa

import (
	"github.com/picatz/jose/v2/pkg/header"
	"github.com/picatz/jose/v2/pkg/keys"
)

// https://datatracker.ietf.org/doc/html/rfc7518#section-3.1
type Algorithm = string

// HMAC with SHA-2 Functions
//
// These algorithms are used to construct a MAC using a shared secret
// and the Hash-based Message Authentication Code (HMAC) construction
// [RFC2104] employing SHA-2 [SHS] hash functions.
//
// # Key Size
//
// A key of the same size as the hash output or larger MUST be used
// with these algorithms.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.2
const (
	HS256 Algorithm = "HS256"
	HS384 Algorithm = "HS384"
	HS512 Algorithm = "HS512"
)

// RSASSA-PKCS1-v1_5
//
// These algorithms are used to digitally sign a JWS and produce a
// JWS Signature using PKCS #1 v1.5 methods.
//
// # RSA Key Size
//
// A key of size 2048 bits or larger MUST be used with these algorithms.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.3
const (
	RS256 Algorithm = "RS256"
	RS384 Algorithm = "RS384"
	RS512 Algorithm = "RS512"
)

// ECDSA
//
// These algorithms are used to digitally sign a JWS and produce a
// JWS Signature using ECDSA algorithms.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.4
const (
	ES256 Algorithm = "ES256"
	ES384 Algorithm = "ES384"
	ES512 Algorithm = "ES512"
)

// RSASSA-PSS
//
// These algorithms are used to digitally sign a JWS and produce a
// JWS Signature using the RSASSA-PSS algorithms.
//
// # RSA Key Size
//
// A key of size 2048 bits or larger MUST be used with these algorithms.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.5
const (
	PS256 Algorithm = "PS256"
	PS384 Algorithm = "PS384"
	PS512 Algorithm = "PS512"
)

// No signature or MAC performed (unprotected JWS). This algorithm is
// intended to be used to create a JWS that is not integrity protected.
//
// # Warning
//
// The use of this algorithm is considered dangerous. It is disabled in
// every registry unless explicitly enabled with WithInsecureNone.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.6
const None Algorithm = "none"

// EdDSA signatures using Ed25519.
//
// https://www.rfc-editor.org/rfc/rfc8037.html#section-3.1
const EdDSA Algorithm = "EdDSA"

// Key Management Algorithms
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-4.1
const (
	RSAOAEP    Algorithm = "RSA-OAEP"
	RSAOAEP256 Algorithm = "RSA-OAEP-256"

	A128KW Algorithm = "A128KW"
	A192KW Algorithm = "A192KW"
	A256KW Algorithm = "A256KW"

	Direct Algorithm = "dir"

	A128GCMKW Algorithm = "A128GCMKW"
	A192GCMKW Algorithm = "A192GCMKW"
	A256GCMKW Algorithm = "A256GCMKW"

	PBES2HS256A128KW Algorithm = "PBES2-HS256+A128KW"
	PBES2HS384A192KW Algorithm = "PBES2-HS384+A192KW"
	PBES2HS512A256KW Algorithm = "PBES2-HS512+A256KW"

	ECDHES       Algorithm = "ECDH-ES"
	ECDHESA128KW Algorithm = "ECDH-ES+A128KW"
	ECDHESA192KW Algorithm = "ECDH-ES+A192KW"
	ECDHESA256KW Algorithm = "ECDH-ES+A256KW"
)

// Content Encryption Algorithms
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-5.1
const (
	A128CBCHS256 Algorithm = "A128CBC-HS256"
	A192CBCHS384 Algorithm = "A192CBC-HS384"
	A256CBCHS512 Algorithm = "A256CBC-HS512"

	A128GCM Algorithm = "A128GCM"
	A192GCM Algorithm = "A192GCM"
	A256GCM Algorithm = "A256GCM"

	// ChaCha20-Poly1305 and XChaCha20-Poly1305, as used by
	// draft-amringer-jose-chacha.
	C20P  Algorithm = "C20P"
	XC20P Algorithm = "XC20P"
)

// DEF is the DEFLATE compression algorithm.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-4.1.3
const DEF Algorithm = "DEF"

// Category is the family an algorithm belongs to. Codes are unique
// within a category.
type Category int

const (
	CategorySignature Category = iota + 1
	CategoryKeyManagement
	CategoryAuthenticatedEncryption
	CategoryCompression
)

func (c Category) String() string {
	switch c {
	case CategorySignature:
		return "signature"
	case CategoryKeyManagement:
		return "key-management"
	case CategoryAuthenticatedEncryption:
		return "authenticated-encryption"
	case CategoryCompression:
		return "compression"
	default:
		return "unknown"
	}
}

// Descriptor is implemented by every algorithm.
type Descriptor interface {
	// Code returns the case-sensitive algorithm code, such as "HS256".
	Code() Algorithm

	// Category returns the algorithm family.
	Category() Category
}

// SignatureAlgorithm signs and verifies JWS signing inputs.
type SignatureAlgorithm interface {
	Descriptor

	// SignatureSize returns the signature length in bytes produced with
	// a key of the given bit length.
	SignatureSize(keyBits int) int

	// Sign returns the signature of input.
	Sign(key *keys.SecretKey, input []byte) ([]byte, error)

	// Verify returns an error if signature is not a valid signature
	// of input.
	Verify(key *keys.SecretKey, input, signature []byte) error
}

// KeyManagementAlgorithm determines the content encryption key (CEK) of a
// JWE, either by wrapping a random CEK or by agreeing on it directly.
type KeyManagementAlgorithm interface {
	Descriptor

	// WrapKey returns a CEK of cekSize bytes and the JWE Encrypted Key.
	// Algorithms may add header parameters, such as "iv" and "tag", to
	// params before it is serialized.
	WrapKey(key *keys.SecretKey, cekSize int, params header.Parameters) (cek, encryptedKey []byte, err error)

	// UnwrapKey recovers the CEK from the JWE Encrypted Key.
	UnwrapKey(key *keys.SecretKey, encryptedKey []byte, cekSize int, params header.Parameters) ([]byte, error)
}

// AuthenticatedEncryptionAlgorithm encrypts JWE content with a CEK.
type AuthenticatedEncryptionAlgorithm interface {
	Descriptor

	// KeySize returns the required CEK length in bytes.
	KeySize() int

	// NonceSize returns the required initialization vector length in bytes.
	NonceSize() int

	// Encrypt returns the ciphertext and authentication tag.
	Encrypt(cek, iv, plaintext, aad []byte) (ciphertext, tag []byte, err error)

	// Decrypt authenticates and decrypts ciphertext. No plaintext is
	// returned unless authentication succeeds.
	Decrypt(cek, iv, ciphertext, tag, aad []byte) ([]byte, error)
}

// CompressionAlgorithm compresses JWE plaintext before encryption.
type CompressionAlgorithm interface {
	Descriptor

	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

type descriptor struct {
	code     Algorithm
	category Category
}

func (d descriptor) Code() Algorithm    { return d.code }
func (d descriptor) Category() Category { return d.category }
