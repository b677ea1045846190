package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Usage is the declared usage of a key, mirroring the JWK "use" parameter.
//
// https://datatracker.ietf.org/doc/html/rfc7517#section-4.2
type Usage string

const (
	// UsageUnset means the key may be used for any protection kind.
	UsageUnset      Usage = ""
	UsageSignature  Usage = "sig"
	UsageEncryption Usage = "enc"
)

// Compatible reports whether a key declared with u may be used where want
// is expected. An unset usage matches every expectation.
func (u Usage) Compatible(want Usage) bool {
	return u == UsageUnset || want == UsageUnset || u == want
}

// SecretKey is a key used to sign, verify, wrap or unwrap tokens.
//
// Material is one of []byte (symmetric), *rsa.PrivateKey, *rsa.PublicKey,
// *ecdsa.PrivateKey, *ecdsa.PublicKey, ed25519.PrivateKey or
// ed25519.PublicKey. The key owns its material and certificate; both are
// released by Dispose.
type SecretKey struct {
	// ID is the key identifier, matched against the "kid" header.
	ID string

	// Material is the raw key material.
	Material any

	// Usage restricts the protection kind the key may be used for.
	Usage Usage

	// Algorithm restricts the algorithm code the key may be used with.
	// Empty means any algorithm.
	Algorithm string

	// Certificate is an optional certificate for the key, matched
	// against the "x5t" and "x5t#S256" headers.
	Certificate *x509.Certificate
}

// Option configures a SecretKey created with New.
type Option func(*SecretKey) error

// WithID sets the key identifier.
func WithID(id string) Option {
	return func(k *SecretKey) error {
		k.ID = id
		return nil
	}
}

// WithUsage sets the declared key usage.
func WithUsage(usage Usage) Option {
	return func(k *SecretKey) error {
		switch usage {
		case UsageUnset, UsageSignature, UsageEncryption:
			k.Usage = usage
			return nil
		default:
			return fmt.Errorf("invalid key usage %q", usage)
		}
	}
}

// WithAlgorithm restricts the key to the given algorithm code.
func WithAlgorithm(alg string) Option {
	return func(k *SecretKey) error {
		k.Algorithm = alg
		return nil
	}
}

// WithCertificate attaches a certificate to the key.
func WithCertificate(cert *x509.Certificate) Option {
	return func(k *SecretKey) error {
		if cert == nil {
			return fmt.Errorf("certificate is nil")
		}
		k.Certificate = cert
		return nil
	}
}

// New returns a SecretKey for the given material. When no identifier is
// given, a random UUID is assigned.
func New(material any, opts ...Option) (*SecretKey, error) {
	switch m := material.(type) {
	case []byte:
		if len(m) == 0 {
			return nil, fmt.Errorf("symmetric key material is empty")
		}
		material = append([]byte(nil), m...)
	case string:
		if len(m) == 0 {
			return nil, fmt.Errorf("symmetric key material is empty")
		}
		material = []byte(m)
	case *rsa.PrivateKey, *rsa.PublicKey, *ecdsa.PrivateKey, *ecdsa.PublicKey, ed25519.PrivateKey, ed25519.PublicKey:
	default:
		return nil, fmt.Errorf("unsupported key material type %T", material)
	}

	key := &SecretKey{Material: material}

	for _, opt := range opts {
		err := opt(key)
		if err != nil {
			return nil, fmt.Errorf("key option error: %w", err)
		}
	}

	if key.ID == "" {
		key.ID = uuid.NewString()
	}

	return key, nil
}

// Symmetric returns the symmetric key material, or false if the key is not
// a symmetric key.
func (k *SecretKey) Symmetric() ([]byte, bool) {
	b, ok := k.Material.([]byte)
	return b, ok && len(b) > 0
}

// Public returns the public half of an asymmetric key, or the symmetric
// material itself.
func (k *SecretKey) Public() crypto.PublicKey {
	switch m := k.Material.(type) {
	case *rsa.PrivateKey:
		return &m.PublicKey
	case *ecdsa.PrivateKey:
		return &m.PublicKey
	case ed25519.PrivateKey:
		return m.Public()
	default:
		return m
	}
}

// KeySize returns the key length in bits, derived from the material:
// the byte length for symmetric keys, the modulus length for RSA, the
// curve size for ECDSA and 256 for Ed25519. It returns 0 for unknown
// or empty material.
func (k *SecretKey) KeySize() int {
	if k == nil {
		return 0
	}

	switch m := k.Material.(type) {
	case []byte:
		return len(m) * 8
	case *rsa.PrivateKey:
		return m.N.BitLen()
	case *rsa.PublicKey:
		return m.N.BitLen()
	case *ecdsa.PrivateKey:
		return m.Curve.Params().BitSize
	case *ecdsa.PublicKey:
		return m.Curve.Params().BitSize
	case ed25519.PrivateKey, ed25519.PublicKey:
		return 256
	default:
		return 0
	}
}

// Type returns a short name of the key type, as used in JWK "kty".
func (k *SecretKey) Type() string {
	switch k.Material.(type) {
	case []byte:
		return "oct"
	case *rsa.PrivateKey, *rsa.PublicKey:
		return "RSA"
	case *ecdsa.PrivateKey, *ecdsa.PublicKey:
		return "EC"
	case ed25519.PrivateKey, ed25519.PublicKey:
		return "OKP"
	default:
		return "unknown"
	}
}

// String describes the key without revealing its material.
func (k *SecretKey) String() string {
	if k == nil {
		return "<nil key>"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "kid=%q kty=%s bits=%d", k.ID, k.Type(), k.KeySize())
	if k.Usage != UsageUnset {
		fmt.Fprintf(&b, " use=%s", k.Usage)
	}
	if k.Algorithm != "" {
		fmt.Fprintf(&b, " alg=%s", k.Algorithm)
	}
	if k.Certificate != nil {
		fmt.Fprintf(&b, " cert=%q", k.Certificate.Subject.String())
	}
	return b.String()
}

// Dispose zeroes symmetric material and releases the certificate. The key
// must not be used afterwards.
func (k *SecretKey) Dispose() {
	if k == nil {
		return
	}
	if b, ok := k.Material.([]byte); ok {
		clear(b)
	}
	if priv, ok := k.Material.(ed25519.PrivateKey); ok {
		clear(priv)
	}
	k.Material = nil
	k.Certificate = nil
}
