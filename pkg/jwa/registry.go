package jwa

import (
	"crypto"
	"crypto/elliptic"
	"fmt"

	"golang.org/x/exp/slices"
)

type registryKey struct {
	category Category
	code     Algorithm
}

// Registry holds the algorithms available to the codecs, keyed by
// category and code. A registry is populated during construction and
// is read-only afterwards, so it is safe for concurrent use.
type Registry struct {
	algorithms map[registryKey]Descriptor
	disabled   map[Algorithm]struct{}
	extra      []Descriptor
}

// RegistryOption configures a Registry created with NewRegistry.
type RegistryOption func(*Registry) error

// WithDisabled excludes the given algorithm codes. Disabled codes are
// never registered, so lookups for them fail as if they were unknown.
func WithDisabled(codes ...Algorithm) RegistryOption {
	return func(r *Registry) error {
		for _, code := range codes {
			r.disabled[code] = struct{}{}
		}
		return nil
	}
}

// WithInsecureNone enables the "none" algorithm, which is disabled by
// default. Codecs only accept unsecured tokens with no key or with a key
// restricted to "none".
func WithInsecureNone() RegistryOption {
	return func(r *Registry) error {
		delete(r.disabled, None)
		return nil
	}
}

// WithAlgorithms registers additional algorithms after the built-ins,
// replacing any built-in with the same category and code.
func WithAlgorithms(algs ...Descriptor) RegistryOption {
	return func(r *Registry) error {
		r.extra = append(r.extra, algs...)
		return nil
	}
}

// NewRegistry returns a registry with every built-in algorithm, minus
// the disabled ones.
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		algorithms: make(map[registryKey]Descriptor),
		disabled:   map[Algorithm]struct{}{None: {}},
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("registry option error: %w", err)
		}
	}

	for _, alg := range append(Builtin(), r.extra...) {
		if err := r.register(alg); err != nil {
			return nil, err
		}
	}
	r.extra = nil

	return r, nil
}

// MustNewRegistry is like NewRegistry but panics on error.
func MustNewRegistry(opts ...RegistryOption) *Registry {
	r, err := NewRegistry(opts...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) register(alg Descriptor) error {
	if alg == nil {
		return fmt.Errorf("algorithm is nil")
	}

	switch alg.Category() {
	case CategorySignature:
		if _, ok := alg.(SignatureAlgorithm); !ok {
			return fmt.Errorf("algorithm %q does not implement SignatureAlgorithm", alg.Code())
		}
	case CategoryKeyManagement:
		if _, ok := alg.(KeyManagementAlgorithm); !ok {
			return fmt.Errorf("algorithm %q does not implement KeyManagementAlgorithm", alg.Code())
		}
	case CategoryAuthenticatedEncryption:
		if _, ok := alg.(AuthenticatedEncryptionAlgorithm); !ok {
			return fmt.Errorf("algorithm %q does not implement AuthenticatedEncryptionAlgorithm", alg.Code())
		}
	case CategoryCompression:
		if _, ok := alg.(CompressionAlgorithm); !ok {
			return fmt.Errorf("algorithm %q does not implement CompressionAlgorithm", alg.Code())
		}
	default:
		return fmt.Errorf("algorithm %q has unknown category %d", alg.Code(), alg.Category())
	}

	if _, disabled := r.disabled[alg.Code()]; disabled {
		return nil
	}

	r.algorithms[registryKey{alg.Category(), alg.Code()}] = alg
	return nil
}

func (r *Registry) lookup(category Category, code Algorithm) (Descriptor, bool) {
	if r == nil {
		return nil, false
	}
	alg, ok := r.algorithms[registryKey{category, code}]
	return alg, ok
}

// Signature returns the signature algorithm with the given code.
func (r *Registry) Signature(code Algorithm) (SignatureAlgorithm, bool) {
	alg, ok := r.lookup(CategorySignature, code)
	if !ok {
		return nil, false
	}
	return alg.(SignatureAlgorithm), true
}

// KeyManagement returns the key management algorithm with the given code.
func (r *Registry) KeyManagement(code Algorithm) (KeyManagementAlgorithm, bool) {
	alg, ok := r.lookup(CategoryKeyManagement, code)
	if !ok {
		return nil, false
	}
	return alg.(KeyManagementAlgorithm), true
}

// AuthenticatedEncryption returns the content encryption algorithm with
// the given code.
func (r *Registry) AuthenticatedEncryption(code Algorithm) (AuthenticatedEncryptionAlgorithm, bool) {
	alg, ok := r.lookup(CategoryAuthenticatedEncryption, code)
	if !ok {
		return nil, false
	}
	return alg.(AuthenticatedEncryptionAlgorithm), true
}

// Compression returns the compression algorithm with the given code.
func (r *Registry) Compression(code Algorithm) (CompressionAlgorithm, bool) {
	alg, ok := r.lookup(CategoryCompression, code)
	if !ok {
		return nil, false
	}
	return alg.(CompressionAlgorithm), true
}

// Codes returns the sorted codes registered in the given category.
func (r *Registry) Codes(category Category) []Algorithm {
	var codes []Algorithm
	for key := range r.algorithms {
		if key.category == category {
			codes = append(codes, key.code)
		}
	}
	slices.Sort(codes)
	return codes
}

// Builtin returns a new instance of every built-in algorithm, including
// "none".
func Builtin() []Descriptor {
	sig := func(code Algorithm) descriptor { return descriptor{code, CategorySignature} }
	km := func(code Algorithm) descriptor { return descriptor{code, CategoryKeyManagement} }

	return []Descriptor{
		HMAC(HS256, crypto.SHA256),
		HMAC(HS384, crypto.SHA384),
		HMAC(HS512, crypto.SHA512),
		RSA(RS256, crypto.SHA256, false),
		RSA(RS384, crypto.SHA384, false),
		RSA(RS512, crypto.SHA512, false),
		RSA(PS256, crypto.SHA256, true),
		RSA(PS384, crypto.SHA384, true),
		RSA(PS512, crypto.SHA512, true),
		ECDSA(ES256, elliptic.P256(), crypto.SHA256),
		ECDSA(ES384, elliptic.P384(), crypto.SHA384),
		ECDSA(ES512, elliptic.P521(), crypto.SHA512),
		&eddsaAlgorithm{sig(EdDSA)},
		&noneAlgorithm{sig(None)},

		&directAlgorithm{km(Direct)},
		&aesKeyWrapAlgorithm{km(A128KW), 16},
		&aesKeyWrapAlgorithm{km(A192KW), 24},
		&aesKeyWrapAlgorithm{km(A256KW), 32},
		&aesGCMKeyWrapAlgorithm{km(A128GCMKW), 16},
		&aesGCMKeyWrapAlgorithm{km(A192GCMKW), 24},
		&aesGCMKeyWrapAlgorithm{km(A256GCMKW), 32},
		&rsaOAEPAlgorithm{km(RSAOAEP), crypto.SHA1},
		&rsaOAEPAlgorithm{km(RSAOAEP256), crypto.SHA256},
		&pbes2Algorithm{km(PBES2HS256A128KW), crypto.SHA256, 16},
		&pbes2Algorithm{km(PBES2HS384A192KW), crypto.SHA384, 24},
		&pbes2Algorithm{km(PBES2HS512A256KW), crypto.SHA512, 32},
		&ecdhESAlgorithm{km(ECDHES), 0},
		&ecdhESAlgorithm{km(ECDHESA128KW), 16},
		&ecdhESAlgorithm{km(ECDHESA192KW), 24},
		&ecdhESAlgorithm{km(ECDHESA256KW), 32},

		AESGCM(A128GCM, 16),
		AESGCM(A192GCM, 24),
		AESGCM(A256GCM, 32),
		AESCBCHMAC(A128CBCHS256, 32),
		AESCBCHMAC(A192CBCHS384, 48),
		AESCBCHMAC(A256CBCHS512, 64),
		ChaCha20Poly1305(C20P, false),
		ChaCha20Poly1305(XC20P, true),

		&deflateAlgorithm{descriptor{DEF, CategoryCompression}},
	}
}
