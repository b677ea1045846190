package jwa

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"math/big"

	_ "crypto/sha256"
	_ "crypto/sha512"

	"github.com/picatz/jose/v2/pkg/keys"
)

// MinimumRSAKeySize is the smallest RSA modulus, in bits, accepted by
// the RSA based algorithms.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.3
const MinimumRSAKeySize = 2048

// HMAC returns the HMAC signature algorithm with the given code and hash.
func HMAC(code Algorithm, hash crypto.Hash) SignatureAlgorithm {
	return &hmacAlgorithm{descriptor: descriptor{code, CategorySignature}, hash: hash}
}

type hmacAlgorithm struct {
	descriptor
	hash crypto.Hash
}

func (a *hmacAlgorithm) SignatureSize(int) int {
	return a.hash.Size()
}

func (a *hmacAlgorithm) secret(key *keys.SecretKey) ([]byte, error) {
	secret, ok := key.Symmetric()
	if !ok {
		return nil, fmt.Errorf("%s requires a symmetric key, got %s", a.code, key.Type())
	}

	// A key of the same size as the hash output or larger MUST be used.
	if len(secret) < a.hash.Size() {
		return nil, fmt.Errorf("%s requires a key of at least %d bits, got %d", a.code, a.hash.Size()*8, len(secret)*8)
	}

	if !a.hash.Available() {
		return nil, fmt.Errorf("requested hash is not available")
	}

	return secret, nil
}

func (a *hmacAlgorithm) Sign(key *keys.SecretKey, input []byte) ([]byte, error) {
	secret, err := a.secret(key)
	if err != nil {
		return nil, err
	}

	h := hmac.New(a.hash.New, secret)
	h.Write(input)
	return h.Sum(nil), nil
}

func (a *hmacAlgorithm) Verify(key *keys.SecretKey, input, signature []byte) error {
	expected, err := a.Sign(key, input)
	if err != nil {
		return err
	}

	if !hmac.Equal(signature, expected) {
		return fmt.Errorf("invalid HMAC signature")
	}

	return nil
}

// RSA returns an RSA signature algorithm using PKCS #1 v1.5, or RSASSA-PSS
// when pss is true.
func RSA(code Algorithm, hash crypto.Hash, pss bool) SignatureAlgorithm {
	return &rsaAlgorithm{descriptor: descriptor{code, CategorySignature}, hash: hash, pss: pss}
}

type rsaAlgorithm struct {
	descriptor
	hash crypto.Hash
	pss  bool
}

func (a *rsaAlgorithm) SignatureSize(keyBits int) int {
	return (keyBits + 7) / 8
}

func (a *rsaAlgorithm) pssOptions() *rsa.PSSOptions {
	return &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: a.hash}
}

func (a *rsaAlgorithm) digest(input []byte) []byte {
	h := a.hash.New()
	h.Write(input)
	return h.Sum(nil)
}

func (a *rsaAlgorithm) Sign(key *keys.SecretKey, input []byte) ([]byte, error) {
	privateKey, ok := key.Material.(*rsa.PrivateKey)
	if !ok || privateKey == nil {
		return nil, fmt.Errorf("%s requires an RSA private key, got %T", a.code, key.Material)
	}

	if privateKey.N.BitLen() < MinimumRSAKeySize {
		return nil, fmt.Errorf("%s requires an RSA key of at least %d bits, got %d", a.code, MinimumRSAKeySize, privateKey.N.BitLen())
	}

	if a.pss {
		return rsa.SignPSS(rand.Reader, privateKey, a.hash, a.digest(input), a.pssOptions())
	}
	return rsa.SignPKCS1v15(rand.Reader, privateKey, a.hash, a.digest(input))
}

func (a *rsaAlgorithm) Verify(key *keys.SecretKey, input, signature []byte) error {
	publicKey, ok := key.Public().(*rsa.PublicKey)
	if !ok || publicKey == nil {
		return fmt.Errorf("%s requires an RSA key, got %T", a.code, key.Material)
	}

	if publicKey.N.BitLen() < MinimumRSAKeySize {
		return fmt.Errorf("%s requires an RSA key of at least %d bits, got %d", a.code, MinimumRSAKeySize, publicKey.N.BitLen())
	}

	var err error
	if a.pss {
		err = rsa.VerifyPSS(publicKey, a.hash, a.digest(input), signature, a.pssOptions())
	} else {
		err = rsa.VerifyPKCS1v15(publicKey, a.hash, a.digest(input), signature)
	}
	if err != nil {
		return fmt.Errorf("failed to verify RSA signature: %w", err)
	}

	return nil
}

// ECDSA returns an ECDSA signature algorithm for the given curve and hash.
// Signatures are the fixed-width concatenation of R and S.
func ECDSA(code Algorithm, curve elliptic.Curve, hash crypto.Hash) SignatureAlgorithm {
	return &ecdsaAlgorithm{descriptor: descriptor{code, CategorySignature}, curve: curve, hash: hash}
}

type ecdsaAlgorithm struct {
	descriptor
	curve elliptic.Curve
	hash  crypto.Hash
}

func (a *ecdsaAlgorithm) SignatureSize(keyBits int) int {
	return 2 * ((keyBits + 7) / 8)
}

func (a *ecdsaAlgorithm) digest(input []byte) []byte {
	h := a.hash.New()
	h.Write(input)
	return h.Sum(nil)
}

func (a *ecdsaAlgorithm) checkCurve(curve elliptic.Curve) error {
	if curve == nil || curve.Params().Name != a.curve.Params().Name {
		return fmt.Errorf("invalid ECDSA key, %s requires curve %s", a.code, a.curve.Params().Name)
	}
	return nil
}

func (a *ecdsaAlgorithm) Sign(key *keys.SecretKey, input []byte) ([]byte, error) {
	privateKey, ok := key.Material.(*ecdsa.PrivateKey)
	if !ok || privateKey == nil {
		return nil, fmt.Errorf("%s requires an ECDSA private key, got %T", a.code, key.Material)
	}

	if err := a.checkCurve(privateKey.Curve); err != nil {
		return nil, err
	}

	r, s, err := ecdsa.Sign(rand.Reader, privateKey, a.digest(input))
	if err != nil {
		return nil, fmt.Errorf("failed to sign with ECDSA private key: %w", err)
	}

	keyBytes := (a.curve.Params().BitSize + 7) / 8

	out := make([]byte, 2*keyBytes)
	r.FillBytes(out[:keyBytes])
	s.FillBytes(out[keyBytes:])

	return out, nil
}

func (a *ecdsaAlgorithm) Verify(key *keys.SecretKey, input, signature []byte) error {
	publicKey, ok := key.Public().(*ecdsa.PublicKey)
	if !ok || publicKey == nil {
		return fmt.Errorf("%s requires an ECDSA key, got %T", a.code, key.Material)
	}

	if err := a.checkCurve(publicKey.Curve); err != nil {
		return err
	}

	keyBytes := (a.curve.Params().BitSize + 7) / 8
	if len(signature) != 2*keyBytes {
		return fmt.Errorf("invalid signature length for key size")
	}

	r := new(big.Int).SetBytes(signature[:keyBytes])
	s := new(big.Int).SetBytes(signature[keyBytes:])

	if !ecdsa.Verify(publicKey, a.digest(input), r, s) {
		return fmt.Errorf("failed to validate ECDSA signature")
	}

	return nil
}

type eddsaAlgorithm struct {
	descriptor
}

func (a *eddsaAlgorithm) SignatureSize(int) int {
	return ed25519.SignatureSize
}

func (a *eddsaAlgorithm) Sign(key *keys.SecretKey, input []byte) ([]byte, error) {
	privateKey, ok := key.Material.(ed25519.PrivateKey)
	if !ok || len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%s requires an Ed25519 private key, got %T", a.code, key.Material)
	}

	return ed25519.Sign(privateKey, input), nil
}

func (a *eddsaAlgorithm) Verify(key *keys.SecretKey, input, signature []byte) error {
	publicKey, ok := key.Public().(ed25519.PublicKey)
	if !ok || len(publicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("%s requires an Ed25519 key, got %T", a.code, key.Material)
	}

	if !ed25519.Verify(publicKey, input, signature) {
		return fmt.Errorf("failed to validate EdDSA signature")
	}

	return nil
}

// noneAlgorithm produces and accepts only empty signatures.
type noneAlgorithm struct {
	descriptor
}

func (a *noneAlgorithm) SignatureSize(int) int {
	return 0
}

func (a *noneAlgorithm) Sign(*keys.SecretKey, []byte) ([]byte, error) {
	return []byte{}, nil
}

func (a *noneAlgorithm) Verify(_ *keys.SecretKey, _, signature []byte) error {
	if len(signature) != 0 {
		return fmt.Errorf("unsecured JWS must have an empty signature")
	}
	return nil
}
