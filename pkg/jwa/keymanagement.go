package jwa

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	_ "crypto/sha1"
	"fmt"

	josecipher "github.com/go-jose/go-jose/v4/cipher"
	"golang.org/x/crypto/pbkdf2"

	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/header"
	"github.com/picatz/jose/v2/pkg/internal/secret"
	"github.com/picatz/jose/v2/pkg/jwk"
	"github.com/picatz/jose/v2/pkg/keys"
)

// Header parameters used by ECDH-ES key agreement.
//
// https://www.rfc-editor.org/rfc/rfc7518.html#section-4.6.1
const (
	EphemeralPublicKey header.Registered = "epk"
	AgreementPartyU    header.Registered = "apu"
	AgreementPartyV    header.Registered = "apv"
)

// PBES2 iteration counts. Tokens asking for more iterations than
// MaximumPBES2Count are rejected before any key derivation takes place.
const (
	DefaultPBES2Count = 310_000
	MaximumPBES2Count = 1_000_000
	pbes2SaltSize     = 16
)

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return b, nil
}

// directAlgorithm uses the shared symmetric key as the CEK.
//
// https://www.rfc-editor.org/rfc/rfc7518.html#section-4.5
type directAlgorithm struct {
	descriptor
}

func (a *directAlgorithm) material(key *keys.SecretKey, cekSize int) ([]byte, error) {
	material, ok := key.Symmetric()
	if !ok {
		return nil, fmt.Errorf("%s requires a symmetric key, got %s", a.code, key.Type())
	}
	if len(material) != cekSize {
		return nil, fmt.Errorf("%s key is %d bytes, content encryption requires %d", a.code, len(material), cekSize)
	}
	return material, nil
}

func (a *directAlgorithm) WrapKey(key *keys.SecretKey, cekSize int, _ header.Parameters) ([]byte, []byte, error) {
	material, err := a.material(key, cekSize)
	if err != nil {
		return nil, nil, err
	}
	return append([]byte(nil), material...), []byte{}, nil
}

func (a *directAlgorithm) UnwrapKey(key *keys.SecretKey, encryptedKey []byte, cekSize int, _ header.Parameters) ([]byte, error) {
	if len(encryptedKey) != 0 {
		return nil, fmt.Errorf("%s requires an empty encrypted key", a.code)
	}
	material, err := a.material(key, cekSize)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), material...), nil
}

// aesKeyWrapAlgorithm wraps the CEK with AES Key Wrap (RFC 3394).
//
// https://www.rfc-editor.org/rfc/rfc7518.html#section-4.4
type aesKeyWrapAlgorithm struct {
	descriptor
	keySize int
}

func kekBlock(code Algorithm, key *keys.SecretKey, size int) (cipher.Block, error) {
	kek, ok := key.Symmetric()
	if !ok {
		return nil, fmt.Errorf("%s requires a symmetric key, got %s", code, key.Type())
	}
	if len(kek) != size {
		return nil, fmt.Errorf("%s requires a %d bit key, got %d", code, size*8, len(kek)*8)
	}
	return aes.NewCipher(kek)
}

func (a *aesKeyWrapAlgorithm) WrapKey(key *keys.SecretKey, cekSize int, _ header.Parameters) ([]byte, []byte, error) {
	block, err := kekBlock(a.code, key, a.keySize)
	if err != nil {
		return nil, nil, err
	}

	cek, err := randomBytes(cekSize)
	if err != nil {
		return nil, nil, err
	}

	encryptedKey, err := josecipher.KeyWrap(block, cek)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to wrap content encryption key: %w", err)
	}

	return cek, encryptedKey, nil
}

func (a *aesKeyWrapAlgorithm) UnwrapKey(key *keys.SecretKey, encryptedKey []byte, _ int, _ header.Parameters) ([]byte, error) {
	block, err := kekBlock(a.code, key, a.keySize)
	if err != nil {
		return nil, err
	}

	cek, err := josecipher.KeyUnwrap(block, encryptedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap content encryption key: %w", err)
	}

	return cek, nil
}

// aesGCMKeyWrapAlgorithm encrypts the CEK with AES GCM, recording the
// IV and tag in the header.
//
// https://www.rfc-editor.org/rfc/rfc7518.html#section-4.7
type aesGCMKeyWrapAlgorithm struct {
	descriptor
	keySize int
}

func (a *aesGCMKeyWrapAlgorithm) aead(key *keys.SecretKey) (cipher.AEAD, error) {
	block, err := kekBlock(a.code, key, a.keySize)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (a *aesGCMKeyWrapAlgorithm) WrapKey(key *keys.SecretKey, cekSize int, params header.Parameters) ([]byte, []byte, error) {
	aead, err := a.aead(key)
	if err != nil {
		return nil, nil, err
	}

	cek, err := randomBytes(cekSize)
	if err != nil {
		return nil, nil, err
	}

	iv, err := randomBytes(aead.NonceSize())
	if err != nil {
		return nil, nil, err
	}

	sealed := aead.Seal(nil, iv, cek, nil)
	split := len(sealed) - aead.Overhead()

	params[header.InitializationVector] = base64.Encode(iv)
	params[header.AuthenticationTag] = base64.Encode(sealed[split:])

	return cek, sealed[:split], nil
}

func (a *aesGCMKeyWrapAlgorithm) UnwrapKey(key *keys.SecretKey, encryptedKey []byte, _ int, params header.Parameters) ([]byte, error) {
	aead, err := a.aead(key)
	if err != nil {
		return nil, err
	}

	iv, err := binaryParameter(params, header.InitializationVector)
	if err != nil {
		return nil, err
	}
	if len(iv) != aead.NonceSize() {
		return nil, fmt.Errorf("invalid %q length %d", header.InitializationVector, len(iv))
	}

	tag, err := binaryParameter(params, header.AuthenticationTag)
	if err != nil {
		return nil, err
	}
	if len(tag) != aead.Overhead() {
		return nil, fmt.Errorf("invalid %q length %d", header.AuthenticationTag, len(tag))
	}

	sealed := secret.Get(len(encryptedKey) + len(tag))
	defer sealed.Release()
	sealed.Write(encryptedKey)
	sealed.Write(tag)

	cek, err := aead.Open(nil, iv, sealed.Bytes(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap content encryption key: %w", err)
	}

	return cek, nil
}

// rsaOAEPAlgorithm encrypts the CEK with RSAES-OAEP.
//
// https://www.rfc-editor.org/rfc/rfc7518.html#section-4.3
type rsaOAEPAlgorithm struct {
	descriptor
	hash crypto.Hash
}

func (a *rsaOAEPAlgorithm) WrapKey(key *keys.SecretKey, cekSize int, _ header.Parameters) ([]byte, []byte, error) {
	publicKey, ok := key.Public().(*rsa.PublicKey)
	if !ok || publicKey == nil {
		return nil, nil, fmt.Errorf("%s requires an RSA key, got %T", a.code, key.Material)
	}

	if publicKey.N.BitLen() < MinimumRSAKeySize {
		return nil, nil, fmt.Errorf("%s requires an RSA key of at least %d bits, got %d", a.code, MinimumRSAKeySize, publicKey.N.BitLen())
	}

	cek, err := randomBytes(cekSize)
	if err != nil {
		return nil, nil, err
	}

	encryptedKey, err := rsa.EncryptOAEP(a.hash.New(), rand.Reader, publicKey, cek, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encrypt content encryption key: %w", err)
	}

	return cek, encryptedKey, nil
}

func (a *rsaOAEPAlgorithm) UnwrapKey(key *keys.SecretKey, encryptedKey []byte, _ int, _ header.Parameters) ([]byte, error) {
	privateKey, ok := key.Material.(*rsa.PrivateKey)
	if !ok || privateKey == nil {
		return nil, fmt.Errorf("%s requires an RSA private key, got %T", a.code, key.Material)
	}

	cek, err := rsa.DecryptOAEP(a.hash.New(), nil, privateKey, encryptedKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt content encryption key: %w", err)
	}

	return cek, nil
}

// pbes2Algorithm derives a key encryption key from a password with
// PBKDF2, then wraps the CEK with AES Key Wrap.
//
// https://www.rfc-editor.org/rfc/rfc7518.html#section-4.8
type pbes2Algorithm struct {
	descriptor
	hash    crypto.Hash
	keySize int
}

func (a *pbes2Algorithm) kek(key *keys.SecretKey, salt []byte, count int) (cipher.Block, error) {
	password, ok := key.Symmetric()
	if !ok {
		return nil, fmt.Errorf("%s requires a password, got %s key", a.code, key.Type())
	}

	// The salt value used is (UTF8(Alg) || 0x00 || Salt Input).
	full := secret.Get(len(a.code) + 1 + len(salt))
	defer full.Release()
	full.WriteString(a.code)
	full.WriteByte(0)
	full.Write(salt)

	derived := pbkdf2.Key(password, full.Bytes(), count, a.keySize, a.hash.New)
	defer secret.Zero(derived)

	return aes.NewCipher(derived)
}

func (a *pbes2Algorithm) WrapKey(key *keys.SecretKey, cekSize int, params header.Parameters) ([]byte, []byte, error) {
	salt, err := randomBytes(pbes2SaltSize)
	if err != nil {
		return nil, nil, err
	}

	block, err := a.kek(key, salt, DefaultPBES2Count)
	if err != nil {
		return nil, nil, err
	}

	cek, err := randomBytes(cekSize)
	if err != nil {
		return nil, nil, err
	}

	encryptedKey, err := josecipher.KeyWrap(block, cek)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to wrap content encryption key: %w", err)
	}

	params[header.PBES2SaltInput] = base64.Encode(salt)
	params[header.PBES2Count] = DefaultPBES2Count

	return cek, encryptedKey, nil
}

func (a *pbes2Algorithm) UnwrapKey(key *keys.SecretKey, encryptedKey []byte, _ int, params header.Parameters) ([]byte, error) {
	salt, err := binaryParameter(params, header.PBES2SaltInput)
	if err != nil {
		return nil, err
	}
	if len(salt) < 8 {
		return nil, fmt.Errorf("%q must be at least 8 bytes", header.PBES2SaltInput)
	}

	count, err := integerParameter(params, header.PBES2Count)
	if err != nil {
		return nil, err
	}
	if count < 1 || count > MaximumPBES2Count {
		return nil, fmt.Errorf("%q of %d is out of range", header.PBES2Count, count)
	}

	block, err := a.kek(key, salt, count)
	if err != nil {
		return nil, err
	}

	cek, err := josecipher.KeyUnwrap(block, encryptedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap content encryption key: %w", err)
	}

	return cek, nil
}

// ecdhESAlgorithm agrees on a key with an ephemeral ECDH key pair and
// Concat KDF. When wrapSize is zero the agreed key is the CEK, otherwise
// it wraps a random CEK with AES Key Wrap.
//
// https://www.rfc-editor.org/rfc/rfc7518.html#section-4.6
type ecdhESAlgorithm struct {
	descriptor
	wrapSize int
}

// kdfAlgorithm is the AlgorithmID input of Concat KDF: the "enc" value
// for direct agreement, the "alg" value otherwise.
func (a *ecdhESAlgorithm) kdfAlgorithm(params header.Parameters) (string, int, error) {
	if a.wrapSize > 0 {
		return a.code, a.wrapSize, nil
	}
	enc, err := params.Encryption()
	if err != nil {
		return "", 0, err
	}
	return enc, 0, nil
}

func (a *ecdhESAlgorithm) derive(params header.Parameters, priv *ecdsa.PrivateKey, pub *ecdsa.PublicKey, size int) ([]byte, error) {
	algID, wrapSize, err := a.kdfAlgorithm(params)
	if err != nil {
		return nil, err
	}
	if wrapSize > 0 {
		size = wrapSize
	}

	if !priv.Curve.IsOnCurve(pub.X, pub.Y) || priv.Curve.Params().Name != pub.Curve.Params().Name {
		return nil, fmt.Errorf("%s public key is not on the recipient curve", a.code)
	}

	apu, err := optionalBinaryParameter(params, AgreementPartyU)
	if err != nil {
		return nil, err
	}
	apv, err := optionalBinaryParameter(params, AgreementPartyV)
	if err != nil {
		return nil, err
	}

	return josecipher.DeriveECDHES(algID, apu, apv, priv, pub, size), nil
}

func (a *ecdhESAlgorithm) WrapKey(key *keys.SecretKey, cekSize int, params header.Parameters) ([]byte, []byte, error) {
	recipient, ok := key.Public().(*ecdsa.PublicKey)
	if !ok || recipient == nil {
		return nil, nil, fmt.Errorf("%s requires an ECDSA key, got %T", a.code, key.Material)
	}

	ephemeral, err := ecdsa.GenerateKey(recipient.Curve, rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	epk, err := jwk.ValueFromPublicKey(&ephemeral.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode ephemeral key: %w", err)
	}
	params[EphemeralPublicKey] = epk

	derived, err := a.derive(params, ephemeral, recipient, cekSize)
	if err != nil {
		return nil, nil, err
	}

	if a.wrapSize == 0 {
		return derived, []byte{}, nil
	}
	defer secret.Zero(derived)

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, nil, err
	}

	cek, err := randomBytes(cekSize)
	if err != nil {
		return nil, nil, err
	}

	encryptedKey, err := josecipher.KeyWrap(block, cek)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to wrap content encryption key: %w", err)
	}

	return cek, encryptedKey, nil
}

func (a *ecdhESAlgorithm) UnwrapKey(key *keys.SecretKey, encryptedKey []byte, cekSize int, params header.Parameters) ([]byte, error) {
	priv, ok := key.Material.(*ecdsa.PrivateKey)
	if !ok || priv == nil {
		return nil, fmt.Errorf("%s requires an ECDSA private key, got %T", a.code, key.Material)
	}

	raw, ok := params[EphemeralPublicKey].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("missing or invalid %q header parameter", EphemeralPublicKey)
	}

	epk, err := jwk.ECDSAPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %q header parameter: %w", EphemeralPublicKey, err)
	}

	derived, err := a.derive(params, priv, epk, cekSize)
	if err != nil {
		return nil, err
	}

	if a.wrapSize == 0 {
		if len(encryptedKey) != 0 {
			return nil, fmt.Errorf("%s requires an empty encrypted key", a.code)
		}
		return derived, nil
	}
	defer secret.Zero(derived)

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, err
	}

	cek, err := josecipher.KeyUnwrap(block, encryptedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap content encryption key: %w", err)
	}

	return cek, nil
}

func binaryParameter(params header.Parameters, name header.ParamaterName) ([]byte, error) {
	value, ok, err := params.String(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("missing required %q header parameter", name)
	}
	b, err := base64.Decode(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %q header parameter: %w", name, err)
	}
	return b, nil
}

func optionalBinaryParameter(params header.Parameters, name header.ParamaterName) ([]byte, error) {
	if _, ok := params[name]; !ok {
		return nil, nil
	}
	return binaryParameter(params, name)
}

func integerParameter(params header.Parameters, name header.ParamaterName) (int, error) {
	switch v := params[name].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%q header parameter is not an integer", name)
		}
		return int(v), nil
	case nil:
		return 0, fmt.Errorf("missing required %q header parameter", name)
	default:
		return 0, fmt.Errorf("%w: %q is %T", header.ErrInvalidParameterType, name, v)
	}
}
