package jwk

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"

	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/keys"
)

// https://datatracker.ietf.org/doc/html/rfc7517#section-4
type (
	ParamaterName = string

	RSA       = ParamaterName
	ECDSA     = ParamaterName
	Symmetric = ParamaterName
)

const (
	KeyType              ParamaterName = "kty"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.1
	PublicKeyUse         ParamaterName = "use"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.2
	KeyOperations        ParamaterName = "key_ops"  // https://datatracker.ietf.org/doc/html/rfc7517#section-4.3
	Algorithm            ParamaterName = "alg"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.4
	KeyID                ParamaterName = "kid"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.5
	X509URL              ParamaterName = "x5u"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.6
	X509CertificateChain ParamaterName = "x5c"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.7
	X509SHA1Thumbprint   ParamaterName = "x5t"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.8
	X509SHA256Thumbprint ParamaterName = "x5t#S256" // https://datatracker.ietf.org/doc/html/rfc7517#section-4.9

	// K is the symmetric key value within a JWK.
	// https://datatracker.ietf.org/doc/html/rfc7518#section-6.4.1
	K Symmetric = "k"

	// Curve is the curve value within an EC or OKP JWK, such as "P-256".
	// https://datatracker.ietf.org/doc/html/rfc7518#section-6.2.1.1
	Curve ECDSA = "crv"
	X     ECDSA = "x" // X is the x-coordinate for the elliptic curve point.
	Y     ECDSA = "y" // Y is the y-coordinate for the elliptic curve point.

	N RSA = "n" // N is the RSA public modulus value.
	E RSA = "e" // E is the RSA public exponent value.
	D RSA = "d" // D is the RSA or EC private exponent value.
	P RSA = "p" // P is the first RSA prime factor.
	Q RSA = "q" // Q is the second RSA prime factor.
)

// Key types.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-6.1
const (
	KeyTypeEC        = "EC"
	KeyTypeRSA       = "RSA"
	KeyTypeOctet     = "oct"
	KeyTypeOctetPair = "OKP"
)

// MinimumRSAModulusSize is the smallest RSA modulus, in bits, accepted
// when reading an RSA key from a JWK.
const MinimumRSAModulusSize = 2048

// Values is a JSON object containing the parameters describing
// the cryptographic operations and parameters employed.
//
// https://datatracker.ietf.org/doc/html/rfc7517#section-4
type Value = map[ParamaterName]any

func stringParam(v Value, name ParamaterName, required bool) (string, error) {
	raw, ok := v[name]
	if !ok {
		if required {
			return "", fmt.Errorf("missing required paramater %q", name)
		}
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("invalid type for %q", name)
	}
	if required && s == "" {
		return "", fmt.Errorf("no %q set", name)
	}
	return s, nil
}

func binaryParam(v Value, name ParamaterName, required bool) ([]byte, error) {
	s, err := stringParam(v, name, required)
	if err != nil || s == "" {
		return nil, err
	}
	b, err := base64.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 encoding for %q: %w", name, err)
	}
	return b, nil
}

func curveByName(name string) (elliptic.Curve, error) {
	switch name {
	case "P-256":
		return elliptic.P256(), nil
	case "P-384":
		return elliptic.P384(), nil
	case "P-521":
		return elliptic.P521(), nil
	default:
		return nil, fmt.Errorf("invalid curve %q", name)
	}
}

// Validate checks that the required parameters are present for
// the given key type, and that the values are valid.
func Validate(v Value) error {
	kty, err := stringParam(v, KeyType, true)
	if err != nil {
		return err
	}

	switch kty {
	case KeyTypeEC:
		crv, err := stringParam(v, Curve, true)
		if err != nil {
			return err
		}
		if _, err := curveByName(crv); err != nil {
			return err
		}
		for _, name := range []ParamaterName{X, Y} {
			if _, err := binaryParam(v, name, true); err != nil {
				return err
			}
		}
		if _, err := binaryParam(v, D, false); err != nil {
			return err
		}
	case KeyTypeRSA:
		for _, name := range []ParamaterName{N, E} {
			if _, err := binaryParam(v, name, true); err != nil {
				return err
			}
		}
		for _, name := range []ParamaterName{D, P, Q} {
			if _, err := binaryParam(v, name, false); err != nil {
				return err
			}
		}
	case KeyTypeOctet:
		if _, err := binaryParam(v, K, true); err != nil {
			return err
		}
	case KeyTypeOctetPair:
		crv, err := stringParam(v, Curve, true)
		if err != nil {
			return err
		}
		if crv != "Ed25519" {
			return fmt.Errorf("invalid curve %q", crv)
		}
		if _, err := binaryParam(v, X, true); err != nil {
			return err
		}
		if _, err := binaryParam(v, D, false); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown key type %q", kty)
	}

	return nil
}

// RSAValues returns the values for the RSA key type.
func RSAValues(v Value) (n, e, d string, err error) {
	if v[KeyType] != KeyTypeRSA {
		err = fmt.Errorf("JWK value is not RSA")
		return
	}

	if n, err = stringParam(v, N, true); err != nil {
		return
	}
	if e, err = stringParam(v, E, true); err != nil {
		return
	}
	// d can be empty
	d, err = stringParam(v, D, false)
	return
}

// ECDSAValues returns the values for the EC key type.
func ECDSAValues(v Value) (crv, x, y string, err error) {
	if v[KeyType] != KeyTypeEC {
		err = fmt.Errorf("JWK value is not EC")
		return
	}

	if crv, err = stringParam(v, Curve, true); err != nil {
		return
	}
	if x, err = stringParam(v, X, true); err != nil {
		return
	}
	y, err = stringParam(v, Y, true)
	return
}

// Ed25519Values returns the values for the Ed25519 key type.
func Ed25519Values(v Value) (x string, err error) {
	if v[KeyType] != KeyTypeOctetPair {
		err = fmt.Errorf("JWK value is not OKP")
		return
	}

	if v[Curve] != "Ed25519" {
		err = fmt.Errorf("JWK value is not Ed25519")
		return
	}

	return stringParam(v, X, true)
}

// SymmetricKey returns the encoded symmetric key.
func SymmetricKey(v Value) (string, error) {
	k, _ := v[K].(string)
	if k == "" {
		return "", fmt.Errorf("no symmetric key value set")
	}
	return k, nil
}

// HMACSecretKey returns the HMAC secret key (symmetric key).
func HMACSecretKey(v Value) ([]byte, error) {
	key, err := SymmetricKey(v)
	if err != nil {
		return nil, fmt.Errorf("failed to get symmetric key: %w", err)
	}
	return base64.Decode(key)
}

// RSAPublicKey returns the RSA public key, or an error if the key is not
// an RSA key, its modulus is smaller than MinimumRSAModulusSize, or its
// exponent is out of range.
func RSAPublicKey(v Value) (*rsa.PublicKey, error) {
	if _, _, _, err := RSAValues(v); err != nil {
		return nil, fmt.Errorf("failed to get RSA public key: %w", err)
	}

	nBytes, err := binaryParam(v, N, true)
	if err != nil {
		return nil, fmt.Errorf("failed to decode RSA public key N: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	if n.BitLen() < MinimumRSAModulusSize {
		return nil, fmt.Errorf("RSA modulus too small: %d bits, need at least %d", n.BitLen(), MinimumRSAModulusSize)
	}

	eBytes, err := binaryParam(v, E, true)
	if err != nil {
		return nil, fmt.Errorf("failed to decode RSA public key E: %w", err)
	}

	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() || e.Int64() < 2 || e.Int64() > math.MaxInt32 {
		return nil, fmt.Errorf("invalid RSA public exponent")
	}

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

// RSAPrivateKey returns the RSA private key, or an error if the JWK does
// not contain the private exponent and both prime factors.
func RSAPrivateKey(v Value) (*rsa.PrivateKey, error) {
	pub, err := RSAPublicKey(v)
	if err != nil {
		return nil, err
	}

	var ints [3]*big.Int
	for i, name := range []ParamaterName{D, P, Q} {
		b, err := binaryParam(v, name, true)
		if err != nil {
			return nil, fmt.Errorf("failed to get RSA private key: %w", err)
		}
		ints[i] = new(big.Int).SetBytes(b)
	}

	priv := &rsa.PrivateKey{
		PublicKey: *pub,
		D:         ints[0],
		Primes:    []*big.Int{ints[1], ints[2]},
	}

	if err := priv.Validate(); err != nil {
		return nil, fmt.Errorf("invalid RSA private key: %w", err)
	}
	priv.Precompute()

	return priv, nil
}

// ECDSAPublicKey returns the ECDSA public key, or an error if the key is
// not an EC key or the point is not on its curve.
func ECDSAPublicKey(v Value) (*ecdsa.PublicKey, error) {
	crv, _, _, err := ECDSAValues(v)
	if err != nil {
		return nil, fmt.Errorf("failed to get ECDSA values for public key: %w", err)
	}

	curve, err := curveByName(crv)
	if err != nil {
		return nil, fmt.Errorf("failed to get ECDSA values for public key: %w", err)
	}

	xBytes, err := binaryParam(v, X, true)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ECDSA public key X: %w", err)
	}

	yBytes, err := binaryParam(v, Y, true)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ECDSA public key Y: %w", err)
	}

	pkey := &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}

	if !curve.IsOnCurve(pkey.X, pkey.Y) {
		return nil, fmt.Errorf("ECDSA public key is not on curve %s", crv)
	}

	return pkey, nil
}

// ECDSAPrivateKey returns the ECDSA private key, or an error if the JWK
// has no private value "d".
func ECDSAPrivateKey(v Value) (*ecdsa.PrivateKey, error) {
	pub, err := ECDSAPublicKey(v)
	if err != nil {
		return nil, err
	}

	d, err := binaryParam(v, D, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get ECDSA private key: %w", err)
	}

	return &ecdsa.PrivateKey{PublicKey: *pub, D: new(big.Int).SetBytes(d)}, nil
}

// Ed25519PublicKey returns the Ed25519 public key, or an error if the
// key is not an Ed25519 public key.
func Ed25519PublicKey(v Value) (ed25519.PublicKey, error) {
	if _, err := Ed25519Values(v); err != nil {
		return nil, fmt.Errorf("failed to get Ed25519 values for public key: %w", err)
	}

	xBytes, err := binaryParam(v, X, true)
	if err != nil {
		return nil, fmt.Errorf("failed to decode Ed25519 public key X: %w", err)
	}

	// check the length of the key to make sure it is 32 bytes
	if len(xBytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid Ed25519 public key X length: %d", len(xBytes))
	}

	return xBytes, nil
}

// Ed25519PrivateKey returns the Ed25519 private key built from the seed
// "d", or an error if the seed does not match the public key.
func Ed25519PrivateKey(v Value) (ed25519.PrivateKey, error) {
	pub, err := Ed25519PublicKey(v)
	if err != nil {
		return nil, err
	}

	seed, err := binaryParam(v, D, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get Ed25519 private key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid Ed25519 private key D length: %d", len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)
	if !pub.Equal(priv.Public()) {
		return nil, fmt.Errorf("Ed25519 private key does not match public key")
	}

	return priv, nil
}

func curveName(curve elliptic.Curve) (string, error) {
	switch curve {
	case elliptic.P256():
		return "P-256", nil
	case elliptic.P384():
		return "P-384", nil
	case elliptic.P521():
		return "P-521", nil
	default:
		return "", fmt.Errorf("invalid curve %q used for JWK value", curve.Params().Name)
	}
}

// ValueFromPublicKey returns a JWK value from the given public key.
// Elliptic curve coordinates are padded to the curve size.
func ValueFromPublicKey(pubKey any) (Value, error) {
	switch pubKey := pubKey.(type) {
	case *rsa.PublicKey:
		return Value{
			KeyType: KeyTypeRSA,
			N:       base64.Encode(pubKey.N.Bytes()),
			E:       base64.Encode(big.NewInt(int64(pubKey.E)).Bytes()),
		}, nil
	case *ecdsa.PublicKey:
		crv, err := curveName(pubKey.Curve)
		if err != nil {
			return nil, err
		}

		size := (pubKey.Curve.Params().BitSize + 7) / 8

		return Value{
			KeyType: KeyTypeEC,
			Curve:   crv,
			X:       base64.Encode(pubKey.X.FillBytes(make([]byte, size))),
			Y:       base64.Encode(pubKey.Y.FillBytes(make([]byte, size))),
		}, nil
	case ed25519.PublicKey:
		return Value{
			KeyType: KeyTypeOctetPair,
			Curve:   "Ed25519",
			X:       base64.Encode(pubKey),
		}, nil
	default:
		return nil, fmt.Errorf("invalid type %T used for JWK value", pubKey)
	}
}

// ValueFromSecretKey returns the public JWK value of the given key,
// carrying its identifier, usage and algorithm. Symmetric keys are
// exported with their material, since they have no public half.
func ValueFromSecretKey(key *keys.SecretKey) (Value, error) {
	var (
		value Value
		err   error
	)

	if material, ok := key.Symmetric(); ok {
		value = Value{KeyType: KeyTypeOctet, K: base64.Encode(material)}
	} else {
		value, err = ValueFromPublicKey(key.Public())
		if err != nil {
			return nil, err
		}
	}

	if key.ID != "" {
		value[KeyID] = key.ID
	}
	if key.Usage != keys.UsageUnset {
		value[PublicKeyUse] = string(key.Usage)
	}
	if key.Algorithm != "" {
		value[Algorithm] = key.Algorithm
	}

	return value, nil
}

// SecretKey converts a JWK value into a key. Private keys are returned
// when the JWK carries private parameters, public keys otherwise. The
// "kid", "use" and "alg" parameters become the key's ID, Usage and
// Algorithm.
func SecretKey(v Value) (*keys.SecretKey, error) {
	if err := Validate(v); err != nil {
		return nil, fmt.Errorf("invalid JWK: %w", err)
	}

	_, private := v[D]

	var (
		material any
		err      error
	)

	switch v[KeyType] {
	case KeyTypeOctet:
		material, err = HMACSecretKey(v)
	case KeyTypeRSA:
		if private {
			material, err = RSAPrivateKey(v)
		} else {
			material, err = RSAPublicKey(v)
		}
	case KeyTypeEC:
		if private {
			material, err = ECDSAPrivateKey(v)
		} else {
			material, err = ECDSAPublicKey(v)
		}
	case KeyTypeOctetPair:
		if private {
			material, err = Ed25519PrivateKey(v)
		} else {
			material, err = Ed25519PublicKey(v)
		}
	}
	if err != nil {
		return nil, err
	}

	var opts []keys.Option

	if kid, _ := v[KeyID].(string); kid != "" {
		opts = append(opts, keys.WithID(kid))
	}
	if use, _ := v[PublicKeyUse].(string); use != "" {
		opts = append(opts, keys.WithUsage(keys.Usage(use)))
	}
	if alg, _ := v[Algorithm].(string); alg != "" {
		opts = append(opts, keys.WithAlgorithm(alg))
	}

	return keys.New(material, opts...)
}

// Set is a JWK set as defined in RFC 7517.
//
// https://datatracker.ietf.org/doc/html/rfc7517#section-5
type Set struct {
	// Keys is a list of JWK values.
	//
	// https://datatracker.ietf.org/doc/html/rfc7517#section-5.1
	Keys []Value `json:"keys"`
}

// ParseSet reads and validates a JSON encoded JWK set.
func ParseSet(r io.Reader) (*Set, error) {
	set := &Set{}

	err := json.NewDecoder(r).Decode(set)
	if err != nil {
		return nil, fmt.Errorf("failed to decode JWK set: %w", err)
	}

	err = set.Validate()
	if err != nil {
		return nil, err
	}

	return set, nil
}

// Validate validates the JWK set, returning an error if any
// of the keys are invalid.
func (s *Set) Validate() error {
	if len(s.Keys) == 0 {
		return fmt.Errorf("no key values in JWK set")
	}

	for _, key := range s.Keys {
		err := Validate(key)
		if err != nil {
			return fmt.Errorf("key set validation error: %w", err)
		}
	}

	return nil
}

// Get returns the key that matches the given key id.
func (s *Set) Get(keyID string) (Value, error) {
	for _, key := range s.Keys {
		if key[KeyID] == keyID {
			return key, nil
		}
	}

	return nil, fmt.Errorf("key %q not found in set", keyID)
}

// SecretKeys converts every JWK in the set into an in-memory key set.
func (s *Set) SecretKeys() (*keys.Set, error) {
	converted := make([]*keys.SecretKey, 0, len(s.Keys))

	for i, value := range s.Keys {
		key, err := SecretKey(value)
		if err != nil {
			return nil, fmt.Errorf("failed to convert key %d: %w", i, err)
		}
		converted = append(converted, key)
	}

	return keys.NewSet(converted...)
}
