package thumbprint

import (
	"bytes"
	"crypto"
	"encoding/json"
	"errors"

	_ "crypto/sha256"

	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/jwk"
	"github.com/picatz/jose/v2/pkg/keys"
)

var (
	ErrInvalidKey = errors.New("thumbprint: invalid key")
)

// required lists the members of each key type that take part in the
// thumbprint, ordered lexicographically.
//
// https://www.rfc-editor.org/rfc/rfc7638.html#section-3.2
var required = map[string][]string{
	jwk.KeyTypeEC:        {"crv", "kty", "x", "y"},
	jwk.KeyTypeRSA:       {"e", "kty", "n"},
	jwk.KeyTypeOctet:     {"k", "kty"},
	jwk.KeyTypeOctetPair: {"crv", "kty", "x"},
}

// Generate returns the JWK Thumbprint for the given JWK following
// the steps defined in RFC 7638.
func Generate(value jwk.Value, h crypto.Hash) ([]byte, error) {
	kty, ok := value[jwk.KeyType].(string)
	if !ok {
		return nil, ErrInvalidKey
	}

	members, ok := required[kty]
	if !ok {
		return nil, ErrInvalidKey
	}

	// 1. Construct a JSON object [RFC7159] containing only the required
	// members of a JWK representing the key and with no whitespace or
	// line breaks before or after any syntactic elements and with the
	// required members ordered lexicographically by the Unicode
	// [UNICODE] code points of the member names.
	//
	// (This JSON object is itself a legal JWK representation of the key.)
	b := bytes.NewBuffer(nil)

	b.WriteByte('{')

	for i, member := range members {
		v, ok := value[member].(string)
		if !ok || v == "" {
			return nil, ErrInvalidKey
		}

		if i > 0 {
			b.WriteByte(',')
		}

		// Member names and base64url values never need escaping, but the
		// curve name comes from input.
		name, _ := json.Marshal(member)
		str, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}

		b.Write(name)
		b.WriteByte(':')
		b.Write(str)
	}

	b.WriteByte('}')

	// 2. Hash the octets of the UTF-8 representation of this JSON object
	// with a cryptographic hash function H.
	//
	// If none is specified, SHA-256 is used.
	if h == 0 {
		h = crypto.SHA256
	}

	if !h.Available() {
		return nil, errors.New("thumbprint: hash is not available")
	}

	hash := h.New()

	_, err := hash.Write(b.Bytes())
	if err != nil {
		return nil, err
	}

	return hash.Sum(nil), nil
}

// GenerateString returns the JWK Thumbprint for the given JWK following
// the steps defined in RFC 7638 as a base64 encoded string.
func GenerateString(value jwk.Value, h crypto.Hash) (string, error) {
	thumbprint, err := Generate(value, h)
	if err != nil {
		return "", err
	}

	return base64.Encode(thumbprint), nil
}

// SecretKeyString returns the SHA-256 JWK Thumbprint of the key, as used
// for default key identifiers.
func SecretKeyString(key *keys.SecretKey) (string, error) {
	value, err := jwk.ValueFromSecretKey(key)
	if err != nil {
		return "", err
	}

	return GenerateString(value, crypto.SHA256)
}
