package validation

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/picatz/jose/v2/pkg/compact"
	"github.com/picatz/jose/v2/pkg/header"
	"github.com/picatz/jose/v2/pkg/jwe"
	"github.com/picatz/jose/v2/pkg/jws"
)

// Token is a token that was successfully verified or decrypted.
type Token struct {
	// Compact is the parsed compact serialization.
	Compact *compact.Token

	// Header is the protected header.
	Header header.Parameters

	// Payload is the verified payload of a JWS, or the decrypted
	// plaintext of a JWE.
	Payload []byte

	// Signature is set when the token is a JWS.
	Signature *jws.Signature

	// Encryption is set when the token is a JWE.
	Encryption *jwe.Encryption

	claimsOnce sync.Once
	registered *jwt.RegisteredClaims
	claims     map[string]any
	claimsErr  error
}

// Kind returns whether the token is signed or encrypted.
func (t *Token) Kind() compact.Kind {
	return t.Compact.Kind()
}

// Algorithm returns the "alg" header parameter.
func (t *Token) Algorithm() string {
	alg, _ := t.Header.Algorithm()
	return alg
}

func (t *Token) decodeClaims() {
	t.claimsOnce.Do(func() {
		registered := &jwt.RegisteredClaims{}
		if err := json.Unmarshal(t.Payload, registered); err != nil {
			t.claimsErr = fmt.Errorf("failed to decode payload as a JWT claims set: %w", err)
			return
		}

		claims := map[string]any{}
		if err := json.Unmarshal(t.Payload, &claims); err != nil {
			t.claimsErr = fmt.Errorf("failed to decode payload as a JWT claims set: %w", err)
			return
		}

		t.registered = registered
		t.claims = claims
	})
}

// Claims returns the registered claims of the payload. The payload is
// decoded once, on first use.
func (t *Token) Claims() (*jwt.RegisteredClaims, error) {
	t.decodeClaims()
	return t.registered, t.claimsErr
}

// ClaimsMap returns every claim of the payload.
func (t *Token) ClaimsMap() (map[string]any, error) {
	t.decodeClaims()
	return t.claims, t.claimsErr
}
