package jwt

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// There are three classes of JWT Claim Names:
// 1. Registered Claim Names
// 2. Public Claim Names
// 3. Private Claim Names
type (
	ClaimName = string

	Registered = ClaimName
	Public     = ClaimName
	Private    = ClaimName
)

// ClaimValue is a piece of information asserted about a subject, represented
// as a name/value pair consisting of a ClaimName and a ClaimValue.
type ClaimValue = any

// Registered Claim Names
//
// https://datatracker.ietf.org/doc/html/rfc7519#section-4.1
const (
	Issuer         Registered = "iss"
	Subject        Registered = "sub"
	Audience       Registered = "aud"
	ExpirationTime Registered = "exp"
	NotBefore      Registered = "nbf"
	IssuedAt       Registered = "iat"
	JWTID          Registered = "jti"
)

// ClaimsSet is a JSON object that contains the claims conveyed by the JWT.
//
// A claim is a piece of information asserted about a subject, represented
// as a name/value pair consisting of a Claim Name and a Claim Value.
type ClaimsSet map[ClaimName]ClaimValue

// String returns the JSON encoding of the claims set.
func (claims ClaimsSet) String() string {
	b, err := json.Marshal(claims)
	if err != nil {
		return fmt.Sprintf("<invalid-claims-set %q: %#v>", err, claims)
	}
	return string(b)
}

func (claims ClaimsSet) Get(name ClaimName) (ClaimValue, error) {
	value, ok := claims[name]
	if !ok {
		return nil, fmt.Errorf("claim %q not found in claims set", name)
	}
	return value, nil
}

func (claims ClaimsSet) Set(name ClaimName, value ClaimValue) {
	claims[name] = value
}

// Names returns the claim names in reverse lexical order.
func (claims ClaimsSet) Names() []ClaimName {
	var names []ClaimName

	for name := range claims {
		names = append(names, name)
	}

	sort.SliceStable(names, func(i, j int) bool {
		return names[i] > names[j]
	})

	return names
}

// normalize converts registered claims to their JSON representation:
// NumericDate claims to Unix seconds, and string claims from fmt.Stringer.
func (claims ClaimsSet) normalize() error {
	for name, value := range claims {
		switch name {
		case ExpirationTime, NotBefore, IssuedAt:
			switch v := value.(type) {
			// good
			case int64:
			// ok
			case int:
				claims[name] = int64(v)
			case time.Time:
				claims[name] = v.Unix()
			// bad
			default:
				return fmt.Errorf("cannot use %T with %q", v, name)
			}
		case Issuer, Subject, JWTID:
			switch v := value.(type) {
			case string:
			case fmt.Stringer:
				claims[name] = v.String()
			default:
				return fmt.Errorf("cannot use %T with %q", v, name)
			}
		case Audience:
			switch v := value.(type) {
			case string, []string:
			case fmt.Stringer:
				claims[name] = v.String()
			default:
				return fmt.Errorf("cannot use %T with %q", v, name)
			}
		}
	}
	return nil
}

// parseClaims decodes a JSON claims set, converting NumericDate claims to
// int64 Unix seconds.
func parseClaims(payload []byte) (ClaimsSet, error) {
	claims := ClaimsSet{}

	err := json.Unmarshal(payload, &claims)
	if err != nil {
		return nil, fmt.Errorf("failed to decode claims JSON: %w", err)
	}

	for claimName, claimValue := range claims {
		// parsing JSON values into an interface can be tricky
		switch claimName {
		case IssuedAt, ExpirationTime, NotBefore:
			switch v := claimValue.(type) {
			case float64:
				claims[claimName] = int64(v)
			default:
				return nil, fmt.Errorf("invalid type %T used for %q", v, claimName)
			}
		}
	}

	return claims, nil
}
