package header

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"github.com/picatz/jose/v2/pkg/base64"
)

// There are three classes of Header Parameter names: Registered Header
// Parameter names, Public Header Parameter names, and Private Header
// Parameter names.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-4
type (
	ParamaterName = string

	Registered = ParamaterName
	Public     = ParamaterName
	Private    = ParamaterName
)

// Registered Header Paramater Names
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-4.1
const (
	Type                            Registered = "typ"
	Algorithm                       Registered = "alg"
	JWKSetURL                       Registered = "jku"
	JSONWebKey                      Registered = "jwk"
	X509URL                         Registered = "x5u"
	X509CertificateChain            Registered = "x5c"
	X509CertificateSHA1Thumbprint   Registered = "x5t"
	X509CertificateSHA256Thumbprint Registered = "x5t#S256"
	ContentType                     Registered = "cty"
	Critical                        Registered = "crit"
	KeyID                           Registered = "kid"

	// https://www.rfc-editor.org/rfc/rfc7516.html#section-4.1.2
	Encryption Registered = "enc"

	// https://www.rfc-editor.org/rfc/rfc7516.html#section-4.1.3
	Zip Registered = "zip"

	// https://www.rfc-editor.org/rfc/rfc7797.html#section-3
	Base64Payload Registered = "b64"
)

// Header parameters used by key management algorithms.
//
// https://www.rfc-editor.org/rfc/rfc7518.html#section-4.7.1
// https://www.rfc-editor.org/rfc/rfc7518.html#section-4.8.1
const (
	InitializationVector Registered = "iv"
	AuthenticationTag    Registered = "tag"
	PBES2SaltInput       Registered = "p2s"
	PBES2Count           Registered = "p2c"
)

const TypeJWT = "JWT"

var (
	ErrParameterNotFound    = errors.New("header parameter not found")
	ErrInvalidParameterType = errors.New("invalid header parameter type")
)

// Parameters is a JSON object containing the parameters describing
// the cryptographic operations and parameters employed.
//
// The JOSE (JSON Object Signing and Encryption) Parameters is comprised
// of a set of Parameters Parameters.
type Parameters map[ParamaterName]any

// Parse decodes a base64url encoded JSON object into Parameters.
func Parse(segment string) (Parameters, error) {
	b, err := base64.Decode(segment)
	if err != nil {
		return nil, fmt.Errorf("failed to decode JOSE header base64: %w", err)
	}

	var h Parameters
	err = json.Unmarshal(b, &h)
	if err != nil {
		return nil, fmt.Errorf("failed to decode JOSE header JSON: %w", err)
	}

	if h == nil {
		return nil, fmt.Errorf("JOSE header is not a JSON object")
	}

	return h, nil
}

// Base64URLString returns the base64url encoded JSON representation of the
// parameters. Names are encoded in sorted order, so the result is stable.
func (h Parameters) Base64URLString() (string, error) {
	b, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("failed to encode JOSE header base64 URL string: %w", err)
	}
	return base64.Encode(b), nil
}

// Clone returns a shallow copy of the parameters.
func (h Parameters) Clone() Parameters {
	return maps.Clone(h)
}

// String returns the named parameter as a string. It returns false if the
// parameter is absent, and an error if it is present but not a string.
func (h Parameters) String(param ParamaterName) (string, bool, error) {
	value, ok := h[param]
	if !ok {
		return "", false, nil
	}
	strValue, ok := value.(string)
	if !ok {
		return "", true, fmt.Errorf("%w: %q is not a string, is %T", ErrInvalidParameterType, param, value)
	}
	return strValue, true, nil
}

func (h Parameters) required(param ParamaterName) (string, error) {
	value, ok, err := h.String(param)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: header does not contain a %q paramater", ErrParameterNotFound, param)
	}
	if value == "" {
		return "", fmt.Errorf("header paramater %q is empty", param)
	}
	return value, nil
}

func (h Parameters) Type() (string, error) {
	return h.required(Type)
}

// Algorithm returns the "alg" parameter, which is required in every
// JWS and JWE header.
func (h Parameters) Algorithm() (string, error) {
	return h.required(Algorithm)
}

// Encryption returns the "enc" parameter, which is required in every
// JWE header.
func (h Parameters) Encryption() (string, error) {
	return h.required(Encryption)
}

// KeyID returns the "kid" parameter, or false if it is absent or not a string.
func (h Parameters) KeyID() (string, bool) {
	kid, ok, err := h.String(KeyID)
	if err != nil || kid == "" {
		return "", false
	}
	return kid, ok
}

// Compression returns the "zip" parameter, or false if it is absent.
func (h Parameters) Compression() (string, bool, error) {
	return h.String(Zip)
}

// Base64Payload returns the "b64" parameter, which defaults to true.
//
// https://www.rfc-editor.org/rfc/rfc7797.html#section-3
func (h Parameters) Base64Payload() (bool, error) {
	value, ok := h[Base64Payload]
	if !ok {
		return true, nil
	}
	b, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q is not a boolean, is %T", ErrInvalidParameterType, Base64Payload, value)
	}
	return b, nil
}

// Critical returns the "crit" parameter. When present it must be a
// non-empty list of strings.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-4.1.11
func (h Parameters) Critical() ([]string, error) {
	value, ok := h[Critical]
	if !ok {
		return nil, nil
	}

	var names []string
	switch v := value.(type) {
	case []string:
		names = v
	case []any:
		names = make([]string, 0, len(v))
		for _, item := range v {
			name, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("header paramater %q contains non-string value %T", Critical, item)
			}
			names = append(names, name)
		}
	default:
		return nil, fmt.Errorf("%w: %q is not a list, is %T", ErrInvalidParameterType, Critical, value)
	}

	if len(names) == 0 {
		return nil, fmt.Errorf("header paramater %q must not be empty", Critical)
	}

	return names, nil
}

// Thumbprints returns the decoded "x5t" (SHA-1) and "x5t#S256" (SHA-256)
// certificate thumbprints. Absent parameters are returned as nil.
func (h Parameters) Thumbprints() (sha1, sha256 []byte, err error) {
	decode := func(param ParamaterName) ([]byte, error) {
		value, ok, err := h.String(param)
		if err != nil || !ok {
			return nil, err
		}
		b, err := base64.Decode(value)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %q thumbprint: %w", param, err)
		}
		return b, nil
	}

	sha1, err = decode(X509CertificateSHA1Thumbprint)
	if err != nil {
		return nil, nil, err
	}
	sha256, err = decode(X509CertificateSHA256Thumbprint)
	if err != nil {
		return nil, nil, err
	}
	return sha1, sha256, nil
}

func (h Parameters) Get(param ParamaterName) (interface{}, error) {
	value, ok := h[param]
	if !ok {
		return "", fmt.Errorf("%w: header does not contain a %q paramater", ErrParameterNotFound, param)
	}
	return value, nil
}
