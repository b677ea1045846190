package jwt

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/compact"
	"github.com/picatz/jose/v2/pkg/header"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/jwe"
	"github.com/picatz/jose/v2/pkg/jws"
	"github.com/picatz/jose/v2/pkg/keys"
	"github.com/picatz/jose/v2/pkg/validation"
)

// Type "JWT" is the media type used by JSON Web Token (JWT).
//
// # Example
//
//	header := header.Parameters{
//		header.Type:      jwt.Type,
//		header.Algorithm: jwa.HS256,
//	}
//
// https://www.rfc-editor.org/rfc/rfc7515.html#section-3.3
const Type = header.TypeJWT

// registry holds the built-in algorithms, without "none". It is never
// modified after initialization.
var registry = jwa.MustNewRegistry()

// Token is a decoded JSON Web Token, a string representing a
// set of claims as a JSON object that is encoded in a JWS or
// JWE, enabling the claims to be digitally signed or MACed
// and/or encrypted.
//
// Signed JWTs contain three parts, separated by dots (".") which are:
//
//  1. Header
//  2. Claims (Payload)
//  3. Signature
//
// Encrypted JWTs contain five parts, and carry no signature.
//
// https://datatracker.ietf.org/doc/html/rfc7519#section-1
type Token struct {
	// Header is the set of parameters that are used to describe
	// the cryptographic operations applied to the JWT claims set.
	Header header.Parameters

	// Claims is the set of claims that are asserted by the JWT.
	//
	// This is sometimes referred to as the "payload".
	Claims ClaimsSet

	// Signature is the cryptographic signature or MAC value
	// that is used to validate the JWT. It is empty for encrypted
	// tokens and for the "none" algorithm.
	Signature []byte

	// Raw is the (original) string representation of the JWT.
	raw string
}

// String returns the compact serialization of the token. Tokens built
// from a struct literal are serialized from their fields.
func (t Token) String() string {
	if len(t.raw) != 0 {
		return t.raw
	}
	return t.computeString()
}

// computeString serializes the header, claims and signature fields.
func (t Token) computeString() string {
	var b strings.Builder

	params, err := t.Header.Base64URLString()
	if err != nil {
		fmt.Fprintf(&b, "<invalid-header %q>", err)
	} else {
		b.WriteString(params)
	}

	b.WriteByte('.')
	if len(t.Claims) > 0 {
		b.WriteString(base64.Encode([]byte(t.Claims.String())))
	}

	b.WriteByte('.')
	b.WriteString(base64.Encode(t.Signature))

	return b.String()
}

// Encrypted reports whether the token is a JWE.
func (t *Token) Encrypted() bool {
	return strings.Count(t.raw, ".") == int(compact.Encrypted)-1
}

// toSecretKey accepts a *keys.SecretKey or raw key material.
func toSecretKey(key any) (*keys.SecretKey, error) {
	switch k := key.(type) {
	case nil:
		return nil, fmt.Errorf("no key provided")
	case *keys.SecretKey:
		return k, nil
	default:
		return keys.New(key)
	}
}

// New can be used to create a signed Token object. If this fails for any
// reason, an error is returned with a nil token.
//
// Using this function does not require the given header parameters define
// the "typ" (header.Type), which is always set to "JWT" (header.TypeJWT), but
// callers can include it if they like. Every other parameter, except "kid"
// which comes from the key, is included in the header as given.
//
// The claims set must not be empty, or will return an error.
//
// The given key is a *keys.SecretKey or raw key material accepted by
// keys.New. Algorithm(s) to Supported Key Type(s):
//   - HS256, HS384, HS512: []byte or string
//   - RS256, RS384, RS512, PS256, PS384, PS512: *rsa.PrivateKey
//   - ES256, ES384, ES512: *ecdsa.PrivateKey
//   - EdDSA: ed25519.PrivateKey
//   - none: ignored, may be nil
func New(params header.Parameters, claims ClaimsSet, key any) (*Token, error) {
	// Given params set cannot be empty.
	if len(params) == 0 {
		return nil, fmt.Errorf("cannot create token with empty header parameters")
	}

	// Given claims set cannot be emtpy.
	if len(claims) == 0 {
		return nil, fmt.Errorf("cannot create token with empty claims set: %w", ErrNoClaimSet)
	}

	if typ, ok := params[header.Type]; ok && typ != Type {
		return nil, NewInvalidTypeError(fmt.Errorf("header type %q is not supported", typ))
	}

	alg, err := params.Algorithm()
	if err != nil {
		return nil, NewSigningError(err)
	}

	if err := claims.normalize(); err != nil {
		return nil, NewSigningError(err)
	}

	// Unsecured tokens are created on request, but never accepted by
	// Verify unless explicitly allowed.
	reg := registry
	var secretKey *keys.SecretKey
	if alg == jwa.None {
		reg = jwa.MustNewRegistry(jwa.WithInsecureNone())
	} else {
		secretKey, err = toSecretKey(key)
		if err != nil {
			return nil, NewSigningError(err)
		}
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return nil, NewSigningError(fmt.Errorf("failed to encode claims: %w", err))
	}

	opts := []jws.EncodeOption{jws.WithType(Type)}
	for name, value := range params {
		switch name {
		case header.Type, header.Algorithm, header.KeyID:
		default:
			opts = append(opts, jws.WithHeader(name, value))
		}
	}

	raw, err := jws.NewCodec(reg).Encode(payload, jws.SigningCredentials{Key: secretKey, Algorithm: alg}, opts...)
	if err != nil {
		return nil, NewSigningError(err)
	}

	return ParseString(raw)
}

// Encrypt encodes claims as an encrypted JWT (JWE) with the given
// credentials and returns its compact serialization.
func Encrypt(claims ClaimsSet, creds jwe.EncryptionCredentials) (string, error) {
	if len(claims) == 0 {
		return "", fmt.Errorf("cannot create token with empty claims set: %w", ErrNoClaimSet)
	}

	if err := claims.normalize(); err != nil {
		return "", err
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to encode claims: %w", err)
	}

	return jwe.NewCodec(registry).Encode(payload, creds, jwe.WithType(Type))
}

// Parseable is a type that can be parsed into a JWT,
// either a string or byte slice.
type Parseable interface {
	~string | ~[]byte
}

// Parse parses a given JWT, and returns a Token or an error
// if the JWT fails to parse.
//
// # Warning
//
// This is a low-level function that does not verify the
// signature of the token. Use ParseAndVerify to parse
// and verify the signature of a token in one step.
// Otherwise, use Parse to parse a token, and then
// use the Verify method to verify the signature.
func Parse[T Parseable](input T) (*Token, error) {
	return ParseString(string(input))
}

// ParseString parses a given signed JWT string, and returns a Token
// or an error if the JWT fails to parse.
//
// # Warning
//
// This is a low-level function that does not verify the
// signature of the token. Encrypted tokens cannot be parsed
// without a key; use ParseAndVerify for them.
func ParseString(input string) (*Token, error) {
	parsed, err := compact.Parse(input)
	if err != nil {
		return nil, err
	}

	if parsed.Kind() != compact.Signed {
		return nil, fmt.Errorf("cannot parse a %s without decrypting it, use ParseAndVerify", parsed.Kind())
	}

	params, err := parsed.Header()
	if err != nil {
		return nil, err
	}

	payload, err := parsed.DecodeSegment(compact.SignedPayload)
	if err != nil {
		return nil, err
	}

	claims, err := parseClaims(payload)
	if err != nil {
		return nil, err
	}

	signature, err := parsed.DecodeSegment(compact.SignedSignature)
	if err != nil {
		return nil, err
	}

	return &Token{
		Header:    params,
		Claims:    claims,
		Signature: signature,
		raw:       input,
	}, nil
}

// ParseAndVerify parses, verifies (or decrypts) and validates a given
// JWT using the given verification configuration options. Both signed and
// encrypted tokens are accepted.
func ParseAndVerify[T Parseable](input T, verifyOptions ...VerifyOption) (*Token, error) {
	return ParseAndVerifyContext(context.Background(), string(input), verifyOptions...)
}

// ParseAndVerifyContext is ParseAndVerify with a context, checked before
// each validation step.
func ParseAndVerifyContext(ctx context.Context, input string, verifyOptions ...VerifyOption) (*Token, error) {
	result, err := validate(ctx, input, verifyOptions)
	if err != nil {
		return nil, err
	}

	decoded := result.Token()

	claims, err := parseClaims(decoded.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	token := &Token{
		Header: decoded.Header,
		Claims: claims,
		raw:    input,
	}
	if decoded.Signature != nil {
		token.Signature = decoded.Signature.Signature
	}

	return token, nil
}

// Issuers is a set of issuers.
type Issuers = []string

// VerifyConfig is a configuration type for verifying JWTs.
type VerifyConfig struct {
	// InsecureAllowNone allows the "none" algorithm to be used, which
	// is considered insecure, dangerous, and disabled by default. It must be
	// set in addition to being enabled in the allowed algorithms.
	InsecureAllowNone bool

	// AllowedAlgorithms is a set of allowed algorithms for the JWT.
	//
	// If not set, then jwt.DefaultAllowedAlgorithms and
	// jwt.DefaultAllowedEncryptionAlgorithms will be used.
	AllowedAlgorithms []jwa.Algorithm

	// AllowedIssuers is a set of allowed issuers for the JWT.
	//
	// If not set, then any issuers are allowed.
	AllowedIssuers []string

	// AllowedAudiences is a set of allowed audiences for the JWT.
	//
	// If not set, then any audiences are allowed.
	AllowedAudiences []string

	// AllowedKeys is a set of allowed keys for the JWT, each a
	// *keys.SecretKey or raw key material.
	//
	// If not set, then verification will fail if the algorithm
	// is not "none".
	AllowedKeys []any

	// RequiredClaims are claims the JWT must contain.
	RequiredClaims []string

	// Clock is used to verify the "exp", "nbf", and "iat" claims.
	//
	// If not set, then the real clock will be used.
	Clock quartz.Clock

	// ClockSkew is the tolerance applied to the "exp", "nbf", and
	// "iat" claims.
	ClockSkew time.Duration

	// SupportedCriticalHeaders are extension header parameters the
	// caller understands, and so may be listed in "crit".
	SupportedCriticalHeaders []string

	// Validators are run after the built-in validators.
	Validators []validation.Validator

	// Logger receives the pipeline's logs.
	Logger *zap.Logger
}

// VerifyOption is a functional option type used to configure
// the verification requirements for JWTs.
type VerifyOption func(*VerifyConfig) error

// WithAllowInsecureNoneAlgorithm allows the "none" algorithm to be used.
// Users must explicitly enable this option, as it is
// considered insecure, dangerous, and disabled by default.
//
// # WARNING
//
// This is not recommended, and should only be used
// for testing purposes.
func WithAllowInsecureNoneAlgorithm(value bool) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.InsecureAllowNone = value
		return nil
	}
}

// WithAllowedIssuers sets the allowed issuers for the JWT.
func WithAllowedIssuers(issuers ...string) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.AllowedIssuers = issuers
		return nil
	}
}

// WithAllowedAudiences sets the allowed audiences for the JWT.
func WithAllowedAudiences(audiences ...string) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.AllowedAudiences = audiences
		return nil
	}
}

// WithAllowedAlgorithms sets the allowed algorithms for the JWT. For
// encrypted tokens, both the "alg" and "enc" algorithms must be allowed.
func WithAllowedAlgorithms(algs ...jwa.Algorithm) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.AllowedAlgorithms = algs
		return nil
	}
}

// PublicKey is a type that can be used to verify a JWT using
// an asymmetric algorithm, such as *rsa.PublicKey or *ecdsa.PublicKey.
type PublicKey interface {
	*rsa.PublicKey | *ecdsa.PublicKey | ed25519.PublicKey
}

// PrivateKey is a type that can be used to sign a JWT, or decrypt one
// using an asymmetric key management algorithm.
type PrivateKey interface {
	*rsa.PrivateKey | *ecdsa.PrivateKey | ed25519.PrivateKey
}

// SymmetricKey is a type that can be used to sign or verify a JWT using
// a symmetric algorithm, such as HMAC.
type SymmetricKey interface {
	[]byte | string
}

// VerifyKey is a type that can be used to verify or decrypt a JWT.
type VerifyKey interface {
	PublicKey | PrivateKey | SymmetricKey | *keys.SecretKey
}

// WithKey appends a key to the set of allowed keys for the JWT.
//
// This is the preferred way to add a key to the set of allowed keys,
// because it will ensure that the given key is of the correct type
// at compile time.
func WithKey[T VerifyKey](key T) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.AllowedKeys = append(vc.AllowedKeys, key)
		return nil
	}
}

// WithKeys sets the allowed keys for the JWT.
func WithKeys(values ...any) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.AllowedKeys = values
		return nil
	}
}

// WithRequiredClaims requires the JWT to contain the given claims.
func WithRequiredClaims(names ...string) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.RequiredClaims = append(vc.RequiredClaims, names...)
		return nil
	}
}

// WithClock sets the clock used to verify the time based claims.
func WithClock(clock quartz.Clock) VerifyOption {
	return func(vc *VerifyConfig) error {
		if clock == nil {
			return fmt.Errorf("nil clock")
		}
		vc.Clock = clock
		return nil
	}
}

// WithClockSkewTolerance sets the tolerance applied to the time based claims.
func WithClockSkewTolerance(skew time.Duration) VerifyOption {
	return func(vc *VerifyConfig) error {
		if skew < 0 {
			return fmt.Errorf("negative clock skew %v", skew)
		}
		vc.ClockSkew = skew
		return nil
	}
}

// WithSupportedCriticalHeaders sets the extension header parameters that
// a JWT may list in its "crit" header.
//
// https://www.rfc-editor.org/rfc/rfc7515.html#section-4.1.11
func WithSupportedCriticalHeaders(names ...string) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.SupportedCriticalHeaders = append(vc.SupportedCriticalHeaders, names...)
		return nil
	}
}

// WithValidators appends validators run after the built-in ones.
func WithValidators(validators ...validation.Validator) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.Validators = append(vc.Validators, validators...)
		return nil
	}
}

// WithLogger sets the logger used during verification.
func WithLogger(logger *zap.Logger) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.Logger = logger
		return nil
	}
}

var defaultAllowedAlogrithms = []jwa.Algorithm{
	jwa.RS256, jwa.RS384, jwa.RS512,
	jwa.ES256, jwa.ES384, jwa.ES512,
	jwa.HS256, jwa.HS384, jwa.HS512,
	jwa.PS256, jwa.PS384, jwa.PS512,
	jwa.EdDSA,
}

// DefaultAllowedAlogrithms returns the signature algorithms allowed by
// default.
func DefaultAllowedAlogrithms() []jwa.Algorithm {
	return append([]jwa.Algorithm(nil), defaultAllowedAlogrithms...)
}

var defaultAllowedEncryptionAlgorithms = []jwa.Algorithm{
	jwa.Direct,
	jwa.A128KW, jwa.A192KW, jwa.A256KW,
	jwa.A128GCMKW, jwa.A192GCMKW, jwa.A256GCMKW,
	jwa.RSAOAEP256,
	jwa.ECDHES, jwa.ECDHESA128KW, jwa.ECDHESA192KW, jwa.ECDHESA256KW,
	jwa.A128GCM, jwa.A192GCM, jwa.A256GCM,
	jwa.A128CBCHS256, jwa.A192CBCHS384, jwa.A256CBCHS512,
}

// DefaultAllowedEncryptionAlgorithms returns the key management and
// content encryption algorithms allowed by default.
func DefaultAllowedEncryptionAlgorithms() []jwa.Algorithm {
	return append([]jwa.Algorithm(nil), defaultAllowedEncryptionAlgorithms...)
}

// newVerifyConfig applies opts over the defaults.
func newVerifyConfig(opts []VerifyOption) (*VerifyConfig, error) {
	config := &VerifyConfig{
		InsecureAllowNone: false,
		AllowedAlgorithms: append(DefaultAllowedAlogrithms(), defaultAllowedEncryptionAlgorithms...),
		Clock:             quartz.NewReal(),
		Logger:            zap.NewNop(),
	}

	for _, opt := range opts {
		err := opt(config)
		if err != nil {
			return nil, fmt.Errorf("verify option error: %w", err)
		}
	}

	return config, nil
}

// optionalType checks "typ" only when the header has one, since it is
// optional for JWTs.
//
// https://www.rfc-editor.org/rfc/rfc7519#section-5.1
var optionalType = validation.ValidatorFunc(func(ctx context.Context, vc *validation.Context) error {
	if _, ok := vc.Token.Header[header.Type]; !ok {
		return nil
	}
	return validation.TokenType(Type).Validate(ctx, vc)
})

// pipeline builds the validation pipeline described by the config.
func (config *VerifyConfig) pipeline() (*validation.Pipeline, error) {
	allowNone := config.InsecureAllowNone && slices.Contains(config.AllowedAlgorithms, jwa.None)

	reg := registry
	if allowNone {
		reg = jwa.MustNewRegistry(jwa.WithInsecureNone())
	}

	secretKeys := make([]*keys.SecretKey, 0, len(config.AllowedKeys)+1)
	for _, value := range config.AllowedKeys {
		key, err := toSecretKey(value)
		if err != nil {
			return nil, fmt.Errorf("invalid verification key: %w", err)
		}
		secretKeys = append(secretKeys, key)
	}

	// Unsecured tokens carry no signature to check, so they are decoded
	// with a key restricted to "none".
	if allowNone {
		unsecured, err := keys.New([]byte("none"),
			keys.WithID("none"),
			keys.WithUsage(keys.UsageSignature),
			keys.WithAlgorithm(jwa.None),
		)
		if err != nil {
			return nil, err
		}
		secretKeys = append(secretKeys, unsecured)
	}

	collection, err := keys.NewSet(secretKeys...)
	if err != nil {
		return nil, err
	}

	validators := []validation.Validator{
		optionalType,
		validation.Algorithms(jwa.NewAllowedAlgorithms(config.AllowedAlgorithms...)),
		validation.Lifetime(config.ClockSkew),
	}
	if len(config.RequiredClaims) > 0 {
		validators = append(validators, validation.RequireClaims(config.RequiredClaims...))
	}
	if config.AllowedIssuers != nil {
		validators = append(validators, validation.Issuer(config.AllowedIssuers...))
	}
	if config.AllowedAudiences != nil {
		validators = append(validators, validation.Audience(config.AllowedAudiences...))
	}
	validators = append(validators, config.Validators...)

	return validation.New(reg, collection,
		validation.WithClock(config.Clock),
		validation.WithLogger(config.Logger),
		validation.WithCriticalHeaders(config.SupportedCriticalHeaders...),
		validation.WithValidators(validators...),
	)
}

func validate(ctx context.Context, input string, opts []VerifyOption) (*validation.Result, error) {
	config, err := newVerifyConfig(opts)
	if err != nil {
		return nil, err
	}

	p, err := config.pipeline()
	if err != nil {
		return nil, err
	}

	result := p.Validate(ctx, input)
	if !result.Valid() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, result.Err())
	}

	return result, nil
}

// Verify is used to verify a Token object with the given config options.
// The signature (or encryption), "typ", algorithm, lifetime and any
// configured issuer, audience and claim requirements are checked. If this
// fails for any reason, the returned error wraps ErrInvalidToken.
func (t *Token) Verify(opts ...VerifyOption) error {
	return t.VerifyContext(context.Background(), opts...)
}

// VerifyContext is Verify with a context, checked before each validation
// step.
func (t *Token) VerifyContext(ctx context.Context, opts ...VerifyOption) error {
	_, err := validate(ctx, t.String(), opts)
	return err
}

// Expired returns true if the token is expired, false otherwise.
// If an error occurs while checking expiration, it is returned.
//
// Only use the boolean value if error is nil.
func (t *Token) Expired(clock quartz.Clock) (bool, error) {
	expValue, ok := t.Claims[ExpirationTime]
	if !ok {
		return false, nil
	}
	expInt, ok := expValue.(int64)
	if !ok {
		return false, fmt.Errorf("invalid value %q for %q", expValue, ExpirationTime)
	}
	exp := time.Unix(expInt, 0)

	return exp.Before(clock.Now()), nil
}

// Expires returns true if the token has an expiration time claim,
// false otherwise. If an error occurs while checking expiration,
// it is returned.
//
// Only use the boolean value if error is nil.
func (t *Token) Expires() (bool, error) {
	expValue, ok := t.Claims[ExpirationTime]
	if !ok {
		return false, nil
	}
	_, ok = expValue.(int64)
	if !ok {
		return false, fmt.Errorf("invalid value %q for %q", expValue, ExpirationTime)
	}
	return true, nil
}

// ErrMissingAuthorization is returned when a request has no
// Authorization header.
var ErrMissingAuthorization = errors.New("missing authorization header")

// FromHTTPAuthorizationHeader extracts a JWT string from the Authorization header of an HTTP request.
// If the Authorization header is not set, then an error is returned.
//
// # Warning
//
// This value needs to be parsed and verified before it can be used safely.
func FromHTTPAuthorizationHeader(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrMissingAuthorization
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid authorization header format")
	}

	if strings.ToLower(parts[0]) != "bearer" {
		return "", fmt.Errorf("invalid authorization header format")
	}

	return parts[1], nil
}

// HTTPHeaderValue is a type that can be used as a value when setting
// an HTTP request header.
type HTTPHeaderValue interface {
	string | Token
}

// SetHTTPAuthorizationHeader sets the Authorization header of an HTTP request
// to the given JWT. The JWT is prefixed with "Bearer ", as required by the
// bearer token usage in RFC 6750.
//
// https://tools.ietf.org/html/rfc6750#section-2.1
func SetHTTPAuthorizationHeader[T HTTPHeaderValue](r *http.Request, jwt T) {
	r.Header.Set("Authorization", fmt.Sprintf("Bearer %s", jwt))
}
