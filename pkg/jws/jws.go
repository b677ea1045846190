package jws

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/compact"
	"github.com/picatz/jose/v2/pkg/header"
	"github.com/picatz/jose/v2/pkg/internal/secret"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/keys"
)

// Header is a JSON object containing the parameters describing
// the cryptographic operations and parameters employed.
//
// The JOSE (JSON Object Signing and Encryption) Header is comprised
// of a set of Header Parameters.
type Header = header.Parameters

// Signature is a decoded and verified JWS.
type Signature struct {
	// Header is the protected header.
	Header Header

	// Payload is the decoded payload.
	Payload []byte

	// Signature is the decoded signature, empty for "none".
	Signature []byte

	raw string
}

// String returns the compact serialization the signature was decoded from.
func (s *Signature) String() string {
	return s.raw
}

// SigningCredentials are the key and algorithm used to sign a JWS.
type SigningCredentials struct {
	Key       *keys.SecretKey
	Algorithm jwa.Algorithm
}

// Codec encodes and decodes JWS compact serializations using the
// algorithms of a registry.
//
// A Codec is safe for concurrent use.
type Codec struct {
	registry *jwa.Registry
	resolver *keys.Resolver
	logger   *zap.Logger
	critical []string
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithLogger sets the logger used for per-key decode attempts.
func WithLogger(logger *zap.Logger) CodecOption {
	return func(c *Codec) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithResolver sets the resolver used by DecodeWithKeys.
func WithResolver(resolver *keys.Resolver) CodecOption {
	return func(c *Codec) {
		if resolver != nil {
			c.resolver = resolver
		}
	}
}

// WithCriticalHeaders declares extension header parameters the caller
// understands, in addition to "b64". Tokens listing any other name in
// "crit" are rejected.
func WithCriticalHeaders(names ...string) CodecOption {
	return func(c *Codec) {
		c.critical = append(c.critical, names...)
	}
}

// NewCodec returns a Codec backed by the given registry.
func NewCodec(registry *jwa.Registry, opts ...CodecOption) *Codec {
	c := &Codec{
		registry: registry,
		logger:   zap.NewNop(),
		critical: []string{header.Base64Payload},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.resolver == nil {
		c.resolver = keys.NewResolver(keys.WithLogger(c.logger))
	}
	return c
}

type encodeConfig struct {
	typ       string
	extra     Header
	unencoded bool
}

// EncodeOption configures a single Encode call.
type EncodeOption func(*encodeConfig)

// WithType sets the "typ" header parameter, "JWT" by default. An empty
// type omits the parameter.
func WithType(typ string) EncodeOption {
	return func(c *encodeConfig) {
		c.typ = typ
	}
}

// WithHeader adds a header parameter. The "alg" and "kid" parameters are
// always taken from the credentials.
func WithHeader(name header.ParamaterName, value any) EncodeOption {
	return func(c *encodeConfig) {
		c.extra[name] = value
	}
}

// WithUnencodedPayload leaves the payload unencoded, as defined by RFC
// 7797, setting "b64" to false and listing it in "crit".
func WithUnencodedPayload() EncodeOption {
	return func(c *encodeConfig) {
		c.unencoded = true
	}
}

// checkKey reports whether key may be used with alg. Unsecured tokens take
// either no key or a key restricted to "none", so an unrestricted key
// from a collection never accepts them.
func checkKey(key *keys.SecretKey, alg jwa.Algorithm) error {
	if key == nil {
		if alg == jwa.None {
			return nil
		}
		return fmt.Errorf("no key provided for algorithm %q", alg)
	}
	if alg == jwa.None && key.Algorithm != jwa.None {
		return fmt.Errorf("key %q is not restricted to algorithm %q", key.ID, jwa.None)
	}
	if !key.Usage.Compatible(keys.UsageSignature) {
		return fmt.Errorf("key %q is not usable for signatures", key.ID)
	}
	if key.Algorithm != "" && key.Algorithm != alg {
		return fmt.Errorf("key %q is restricted to algorithm %q", key.ID, key.Algorithm)
	}
	return nil
}

func (c *Codec) signatureAlgorithm(code string) (jwa.SignatureAlgorithm, error) {
	alg, ok := c.registry.Signature(code)
	if !ok {
		return nil, jose.NewUnknownAlgorithmError(header.Algorithm, code)
	}
	return alg, nil
}

func (c *Codec) encode(payload []byte, creds SigningCredentials, detached bool, opts []EncodeOption) (string, error) {
	alg, err := c.signatureAlgorithm(creds.Algorithm)
	if err != nil {
		return "", err
	}

	if err := checkKey(creds.Key, creds.Algorithm); err != nil {
		return "", err
	}

	cfg := &encodeConfig{typ: header.TypeJWT, extra: Header{}}
	for _, opt := range opts {
		opt(cfg)
	}

	params := cfg.extra.Clone()
	params[header.Algorithm] = creds.Algorithm
	if cfg.typ != "" {
		params[header.Type] = cfg.typ
	}
	if creds.Key != nil && creds.Key.ID != "" {
		params[header.KeyID] = creds.Key.ID
	}

	if cfg.unencoded {
		if !detached && strings.ContainsRune(string(payload), '.') {
			return "", fmt.Errorf("unencoded payload must not contain a period")
		}

		crit, err := params.Critical()
		if err != nil {
			return "", err
		}
		if !slices.Contains(crit, header.Base64Payload) {
			crit = append(crit, header.Base64Payload)
		}

		params[header.Base64Payload] = false
		params[header.Critical] = crit
	}

	headerSegment, err := params.Base64URLString()
	if err != nil {
		return "", fmt.Errorf("failed to encode header: %w", err)
	}

	size := len(payload)
	if !cfg.unencoded {
		size = base64.EncodedLen(len(payload))
	}

	// The payload segment is encoded straight into the signing input.
	input := secret.Get(len(headerSegment) + 1 + size)
	defer input.Release()
	input.WriteString(headerSegment)
	input.WriteByte('.')
	if cfg.unencoded {
		input.Write(payload)
	} else {
		base64.AppendEncode(input.Grow(size)[:0], payload)
	}

	sig, err := alg.Sign(creds.Key, input.Bytes())
	if err != nil {
		return "", fmt.Errorf("failed to sign: %w", err)
	}

	var payloadSegment string
	if !detached {
		payloadSegment = string(input.Bytes()[len(headerSegment)+1:])
	}

	return headerSegment + "." + payloadSegment + "." + base64.Encode(sig), nil
}

// Encode signs payload and returns the compact serialization.
func (c *Codec) Encode(payload []byte, creds SigningCredentials, opts ...EncodeOption) (string, error) {
	return c.encode(payload, creds, false, opts)
}

// EncodeDetached signs payload and returns the compact serialization with
// an empty payload segment. The payload must be conveyed separately and
// given to VerifyDetached.
//
// https://datatracker.ietf.org/doc/html/rfc7515#appendix-F
func (c *Codec) EncodeDetached(payload []byte, creds SigningCredentials, opts ...EncodeOption) (string, error) {
	return c.encode(payload, creds, true, opts)
}

// prepared is a token whose header and segments passed every check that
// does not depend on the key.
type prepared struct {
	token        *compact.Token
	params       Header
	alg          jwa.SignatureAlgorithm
	code         string
	payload      []byte
	signature    []byte
	signingInput string
}

func (c *Codec) prepare(token *compact.Token, detachedPayload []byte) (*prepared, error) {
	if token.Kind() != compact.Signed {
		return nil, jose.NewFormatError("token is a %s, not a JWS", token.Kind())
	}

	params, err := token.Header()
	if err != nil {
		return nil, err
	}

	code, err := params.Algorithm()
	if err != nil {
		return nil, &jose.FormatError{Inner: err}
	}

	alg, err := c.signatureAlgorithm(code)
	if err != nil {
		return nil, err
	}

	b64, err := params.Base64Payload()
	if err != nil {
		return nil, &jose.FormatError{Inner: err}
	}

	crit, err := params.Critical()
	if err != nil {
		return nil, &jose.FormatError{Inner: err}
	}
	for _, name := range crit {
		if !slices.Contains(c.critical, name) {
			return nil, jose.NewFormatError("critical header parameter %q is not understood", name)
		}
		if _, ok := params[name]; !ok {
			return nil, jose.NewFormatError("critical header parameter %q is missing", name)
		}
	}
	if !b64 && !slices.Contains(crit, header.Base64Payload) {
		return nil, jose.NewFormatError("header parameter %q must be listed in %q", header.Base64Payload, header.Critical)
	}

	p := &prepared{
		token:        token,
		params:       params,
		alg:          alg,
		code:         code,
		signingInput: token.SigningInput(),
	}

	payloadSegment := token.Segment(compact.SignedPayload)
	if detachedPayload != nil {
		if payloadSegment != "" {
			return nil, jose.NewFormatError("detached JWS must have an empty payload segment")
		}
		if b64 {
			payloadSegment = base64.Encode(detachedPayload)
		} else {
			payloadSegment = string(detachedPayload)
		}
		p.signingInput = token.Segment(compact.SignedHeader) + "." + payloadSegment
	}

	if b64 {
		p.payload, err = base64.Decode(payloadSegment)
		if err != nil {
			return nil, jose.NewFormatError("failed to decode payload: %w", err)
		}
	} else {
		p.payload = []byte(payloadSegment)
	}

	p.signature, err = token.DecodeSegment(compact.SignedSignature)
	if err != nil {
		return nil, err
	}

	return p, nil
}

func (c *Codec) verify(p *prepared, key *keys.SecretKey) (*Signature, error) {
	if err := checkKey(key, p.code); err != nil {
		return nil, err
	}

	var bits int
	if key != nil {
		bits = key.KeySize()
	}

	if size := p.alg.SignatureSize(bits); len(p.signature) != size {
		return nil, jose.NewIntegrityError(fmt.Errorf("signature is %d bytes, expected %d for %s", len(p.signature), size, p.code))
	}

	input := secret.Get(len(p.signingInput))
	defer input.Release()
	input.WriteString(p.signingInput)

	if err := p.alg.Verify(key, input.Bytes(), p.signature); err != nil {
		return nil, jose.NewIntegrityError(err)
	}

	return &Signature{
		Header:    p.params,
		Payload:   p.payload,
		Signature: p.signature,
		raw:       p.token.Raw(),
	}, nil
}

// Decode parses and verifies a compact JWS with the given key.
func (c *Codec) Decode(token string, key *keys.SecretKey) (*Signature, error) {
	t, err := compact.Parse(token)
	if err != nil {
		return nil, err
	}
	return c.DecodeToken(t, key)
}

// DecodeToken verifies an already parsed token with the given key.
func (c *Codec) DecodeToken(token *compact.Token, key *keys.SecretKey) (*Signature, error) {
	p, err := c.prepare(token, nil)
	if err != nil {
		return nil, err
	}
	return c.verify(p, key)
}

// Verify reports whether token carries a valid signature by key.
func (c *Codec) Verify(token string, key *keys.SecretKey) error {
	_, err := c.Decode(token, key)
	return err
}

// VerifyDetached verifies a JWS with a detached payload.
func (c *Codec) VerifyDetached(token string, payload []byte, key *keys.SecretKey) (*Signature, error) {
	t, err := compact.Parse(token)
	if err != nil {
		return nil, err
	}

	if payload == nil {
		payload = []byte{}
	}

	p, err := c.prepare(t, payload)
	if err != nil {
		return nil, err
	}
	return c.verify(p, key)
}

// DecodeWithKeys resolves candidate keys for token from collection and
// returns the result of the first key that verifies it, along with that
// key.
//
// Header and format errors are returned directly. Otherwise the error is
// a *jose.KeyNotFoundError when no key is a candidate, or a
// *jose.AggregatedDecodeError listing every failed attempt.
func (c *Codec) DecodeWithKeys(token string, collection keys.Collection) (*Signature, *keys.SecretKey, error) {
	t, err := compact.Parse(token)
	if err != nil {
		return nil, nil, err
	}
	return c.DecodeTokenWithKeys(t, collection)
}

// DecodeTokenWithKeys is DecodeWithKeys for an already parsed token.
func (c *Codec) DecodeTokenWithKeys(token *compact.Token, collection keys.Collection) (*Signature, *keys.SecretKey, error) {
	p, err := c.prepare(token, nil)
	if err != nil {
		return nil, nil, err
	}

	candidates := c.resolver.Resolve(p.params, keys.UsageSignature, collection)
	kid, _ := p.params.KeyID()

	return keys.Attempt(candidates, kid, func(key *keys.SecretKey) (*Signature, error) {
		sig, err := c.verify(p, key)
		if err != nil {
			c.logger.Debug("signature verification attempt failed", zap.Stringer("key", key), zap.Error(err))
		}
		return sig, err
	})
}
