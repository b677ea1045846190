package jwe

import (
	"crypto/rand"
	"fmt"

	"go.uber.org/zap"

	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/compact"
	"github.com/picatz/jose/v2/pkg/header"
	"github.com/picatz/jose/v2/pkg/internal/secret"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/keys"
)

// Header is the JWE protected header.
type Header = header.Parameters

// Encryption is a decoded and decrypted JWE.
type Encryption struct {
	// Header is the protected header.
	Header Header

	// Plaintext is the decrypted content.
	Plaintext []byte

	raw string
}

// String returns the compact serialization the content was decrypted from.
func (e *Encryption) String() string {
	return e.raw
}

// EncryptionCredentials are the key and algorithms used to encrypt a JWE.
type EncryptionCredentials struct {
	Key *keys.SecretKey

	// Algorithm is the key management algorithm, the "alg" header.
	Algorithm jwa.Algorithm

	// Encryption is the content encryption algorithm, the "enc" header.
	Encryption jwa.Algorithm

	// Compression is the optional compression algorithm, the "zip"
	// header. Compression is not supported yet.
	Compression jwa.Algorithm
}

// Codec encodes and decodes JWE compact serializations using the
// algorithms of a registry.
//
// A Codec is safe for concurrent use.
type Codec struct {
	registry *jwa.Registry
	resolver *keys.Resolver
	logger   *zap.Logger
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

// NewCodec returns a Codec backed by the given registry.
func NewCodec(registry *jwa.Registry, opts ...CodecOption) *Codec {
	c := &Codec{
		registry: registry,
		logger:   zap.NewNop(),
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
	typ   string
	cty   string
	extra Header
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

// WithContentType sets the "cty" header parameter, such as "JWT" for a
// nested token.
func WithContentType(cty string) EncodeOption {
	return func(c *encodeConfig) {
		c.cty = cty
	}
}

// WithHeader adds a header parameter. The "alg", "enc" and "kid"
// parameters are always taken from the credentials.
func WithHeader(name header.ParamaterName, value any) EncodeOption {
	return func(c *encodeConfig) {
		c.extra[name] = value
	}
}

func checkKey(key *keys.SecretKey, alg jwa.Algorithm) error {
	if key == nil {
		return fmt.Errorf("no key provided for algorithm %q", alg)
	}
	if !key.Usage.Compatible(keys.UsageEncryption) {
		return fmt.Errorf("key %q is not usable for encryption", key.ID)
	}
	if key.Algorithm != "" && key.Algorithm != alg {
		return fmt.Errorf("key %q is restricted to algorithm %q", key.ID, key.Algorithm)
	}
	return nil
}

func (c *Codec) algorithms(alg, enc string) (jwa.KeyManagementAlgorithm, jwa.AuthenticatedEncryptionAlgorithm, error) {
	km, ok := c.registry.KeyManagement(alg)
	if !ok {
		return nil, nil, jose.NewUnknownAlgorithmError(header.Algorithm, alg)
	}
	ae, ok := c.registry.AuthenticatedEncryption(enc)
	if !ok {
		return nil, nil, jose.NewUnknownAlgorithmError(header.Encryption, enc)
	}
	return km, ae, nil
}

// Encode encrypts plaintext and returns the compact serialization.
func (c *Codec) Encode(plaintext []byte, creds EncryptionCredentials, opts ...EncodeOption) (string, error) {
	if creds.Compression != "" {
		return "", fmt.Errorf("compression %q: %w", creds.Compression, jose.ErrNotImplemented)
	}

	km, ae, err := c.algorithms(creds.Algorithm, creds.Encryption)
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
	delete(params, header.Zip)
	params[header.Algorithm] = creds.Algorithm
	params[header.Encryption] = creds.Encryption
	if cfg.typ != "" {
		params[header.Type] = cfg.typ
	}
	if cfg.cty != "" {
		params[header.ContentType] = cfg.cty
	}
	if creds.Key.ID != "" {
		params[header.KeyID] = creds.Key.ID
	}

	cek, encryptedKey, err := km.WrapKey(creds.Key, ae.KeySize(), params)
	if err != nil {
		return "", fmt.Errorf("failed to determine content encryption key: %w", err)
	}
	defer secret.Zero(cek)

	if len(cek) != ae.KeySize() {
		return "", jose.NewEncryptionError(fmt.Errorf("content encryption key is %d bytes, %s requires %d", len(cek), creds.Encryption, ae.KeySize()))
	}

	headerSegment, err := params.Base64URLString()
	if err != nil {
		return "", fmt.Errorf("failed to encode header: %w", err)
	}

	iv := make([]byte, ae.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate initialization vector: %w", err)
	}

	// The additional authenticated data is the ASCII encoded header segment.
	ciphertext, tag, err := ae.Encrypt(cek, iv, plaintext, []byte(headerSegment))
	if err != nil {
		return "", jose.NewEncryptionError(err)
	}

	return headerSegment + "." +
		base64.Encode(encryptedKey) + "." +
		base64.Encode(iv) + "." +
		base64.Encode(ciphertext) + "." +
		base64.Encode(tag), nil
}

// prepared is a token whose header and segments passed every check that
// does not depend on the key.
type prepared struct {
	token        *compact.Token
	params       Header
	code         string
	km           jwa.KeyManagementAlgorithm
	ae           jwa.AuthenticatedEncryptionAlgorithm
	encryptedKey []byte
	iv           []byte
	ciphertext   []byte
	tag          []byte
}

func (c *Codec) prepare(token *compact.Token) (*prepared, error) {
	if token.Kind() != compact.Encrypted {
		return nil, jose.NewFormatError("token is a %s, not a JWE", token.Kind())
	}

	params, err := token.Header()
	if err != nil {
		return nil, err
	}

	alg, err := params.Algorithm()
	if err != nil {
		return nil, &jose.FormatError{Inner: err}
	}

	enc, err := params.Encryption()
	if err != nil {
		return nil, &jose.FormatError{Inner: err}
	}

	km, ae, err := c.algorithms(alg, enc)
	if err != nil {
		return nil, err
	}

	if zip, ok, err := params.Compression(); err != nil {
		return nil, &jose.FormatError{Inner: err}
	} else if ok {
		return nil, fmt.Errorf("compression %q: %w", zip, jose.ErrNotImplemented)
	}

	if _, err := params.Critical(); err != nil {
		return nil, &jose.FormatError{Inner: err}
	} else if _, ok := params[header.Critical]; ok {
		return nil, jose.NewFormatError("critical header parameters are not supported for JWE")
	}

	p := &prepared{
		token:  token,
		params: params,
		code:   alg,
		km:     km,
		ae:     ae,
	}

	segments := []struct {
		index int
		dst   *[]byte
	}{
		{compact.EncryptedKey, &p.encryptedKey},
		{compact.EncryptedIV, &p.iv},
		{compact.EncryptedCiphertext, &p.ciphertext},
		{compact.EncryptedTag, &p.tag},
	}
	for _, segment := range segments {
		*segment.dst, err = token.DecodeSegment(segment.index)
		if err != nil {
			return nil, err
		}
	}

	if len(p.iv) != ae.NonceSize() {
		return nil, jose.NewFormatError("initialization vector is %d bytes, %s requires %d", len(p.iv), enc, ae.NonceSize())
	}

	return p, nil
}

func (c *Codec) decrypt(p *prepared, key *keys.SecretKey) (*Encryption, error) {
	if err := checkKey(key, p.code); err != nil {
		return nil, err
	}

	cek, err := p.km.UnwrapKey(key, p.encryptedKey, p.ae.KeySize(), p.params)
	if err != nil {
		return nil, jose.NewEncryptionError(err)
	}
	defer secret.Zero(cek)

	if len(cek) != p.ae.KeySize() {
		return nil, jose.NewEncryptionError(fmt.Errorf("content encryption key is %d bytes, %s requires %d", len(cek), p.ae.Code(), p.ae.KeySize()))
	}

	aad := secret.Get(len(p.token.Segment(compact.EncryptedHeader)))
	defer aad.Release()
	aad.WriteString(p.token.Segment(compact.EncryptedHeader))

	plaintext, err := p.ae.Decrypt(cek, p.iv, p.ciphertext, p.tag, aad.Bytes())
	if err != nil {
		return nil, jose.NewEncryptionError(err)
	}

	return &Encryption{
		Header:    p.params,
		Plaintext: plaintext,
		raw:       p.token.Raw(),
	}, nil
}

// Decode parses and decrypts a compact JWE with the given key.
func (c *Codec) Decode(token string, key *keys.SecretKey) (*Encryption, error) {
	t, err := compact.Parse(token)
	if err != nil {
		return nil, err
	}
	return c.DecodeToken(t, key)
}

// DecodeToken decrypts an already parsed token with the given key.
func (c *Codec) DecodeToken(token *compact.Token, key *keys.SecretKey) (*Encryption, error) {
	p, err := c.prepare(token)
	if err != nil {
		return nil, err
	}
	return c.decrypt(p, key)
}

// DecodeWithKeys resolves candidate keys for token from collection and
// returns the result of the first key that decrypts it, along with that
// key.
//
// Header and format errors are returned directly. Otherwise the error is
// a *jose.KeyNotFoundError when no key is a candidate, or a
// *jose.AggregatedDecodeError listing every failed attempt.
func (c *Codec) DecodeWithKeys(token string, collection keys.Collection) (*Encryption, *keys.SecretKey, error) {
	t, err := compact.Parse(token)
	if err != nil {
		return nil, nil, err
	}
	return c.DecodeTokenWithKeys(t, collection)
}

// DecodeTokenWithKeys is DecodeWithKeys for an already parsed token.
func (c *Codec) DecodeTokenWithKeys(token *compact.Token, collection keys.Collection) (*Encryption, *keys.SecretKey, error) {
	p, err := c.prepare(token)
	if err != nil {
		return nil, nil, err
	}

	candidates := c.resolver.Resolve(p.params, keys.UsageEncryption, collection)
	kid, _ := p.params.KeyID()

	return keys.Attempt(candidates, kid, func(key *keys.SecretKey) (*Encryption, error) {
		enc, err := c.decrypt(p, key)
		if err != nil {
			c.logger.Debug("decryption attempt failed", zap.Stringer("key", key), zap.Error(err))
		}
		return enc, err
	})
}
