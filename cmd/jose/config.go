package main

import (
	"bytes"
	"crypto"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/jwk"
	"github.com/picatz/jose/v2/pkg/jwk/thumbprint"
	"github.com/picatz/jose/v2/pkg/keys"
	"github.com/picatz/jose/v2/pkg/keyutil"
)

// Config is the YAML configuration file read by every command.
type Config struct {
	Keys []KeyConfig `yaml:"keys"`

	// DisabledAlgorithms are never registered, so tokens using them fail
	// to decode as if the algorithm were unknown.
	DisabledAlgorithms []string `yaml:"disabled_algorithms"`

	// AllowedAlgorithms restricts the "alg" and "enc" values accepted by
	// verify and decrypt. Empty allows every registered algorithm.
	AllowedAlgorithms []string `yaml:"allowed_algorithms"`

	ClockSkew       time.Duration `yaml:"clock_skew"`
	Issuers         []string      `yaml:"issuers"`
	Audiences       []string      `yaml:"audiences"`
	CriticalHeaders []string      `yaml:"critical_headers"`

	// Replay enables "jti" replay protection in verify when set.
	Replay *ReplayConfig `yaml:"replay"`
}

// ReplayConfig configures the Redis store used for replay protection.
type ReplayConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	MaxAge   time.Duration `yaml:"max_age"`
}

// KeyConfig describes one key. Exactly one of Secret, PEM or JWKS is set.
type KeyConfig struct {
	ID        string `yaml:"id"`
	Use       string `yaml:"use"`
	Algorithm string `yaml:"alg"`

	// Secret is base64url encoded symmetric key material.
	Secret string `yaml:"secret"`

	// PEM is the path of a PEM encoded private or public key.
	PEM string `yaml:"pem"`

	// Certificate is the path of a PEM encoded certificate for the key,
	// used for "x5t" and "x5t#S256" resolution.
	Certificate string `yaml:"certificate"`

	// JWKS is the path of a JWK set; every key in it is loaded.
	JWKS string `yaml:"jwks"`
}

// loadConfig reads the configuration file at the given path.
func loadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config %q: %w", path, err)
	}

	if config.ClockSkew < 0 {
		return nil, fmt.Errorf("clock_skew must not be negative")
	}

	if config.Replay != nil && config.Replay.Addr == "" {
		return nil, fmt.Errorf("replay.addr is required")
	}

	return &config, nil
}

// registry returns the algorithm registry without the disabled algorithms.
func (c *Config) registry() (*jwa.Registry, error) {
	disabled := make([]jwa.Algorithm, 0, len(c.DisabledAlgorithms))
	for _, code := range c.DisabledAlgorithms {
		disabled = append(disabled, jwa.Algorithm(code))
	}
	return jwa.NewRegistry(jwa.WithDisabled(disabled...))
}

// allowed returns the configured allow-list, or every registered
// algorithm when none is configured.
func (c *Config) allowed(registry *jwa.Registry) jwa.AllowedAlgorithms {
	if len(c.AllowedAlgorithms) == 0 {
		var all []jwa.Algorithm
		for _, category := range []jwa.Category{jwa.CategorySignature, jwa.CategoryKeyManagement, jwa.CategoryAuthenticatedEncryption} {
			all = append(all, registry.Codes(category)...)
		}
		return jwa.NewAllowedAlgorithms(all...)
	}

	algs := make([]jwa.Algorithm, 0, len(c.AllowedAlgorithms))
	for _, code := range c.AllowedAlgorithms {
		algs = append(algs, jwa.Algorithm(code))
	}
	return jwa.NewAllowedAlgorithms(algs...)
}

// keySet loads every configured key. Keys without an ID are identified
// by their RFC 7638 thumbprint.
func (c *Config) keySet(logger *zap.Logger) (*keys.Set, error) {
	var secretKeys []*keys.SecretKey

	for i, kc := range c.Keys {
		loaded, err := kc.load()
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}

		for _, key := range loaded {
			logger.Debug("loaded key", zap.Stringer("key", key))
		}
		secretKeys = append(secretKeys, loaded...)
	}

	return keys.NewSet(secretKeys...)
}

func (kc *KeyConfig) load() ([]*keys.SecretKey, error) {
	if kc.JWKS != "" {
		return kc.loadJWKS()
	}

	var material any

	switch {
	case kc.Secret != "" && kc.PEM != "":
		return nil, fmt.Errorf("only one of secret and pem may be set")
	case kc.Secret != "":
		secret, err := base64.Decode(kc.Secret)
		if err != nil {
			return nil, fmt.Errorf("failed to decode secret: %w", err)
		}
		material = secret
	case kc.PEM != "":
		b, err := os.ReadFile(kc.PEM)
		if err != nil {
			return nil, fmt.Errorf("failed to read pem: %w", err)
		}

		material, err = keyutil.ParsePrivateKey(bytes.NewReader(b))
		if err != nil {
			material, err = keyutil.ParsePublicKey(bytes.NewReader(b))
			if err != nil {
				return nil, fmt.Errorf("failed to parse pem %q: %w", kc.PEM, err)
			}
		}
	default:
		return nil, fmt.Errorf("one of secret, pem or jwks must be set")
	}

	opts := []keys.Option{
		keys.WithUsage(keys.Usage(kc.Use)),
		keys.WithAlgorithm(kc.Algorithm),
	}
	if kc.ID != "" {
		opts = append(opts, keys.WithID(kc.ID))
	}

	if kc.Certificate != "" {
		b, err := os.ReadFile(kc.Certificate)
		if err != nil {
			return nil, fmt.Errorf("failed to read certificate: %w", err)
		}

		cert, err := keyutil.ParseCertificate(bytes.NewReader(b))
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate %q: %w", kc.Certificate, err)
		}
		opts = append(opts, keys.WithCertificate(cert))
	}

	key, err := keys.New(material, opts...)
	if err != nil {
		return nil, err
	}

	if kc.ID == "" {
		key.ID, err = thumbprint.SecretKeyString(key)
		if err != nil {
			return nil, fmt.Errorf("failed to compute key thumbprint: %w", err)
		}
	}

	return []*keys.SecretKey{key}, nil
}

func (kc *KeyConfig) loadJWKS() ([]*keys.SecretKey, error) {
	f, err := os.Open(kc.JWKS)
	if err != nil {
		return nil, fmt.Errorf("failed to open jwks: %w", err)
	}
	defer f.Close()

	set, err := jwk.ParseSet(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jwks %q: %w", kc.JWKS, err)
	}

	loaded := make([]*keys.SecretKey, 0, len(set.Keys))
	for i, value := range set.Keys {
		key, err := jwk.SecretKey(value)
		if err != nil {
			return nil, fmt.Errorf("failed to convert key %d: %w", i, err)
		}

		if kid, _ := value[jwk.KeyID].(string); kid == "" {
			key.ID, err = thumbprint.GenerateString(value, crypto.SHA256)
			if err != nil {
				return nil, fmt.Errorf("failed to compute key thumbprint: %w", err)
			}
		}

		loaded = append(loaded, key)
	}

	return loaded, nil
}
