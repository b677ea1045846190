package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/picatz/jose/v2/pkg/compact"
	"github.com/picatz/jose/v2/pkg/header"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/jwe"
	"github.com/picatz/jose/v2/pkg/jws"
	"github.com/picatz/jose/v2/pkg/keys"
	"github.com/picatz/jose/v2/pkg/replay"
	"github.com/picatz/jose/v2/pkg/validation"
)

// commonFlags are shared by the commands that need keys.
type commonFlags struct {
	config  string
	in      string
	verbose bool
}

func newFlagSet(env *environment, name string, common *commonFlags, withConfig bool) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(env.stderr)

	if withConfig {
		fs.StringVarP(&common.config, "config", "c", "jose.yaml", "path to the YAML configuration file")
	}
	fs.StringVarP(&common.in, "in", "i", "-", "input file, - for stdin")
	fs.BoolVarP(&common.verbose, "verbose", "v", false, "log debug information to stderr")

	return fs
}

// setup parses the flags, configures logging, and loads the configuration
// when the command uses one.
func setup(env *environment, fs *pflag.FlagSet, common *commonFlags, args []string) (*Config, error) {
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%w: unexpected arguments %q", errUsage, fs.Args())
	}

	if common.verbose {
		env.logger = zap.New(zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.AddSync(env.stderr),
			zap.DebugLevel,
		))
	}

	if fs.Lookup("config") == nil {
		return nil, nil
	}

	return loadConfig(common.config)
}

// readInput reads the whole input, trimming surrounding whitespace when
// the input is a token.
func readInput(env *environment, path string, token bool) ([]byte, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(env.stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	if token {
		return []byte(strings.TrimSpace(string(b))), nil
	}
	return b, nil
}

// selectKey returns the key with the given ID, or the only configured key
// when no ID is given.
func selectKey(set *keys.Set, id string) (*keys.SecretKey, error) {
	if id == "" {
		if set.Len() != 1 {
			return nil, fmt.Errorf("%w: --key is required when %d keys are configured", errUsage, set.Len())
		}
		return set.Keys()[0], nil
	}

	found := set.Lookup(id)
	if len(found) == 0 {
		return nil, fmt.Errorf("key %q is not configured", id)
	}
	return found[0], nil
}

func runSign(ctx context.Context, env *environment, args []string) error {
	var (
		common    commonFlags
		alg       string
		keyID     string
		typ       string
		unencoded bool
		detached  bool
	)

	fs := newFlagSet(env, "sign", &common, true)
	fs.StringVarP(&alg, "alg", "a", string(jwa.HS256), "signature algorithm")
	fs.StringVarP(&keyID, "key", "k", "", "identifier of the signing key")
	fs.StringVarP(&typ, "typ", "t", "JWT", "\"typ\" header parameter, empty to omit")
	fs.BoolVar(&unencoded, "unencoded", false, "leave the payload unencoded (RFC 7797)")
	fs.BoolVar(&detached, "detached", false, "omit the payload from the token")

	config, err := setup(env, fs, &common, args)
	if err != nil {
		return err
	}

	registry, err := config.registry()
	if err != nil {
		return err
	}

	set, err := config.keySet(env.logger)
	if err != nil {
		return err
	}
	defer set.Dispose()

	key, err := selectKey(set, keyID)
	if err != nil {
		return err
	}

	payload, err := readInput(env, common.in, false)
	if err != nil {
		return err
	}

	opts := []jws.EncodeOption{jws.WithType(typ)}
	if unencoded {
		opts = append(opts, jws.WithUnencodedPayload())
	}

	codec := jws.NewCodec(registry, jws.WithLogger(env.logger), jws.WithCriticalHeaders(config.CriticalHeaders...))
	creds := jws.SigningCredentials{Key: key, Algorithm: jwa.Algorithm(alg)}

	var token string
	if detached {
		token, err = codec.EncodeDetached(payload, creds, opts...)
	} else {
		token, err = codec.Encode(payload, creds, opts...)
	}
	if err != nil {
		return fmt.Errorf("failed to sign: %w", err)
	}

	_, err = fmt.Fprintln(env.stdout, token)
	return err
}

func runEncrypt(ctx context.Context, env *environment, args []string) error {
	var (
		common commonFlags
		alg    string
		enc    string
		keyID  string
		typ    string
		cty    string
	)

	fs := newFlagSet(env, "encrypt", &common, true)
	fs.StringVarP(&alg, "alg", "a", string(jwa.Direct), "key management algorithm")
	fs.StringVarP(&enc, "enc", "e", string(jwa.A256GCM), "content encryption algorithm")
	fs.StringVarP(&keyID, "key", "k", "", "identifier of the encryption key")
	fs.StringVarP(&typ, "typ", "t", "JWT", "\"typ\" header parameter, empty to omit")
	fs.StringVar(&cty, "cty", "", "\"cty\" header parameter")

	config, err := setup(env, fs, &common, args)
	if err != nil {
		return err
	}

	registry, err := config.registry()
	if err != nil {
		return err
	}

	set, err := config.keySet(env.logger)
	if err != nil {
		return err
	}
	defer set.Dispose()

	key, err := selectKey(set, keyID)
	if err != nil {
		return err
	}

	plaintext, err := readInput(env, common.in, false)
	if err != nil {
		return err
	}

	opts := []jwe.EncodeOption{jwe.WithType(typ)}
	if cty != "" {
		opts = append(opts, jwe.WithContentType(cty))
	}

	token, err := jwe.NewCodec(registry, jwe.WithLogger(env.logger)).Encode(plaintext, jwe.EncryptionCredentials{
		Key:        key,
		Algorithm:  jwa.Algorithm(alg),
		Encryption: jwa.Algorithm(enc),
	}, opts...)
	if err != nil {
		return fmt.Errorf("failed to encrypt: %w", err)
	}

	_, err = fmt.Fprintln(env.stdout, token)
	return err
}

// validate runs the token through a pipeline built from the configuration
// and the given validators, and writes the payload on success.
func validate(ctx context.Context, env *environment, common *commonFlags, config *Config, validators func(*Config, *jwa.Registry) []validation.Validator) error {
	registry, err := config.registry()
	if err != nil {
		return err
	}

	set, err := config.keySet(env.logger)
	if err != nil {
		return err
	}
	defer set.Dispose()

	token, err := readInput(env, common.in, true)
	if err != nil {
		return err
	}

	pipeline, err := validation.New(registry, set,
		validation.WithLogger(env.logger),
		validation.WithCriticalHeaders(config.CriticalHeaders...),
		validation.WithValidators(validators(config, registry)...),
	)
	if err != nil {
		return err
	}

	result := pipeline.Validate(ctx, string(token))
	if !result.Valid() {
		return result.Err()
	}

	env.logger.Debug("token is valid", zap.Stringer("key", result.Key()))

	_, err = env.stdout.Write(result.Token().Payload)
	return err
}

func runVerify(ctx context.Context, env *environment, args []string) error {
	var common commonFlags

	fs := newFlagSet(env, "verify", &common, true)

	config, err := setup(env, fs, &common, args)
	if err != nil {
		return err
	}

	var replayValidator validation.Validator
	if config.Replay != nil {
		client := redis.NewClient(&redis.Options{
			Addr:     config.Replay.Addr,
			Password: config.Replay.Password,
			DB:       config.Replay.DB,
		})
		defer client.Close()

		opts := []replay.Option{replay.WithClockSkew(config.ClockSkew)}
		if config.Replay.MaxAge > 0 {
			opts = append(opts, replay.WithMaxAge(config.Replay.MaxAge))
		}
		replayValidator = replay.Validator(replay.NewRedisStore(client, config.Replay.Prefix), opts...)
	}

	return validate(ctx, env, &common, config, func(config *Config, registry *jwa.Registry) []validation.Validator {
		validators := []validation.Validator{
			validation.Algorithms(config.allowed(registry)),
			validation.Lifetime(config.ClockSkew),
		}
		if len(config.Issuers) > 0 {
			validators = append(validators, validation.Issuer(config.Issuers...))
		}
		if len(config.Audiences) > 0 {
			validators = append(validators, validation.Audience(config.Audiences...))
		}
		if replayValidator != nil {
			validators = append(validators, replayValidator)
		}
		return validators
	})
}

func runDecrypt(ctx context.Context, env *environment, args []string) error {
	var common commonFlags

	fs := newFlagSet(env, "decrypt", &common, true)

	config, err := setup(env, fs, &common, args)
	if err != nil {
		return err
	}

	return validate(ctx, env, &common, config, func(config *Config, registry *jwa.Registry) []validation.Validator {
		return []validation.Validator{
			validation.ValidatorFunc(func(_ context.Context, vc *validation.Context) error {
				if vc.Token.Kind() != compact.Encrypted {
					return fmt.Errorf("token is a %s, not a JWE", vc.Token.Kind())
				}
				return nil
			}),
			validation.Algorithms(config.allowed(registry)),
		}
	})
}

// inspection is the output of the inspect command.
type inspection struct {
	Kind    string            `json:"kind"`
	Header  header.Parameters `json:"header"`
	Payload json.RawMessage   `json:"payload,omitempty"`
	Text    string            `json:"payload_text,omitempty"`
}

func runInspect(ctx context.Context, env *environment, args []string) error {
	var common commonFlags

	fs := newFlagSet(env, "inspect", &common, false)

	if _, err := setup(env, fs, &common, args); err != nil {
		return err
	}

	raw, err := readInput(env, common.in, true)
	if err != nil {
		return err
	}

	token, err := compact.Parse(string(raw))
	if err != nil {
		return err
	}

	params, err := token.Header()
	if err != nil {
		return err
	}

	out := inspection{
		Kind:   token.Kind().String(),
		Header: params,
	}

	if token.Kind() == compact.Signed {
		payload := []byte(token.Segment(compact.SignedPayload))
		if b64, err := params.Base64Payload(); err == nil && b64 {
			payload, err = token.DecodeSegment(compact.SignedPayload)
			if err != nil {
				return err
			}
		}

		if json.Valid(payload) {
			out.Payload = payload
		} else {
			out.Text = string(payload)
		}
	}

	enc := json.NewEncoder(env.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
