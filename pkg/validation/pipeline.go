package validation

import (
	"context"
	"errors"
	"fmt"

	"github.com/coder/quartz"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/picatz/jose/v2/pkg/compact"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/jwe"
	"github.com/picatz/jose/v2/pkg/jws"
	"github.com/picatz/jose/v2/pkg/keys"
)

// ErrPanic wraps the value of a panic recovered during validation.
var ErrPanic = errors.New("panic during token validation")

const tracerName = "github.com/picatz/jose/v2/pkg/validation"

// Validator checks a decoded token. Returning an error rejects the token
// and stops the chain.
type Validator interface {
	Validate(ctx context.Context, vc *Context) error
}

// ValidatorFunc adapts a function to a Validator.
type ValidatorFunc func(ctx context.Context, vc *Context) error

// Validate calls f.
func (f ValidatorFunc) Validate(ctx context.Context, vc *Context) error {
	return f(ctx, vc)
}

// Pipeline decodes and validates tokens. A Pipeline is safe for
// concurrent use once constructed.
type Pipeline struct {
	registry   *jwa.Registry
	keys       keys.Collection
	validators []Validator
	clock      quartz.Clock
	logger     *zap.Logger
	services   Services
	projector  IdentityProjector
	naming     NamingConventions
	critical   []string
	tracer     trace.Tracer
	metrics    *Metrics

	jws *jws.Codec
	jwe *jwe.Codec
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithValidators appends validators to the chain, in order.
func WithValidators(validators ...Validator) Option {
	return func(p *Pipeline) error {
		for _, v := range validators {
			if v == nil {
				return fmt.Errorf("nil validator")
			}
		}
		p.validators = append(p.validators, validators...)
		return nil
	}
}

// WithClock sets the clock given to validators, quartz.NewReal() by
// default.
func WithClock(clock quartz.Clock) Option {
	return func(p *Pipeline) error {
		if clock == nil {
			return fmt.Errorf("nil clock")
		}
		p.clock = clock
		return nil
	}
}

// WithLogger sets the logger of the pipeline and its codecs.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			return fmt.Errorf("nil logger")
		}
		p.logger = logger
		return nil
	}
}

// WithServices sets the service locator given to validators.
func WithServices(services Services) Option {
	return func(p *Pipeline) error {
		p.services = services
		return nil
	}
}

// WithIdentityProjector sets the function used by Result.Identity.
func WithIdentityProjector(projector IdentityProjector) Option {
	return func(p *Pipeline) error {
		p.projector = projector
		return nil
	}
}

// WithNamingConventions sets the conventions passed to the identity
// projector.
func WithNamingConventions(naming NamingConventions) Option {
	return func(p *Pipeline) error {
		p.naming = naming
		return nil
	}
}

// WithCriticalHeaders sets extension header parameters, beyond "b64",
// that signed tokens may list in "crit".
func WithCriticalHeaders(names ...string) Option {
	return func(p *Pipeline) error {
		p.critical = append(p.critical, names...)
		return nil
	}
}

// WithTracerProvider sets the provider of the tracer used to trace
// Validate calls, the global provider by default.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(p *Pipeline) error {
		if provider == nil {
			return fmt.Errorf("nil tracer provider")
		}
		p.tracer = provider.Tracer(tracerName)
		return nil
	}
}

// WithMetrics records the outcome and duration of every Validate call.
func WithMetrics(metrics *Metrics) Option {
	return func(p *Pipeline) error {
		p.metrics = metrics
		return nil
	}
}

// New returns a Pipeline that decodes tokens with the algorithms of
// registry and the keys of collection.
func New(registry *jwa.Registry, collection keys.Collection, opts ...Option) (*Pipeline, error) {
	if registry == nil {
		return nil, fmt.Errorf("nil algorithm registry")
	}
	if collection == nil {
		return nil, fmt.Errorf("nil key collection")
	}

	p := &Pipeline{
		registry: registry,
		keys:     collection,
		clock:    quartz.NewReal(),
		logger:   zap.NewNop(),
		naming:   DefaultNamingConventions(),
		tracer:   otel.GetTracerProvider().Tracer(tracerName),
	}

	for _, opt := range opts {
		err := opt(p)
		if err != nil {
			return nil, fmt.Errorf("validation option error: %w", err)
		}
	}

	resolver := keys.NewResolver(keys.WithLogger(p.logger))

	p.jws = jws.NewCodec(registry,
		jws.WithLogger(p.logger),
		jws.WithResolver(resolver),
		jws.WithCriticalHeaders(p.critical...),
	)
	p.jwe = jwe.NewCodec(registry,
		jwe.WithLogger(p.logger),
		jwe.WithResolver(resolver),
	)

	return p, nil
}

// decode parses the token, resolves the candidate keys and decodes the
// token with the first one that works.
func (p *Pipeline) decode(raw string) (*Context, error) {
	parsed, err := compact.Parse(raw)
	if err != nil {
		return nil, err
	}

	token := &Token{Compact: parsed}

	var key *keys.SecretKey

	switch parsed.Kind() {
	case compact.Signed:
		token.Signature, key, err = p.jws.DecodeTokenWithKeys(parsed, p.keys)
		if err != nil {
			return nil, err
		}
		token.Header = token.Signature.Header
		token.Payload = token.Signature.Payload
	case compact.Encrypted:
		token.Encryption, key, err = p.jwe.DecodeTokenWithKeys(parsed, p.keys)
		if err != nil {
			return nil, err
		}
		token.Header = token.Encryption.Header
		token.Payload = token.Encryption.Plaintext
	}

	return &Context{
		Key:        key,
		Token:      token,
		Properties: map[string]any{},
		Clock:      p.clock,
		Services:   p.services,
		Logger:     p.logger,
	}, nil
}

// run executes the validators in order. The context is checked before
// each validator; a done context stops the chain. A validator error that
// wraps the context's own error is reported as a cancellation.
func (p *Pipeline) run(ctx context.Context, vc *Context) (canceled bool, err error) {
	for _, v := range p.validators {
		if err := ctx.Err(); err != nil {
			return true, err
		}
		if err := v.Validate(ctx, vc); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return true, err
			}
			return false, err
		}
	}
	return false, nil
}

// Validate decodes and validates a compact token.
//
// The returned Result is never nil. Errors and panics raised while
// parsing, decoding or validating are converted into a failed Result.
func (p *Pipeline) Validate(ctx context.Context, token string) (result *Result) {
	start := p.clock.Now()
	kind := "unknown"

	ctx, span := p.tracer.Start(ctx, "validation.Validate")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			result = failure(fmt.Errorf("%w: %v", ErrPanic, r))
		}

		p.metrics.record(kind, result, p.clock.Since(start))

		if result.Valid() {
			span.SetStatus(codes.Ok, "")
			p.logger.Info("validated token",
				zap.String("kind", kind),
				zap.String("alg", result.Token().Algorithm()),
				zap.Stringer("key", result.Key()),
			)
			return
		}

		span.RecordError(result.Err())
		span.SetStatus(codes.Error, result.Err().Error())
		p.logger.Warn("token validation failed",
			zap.String("kind", kind),
			zap.Bool("canceled", result.Canceled()),
			zap.Error(result.Err()),
		)
	}()

	vc, err := p.decode(token)
	if err != nil {
		return failure(err)
	}

	kind = vc.Token.Kind().String()
	span.SetAttributes(
		attribute.String("jose.kind", kind),
		attribute.String("jose.alg", vc.Token.Algorithm()),
		attribute.String("jose.kid", vc.Key.ID),
	)

	canceled, err := p.run(ctx, vc)
	if err != nil {
		return &Result{err: err, canceled: canceled, vc: vc}
	}

	return &Result{
		vc:        vc,
		projector: p.projector,
		naming:    p.naming,
	}
}
