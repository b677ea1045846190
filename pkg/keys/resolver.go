package keys

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"

	"go.uber.org/zap"

	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/header"
)

// Resolver selects candidate keys for a token.
//
// A Resolver holds no state besides its logger and is safe for
// concurrent use.
type Resolver struct {
	logger *zap.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets the logger used to report which rule matched.
func WithLogger(logger *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver returns a Resolver.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the candidate keys for a token with the given header,
// expecting keys usable for the given protection usage. The result is
// never nil, but may be empty.
func (r *Resolver) Resolve(params header.Parameters, usage Usage, collection Collection) []*SecretKey {
	candidates := []*SecretKey{}
	if collection == nil {
		return candidates
	}

	if kid, ok := params.KeyID(); ok {
		candidates = append(candidates, collection.Lookup(kid)...)
		if len(candidates) > 0 {
			r.logger.Debug("resolved keys by key id", zap.String("kid", kid), zap.Int("candidates", len(candidates)))
			return candidates
		}
	}

	x5t, x5tS256, err := params.Thumbprints()
	if err != nil {
		r.logger.Debug("ignoring malformed certificate thumbprint", zap.Error(err))
	} else if x5t != nil || x5tS256 != nil {
		for _, key := range collection.Keys() {
			if matchThumbprint(key, x5t, x5tS256) {
				candidates = append(candidates, key)
			}
		}
		if len(candidates) > 0 {
			r.logger.Debug("resolved keys by certificate thumbprint", zap.Int("candidates", len(candidates)))
			return candidates
		}
	}

	alg, _, _ := params.String(header.Algorithm)
	for _, key := range collection.Keys() {
		if !key.Usage.Compatible(usage) {
			continue
		}
		if key.Algorithm != "" && key.Algorithm != alg {
			continue
		}
		candidates = append(candidates, key)
	}

	r.logger.Debug("resolved keys by usage and algorithm",
		zap.String("alg", alg),
		zap.String("use", string(usage)),
		zap.Int("candidates", len(candidates)),
	)

	return candidates
}

func matchThumbprint(key *SecretKey, x5t, x5tS256 []byte) bool {
	if key.Certificate == nil {
		return false
	}

	if x5t != nil {
		sum := sha1.Sum(key.Certificate.Raw)
		if subtle.ConstantTimeCompare(sum[:], x5t) == 1 {
			return true
		}
	}

	if x5tS256 != nil {
		sum := sha256.Sum256(key.Certificate.Raw)
		if subtle.ConstantTimeCompare(sum[:], x5tS256) == 1 {
			return true
		}
	}

	return false
}

// Attempt calls fn with each candidate key in order until one succeeds,
// returning its result and the key that produced it.
//
// If there are no candidates, Attempt returns a *jose.KeyNotFoundError
// carrying kid. If every candidate fails, it returns a
// *jose.AggregatedDecodeError with one entry per attempted key. Each key is
// tried at most once.
func Attempt[T any](candidates []*SecretKey, kid string, fn func(*SecretKey) (T, error)) (T, *SecretKey, error) {
	var zero T

	if len(candidates) == 0 {
		return zero, nil, &jose.KeyNotFoundError{KeyID: kid}
	}

	attempts := make([]jose.DecodeAttempt, 0, len(candidates))
	for _, key := range candidates {
		result, err := fn(key)
		if err == nil {
			return result, key, nil
		}
		attempts = append(attempts, jose.DecodeAttempt{Key: key.String(), Err: err})
	}

	return zero, nil, &jose.AggregatedDecodeError{Attempts: attempts}
}
