// Package replay rejects tokens whose "jti" claim was already seen,
// recording identifiers in Redis until the token expires.
//
// https://datatracker.ietf.org/doc/html/rfc7519#section-4.1.7
package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/validation"
)

// ValidatorName is reported in the jose.ValidationError of rejected tokens.
const ValidatorName = "replay"

const defaultPrefix = "jose:jti"

var (
	// ErrReplayed is wrapped when a token identifier was already used.
	ErrReplayed = errors.New("token was already used")

	// ErrStoreUnavailable is wrapped when the store cannot be reached.
	ErrStoreUnavailable = errors.New("replay store unavailable")
)

// Store records token identifiers.
type Store interface {
	// Claim records id for ttl. It returns false if id was already
	// recorded and has not expired.
	Claim(ctx context.Context, id string, ttl time.Duration) (bool, error)
}

// RedisStore is a Store backed by Redis keys with an expiry.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore returns a store using the given client. Keys are prefixed
// with prefix, or "jose:jti" when it is empty.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + ":" + id
}

// Claim sets the identifier key only if it does not exist.
func (s *RedisStore) Claim(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(id), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return ok, nil
}

type config struct {
	maxAge     time.Duration
	skew       time.Duration
	requireJTI bool
}

// Option configures the replay validator.
type Option func(*config)

// WithMaxAge sets how long identifiers of tokens without an "exp" claim
// are remembered. The default is one hour.
func WithMaxAge(d time.Duration) Option {
	return func(c *config) {
		c.maxAge = d
	}
}

// WithClockSkew extends how long identifiers are remembered, matching the
// skew tolerated by the lifetime validator.
func WithClockSkew(d time.Duration) Option {
	return func(c *config) {
		c.skew = d
	}
}

// WithOptionalID accepts tokens without a "jti" claim instead of
// rejecting them.
func WithOptionalID() Option {
	return func(c *config) {
		c.requireJTI = false
	}
}

// Validator returns a validator that rejects tokens whose "jti" claim was
// already claimed in store. It should run after the lifetime validator,
// so expired tokens do not consume identifiers.
func Validator(store Store, opts ...Option) validation.Validator {
	cfg := &config{
		maxAge:     time.Hour,
		requireJTI: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return validation.ValidatorFunc(func(ctx context.Context, vc *validation.Context) error {
		registered, err := vc.Token.Claims()
		if err != nil {
			return &jose.ValidationError{Validator: ValidatorName, Inner: err}
		}

		if registered.ID == "" {
			if cfg.requireJTI {
				return jose.NewValidationError(ValidatorName, "%w: %q", jwt.ErrTokenRequiredClaimMissing, "jti")
			}
			return nil
		}

		ttl := cfg.maxAge
		if registered.ExpiresAt != nil {
			ttl = registered.ExpiresAt.Sub(vc.Clock.Now())
		}
		ttl += cfg.skew
		if ttl <= 0 {
			ttl = time.Second
		}

		fresh, err := store.Claim(ctx, registered.ID, ttl)
		if err != nil {
			return err
		}

		if !fresh {
			return jose.NewValidationError(ValidatorName, "%w: %q", ErrReplayed, registered.ID)
		}

		if vc.Logger != nil {
			vc.Logger.Debug("claimed token identifier", zap.String("jti", registered.ID), zap.Duration("ttl", ttl))
		}

		return nil
	})
}
