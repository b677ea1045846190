package validation

import (
	"github.com/coder/quartz"
	"go.uber.org/zap"

	"github.com/picatz/jose/v2/pkg/keys"
)

// Services locates collaborators a validator may need, such as a
// revocation list or a replay cache.
type Services interface {
	Lookup(name string) (any, bool)
}

// ServiceMap is a Services backed by a map.
type ServiceMap map[string]any

// Lookup returns the named service.
func (m ServiceMap) Lookup(name string) (any, bool) {
	s, ok := m[name]
	return s, ok
}

// Service returns the named service from the context, if it exists and
// has type T.
func Service[T any](vc *Context, name string) (T, bool) {
	var zero T

	if vc.Services == nil {
		return zero, false
	}

	s, ok := vc.Services.Lookup(name)
	if !ok {
		return zero, false
	}

	typed, ok := s.(T)
	return typed, ok
}

// Context is shared by the validators of a single Validate call. It is
// created fresh for every call.
type Context struct {
	// Key is the key that verified or decrypted the token.
	Key *keys.SecretKey

	// Token is the decoded token.
	Token *Token

	// Properties is a bag validators may use to pass values to later
	// validators and to the identity projector.
	Properties map[string]any

	// Clock is the time source for time based checks.
	Clock quartz.Clock

	// Services locates additional collaborators. It may be nil.
	Services Services

	// Logger is the pipeline's logger.
	Logger *zap.Logger
}
