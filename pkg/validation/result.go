package validation

import (
	"errors"
	"sync"

	"github.com/picatz/jose/v2/pkg/keys"
)

// ErrNoIdentityProjector is returned by Result.Identity when the pipeline
// has no IdentityProjector.
var ErrNoIdentityProjector = errors.New("no identity projector configured")

// NamingConventions tells an IdentityProjector which claims carry the
// name and the roles of an identity.
type NamingConventions struct {
	// NameClaim is the claim holding the name, "sub" by default.
	NameClaim string

	// RoleClaim is the claim holding the roles, "roles" by default.
	RoleClaim string

	// AuthenticationType describes how the identity was authenticated,
	// "JWT" by default.
	AuthenticationType string
}

// DefaultNamingConventions returns the conventions used when none are
// configured.
func DefaultNamingConventions() NamingConventions {
	return NamingConventions{
		NameClaim:          "sub",
		RoleClaim:          "roles",
		AuthenticationType: "JWT",
	}
}

// IdentityProjector maps a validated payload into an application level
// identity. It is only called when Result.Identity is.
type IdentityProjector func(payload []byte, properties map[string]any, naming NamingConventions) (any, error)

// Result is the outcome of a Validate call. A Result is either valid, with
// a token, or failed, with an error.
type Result struct {
	vc       *Context
	err      error
	canceled bool

	projector IdentityProjector
	naming    NamingConventions

	identityOnce sync.Once
	identity     any
	identityErr  error
}

func failure(err error) *Result {
	return &Result{err: err}
}

// Valid reports whether the token was decoded and accepted by every
// validator.
func (r *Result) Valid() bool {
	return r.err == nil
}

// Err returns the reason the validation failed, or nil.
//
// The error is one of the jose error types, a validator's error, or the
// context's error when the validation was canceled.
func (r *Result) Err() error {
	return r.err
}

// Canceled reports whether the validation was stopped because its
// context was done.
func (r *Result) Canceled() bool {
	return r.canceled
}

// Token returns the decoded token, or nil if decoding failed.
func (r *Result) Token() *Token {
	if r.vc == nil {
		return nil
	}
	return r.vc.Token
}

// Key returns the key that verified or decrypted the token, or nil if
// decoding failed.
func (r *Result) Key() *keys.SecretKey {
	if r.vc == nil {
		return nil
	}
	return r.vc.Key
}

// Properties returns the property bag populated by the validators.
func (r *Result) Properties() map[string]any {
	if r.vc == nil {
		return nil
	}
	return r.vc.Properties
}

// Identity projects the validated payload into an identity using the
// pipeline's IdentityProjector. The projector runs at most once; later
// calls return the same values.
func (r *Result) Identity() (any, error) {
	if r.err != nil {
		return nil, r.err
	}

	r.identityOnce.Do(func() {
		if r.projector == nil {
			r.identityErr = ErrNoIdentityProjector
			return
		}
		r.identity, r.identityErr = r.projector(r.vc.Token.Payload, r.vc.Properties, r.naming)
	})

	return r.identity, r.identityErr
}
