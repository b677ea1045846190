package validation

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/exp/slices"

	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/compact"
	"github.com/picatz/jose/v2/pkg/jwa"
)

// Names of the built-in validators, reported in jose.ValidationError.
const (
	IssuerValidator              = "issuer"
	AudienceValidator            = "audience"
	LifetimeValidator            = "lifetime"
	CertificateLifetimeValidator = "certificate-lifetime"
	AlgorithmsValidator          = "algorithms"
	TokenTypeValidator           = "type"
	RequiredClaimsValidator      = "required-claims"
)

func claims(name string, vc *Context) (*jwt.RegisteredClaims, error) {
	registered, err := vc.Token.Claims()
	if err != nil {
		return nil, &jose.ValidationError{Validator: name, Inner: err}
	}
	return registered, nil
}

// Issuer accepts tokens whose "iss" claim is one of issuers.
func Issuer(issuers ...string) Validator {
	return ValidatorFunc(func(_ context.Context, vc *Context) error {
		registered, err := claims(IssuerValidator, vc)
		if err != nil {
			return err
		}

		if registered.Issuer == "" {
			return jose.NewValidationError(IssuerValidator, "%w: %q", jwt.ErrTokenRequiredClaimMissing, "iss")
		}

		if !slices.Contains(issuers, registered.Issuer) {
			return jose.NewValidationError(IssuerValidator, "%w: %q is not allowed", jwt.ErrTokenInvalidIssuer, registered.Issuer)
		}

		return nil
	})
}

// Audience accepts tokens whose "aud" claim contains at least one of
// audiences.
func Audience(audiences ...string) Validator {
	return ValidatorFunc(func(_ context.Context, vc *Context) error {
		registered, err := claims(AudienceValidator, vc)
		if err != nil {
			return err
		}

		if len(registered.Audience) == 0 {
			return jose.NewValidationError(AudienceValidator, "%w: %q", jwt.ErrTokenRequiredClaimMissing, "aud")
		}

		for _, aud := range registered.Audience {
			if slices.Contains(audiences, aud) {
				return nil
			}
		}

		return jose.NewValidationError(AudienceValidator, "%w: %q is not allowed", jwt.ErrTokenInvalidAudience, []string(registered.Audience))
	})
}

// Lifetime checks the "exp", "nbf" and "iat" claims against the context
// clock, tolerating skew in either direction. Absent claims are not
// required; combine with RequireClaims to require them.
func Lifetime(skew time.Duration) Validator {
	return ValidatorFunc(func(_ context.Context, vc *Context) error {
		registered, err := claims(LifetimeValidator, vc)
		if err != nil {
			return err
		}

		v := jwt.NewValidator(
			jwt.WithLeeway(skew),
			jwt.WithTimeFunc(func() time.Time { return vc.Clock.Now() }),
			jwt.WithIssuedAt(),
		)

		if err := v.Validate(registered); err != nil {
			return &jose.ValidationError{Validator: LifetimeValidator, Inner: err}
		}

		return nil
	})
}

// CertificateLifetime checks that the certificate of the key that decoded
// the token is currently valid, tolerating skew in either direction. Keys
// without a certificate pass.
func CertificateLifetime(skew time.Duration) Validator {
	return ValidatorFunc(func(_ context.Context, vc *Context) error {
		if vc.Key == nil || vc.Key.Certificate == nil {
			return nil
		}

		cert := vc.Key.Certificate
		now := vc.Clock.Now()

		if now.Add(skew).Before(cert.NotBefore) {
			return jose.NewValidationError(CertificateLifetimeValidator, "certificate %q is not valid before %v", cert.Subject.CommonName, cert.NotBefore)
		}

		if now.Add(-skew).After(cert.NotAfter) {
			return jose.NewValidationError(CertificateLifetimeValidator, "certificate %q expired at %v", cert.Subject.CommonName, cert.NotAfter)
		}

		return nil
	})
}

// Algorithms accepts tokens whose "alg", and "enc" for encrypted tokens,
// are in allowed.
func Algorithms(allowed jwa.AllowedAlgorithms) Validator {
	return ValidatorFunc(func(_ context.Context, vc *Context) error {
		algs := []jwa.Algorithm{vc.Token.Algorithm()}

		if vc.Token.Kind() == compact.Encrypted {
			enc, err := vc.Token.Header.Encryption()
			if err != nil {
				return &jose.ValidationError{Validator: AlgorithmsValidator, Inner: err}
			}
			algs = append(algs, enc)
		}

		if !allowed.Allowed(algs...) {
			return jose.NewValidationError(AlgorithmsValidator, "algorithms %q are not all in %q", algs, allowed.List())
		}

		return nil
	})
}

// TokenType accepts tokens whose "typ" header is one of types. The
// comparison ignores case and an "application/" prefix.
//
// https://www.rfc-editor.org/rfc/rfc7515.html#section-4.1.9
func TokenType(types ...string) Validator {
	normalize := func(typ string) string {
		typ = strings.ToLower(typ)
		return strings.TrimPrefix(typ, "application/")
	}

	allowed := make([]string, 0, len(types))
	for _, typ := range types {
		allowed = append(allowed, normalize(typ))
	}

	return ValidatorFunc(func(_ context.Context, vc *Context) error {
		typ, err := vc.Token.Header.Type()
		if err != nil {
			return &jose.ValidationError{Validator: TokenTypeValidator, Inner: err}
		}

		if !slices.Contains(allowed, normalize(typ)) {
			return jose.NewValidationError(TokenTypeValidator, "token type %q is not allowed", typ)
		}

		return nil
	})
}

// RequireClaims rejects tokens that lack any of the named claims.
func RequireClaims(names ...string) Validator {
	return ValidatorFunc(func(_ context.Context, vc *Context) error {
		all, err := vc.Token.ClaimsMap()
		if err != nil {
			return &jose.ValidationError{Validator: RequiredClaimsValidator, Inner: err}
		}

		for _, name := range names {
			if _, ok := all[name]; !ok {
				return jose.NewValidationError(RequiredClaimsValidator, "%w: %q", jwt.ErrTokenRequiredClaimMissing, name)
			}
		}

		return nil
	})
}
