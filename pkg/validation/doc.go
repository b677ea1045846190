// Package validation decodes compact JOSE tokens and checks them against
// an ordered chain of validators.
//
// A Pipeline runs every call through the same states:
//
//	Parse → ResolveKeys → DecodeWithFallback → BuildContext → RunValidators
//
// Signed tokens (JWS) are verified and encrypted tokens (JWE) are
// decrypted with the first candidate key that works. Validators then run
// one after another against a fresh Context, and the first one to return
// an error stops the chain.
//
// Validate never returns an error or panics. Every failure, including a
// panicking validator or a canceled context, is reported through the
// returned *Result.
package validation
