package jose

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotImplemented is returned for capabilities that are recognized but
// intentionally unfinished, such as JWE compression ("zip") and the JWE JSON
// serialization.
var ErrNotImplemented = errors.New("jose: not implemented")

// FormatError reports a malformed compact serialization, such as a wrong
// segment count, invalid base64url, or a header that is not a JSON object.
type FormatError struct {
	Inner error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed token: %v", e.Inner)
}

func (e *FormatError) Unwrap() error {
	return e.Inner
}

// NewFormatError returns a FormatError formatted with the given arguments.
func NewFormatError(format string, args ...any) *FormatError {
	return &FormatError{Inner: fmt.Errorf(format, args...)}
}

// UnknownAlgorithmError reports an algorithm code that is absent from the
// registry. Disabled algorithms are reported the same way.
type UnknownAlgorithmError struct {
	// Parameter is the header parameter that named the algorithm,
	// such as "alg", "enc", or "zip".
	Parameter string

	// Code is the requested algorithm code.
	Code string
}

func (e *UnknownAlgorithmError) Error() string {
	return fmt.Sprintf("unknown or unsupported %q algorithm %q", e.Parameter, e.Code)
}

// NewUnknownAlgorithmError returns an UnknownAlgorithmError.
func NewUnknownAlgorithmError(param, code string) *UnknownAlgorithmError {
	return &UnknownAlgorithmError{Parameter: param, Code: code}
}

// IntegrityError reports a signature that failed verification or did not
// have the size expected for the algorithm and key.
type IntegrityError struct {
	Inner error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed: %v", e.Inner)
}

func (e *IntegrityError) Unwrap() error {
	return e.Inner
}

// NewIntegrityError wraps the given error in an IntegrityError.
func NewIntegrityError(inner error) *IntegrityError {
	return &IntegrityError{Inner: inner}
}

// EncryptionError reports a key unwrap or authenticated decryption failure.
type EncryptionError struct {
	Inner error
}

func (e *EncryptionError) Error() string {
	return fmt.Sprintf("encryption failed: %v", e.Inner)
}

func (e *EncryptionError) Unwrap() error {
	return e.Inner
}

// NewEncryptionError wraps the given error in an EncryptionError.
func NewEncryptionError(inner error) *EncryptionError {
	return &EncryptionError{Inner: inner}
}

// KeyNotFoundError reports that no candidate key was available.
type KeyNotFoundError struct {
	// KeyID is the "kid" header value, if the token had one.
	KeyID string
}

func (e *KeyNotFoundError) Error() string {
	if e.KeyID != "" {
		return fmt.Sprintf("no candidate key found for key id %q", e.KeyID)
	}
	return "no candidate key found"
}

// DecodeAttempt records one failed attempt to decode a token with a
// candidate key.
type DecodeAttempt struct {
	// Key is a description of the key, never the key material.
	Key string

	// Err is the error the attempt failed with.
	Err error
}

// AggregatedDecodeError reports that every attempted candidate key failed
// to decode a token. The message lists every attempt so that key rotation
// mismatches can be diagnosed from logs.
type AggregatedDecodeError struct {
	Attempts []DecodeAttempt
}

func (e *AggregatedDecodeError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "failed to decode token with any of %d candidate key(s)", len(e.Attempts))
	for _, attempt := range e.Attempts {
		fmt.Fprintf(&b, "; [%s]: %v", attempt.Key, attempt.Err)
	}

	return b.String()
}

// Unwrap returns the error of every attempt, so that errors.Is and
// errors.As can match any of them.
func (e *AggregatedDecodeError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		errs = append(errs, attempt.Err)
	}
	return errs
}

// ValidationError reports that a validator rejected a token on business
// grounds, for example because it expired or has the wrong issuer.
type ValidationError struct {
	// Validator is the name of the validator that rejected the token.
	Validator string

	Inner error
}

func (e *ValidationError) Error() string {
	if e.Validator == "" {
		return fmt.Sprintf("token validation failed: %v", e.Inner)
	}
	return fmt.Sprintf("token validation failed (%s): %v", e.Validator, e.Inner)
}

func (e *ValidationError) Unwrap() error {
	return e.Inner
}

// NewValidationError returns a ValidationError for the named validator.
func NewValidationError(validator string, format string, args ...any) *ValidationError {
	return &ValidationError{Validator: validator, Inner: fmt.Errorf(format, args...)}
}
