package jose_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/jwe"
	"github.com/picatz/jose/v2/pkg/jws"
	"github.com/picatz/jose/v2/pkg/keys"
	"github.com/picatz/jose/v2/pkg/validation"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "format",
			err:  jose.NewFormatError("expected %d segments, got %d", 3, 2),
			want: "malformed token: expected 3 segments, got 2",
		},
		{
			name: "unknown algorithm",
			err:  jose.NewUnknownAlgorithmError("enc", "A1GCM"),
			want: `unknown or unsupported "enc" algorithm "A1GCM"`,
		},
		{
			name: "integrity",
			err:  jose.NewIntegrityError(errors.New("invalid HMAC signature")),
			want: "integrity check failed: invalid HMAC signature",
		},
		{
			name: "encryption",
			err:  jose.NewEncryptionError(errors.New("message authentication failed")),
			want: "encryption failed: message authentication failed",
		},
		{
			name: "key not found with key id",
			err:  &jose.KeyNotFoundError{KeyID: "k1"},
			want: `no candidate key found for key id "k1"`,
		},
		{
			name: "key not found",
			err:  &jose.KeyNotFoundError{},
			want: "no candidate key found",
		},
		{
			name: "aggregated",
			err: &jose.AggregatedDecodeError{Attempts: []jose.DecodeAttempt{
				{Key: "a", Err: errors.New("bad")},
				{Key: "b", Err: errors.New("worse")},
			}},
			want: "failed to decode token with any of 2 candidate key(s); [a]: bad; [b]: worse",
		},
		{
			name: "validation",
			err:  jose.NewValidationError("issuer", "issuer %q is not allowed", "evil"),
			want: `token validation failed (issuer): issuer "evil" is not allowed`,
		},
		{
			name: "anonymous validation",
			err:  &jose.ValidationError{Inner: errors.New("nope")},
			want: "token validation failed: nope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.EqualError(t, tt.err, tt.want)
		})
	}
}

func TestErrorUnwrapping(t *testing.T) {
	aggregated := &jose.AggregatedDecodeError{Attempts: []jose.DecodeAttempt{
		{Key: "a", Err: jose.NewIntegrityError(io.ErrUnexpectedEOF)},
		{Key: "b", Err: jose.NewEncryptionError(jose.ErrNotImplemented)},
	}}

	require.ErrorIs(t, aggregated, io.ErrUnexpectedEOF)
	require.ErrorIs(t, aggregated, jose.ErrNotImplemented)

	var integrityErr *jose.IntegrityError
	require.ErrorAs(t, aggregated, &integrityErr)

	var encryptionErr *jose.EncryptionError
	require.ErrorAs(t, aggregated, &encryptionErr)

	validationErr := jose.NewValidationError("lifetime", "%w: expired", context.DeadlineExceeded)
	require.ErrorIs(t, validationErr, context.DeadlineExceeded)

	wrapped := fmt.Errorf("failed to decode: %w", &jose.FormatError{Inner: io.EOF})
	var formatErr *jose.FormatError
	require.ErrorAs(t, wrapped, &formatErr)
	require.ErrorIs(t, wrapped, io.EOF)
}

func TestTokenFailures(t *testing.T) {
	registry := jwa.MustNewRegistry()

	signingKey, err := keys.New([]byte("0123456789abcdef0123456789abcdef"), keys.WithID("hmac"), keys.WithUsage(keys.UsageSignature))
	require.NoError(t, err)

	encryptionKey, err := keys.New([]byte("fedcba9876543210fedcba9876543210"), keys.WithID("aes"), keys.WithUsage(keys.UsageEncryption))
	require.NoError(t, err)

	signed, err := jws.NewCodec(registry).Encode([]byte(`{"sub":"alice"}`), jws.SigningCredentials{Key: signingKey, Algorithm: jwa.HS256})
	require.NoError(t, err)

	encrypted, err := jwe.NewCodec(registry).Encode([]byte(`{"sub":"alice"}`), jwe.EncryptionCredentials{Key: encryptionKey, Algorithm: jwa.Direct, Encryption: jwa.A256GCM})
	require.NoError(t, err)

	pipeline, err := validation.New(registry, keys.MustNewSet(signingKey, encryptionKey))
	require.NoError(t, err)

	require.True(t, pipeline.Validate(context.Background(), signed).Valid())
	require.True(t, pipeline.Validate(context.Background(), encrypted).Valid())

	tampered := signed[:len(signed)-2] + "AA"
	if tampered == signed {
		tampered = signed[:len(signed)-2] + "BA"
	}

	tests := []struct {
		name  string
		token string
		check func(t *testing.T, err error)
	}{
		{
			name:  "segments",
			token: "a.b",
			check: func(t *testing.T, err error) {
				var target *jose.FormatError
				require.ErrorAs(t, err, &target)
			},
		},
		{
			name:  "disabled algorithm",
			token: "eyJhbGciOiJub25lIn0.e30.",
			check: func(t *testing.T, err error) {
				var target *jose.UnknownAlgorithmError
				require.ErrorAs(t, err, &target)
				require.Equal(t, "none", target.Code)
			},
		},
		{
			name:  "signature",
			token: tampered,
			check: func(t *testing.T, err error) {
				var target *jose.IntegrityError
				require.ErrorAs(t, err, &target)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := pipeline.Validate(context.Background(), tt.token)
			require.False(t, result.Valid())
			tt.check(t, result.Err())
		})
	}
}
