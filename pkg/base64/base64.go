package base64

import (
	"encoding/base64"
	"fmt"
	"strings"
)

var encoding = base64.RawURLEncoding.Strict()

// Decode returns the base64url decoded bytes from the given input.
// This function implements base64url decoding as defined in RFC 4648 Section 5,
// which is used in JWS and JWE compact serializations (RFC 7515, RFC 7516).
//
// Padding characters are rejected, as are the standard base64 alphabet
// characters "+" and "/". An empty input decodes to an empty slice, since
// empty segments are legal (the "none" signature, a "dir" encrypted key).
func Decode(input string) ([]byte, error) {
	if len(input) == 0 {
		return []byte{}, nil
	}

	if strings.ContainsRune(input, '=') {
		return nil, fmt.Errorf("base64: padding is not allowed in base64url input")
	}

	result, err := encoding.DecodeString(input)
	if err != nil {
		return nil, fmt.Errorf("base64: invalid base64url input: %w", err)
	}
	return result, nil
}

// Encode returns the base64url encoded string from the given input,
// without padding characters.
//
// Empty input returns an empty string.
func Encode(input []byte) string {
	return encoding.EncodeToString(input)
}

// AppendEncode appends the base64url encoding of src to dst and returns
// the extended buffer. It is used to build signing inputs in place.
func AppendEncode(dst, src []byte) []byte {
	return encoding.AppendEncode(dst, src)
}

// EncodedLen returns the length of the base64url encoding of n bytes.
func EncodedLen(n int) int {
	return encoding.EncodedLen(n)
}
