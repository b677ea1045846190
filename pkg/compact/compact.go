// Package compact parses the JOSE compact serialization shared by JWS and
// JWE: base64url segments joined by periods.
//
// Parsing only splits the input and classifies it. The header segment is
// decoded on first use and cached, and no segment is copied.
package compact

import (
	"strings"
	"sync"

	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/header"
)

// Kind is the kind of protection a compact token carries, derived from its
// segment count.
type Kind int

const (
	// Signed is a JWS: header, payload, signature.
	Signed Kind = 3

	// Encrypted is a JWE: header, encrypted key, initialization vector,
	// ciphertext, authentication tag.
	Encrypted Kind = 5
)

func (k Kind) String() string {
	switch k {
	case Signed:
		return "JWS"
	case Encrypted:
		return "JWE"
	default:
		return "unknown"
	}
}

// Indexes of the segments of a JWS.
const (
	SignedHeader = iota
	SignedPayload
	SignedSignature
)

// Indexes of the segments of a JWE.
const (
	EncryptedHeader = iota
	EncryptedKey
	EncryptedIV
	EncryptedCiphertext
	EncryptedTag
)

// Token is a parsed compact serialization. It is safe for concurrent use.
type Token struct {
	raw      string
	kind     Kind
	segments []string

	once   sync.Once
	header header.Parameters
	err    error
}

// Parse splits raw into its segments. It returns a *jose.FormatError
// unless raw has exactly 3 or 5 segments.
func Parse(raw string) (*Token, error) {
	if raw == "" {
		return nil, jose.NewFormatError("empty token")
	}

	n := strings.Count(raw, ".") + 1
	if n != int(Signed) && n != int(Encrypted) {
		return nil, jose.NewFormatError("expected %d or %d segments, got %d", Signed, Encrypted, n)
	}

	return &Token{
		raw:      raw,
		kind:     Kind(n),
		segments: strings.Split(raw, "."),
	}, nil
}

// Raw returns the original input.
func (t *Token) Raw() string {
	return t.raw
}

// Kind returns whether the token is signed or encrypted.
func (t *Token) Kind() Kind {
	return t.kind
}

// Segments returns the encoded segments. The slice must not be modified.
func (t *Token) Segments() []string {
	return t.segments
}

// Segment returns the encoded segment at index i.
func (t *Token) Segment(i int) string {
	return t.segments[i]
}

// DecodeSegment returns the base64url decoded segment at index i.
func (t *Token) DecodeSegment(i int) ([]byte, error) {
	b, err := base64.Decode(t.segments[i])
	if err != nil {
		return nil, jose.NewFormatError("invalid segment %d: %w", i, err)
	}
	return b, nil
}

// Header returns the decoded protected header. It is decoded once; later
// calls return the same parameters, or the same error.
//
// Callers must not modify the returned parameters; use Clone.
func (t *Token) Header() (header.Parameters, error) {
	t.once.Do(func() {
		params, err := header.Parse(t.segments[0])
		if err != nil {
			t.err = &jose.FormatError{Inner: err}
			return
		}
		t.header = params
	})
	return t.header, t.err
}

// SigningInput returns the ASCII "header.payload" prefix of a JWS, which
// is the input to the signature. It shares memory with Raw.
func (t *Token) SigningInput() string {
	return t.raw[:len(t.segments[0])+1+len(t.segments[1])]
}
