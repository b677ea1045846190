package thumbprint

import (
	"crypto"
	"testing"

	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/jwk"
	"github.com/picatz/jose/v2/pkg/keys"
	"github.com/stretchr/testify/require"
)

func TestGenerate_EC(t *testing.T) {
	value := jwk.Value{
		"kty": "EC",
		"crv": "P-256",
		"x":   "MKBCTNIcKUSDii11ySs3526iDZ8AiTo7Tu6KPAqv7D4",
		"y":   "4Etl6SRW2YiLUrN5vfvVHuhp7x8PxltmWWlbbM4IFyM",
	}

	// {"crv":"P-256","kty":"EC","x":"MKBCTNIcKUSDii11ySs3526iDZ8AiTo7Tu6KPAqv7D4","y":"4Etl6SRW2YiLUrN5vfvVHuhp7x8PxltmWWlbbM4IFyM"}

	thumbprint, err := Generate(value, crypto.SHA256)
	if err != nil {
		t.Fatal(err)
	}

	thumbprintString := base64.Encode(thumbprint)

	require.Equal(t, "cn-I_WNMClehiVp51i_0VpOENW1upEerA8sEam5hn-s", thumbprintString)
}

func TestGenerate_RSA(t *testing.T) {
	value := jwk.Value{
		"kty": "RSA",
		"n":   "0vx7agoebGcQSuuPiLJXZptN9nndrQmbXEps2aiAFbWhM78LhWx4cbbfAAtVT86zwu1RK7aPFFxuhDR1L6tSoc_BJECPebWKRXjBZCiFV4n3oknjhMstn64tZ_2W-5JsGY4Hc5n9yBXArwl93lqt7_RN5w6Cf0h4QyQ5v-65YGjQR0_FDW2QvzqY368QQMicAtaSqzs8KJZgnYb9c7d0zgdAZHzu6qMQvRL5hajrn1n91CbOpbISD08qNLyrdkt-bFTWhAI4vMQFh6WeZu0fM4lFd2NcRwr3XPksINHaQ-G_xBniIqbw0Ls1jF44-csFCur-kEgU8awapJzKnqDKgw",
		"e":   "AQAB",
		"alg": "RS256",
		"kid": "2011-04-29",
	}

	// {"e":"AQAB","kty":"RSA","n":"0vx7agoebGcQSuuPiLJXZptN9nndrQmbXEps2aiAFbWhM78LhWx4cbbfAAtVT86zwu1RK7aPFFxuhDR1L6tSoc_BJECPebWKRXjBZCiFV4n3oknjhMstn64tZ_2W-5JsGY4Hc5n9yBXArwl93lqt7_RN5w6Cf0h4QyQ5v-65YGjQR0_FDW2QvzqY368QQMicAtaSqzs8KJZgnYb9c7d0zgdAZHzu6qMQvRL5hajrn1n91CbOpbISD08qNLyrdkt-bFTWhAI4vMQFh6WeZu0fM4lFd2NcRwr3XPksINHaQ-G_xBniIqbw0Ls1jF44-csFCur-kEgU8awapJzKnqDKgw"}

	thumbprint, err := Generate(value, crypto.SHA256)
	if err != nil {
		t.Fatal(err)
	}

	thumbprintString := base64.Encode(thumbprint)

	require.Equal(t, "NzbLsXh8uDCcd-6MNwXF4W_7noWXFZAfHkxZsRGC9Xs", thumbprintString)
}

func TestGenerate_OKP(t *testing.T) {
	// https://www.rfc-editor.org/rfc/rfc8037.html#appendix-A.3
	value := jwk.Value{
		"kty": "OKP",
		"crv": "Ed25519",
		"x":   "11qYAYKxCrfVS_7TyWQHOg7hcvPapiMlrwIaaPcHURo",
	}

	thumbprint, err := GenerateString(value, crypto.SHA256)
	require.NoError(t, err)
	require.Equal(t, "kPrK_qmxVWaYVA9wwBF6Iuo3vVzz7TxHCTwXBygrS4k", thumbprint)
}

func TestGenerate_Invalid(t *testing.T) {
	tests := []jwk.Value{
		{},
		{"kty": "XYZ"},
		{"kty": "RSA", "n": "AQAB"},
		{"kty": "oct", "k": ""},
		{"kty": "EC", "crv": "P-256", "x": 1, "y": "AA"},
	}

	for _, value := range tests {
		_, err := Generate(value, crypto.SHA256)
		require.ErrorIs(t, err, ErrInvalidKey)
	}
}

func TestSecretKeyString(t *testing.T) {
	key, err := keys.New([]byte("0123456789abcdef0123456789abcdef"), keys.WithID("ignored"))
	require.NoError(t, err)

	a, err := SecretKeyString(key)
	require.NoError(t, err)

	other, err := keys.New([]byte("0123456789abcdef0123456789abcdef"), keys.WithID("different"))
	require.NoError(t, err)

	b, err := SecretKeyString(other)
	require.NoError(t, err)

	require.Equal(t, a, b)
}
