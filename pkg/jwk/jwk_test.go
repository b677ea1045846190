package jwk

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"
	"testing"

	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/keys"
	"github.com/stretchr/testify/require"
)

func TestValueECDSA(t *testing.T) {
	input := `
	{
		"kty":"EC",
		"crv":"P-256",
		"x":"f83OJ3D2xF1Bg8vub9tLe1gHMzV76e8Tus9uPHvRVEU",
		"y":"x_FEzRu9m36HLN_tue659LNpXW6pCyStikYjKIWI5a0",
		"kid":"Public key used in JWS spec Appendix A.3 example"
   	}`

	value := Value{}
	err := json.NewDecoder(strings.NewReader(input)).Decode(&value)
	require.NoError(t, err)
	require.NotEmpty(t, value)

	require.Equal(t, "EC", value[KeyType])
	require.Equal(t, "P-256", value[Curve])
	require.Equal(t, "f83OJ3D2xF1Bg8vub9tLe1gHMzV76e8Tus9uPHvRVEU", value[X])
	require.Equal(t, "x_FEzRu9m36HLN_tue659LNpXW6pCyStikYjKIWI5a0", value[Y])
	require.Equal(t, "Public key used in JWS spec Appendix A.3 example", value[KeyID])
}

func TestValueRSA(t *testing.T) {
	input := `
		{
			"kty":"RSA",
			"n": "0vx7agoebGcQSuuPiLJXZptN9nndrQmbXEps2aiAFbWhM78LhWx4cbbfAAtVT86zwu1RK7aPFFxuhDR1L6tSoc_BJECPebWKRXjBZCiFV4n3oknjhMstn64tZ_2W-5JsGY4Hc5n9yBXArwl93lqt7_RN5w6Cf0h4QyQ5v-65YGjQR0_FDW2QvzqY368QQMicAtaSqzs8KJZgnYb9c7d0zgdAZHzu6qMQvRL5hajrn1n91CbOpbISD08qNLyrdkt-bFTWhAI4vMQFh6WeZu0fM4lFd2NcRwr3XPksINHaQ-G_xBniIqbw0Ls1jF44-csFCur-kEgU8awapJzKnqDKgw",
			"e":"AQAB",
			"alg":"RS256",
			"kid":"2011-04-29"
		}`

	value := Value{}
	err := json.NewDecoder(strings.NewReader(input)).Decode(&value)
	require.NoError(t, err)
	require.NotEmpty(t, value)
	require.Equal(t, "2011-04-29", value[KeyID])

	pkey, err := RSAPublicKey(value)
	require.NoError(t, err)
	require.NotNil(t, pkey)
	require.NotNil(t, pkey.N)
	require.Equal(t, 65537, pkey.E)
}

func TestValueEd25519(t *testing.T) {
	input := `
	{
		"kty":"OKP",
		"crv":"Ed25519",
		"x":"3pP2u1u8vI1qT5Z0Xq5bZ7MfCqE8pYzX1VXU5Y7w8XU",
		"use":"sig",
		"kid":"test"
	}`

	value := Value{}
	err := json.NewDecoder(strings.NewReader(input)).Decode(&value)
	require.NoError(t, err)

	x, err := Ed25519Values(value)
	require.NoError(t, err)
	require.NotEmpty(t, x)
}

func TestSet(t *testing.T) {
	input := `
	{
		"keys":[
			{
				"kty":"oct",
				"alg":"A128KW",
				"k":"GawgguFyGrWKav7AX4VKUg"
			},
			{
				"kty":"oct",
				"k":"AyM1SysPpbyDfgZld3umj1qzKObwVMkoqQ-EstJQLr_T-1qS0gZH75aKtMN3Yj0iPS4hcgUuTwjAzZr1Z9CAow",
				"kid":"HMAC key used in JWS spec Appendix A.1 example"
			},
			{
				"kty":"EC",
				"crv":"P-256",
				"x":"MKBCTNIcKUSDii11ySs3526iDZ8AiTo7Tu6KPAqv7D4",
				"y":"4Etl6SRW2YiLUrN5vfvVHuhp7x8PxltmWWlbbM4IFyM",
				"use":"enc",
				"kid":"1"
			}
		]
	}`

	set := Set{}
	err := json.NewDecoder(strings.NewReader(input)).Decode(&set)
	require.NoError(t, err)
	require.NotEmpty(t, set)

	require.NotZero(t, len(set.Keys))
	for _, key := range set.Keys {
		require.NotEmpty(t, key[KeyType])

		if key[KeyType] == "oct" {
			k, err := SymmetricKey(key)
			require.NoError(t, err)
			require.NotEmpty(t, k)

			sk, err := HMACSecretKey(key)
			require.NoError(t, err)
			require.NotEmpty(t, sk)
		}

		if key[KeyType] == "EC" {
			crv, x, y, err := ECDSAValues(key)
			require.NoError(t, err)
			require.NotEmpty(t, crv)
			require.NotEmpty(t, x)
			require.NotEmpty(t, y)

			pkey, err := ECDSAPublicKey(key)
			require.NoError(t, err)
			require.NotNil(t, pkey)
			require.NotNil(t, pkey.X)
			require.NotNil(t, pkey.Y)
			require.Equal(t, pkey.Curve, elliptic.P256())
		}
	}
}

func TestErrorMessages(t *testing.T) {
	t.Run("ECDSAValues with non-EC key type", func(t *testing.T) {
		value := Value{
			KeyType: "RSA",
		}
		_, _, _, err := ECDSAValues(value)
		require.Error(t, err)
		require.Contains(t, err.Error(), "JWK value is not EC")
	})

	t.Run("RSAValues with non-RSA key type", func(t *testing.T) {
		value := Value{
			KeyType: "EC",
		}
		_, _, _, err := RSAValues(value)
		require.Error(t, err)
		require.Contains(t, err.Error(), "JWK value is not RSA")
	})

	t.Run("SymmetricKey with no key value", func(t *testing.T) {
		value := Value{
			K: "",
		}
		_, err := SymmetricKey(value)
		require.Error(t, err)
		require.Contains(t, err.Error(), "no symmetric key value set")
	})

	t.Run("Set.Get with non-existent key", func(t *testing.T) {
		set := &Set{
			Keys: []Value{
				{
					KeyID: "key1",
				},
			},
		}
		_, err := set.Get("nonexistent")
		require.Error(t, err)
		require.Contains(t, err.Error(), "key \"nonexistent\" not found in set")
	})

	t.Run("RSAPublicKey with large exponent", func(t *testing.T) {
		input := `{
                       "kty":"RSA",
                       "n": "0vx7agoebGcQSuuPiLJXZptN9nndrQmbXEps2aiAFbWhM78LhWx4cbbfAAtVT86zwu1RK7aPFFxuhDR1L6tSoc_BJECPebWKRXjBZCiFV4n3oknjhMstn64tZ_2W-5JsGY4Hc5n9yBXArwl93lqt7_RN5w6Cf0h4QyQ5v-65YGjQR0_FDW2QvzqY368QQMicAtaSqzs8KJZgnYb9c7d0zgdAZHzu6qMQvRL5hajrn1n91CbOpbISD08qNLyrdkt-bFTWhAI4vMQFh6WeZu0fM4lFd2NcRwr3XPksINHaQ-G_xBniIqbw0Ls1jF44-csFCur-kEgU8awapJzKnqDKgw",
                       "e":"AQAAAAAAAAAA",
                       "alg":"RS256",
                       "kid":"large-exp"
               }`

		value := Value{}
		err := json.NewDecoder(strings.NewReader(input)).Decode(&value)
		require.NoError(t, err)

		_, err = RSAPublicKey(value)
		require.Error(t, err)
		require.Contains(t, err.Error(), "exponent")
	})
}

func TestValidate(t *testing.T) {
	t.Run("valid EC key with P-256 curve", func(t *testing.T) {
		value := Value{
			KeyType: "EC",
			Curve:   "P-256",
			X:       "dGVzdA", // base64 encoded "test"
			Y:       "dGVzdA", // base64 encoded "test"
		}
		err := Validate(value)
		require.NoError(t, err)
	})

	t.Run("invalid EC key with unsupported curve", func(t *testing.T) {
		value := Value{
			KeyType: "EC",
			Curve:   "secp256k1", // unsupported curve
			X:       "dGVzdA",
			Y:       "dGVzdA",
		}
		err := Validate(value)
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid curve")
	})
}

// TestRSAModulusSizeValidation ensures RSAPublicKey enforces a minimum
// modulus size of 2048 bits, rejecting smaller RSA moduli.
func TestRSAModulusSizeValidation(t *testing.T) {
	const validInput = `{
               "kty":"RSA",
               "n": "0vx7agoebGcQSuuPiLJXZptN9nndrQmbXEps2aiAFbWhM78LhWx4cbbfAAtVT86zwu1RK7aPFFxuhDR1L6tSoc_BJECPebWKRXjBZCiFV4n3oknjhMstn64tZ_2W-5JsGY4Hc5n9yBXArwl93lqt7_RN5w6Cf0h4QyQ5v-65YGjQR0_FDW2QvzqY368QQMicAtaSqzs8KJZgnYb9c7d0zgdAZHzu6qMQvRL5hajrn1n91CbOpbISD08qNLyrdkt-bFTWhAI4vMQFh6WeZu0fM4lFd2NcRwr3XPksINHaQ-G_xBniIqbw0Ls1jF44-csFCur-kEgU8awapJzKnqDKgw",
               "e":"AQAB",
               "alg":"RS256",
               "kid":"2011-04-29"
       }`

	t.Run("valid modulus", func(t *testing.T) {
		var value Value
		err := json.NewDecoder(strings.NewReader(validInput)).Decode(&value)
		require.NoError(t, err)

		pkey, err := RSAPublicKey(value)
		require.NoError(t, err)
		require.Equal(t, 2048, pkey.N.BitLen())
	})

	t.Run("modulus too small", func(t *testing.T) {
		key, err := rsa.GenerateKey(rand.Reader, 1024)
		require.NoError(t, err)

		nEnc := base64.Encode(key.N.Bytes())

		input := fmt.Sprintf(`{"kty":"RSA","n":"%s","e":"AQAB"}`, nEnc)
		var value Value
		err = json.NewDecoder(strings.NewReader(input)).Decode(&value)
		require.NoError(t, err)

		_, err = RSAPublicKey(value)
		require.Error(t, err)
		require.Contains(t, err.Error(), "modulus too small")
	})
}

// TestRSAPublicKeyExponentValidation exercises RSAPublicKey with a variety of
// exponent values, ensuring that invalid exponents are rejected and valid ones
// are accepted.
func TestRSAPublicKeyExponentValidation(t *testing.T) {
	const n = "0vx7agoebGcQSuuPiLJXZptN9nndrQmbXEps2aiAFbWhM78LhWx4cbbfAAtVT86zwu1RK7aPFFxuhDR1L6tSoc_BJECPebWKRXjBZCiFV4n3oknjhMstn64tZ_2W-5JsGY4Hc5n9yBXArwl93lqt7_RN5w6Cf0h4QyQ5v-65YGjQR0_FDW2QvzqY368QQMicAtaSqzs8KJZgnYb9c7d0zgdAZHzu6qMQvRL5hajrn1n91CbOpbISD08qNLyrdkt-bFTWhAI4vMQFh6WeZu0fM4lFd2NcRwr3XPksINHaQ-G_xBniIqbw0Ls1jF44-csFCur-kEgU8awapJzKnqDKgw"

	encodeInt := func(i *big.Int) string {
		b := i.Bytes()
		if len(b) == 0 {
			b = []byte{0}
		}
		return base64.Encode(b)
	}

	tests := []struct {
		name    string
		exp     *big.Int
		wantErr bool
	}{
		{"zero", big.NewInt(0), true},
		{"one", big.NewInt(1), true},
		{"typical", big.NewInt(65537), false},
		{"max-int32", big.NewInt(math.MaxInt32), false},
		{"overflow", new(big.Int).Add(big.NewInt(math.MaxInt32), big.NewInt(1)), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			eEnc := encodeInt(tc.exp)
			input := fmt.Sprintf(`{"kty":"RSA","n":"%s","e":"%s"}`, n, eEnc)
			var value Value
			err := json.NewDecoder(strings.NewReader(input)).Decode(&value)
			require.NoError(t, err)

			_, err = RSAPublicKey(value)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSecretKey(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	ecKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)

	_, edKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	tests := []struct {
		Name    string
		Value   func(t *testing.T) Value
		Require func(t *testing.T, key *keys.SecretKey)
	}{
		{
			Name: "oct",
			Value: func(t *testing.T) Value {
				return Value{
					KeyType:      KeyTypeOctet,
					K:            "AyM1SysPpbyDfgZld3umj1qzKObwVMkoqQ-EstJQLr_T-1qS0gZH75aKtMN3Yj0iPS4hcgUuTwjAzZr1Z9CAow",
					KeyID:        "hmac",
					PublicKeyUse: "sig",
					Algorithm:    "HS256",
				}
			},
			Require: func(t *testing.T, key *keys.SecretKey) {
				require.Equal(t, "hmac", key.ID)
				require.Equal(t, keys.UsageSignature, key.Usage)
				require.Equal(t, "HS256", key.Algorithm)
				require.Equal(t, 512, key.KeySize())
			},
		},
		{
			Name: "RSA public",
			Value: func(t *testing.T) Value {
				v, err := ValueFromPublicKey(&rsaKey.PublicKey)
				require.NoError(t, err)
				return v
			},
			Require: func(t *testing.T, key *keys.SecretKey) {
				pub, ok := key.Material.(*rsa.PublicKey)
				require.True(t, ok)
				require.True(t, pub.Equal(&rsaKey.PublicKey))
			},
		},
		{
			Name: "RSA private",
			Value: func(t *testing.T) Value {
				v, err := ValueFromPublicKey(&rsaKey.PublicKey)
				require.NoError(t, err)
				v[D] = base64.Encode(rsaKey.D.Bytes())
				v[P] = base64.Encode(rsaKey.Primes[0].Bytes())
				v[Q] = base64.Encode(rsaKey.Primes[1].Bytes())
				return v
			},
			Require: func(t *testing.T, key *keys.SecretKey) {
				priv, ok := key.Material.(*rsa.PrivateKey)
				require.True(t, ok)
				require.True(t, priv.Equal(rsaKey))
			},
		},
		{
			Name: "EC private",
			Value: func(t *testing.T) Value {
				v, err := ValueFromPublicKey(&ecKey.PublicKey)
				require.NoError(t, err)
				v[D] = base64.Encode(ecKey.D.Bytes())
				return v
			},
			Require: func(t *testing.T, key *keys.SecretKey) {
				priv, ok := key.Material.(*ecdsa.PrivateKey)
				require.True(t, ok)
				require.True(t, priv.Equal(ecKey))
				require.Equal(t, 384, key.KeySize())
			},
		},
		{
			Name: "OKP private",
			Value: func(t *testing.T) Value {
				v, err := ValueFromPublicKey(edKey.Public())
				require.NoError(t, err)
				v[D] = base64.Encode(edKey.Seed())
				return v
			},
			Require: func(t *testing.T, key *keys.SecretKey) {
				priv, ok := key.Material.(ed25519.PrivateKey)
				require.True(t, ok)
				require.True(t, priv.Equal(edKey))
			},
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			key, err := SecretKey(test.Value(t))
			require.NoError(t, err)
			require.NotEmpty(t, key.ID)
			test.Require(t, key)
		})
	}

	t.Run("mismatched Ed25519 seed", func(t *testing.T) {
		v, err := ValueFromPublicKey(edKey.Public())
		require.NoError(t, err)
		v[D] = base64.Encode(make([]byte, ed25519.SeedSize))

		_, err = SecretKey(v)
		require.Error(t, err)
	})

	t.Run("invalid usage", func(t *testing.T) {
		_, err := SecretKey(Value{KeyType: KeyTypeOctet, K: "c2VjcmV0", PublicKeyUse: "wrap"})
		require.Error(t, err)
	})
}

func TestValueFromSecretKey(t *testing.T) {
	ecKey, err := ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	require.NoError(t, err)

	key, err := keys.New(ecKey, keys.WithID("ec"), keys.WithUsage(keys.UsageEncryption))
	require.NoError(t, err)

	value, err := ValueFromSecretKey(key)
	require.NoError(t, err)
	require.Equal(t, "ec", value[KeyID])
	require.Equal(t, "enc", value[PublicKeyUse])
	require.Equal(t, "P-521", value[Curve])
	require.NotContains(t, value, D)

	x, err := base64.Decode(value[X].(string))
	require.NoError(t, err)
	require.Len(t, x, 66)

	pub, err := SecretKey(value)
	require.NoError(t, err)
	require.True(t, ecKey.PublicKey.Equal(pub.Material))
}

func TestParseSet(t *testing.T) {
	input := `{"keys":[
		{"kty":"oct","kid":"a","k":"GawgguFyGrWKav7AX4VKUg"},
		{"kty":"EC","crv":"P-256","kid":"b","use":"enc",
		 "x":"MKBCTNIcKUSDii11ySs3526iDZ8AiTo7Tu6KPAqv7D4",
		 "y":"4Etl6SRW2YiLUrN5vfvVHuhp7x8PxltmWWlbbM4IFyM"}
	]}`

	set, err := ParseSet(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, set.Keys, 2)

	secretKeys, err := set.SecretKeys()
	require.NoError(t, err)
	require.Equal(t, 2, secretKeys.Len())
	require.Len(t, secretKeys.Lookup("b"), 1)
	require.Equal(t, keys.UsageEncryption, secretKeys.Lookup("b")[0].Usage)

	_, err = ParseSet(strings.NewReader(`{"keys":[]}`))
	require.Error(t, err)

	_, err = ParseSet(strings.NewReader(`{"keys":[{"kty":"XYZ"}]}`))
	require.Error(t, err)
}
