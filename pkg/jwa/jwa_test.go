package jwa

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/picatz/jose/v2/pkg/header"
	"github.com/picatz/jose/v2/pkg/keys"
	"github.com/stretchr/testify/require"
)

func TestNewAllowedAlgorithms(t *testing.T) {
	def := DefaultAllowedAlgorithms()

	tests := []struct {
		Name    string
		Allowed []Algorithm
		Require func(t *testing.T, algs AllowedAlgorithms)
	}{
		{
			Name:    "none allowed",
			Allowed: []Algorithm{},
			Require: func(t *testing.T, algs AllowedAlgorithms) {
				require.Empty(t, algs)
				require.Empty(t, algs.List())
				require.False(t, algs.Allowed(def.List()...))
			},
		},
		{
			Name:    "default allowed",
			Allowed: DefaultAllowedAlgorithms().List(),
			Require: func(t *testing.T, algs AllowedAlgorithms) {
				require.NotEmpty(t, algs)
				require.NotEmpty(t, algs.List())
				require.Equal(t, 2, len(algs))
				require.True(t, algs.Allowed(def.List()...))
				require.False(t, algs.Allowed(HS256))
			},
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			algs := NewAllowedAlgorithms(test.Allowed...)
			if test.Require != nil {
				test.Require(t, algs)
			}
		})
	}

}

func testKey(t *testing.T, material any, opts ...keys.Option) *keys.SecretKey {
	t.Helper()
	key, err := keys.New(material, opts...)
	require.NoError(t, err)
	return key
}

func TestRegistry(t *testing.T) {
	t.Run("builtins", func(t *testing.T) {
		r, err := NewRegistry()
		require.NoError(t, err)

		for _, alg := range Builtin() {
			if alg.Code() == None {
				continue
			}
			found, ok := r.lookup(alg.Category(), alg.Code())
			require.True(t, ok, alg.Code())
			require.Equal(t, alg.Code(), found.Code())
		}

		_, ok := r.Signature(None)
		require.False(t, ok)

		_, ok = r.Signature(A128GCM)
		require.False(t, ok, "codes are scoped by category")

		_, ok = r.AuthenticatedEncryption(A128GCM)
		require.True(t, ok)

		_, ok = r.Compression(DEF)
		require.True(t, ok)

		_, ok = r.KeyManagement("RSA1_5")
		require.False(t, ok)
	})

	t.Run("disabled", func(t *testing.T) {
		r, err := NewRegistry(WithDisabled(HS256, A128KW))
		require.NoError(t, err)

		_, ok := r.Signature(HS256)
		require.False(t, ok)

		_, ok = r.KeyManagement(A128KW)
		require.False(t, ok)

		_, ok = r.Signature(HS384)
		require.True(t, ok)

		require.NotContains(t, r.Codes(CategorySignature), HS256)
	})

	t.Run("insecure none", func(t *testing.T) {
		r, err := NewRegistry(WithInsecureNone())
		require.NoError(t, err)

		none, ok := r.Signature(None)
		require.True(t, ok)
		require.Equal(t, 0, none.SignatureSize(0))

		r, err = NewRegistry(WithInsecureNone(), WithDisabled(None))
		require.NoError(t, err)

		_, ok = r.Signature(None)
		require.False(t, ok)
	})

	t.Run("custom algorithm", func(t *testing.T) {
		custom := HMAC("HS256-custom", crypto.SHA256)

		r, err := NewRegistry(WithAlgorithms(custom))
		require.NoError(t, err)

		found, ok := r.Signature("HS256-custom")
		require.True(t, ok)
		require.Same(t, custom, found)

		_, err = NewRegistry(WithAlgorithms(nil))
		require.Error(t, err)
	})

	t.Run("codes", func(t *testing.T) {
		r := MustNewRegistry()

		codes := r.Codes(CategoryAuthenticatedEncryption)
		require.Equal(t, []Algorithm{
			A128CBCHS256, A128GCM, A192CBCHS384, A192GCM, A256CBCHS512, A256GCM, C20P, XC20P,
		}, codes)
	})
}

func TestSignatureAlgorithms(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p256, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	p384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)

	p521, err := ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	require.NoError(t, err)

	_, edKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	hmacKey := make([]byte, 64)
	_, err = rand.Read(hmacKey)
	require.NoError(t, err)

	r := MustNewRegistry(WithInsecureNone())

	tests := []struct {
		Alg      Algorithm
		Material any
		Size     int
	}{
		{HS256, hmacKey, 32},
		{HS384, hmacKey, 48},
		{HS512, hmacKey, 64},
		{RS256, rsaKey, 256},
		{RS384, rsaKey, 256},
		{RS512, rsaKey, 256},
		{PS256, rsaKey, 256},
		{PS384, rsaKey, 256},
		{PS512, rsaKey, 256},
		{ES256, p256, 64},
		{ES384, p384, 96},
		{ES512, p521, 132},
		{EdDSA, edKey, 64},
		{None, hmacKey, 0},
	}

	input := []byte("eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJhbGljZSJ9")

	for _, test := range tests {
		t.Run(test.Alg, func(t *testing.T) {
			alg, ok := r.Signature(test.Alg)
			require.True(t, ok)
			require.Equal(t, CategorySignature, alg.Category())

			key := testKey(t, test.Material)
			require.Equal(t, test.Size, alg.SignatureSize(key.KeySize()))

			sig, err := alg.Sign(key, input)
			require.NoError(t, err)
			require.Len(t, sig, test.Size)

			pub := testKey(t, key.Public())
			require.NoError(t, alg.Verify(pub, input, sig))

			if test.Alg == None {
				require.Error(t, alg.Verify(pub, input, []byte{0}))
				return
			}

			tampered := append([]byte(nil), input...)
			tampered[len(tampered)-1] ^= 0x01
			require.Error(t, alg.Verify(pub, tampered, sig))
		})
	}
}

func TestSignatureKeyConstraints(t *testing.T) {
	r := MustNewRegistry()

	t.Run("short HMAC key", func(t *testing.T) {
		alg, _ := r.Signature(HS256)
		_, err := alg.Sign(testKey(t, make([]byte, 31)), []byte("input"))
		require.ErrorContains(t, err, "at least 256 bits")
	})

	t.Run("small RSA key", func(t *testing.T) {
		small, err := rsa.GenerateKey(rand.Reader, 1024)
		require.NoError(t, err)

		alg, _ := r.Signature(RS256)
		_, err = alg.Sign(testKey(t, small), []byte("input"))
		require.ErrorContains(t, err, "at least 2048 bits")

		require.Error(t, alg.Verify(testKey(t, &small.PublicKey), []byte("input"), make([]byte, 128)))
	})

	t.Run("curve mismatch", func(t *testing.T) {
		p384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
		require.NoError(t, err)

		alg, _ := r.Signature(ES256)
		_, err = alg.Sign(testKey(t, p384), []byte("input"))
		require.ErrorContains(t, err, "requires curve P-256")
	})

	t.Run("wrong key type", func(t *testing.T) {
		alg, _ := r.Signature(EdDSA)
		_, err := alg.Sign(testKey(t, make([]byte, 32)), []byte("input"))
		require.Error(t, err)

		alg, _ = r.Signature(HS256)
		_, err = alg.Sign(testKey(t, ed25519.NewKeyFromSeed(make([]byte, 32))), []byte("input"))
		require.Error(t, err)
	})
}

func TestKeyManagementAlgorithms(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p256, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	r := MustNewRegistry()

	tests := []struct {
		Alg      Algorithm
		Enc      Algorithm
		Material any
	}{
		{Direct, A256GCM, make([]byte, 32)},
		{A128KW, A128CBCHS256, make([]byte, 16)},
		{A192KW, A192GCM, make([]byte, 24)},
		{A256KW, A256CBCHS512, make([]byte, 32)},
		{A128GCMKW, A128GCM, make([]byte, 16)},
		{A192GCMKW, A128GCM, make([]byte, 24)},
		{A256GCMKW, XC20P, make([]byte, 32)},
		{RSAOAEP, A128GCM, rsaKey},
		{RSAOAEP256, A256GCM, rsaKey},
		{PBES2HS256A128KW, A128GCM, []byte("correct horse battery staple")},
		{PBES2HS384A192KW, A192GCM, []byte("correct horse battery staple")},
		{PBES2HS512A256KW, A256GCM, []byte("correct horse battery staple")},
		{ECDHES, A128GCM, p256},
		{ECDHESA128KW, A256GCM, p256},
		{ECDHESA256KW, C20P, p256},
	}

	for _, test := range tests {
		t.Run(test.Alg+"/"+test.Enc, func(t *testing.T) {
			alg, ok := r.KeyManagement(test.Alg)
			require.True(t, ok)

			enc, ok := r.AuthenticatedEncryption(test.Enc)
			require.True(t, ok)

			key := testKey(t, test.Material)
			params := header.Parameters{
				header.Algorithm:  test.Alg,
				header.Encryption: test.Enc,
			}

			wrapKey := key
			if key.Type() != "oct" {
				wrapKey = testKey(t, key.Public())
			}

			cek, encryptedKey, err := alg.WrapKey(wrapKey, enc.KeySize(), params)
			require.NoError(t, err)
			require.Len(t, cek, enc.KeySize())

			// Header parameters added while wrapping are serialized, so
			// unwrap sees them after a JSON round trip.
			encoded, err := params.Base64URLString()
			require.NoError(t, err)
			decoded, err := header.Parse(encoded)
			require.NoError(t, err)

			unwrapped, err := alg.UnwrapKey(key, encryptedKey, enc.KeySize(), decoded)
			require.NoError(t, err)
			require.Equal(t, cek, unwrapped)

			iv := make([]byte, enc.NonceSize())
			ciphertext, tag, err := enc.Encrypt(cek, iv, []byte("plaintext"), []byte("aad"))
			require.NoError(t, err)

			plaintext, err := enc.Decrypt(unwrapped, iv, ciphertext, tag, []byte("aad"))
			require.NoError(t, err)
			require.Equal(t, "plaintext", string(plaintext))
		})
	}
}

func TestKeyManagementFailures(t *testing.T) {
	r := MustNewRegistry()

	t.Run("direct key size", func(t *testing.T) {
		alg, _ := r.KeyManagement(Direct)
		_, _, err := alg.WrapKey(testKey(t, make([]byte, 16)), 32, header.Parameters{})
		require.Error(t, err)
	})

	t.Run("direct non-empty encrypted key", func(t *testing.T) {
		alg, _ := r.KeyManagement(Direct)
		_, err := alg.UnwrapKey(testKey(t, make([]byte, 32)), []byte{1}, 32, header.Parameters{})
		require.Error(t, err)
	})

	t.Run("wrong KEK", func(t *testing.T) {
		alg, _ := r.KeyManagement(A128KW)
		_, encryptedKey, err := alg.WrapKey(testKey(t, make([]byte, 16)), 32, header.Parameters{})
		require.NoError(t, err)

		other := make([]byte, 16)
		other[0] = 1
		_, err = alg.UnwrapKey(testKey(t, other), encryptedKey, 32, header.Parameters{})
		require.Error(t, err)
	})

	t.Run("GCMKW missing tag", func(t *testing.T) {
		alg, _ := r.KeyManagement(A128GCMKW)
		params := header.Parameters{}
		_, encryptedKey, err := alg.WrapKey(testKey(t, make([]byte, 16)), 16, params)
		require.NoError(t, err)

		delete(params, header.AuthenticationTag)
		_, err = alg.UnwrapKey(testKey(t, make([]byte, 16)), encryptedKey, 16, params)
		require.ErrorContains(t, err, "tag")
	})

	t.Run("PBES2 iteration cap", func(t *testing.T) {
		alg, _ := r.KeyManagement(PBES2HS256A128KW)
		params := header.Parameters{
			header.PBES2SaltInput: "AAAAAAAAAAAAAAAAAAAAAA",
			header.PBES2Count:     float64(MaximumPBES2Count + 1),
		}
		_, err := alg.UnwrapKey(testKey(t, []byte("password")), make([]byte, 24), 16, params)
		require.ErrorContains(t, err, "out of range")
	})

	t.Run("ECDH-ES missing epk", func(t *testing.T) {
		p256, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)

		alg, _ := r.KeyManagement(ECDHES)
		_, err = alg.UnwrapKey(testKey(t, p256), nil, 16, header.Parameters{header.Encryption: A128GCM})
		require.ErrorContains(t, err, "epk")
	})
}

func TestAuthenticatedEncryptionAlgorithms(t *testing.T) {
	r := MustNewRegistry()

	for _, code := range r.Codes(CategoryAuthenticatedEncryption) {
		t.Run(code, func(t *testing.T) {
			enc, ok := r.AuthenticatedEncryption(code)
			require.True(t, ok)

			cek := make([]byte, enc.KeySize())
			_, err := rand.Read(cek)
			require.NoError(t, err)

			iv := make([]byte, enc.NonceSize())
			_, err = rand.Read(iv)
			require.NoError(t, err)

			aad := []byte("eyJhbGciOiJkaXIiLCJlbmMiOiJBMTI4R0NNIn0")

			ciphertext, tag, err := enc.Encrypt(cek, iv, []byte("Live long and prosper."), aad)
			require.NoError(t, err)
			require.NotEmpty(t, tag)

			plaintext, err := enc.Decrypt(cek, iv, ciphertext, tag, aad)
			require.NoError(t, err)
			require.Equal(t, "Live long and prosper.", string(plaintext))

			badTag := append([]byte(nil), tag...)
			badTag[0] ^= 0x01
			_, err = enc.Decrypt(cek, iv, ciphertext, badTag, aad)
			require.Error(t, err)

			_, err = enc.Decrypt(cek, iv, ciphertext, tag, []byte("other"))
			require.Error(t, err)

			_, _, err = enc.Encrypt(cek[1:], iv, []byte("x"), aad)
			require.Error(t, err)

			_, _, err = enc.Encrypt(cek, iv[1:], []byte("x"), aad)
			require.Error(t, err)
		})
	}
}

func TestDeflate(t *testing.T) {
	def, ok := MustNewRegistry().Compression(DEF)
	require.True(t, ok)

	data := bytes.Repeat([]byte("compress me "), 100)

	compressed, err := def.Compress(data)
	require.NoError(t, err)
	require.Less(t, len(compressed), len(data))

	decompressed, err := def.Decompress(compressed)
	require.NoError(t, err)
	require.Equal(t, data, decompressed)

	bomb, err := def.Compress(make([]byte, maxDecompressedSize+1))
	require.NoError(t, err)

	_, err = def.Decompress(bomb)
	require.Error(t, err)
}
