// Package jwt provides a small interface for working with JSON Web
// Tokens (JWTs) on top of the jws, jwe and validation packages.
//
// Tokens are created with New (signed) or Encrypt (encrypted), and
// checked with ParseAndVerify or Token.Verify, which run the token
// through a validation.Pipeline built from the given VerifyOptions.
//
// https://datatracker.ietf.org/doc/html/rfc7519
package jwt
