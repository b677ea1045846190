// Package jose implements JavaScript Object Signing and Encryption (JOSE) related functionality.
//
// The subpackages are layered, leaves first:
//
//   - base64, header: wire primitives
//   - jwa: the algorithm registry and built-in algorithms
//   - keys: secret keys and key resolution
//   - compact: the compact serialization parser
//   - jws, jwe: signed and encrypted token codecs
//   - validation: the decode and validate pipeline
//
// This package holds the error taxonomy shared by all of them.
//
// Related RFCs:
//   - RFC7515 https://datatracker.ietf.org/doc/html/rfc7515 JWS, JSON Web Signature
//   - RFC7516 https://datatracker.ietf.org/doc/html/rfc7516 JWE, JSON Web Encryption
//   - RFC7517 https://datatracker.ietf.org/doc/html/rfc7517 JWK, JSON Web Key
//   - RFC7518 https://datatracker.ietf.org/doc/html/rfc7518 JWA, JSON Web Algorithms
//   - RFC7519 https://datatracker.ietf.org/doc/html/rfc7519 JWT, JSON Web Token
//   - RFC7797 https://datatracker.ietf.org/doc/html/rfc7797 JWS Unencoded Payload Option
//
// Related Information:
//   - https://datatracker.ietf.org/wg/jose/charter/
package jose
