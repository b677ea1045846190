// Package keys provides secret keys, read-only key collections, and the
// resolver that selects candidate keys for a token from its header.
//
// Resolution is ordered and stops at the first rule with a match:
//
//  1. exact "kid" match
//  2. certificate thumbprint match ("x5t" SHA-1, "x5t#S256" SHA-256)
//  3. every key whose usage and algorithm restriction are compatible
//
// An empty result is not an error here; the codecs and the validation
// pipeline decide how to react to it.
package keys
