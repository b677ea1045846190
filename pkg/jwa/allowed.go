package jwa

import "golang.org/x/exp/slices"

// AllowedAlgorithms is a set of algorithm codes a caller is willing
// to accept.
type AllowedAlgorithms map[Algorithm]struct{}

// NewAllowedAlgorithms returns a set of the given algorithms.
func NewAllowedAlgorithms(algs ...Algorithm) AllowedAlgorithms {
	allowed := make(AllowedAlgorithms, len(algs))
	for _, alg := range algs {
		allowed[alg] = struct{}{}
	}
	return allowed
}

// DefaultAllowedAlgorithms returns the algorithms allowed when the
// caller does not choose: RS256 and ES256.
func DefaultAllowedAlgorithms() AllowedAlgorithms {
	return NewAllowedAlgorithms(RS256, ES256)
}

// List returns the sorted algorithms in the set.
func (a AllowedAlgorithms) List() []Algorithm {
	list := make([]Algorithm, 0, len(a))
	for alg := range a {
		list = append(list, alg)
	}
	slices.Sort(list)
	return list
}

// Allowed reports whether every given algorithm is in the set. It
// returns false when no algorithms are given.
func (a AllowedAlgorithms) Allowed(algs ...Algorithm) bool {
	if len(algs) == 0 {
		return false
	}
	for _, alg := range algs {
		if _, ok := a[alg]; !ok {
			return false
		}
	}
	return true
}
