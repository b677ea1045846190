package keys

import "fmt"

// Collection is a read-only source of secret keys, such as a key store.
//
// Implementations must be safe for concurrent reads. The resolver never
// mutates a collection.
type Collection interface {
	// Keys returns every key, in a stable order.
	Keys() []*SecretKey

	// Lookup returns the keys with the given identifier.
	Lookup(id string) []*SecretKey
}

// Set is an in-memory Collection. It is immutable once created.
type Set struct {
	keys []*SecretKey
	byID map[string][]*SecretKey
}

var _ Collection = (*Set)(nil)

// NewSet returns a Set containing the given keys in order.
func NewSet(keys ...*SecretKey) (*Set, error) {
	s := &Set{
		keys: make([]*SecretKey, 0, len(keys)),
		byID: make(map[string][]*SecretKey, len(keys)),
	}

	for i, key := range keys {
		if key == nil {
			return nil, fmt.Errorf("key %d is nil", i)
		}
		if key.Material == nil {
			return nil, fmt.Errorf("key %q has no material", key.ID)
		}
		s.keys = append(s.keys, key)
		s.byID[key.ID] = append(s.byID[key.ID], key)
	}

	return s, nil
}

// MustNewSet is like NewSet but panics on error. It is intended for tests
// and static key sets.
func MustNewSet(keys ...*SecretKey) *Set {
	s, err := NewSet(keys...)
	if err != nil {
		panic(err)
	}
	return s
}

// Keys returns every key in the set.
func (s *Set) Keys() []*SecretKey {
	if s == nil {
		return nil
	}
	return s.keys
}

// Lookup returns the keys with the given identifier.
func (s *Set) Lookup(id string) []*SecretKey {
	if s == nil {
		return nil
	}
	return s.byID[id]
}

// Len returns the number of keys in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// Dispose disposes every key in the set.
func (s *Set) Dispose() {
	if s == nil {
		return
	}
	for _, key := range s.keys {
		key.Dispose()
	}
}
