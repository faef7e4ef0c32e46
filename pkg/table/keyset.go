package table

import "sort"

// KeySet is a set of join-key values. The zero value is not usable; build one
// with NewKeySet.
type KeySet map[string]struct{}

// NewKeySet creates a set holding the given keys.
func NewKeySet(keys ...string) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Add inserts a key. Duplicates collapse.
func (s KeySet) Add(key string) {
	s[key] = struct{}{}
}

// Has reports whether key is in the set.
func (s KeySet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Len returns the number of distinct keys.
func (s KeySet) Len() int {
	return len(s)
}

// Sample returns up to n keys in sorted order, for diagnostics.
func (s KeySet) Sample(n int) []string {
	keys := s.Sorted()
	if n >= 0 && len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// Sorted returns all keys in sorted order.
func (s KeySet) Sorted() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
