// Package util holds small, dependency-free helpers shared across the
// engine packages — set membership, mostly, where a plain map would be
// error-prone to duplicate at every call site.
package util

// StringSet is a set of strings backed by a map, for membership questions
// such as which jids are known.
type StringSet map[string]bool

// NewStringSet builds a StringSet from any number of string slices,
// deduplicating as it goes.
func NewStringSet(slices ...[]string) StringSet {
	s := StringSet{}
	for _, sl := range slices {
		for _, v := range sl {
			s[v] = true
		}
	}
	return s
}

// Keys returns the set's members in unspecified order.
func (s StringSet) Keys() []string {
	if len(s) == 0 {
		return nil
	}
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	return keys
}

// Copy returns a new StringSet with the same members. Copying a nil set
// returns nil.
func (s StringSet) Copy() StringSet {
	if s == nil {
		return nil
	}
	c := make(StringSet, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// In reports whether needle appears in haystack.
func In(needle string, haystack []string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}
