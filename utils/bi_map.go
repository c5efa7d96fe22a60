package utils

// BiMap is an immutable two-way lookup table. It is used for the enum
// tables that need to be addressed both by code and by name, such as wire
// tags and scalar type names.
type BiMap[K comparable, V comparable] struct {
	forward map[K]V
	reverse map[V]K
}

// NewBiMap copies input into a new BiMap. When input maps two keys to the
// same value, the reverse direction keeps whichever key was seen last.
func NewBiMap[K comparable, V comparable](input map[K]V) *BiMap[K, V] {
	m := &BiMap[K, V]{
		forward: make(map[K]V, len(input)),
		reverse: make(map[V]K, len(input)),
	}
	for k, v := range input {
		m.forward[k] = v
		m.reverse[v] = k
	}
	return m
}

// Lookup returns the value stored for key.
func (m *BiMap[K, V]) Lookup(key K) (V, bool) {
	v, ok := m.forward[key]
	return v, ok
}

// DirectLookup returns the value stored for key, or the zero value.
func (m *BiMap[K, V]) DirectLookup(key K) V {
	return m.forward[key]
}

// RLookup returns the key stored for value.
func (m *BiMap[K, V]) RLookup(value V) (K, bool) {
	k, ok := m.reverse[value]
	return k, ok
}

// DirectRLookup returns the key stored for value, or the zero value.
func (m *BiMap[K, V]) DirectRLookup(value V) K {
	return m.reverse[value]
}

// Len reports the number of entries.
func (m *BiMap[K, V]) Len() int {
	return len(m.forward)
}
