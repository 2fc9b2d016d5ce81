package helpers

import (
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// CopyOf returns a shallow copy of the slice. The result is never nil, so that callers
// receiving an empty snapshot can range over it or serialize it as an empty array.
func CopyOf[V any](slice []V) []V {
	ret := make([]V, len(slice))
	copy(ret, slice)
	return ret
}

// SortedKeys returns the keys of the map in ascending order.
func SortedKeys[K constraints.Ordered, V any](m map[K]V) []K {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
