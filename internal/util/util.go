// Package util holds small generic helpers shared across the VM
// packages, adapted from biscuit/src/util/util.go. Readn/Writen, the
// other half of that file, exist there to pack variable-width fields
// into a raw byte buffer for on-disk structures; nothing in this
// module has an on-disk format, so only the rounding helpers made the
// trip.
package util

// Int is satisfied by all built-in integer types.
type Int interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Min returns the smaller of a and b.
func Min[T Int](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// Rounddown aligns v down to the nearest multiple of b.
func Rounddown[T Int](v, b T) T {
	return v - (v % b)
}

// Roundup aligns v up to the nearest multiple of b.
func Roundup[T Int](v, b T) T {
	return Rounddown(v+b-1, b)
}
