// Package kutil holds small generic helpers shared across the kernel:
// rounding arithmetic on page-aligned quantities and byte-slice marshaling
// for wire structures (rusage, pipe headers). Adapted from the teacher's
// util/util.go, kept nearly verbatim since the generic-arithmetic helpers
// have nothing kernel-specific to change.
package kutil

import "unsafe"

// Int is the set of integer types the rounding helpers accept.
type Int interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

func Min[T Int](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func Max[T Int](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// Rounddown rounds v down to the nearest multiple of to. to must be a
// power of two.
func Rounddown[T Int](v, to T) T {
	return v &^ (to - 1)
}

// Roundup rounds v up to the nearest multiple of to. to must be a power
// of two.
func Roundup[T Int](v, to T) T {
	return Rounddown(v+to-1, to)
}

// Readn reads an n-byte (1, 2, 4, or 8) little-endian integer out of a at
// byte offset off.
func Readn(a []uint8, n int, off int) int {
	switch n {
	case 1:
		return int(a[off])
	case 2:
		return int(*(*uint16)(unsafe.Pointer(&a[off])))
	case 4:
		return int(*(*uint32)(unsafe.Pointer(&a[off])))
	case 8:
		return int(*(*uint64)(unsafe.Pointer(&a[off])))
	default:
		panic("bad size")
	}
}

// Writen writes val as an sz-byte (1, 2, 4, or 8) little-endian integer
// into a at byte offset off.
func Writen(a []uint8, sz int, off int, val int) {
	switch sz {
	case 1:
		a[off] = uint8(val)
	case 2:
		*(*uint16)(unsafe.Pointer(&a[off])) = uint16(val)
	case 4:
		*(*uint32)(unsafe.Pointer(&a[off])) = uint32(val)
	case 8:
		*(*uint64)(unsafe.Pointer(&a[off])) = uint64(val)
	default:
		panic("bad size")
	}
}
