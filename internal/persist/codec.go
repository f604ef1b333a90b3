package persist

import (
	"strconv"
	"unsafe"

	"golang.org/x/exp/constraints"
)

func signed[T constraints.Integer]() bool {
	var zero T
	return ^zero < 0
}

// encode renders v as base-10 ASCII.
func encode[T constraints.Integer](v T) string {
	if signed[T]() {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatUint(uint64(v), 10)
}

// decode parses base-10 text into T. Anything that does not fit T exactly
// (sign, range, stray characters) is reported as not ok.
func decode[T constraints.Integer](s string) (T, bool) {
	var zero T
	bits := int(unsafe.Sizeof(zero)) * 8

	if signed[T]() {
		n, err := strconv.ParseInt(s, 10, bits)
		if err != nil {
			return zero, false
		}
		return T(n), true
	}
	n, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		return zero, false
	}
	return T(n), true
}
