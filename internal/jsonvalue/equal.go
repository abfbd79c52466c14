package jsonvalue

import "math"

// Equal performs deep, type-sensitive JSON-value equality per spec.md
// §4.5: int64 vs uint64 compare equal only when both represent the same
// non-negative integer; double equality compares the IEEE-754 bit pattern
// (so NaN is compared consistently rather than via Go's NaN != NaN); array
// and object comparisons recurse field-by-field and position-by-position.
func Equal(a, b Value) bool {
	switch {
	case a.Kind == KindNull && b.Kind == KindNull:
		return true
	case a.Kind == KindBool && b.Kind == KindBool:
		return a.Bool == b.Bool
	case a.Kind == KindString && b.Kind == KindString:
		return a.Str == b.Str
	case a.Kind == KindDouble && b.Kind == KindDouble:
		return math.Float64bits(a.Double) == math.Float64bits(b.Double)
	case a.Kind == KindInt64 && b.Kind == KindInt64:
		return a.Int64 == b.Int64
	case a.Kind == KindUint64 && b.Kind == KindUint64:
		return a.Uint64 == b.Uint64
	case a.Kind == KindInt64 && b.Kind == KindUint64:
		return a.Int64 >= 0 && uint64(a.Int64) == b.Uint64
	case a.Kind == KindUint64 && b.Kind == KindInt64:
		return b.Int64 >= 0 && uint64(b.Int64) == a.Uint64
	case a.Kind == KindArray && b.Kind == KindArray:
		if len(a.Array) != len(b.Array) {
			return false
		}
		for i := range a.Array {
			if !Equal(a.Array[i], b.Array[i]) {
				return false
			}
		}
		return true
	case a.Kind == KindObject && b.Kind == KindObject:
		if len(a.Object) != len(b.Object) {
			return false
		}
		for _, fa := range a.Object {
			fb, ok := b.Get(fa.Key)
			if !ok || !Equal(fa.Value, fb) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
