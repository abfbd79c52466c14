package jsonvalue

import "math"

// golden64 is the constant term of the combine step, chosen the way
// spec.md §4.1 suggests: a fixed-point fraction of the golden ratio, the
// same additive constant boost::hash_combine and countless others use to
// keep the mix avalanche-preserving for small inputs.
const golden64 uint64 = 0x9e3779b97f4a7c15

// combine folds x into seed in an order-sensitive, avalanche-preserving
// way. Stable across peers and process restarts is the only requirement;
// this is the spec's suggested formula verbatim.
func combine(seed, x uint64) uint64 {
	return seed ^ (x + golden64 + (seed << 6) + (seed >> 2))
}

const nullToken uint64 = 0xd15ea5edd15ea5ed

// HashValue recursively hashes a Value by type tag, per spec.md §4.1.
func HashValue(v Value) uint64 {
	switch v.Kind {
	case KindNull:
		return combine(0, nullToken)
	case KindBool:
		b := uint64(0)
		if v.Bool {
			b = 1
		}
		return combine(0, b)
	case KindInt64:
		return combine(0, uint64(v.Int64))
	case KindUint64:
		return combine(0, v.Uint64)
	case KindDouble:
		return combine(0, math.Float64bits(v.Double))
	case KindString:
		return combine(0, hashBytes([]byte(v.Str)))
	case KindArray:
		seed := uint64(0)
		for _, el := range v.Array {
			seed = combine(seed, HashValue(el))
		}
		return seed
	case KindObject:
		seed := uint64(0)
		for _, f := range v.Object {
			seed = combine(seed, hashBytes([]byte(f.Key)))
			seed = combine(seed, HashValue(f.Value))
		}
		return seed
	default:
		return 0
	}
}

// hashBytes is an FNV-1a style 64-bit hash of a byte sequence, used as the
// leaf hash for strings and object keys before folding into combine.
func hashBytes(b []byte) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for _, c := range b {
		h ^= uint64(c)
		h *= prime64
	}
	return h
}

// HashKeyTuple folds the values of columns, in order, over a record,
// treating a column absent from the record the same as one present with an
// explicit null (spec.md §8 scenario S4: a row missing a key column must
// match both another row missing it and a row carrying that column as
// null). The Get function abstracts over the record representation so both
// storeapi.Record and a bare jsonvalue.Value object can serve as the lookup
// source.
func HashKeyTuple(get func(column string) (Value, bool), columns []string) uint64 {
	seed := uint64(0)
	for _, c := range columns {
		val, ok := get(c)
		if !ok {
			val = Null()
		}
		seed = combine(seed, HashValue(val))
	}
	return seed
}
