package jsonvalue

import "sort"

// FromAny converts a decoded parquet/JSON scalar (or nested map/slice)
// into a Value, mirroring the type switch
// core/parquet_reader.go's interfaceToParquetValue runs in the other
// direction. A nested map[string]any (parquet-go decodes a nested group
// into one) has no reproducible order of its own — Go's map range order
// is randomized per process — so its keys are sorted before becoming
// Object fields, guaranteeing the same iteration order on every read and
// every peer, per spec.md §9's requirement that "implementers must
// ensure their object store has the same iteration order on both sides."
// The top-level row (internal/store/parquetstore.recordFromMap) instead
// orders by the shard's own schema, since that ordering is available
// there and is a closer match to the file's authored column order.
func FromAny(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(x)
	case int:
		return Int64(int64(x))
	case int32:
		return Int64(int64(x))
	case int64:
		return Int64(x)
	case uint:
		return Uint64(uint64(x))
	case uint32:
		return Uint64(uint64(x))
	case uint64:
		return Uint64(x)
	case float32:
		return Double(float64(x))
	case float64:
		return Double(x)
	case string:
		return String(x)
	case []byte:
		return String(string(x))
	case []any:
		vs := make([]Value, len(x))
		for i, e := range x {
			vs[i] = FromAny(e)
		}
		return Array(vs)
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]Field, 0, len(x))
		for _, k := range keys {
			fields = append(fields, Field{Key: k, Value: FromAny(x[k])})
		}
		return Object(fields)
	default:
		return Null()
	}
}

// ToAny is FromAny's inverse, producing the plain Go value
// parquet.NewGenericWriter[map[string]any] expects.
func ToAny(v Value) any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindInt64:
		return v.Int64
	case KindUint64:
		return v.Uint64
	case KindDouble:
		return v.Double
	case KindString:
		return v.Str
	case KindArray:
		out := make([]any, len(v.Array))
		for i, e := range v.Array {
			out[i] = ToAny(e)
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.Object))
		for _, f := range v.Object {
			out[f.Key] = ToAny(f.Value)
		}
		return out
	default:
		return nil
	}
}
