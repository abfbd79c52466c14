// Package jsonvalue implements the polymorphic JSON-like value used
// throughout the join: a tagged sum of null, bool, int64, uint64, double,
// string, array and object, plus the deterministic hash and deep-equality
// operations the join algorithm depends on.
package jsonvalue

// Kind tags a Value's underlying representation.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindUint64
	KindDouble
	KindString
	KindArray
	KindObject
)

// Field is one entry of an object-valued Value. Objects are represented as
// an ordered slice of fields, not a Go map, so that iteration order is
// reproducible across peers reading the same shard (see DESIGN.md's Open
// Question decision on hash-combine order).
type Field struct {
	Key   string
	Value Value
}

// Value is the recursive JSON-like value. Exactly one of the fields below
// is meaningful, selected by Kind.
type Value struct {
	Kind Kind

	Bool   bool
	Int64  int64
	Uint64 uint64
	Double float64
	Str    string
	Array  []Value
	Object []Field
}

func Null() Value                  { return Value{Kind: KindNull} }
func Bool(b bool) Value            { return Value{Kind: KindBool, Bool: b} }
func Int64(i int64) Value          { return Value{Kind: KindInt64, Int64: i} }
func Uint64(u uint64) Value        { return Value{Kind: KindUint64, Uint64: u} }
func Double(f float64) Value       { return Value{Kind: KindDouble, Double: f} }
func String(s string) Value        { return Value{Kind: KindString, Str: s} }
func Array(vs []Value) Value       { return Value{Kind: KindArray, Array: vs} }
func Object(fields []Field) Value  { return Value{Kind: KindObject, Object: fields} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

// Get looks up a field by key in an object value, preserving the same
// "present vs. absent" distinction the hasher and equality rely on.
func (v Value) Get(key string) (Value, bool) {
	if v.Kind != KindObject {
		return Value{}, false
	}
	for _, f := range v.Object {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}
