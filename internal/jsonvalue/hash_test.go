package jsonvalue

import "testing"

func TestHashValueDeterministic(t *testing.T) {
	v := Object([]Field{
		{Key: "a", Value: Int64(1)},
		{Key: "b", Value: String("x")},
	})
	h1 := HashValue(v)
	h2 := HashValue(v)
	if h1 != h2 {
		t.Fatalf("HashValue is not deterministic: %d != %d", h1, h2)
	}
}

func TestHashValueSensitiveToFieldOrder(t *testing.T) {
	a := Object([]Field{{Key: "a", Value: Int64(1)}, {Key: "b", Value: Int64(2)}})
	b := Object([]Field{{Key: "b", Value: Int64(2)}, {Key: "a", Value: Int64(1)}})
	if HashValue(a) == HashValue(b) {
		t.Fatalf("expected field order to change the hash, per the ordered-slice object representation")
	}
}

func TestHashKeyTupleTreatsAbsentColumnAsNull(t *testing.T) {
	missingRec := map[string]Value{"a": Int64(1)}
	missingGet := func(col string) (Value, bool) {
		v, ok := missingRec[col]
		return v, ok
	}
	explicitNullRec := map[string]Value{"a": Int64(1), "k": Null()}
	explicitNullGet := func(col string) (Value, bool) {
		v, ok := explicitNullRec[col]
		return v, ok
	}
	missingHash := HashKeyTuple(missingGet, []string{"a", "k"})
	explicitNullHash := HashKeyTuple(explicitNullGet, []string{"a", "k"})
	if missingHash != explicitNullHash {
		t.Fatalf("expected a row missing column %q to hash identically to a row with %q explicitly null", "k", "k")
	}

	onlyA := HashKeyTuple(missingGet, []string{"a"})
	if missingHash == onlyA {
		t.Fatalf("expected an absent column to still be folded in (as null), not skipped")
	}
}

func TestHashKeyTupleOrderSensitive(t *testing.T) {
	rec := map[string]Value{"a": Int64(1), "b": Int64(2)}
	get := func(col string) (Value, bool) {
		v, ok := rec[col]
		return v, ok
	}
	ab := HashKeyTuple(get, []string{"a", "b"})
	ba := HashKeyTuple(get, []string{"b", "a"})
	if ab == ba {
		t.Fatalf("expected the hash to depend on column order")
	}
}
