package jsonvalue

import "testing"

func TestEqualCrossNumericKinds(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"int64 vs uint64 same magnitude", Int64(5), Uint64(5), true},
		{"int64 negative vs uint64 never equal", Int64(-1), Uint64(1), false},
		{"double vs int64 exact", Double(3), Int64(3), false}, // doubles compare by bit pattern, not cross-kind with int
		{"double vs double same bits", Double(1.5), Double(1.5), true},
		{"string vs string", String("a"), String("a"), true},
		{"string vs string mismatch", String("a"), String("b"), false},
		{"null vs null", Null(), Null(), true},
		{"null vs int64", Null(), Int64(0), false},
		{"bool vs bool", Bool(true), Bool(true), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal(%+v, %+v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestEqualObjectOrderInsensitiveButPositional(t *testing.T) {
	a := Object([]Field{{Key: "x", Value: Int64(1)}, {Key: "y", Value: Int64(2)}})
	b := Object([]Field{{Key: "y", Value: Int64(2)}, {Key: "x", Value: Int64(1)}})
	if !Equal(a, b) {
		t.Fatalf("expected objects with the same fields in a different order to compare equal")
	}
}

func TestEqualArray(t *testing.T) {
	a := Array([]Value{Int64(1), String("a")})
	b := Array([]Value{Int64(1), String("a")})
	c := Array([]Value{Int64(1), String("b")})
	if !Equal(a, b) {
		t.Fatalf("expected equal arrays to compare equal")
	}
	if Equal(a, c) {
		t.Fatalf("expected differing arrays to compare unequal")
	}
}
