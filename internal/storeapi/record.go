// Package storeapi defines the contract the join core requires of a
// persistent sharded record store (spec.md §6.1), independent of any
// concrete on-disk encoding. internal/store/parquetstore is one concrete
// binding; the join core (internal/join) never imports it directly.
package storeapi

import "bytedb/internal/jsonvalue"

// Record is an ordered mapping from field name to JSON value, identified
// within a shard by a zero-based row index (spec.md §3).
type Record struct {
	Fields []jsonvalue.Field
}

// Get looks up a field by name, returning ok=false if the record has no
// such field at all (as distinct from a field present with a null value).
func (r Record) Get(name string) (jsonvalue.Value, bool) {
	for _, f := range r.Fields {
		if f.Key == name {
			return f.Value, true
		}
	}
	return jsonvalue.Value{}, false
}

// With returns a copy of r with (name, v) appended, used when building a
// projected or joined record field by field.
func (r Record) With(name string, v jsonvalue.Value) Record {
	out := Record{Fields: make([]jsonvalue.Field, len(r.Fields), len(r.Fields)+1)}
	copy(out.Fields, r.Fields)
	out.Fields = append(out.Fields, jsonvalue.Field{Key: name, Value: v})
	return out
}

// AsValue views the record as an object-kind jsonvalue.Value, for reuse of
// the generic hasher/equality code over a top-level record.
func (r Record) AsValue() jsonvalue.Value {
	return jsonvalue.Object(r.Fields)
}

// ColumnSelector is an ordered list of field names: a join-key tuple or a
// projection list (empty projection list means "all fields"), per
// spec.md §3.
type ColumnSelector []string

// ProjectRecord returns a new record containing only the named columns,
// in the order named. An empty selector means "all fields" and returns
// the record unchanged (spec.md §6.1 `project_record`).
func ProjectRecord(rec Record, columns ColumnSelector) Record {
	if len(columns) == 0 {
		return rec
	}
	out := Record{Fields: make([]jsonvalue.Field, 0, len(columns))}
	for _, c := range columns {
		if v, ok := rec.Get(c); ok {
			out.Fields = append(out.Fields, jsonvalue.Field{Key: c, Value: v})
		}
	}
	return out
}
