package join

import "bytedb/internal/storeapi"

// memShard is a minimal in-memory storeapi.Shard used only by this
// package's tests, standing in for internal/store/parquetstore so join
// end-to-end tests don't need real files on disk.
type memShard struct {
	rank     uint32
	schema   storeapi.Schema
	rows     []storeapi.Record
	selected []int // row indices visible through the current filter; nil means "all"
	writable bool
}

func newMemShard(rank uint32, cols []string, rows []storeapi.Record) *memShard {
	var schemaCols []storeapi.Column
	for _, c := range cols {
		schemaCols = append(schemaCols, storeapi.Column{Name: c, Type: "any", Nullable: true})
	}
	return &memShard{rank: rank, schema: storeapi.Schema{Columns: schemaCols}, rows: rows}
}

func (m *memShard) CountLocal() (uint64, error) {
	if m.selected == nil {
		return uint64(len(m.rows)), nil
	}
	return uint64(len(m.selected)), nil
}

func (m *memShard) Filter(pred storeapi.Predicate) storeapi.Shard {
	if pred == nil {
		return &memShard{rank: m.rank, schema: m.schema, rows: m.rows, writable: m.writable}
	}
	base := m.selected
	if base == nil {
		base = make([]int, len(m.rows))
		for i := range m.rows {
			base[i] = i
		}
	}
	sel := []int{} // non-nil even when empty: nil would mean "all rows"
	for _, idx := range base {
		ok, err := pred.Eval(storeapi.EvalContext{Record: m.rows[idx], RowIndex: uint64(idx), PeerRank: m.rank})
		if err == nil && ok {
			sel = append(sel, idx)
		}
	}
	return &memShard{rank: m.rank, schema: m.schema, rows: m.rows, selected: sel, writable: m.writable}
}

func (m *memShard) ForEachSelected(fn func(rowIndex uint64, rec storeapi.Record) error) error {
	if m.selected == nil {
		for i, r := range m.rows {
			if err := fn(uint64(i), r); err != nil {
				return err
			}
		}
		return nil
	}
	for _, idx := range m.selected {
		if err := fn(uint64(idx), m.rows[idx]); err != nil {
			return err
		}
	}
	return nil
}

func (m *memShard) At(rowIndex uint64) (storeapi.Record, error) {
	return m.rows[rowIndex], nil
}

func (m *memShard) AppendLocal(rec storeapi.Record) error {
	m.rows = append(m.rows, rec)
	return nil
}

func (m *memShard) Allocator() storeapi.Allocator { return memAllocator{} }
func (m *memShard) Schema() storeapi.Schema       { return m.schema }
func (m *memShard) Close() error                  { return nil }

type memAllocator struct{}

func (memAllocator) NewRecord() storeapi.Record { return storeapi.Record{} }

// memOpener is the storeapi.Opener a test gives a peer's output; it
// records the one shard it creates so the test can inspect the rows
// appended to it once the driver run completes.
type memOpener struct {
	rank uint32
	last *memShard
}

func (o *memOpener) OpenReadOnly(path string) (storeapi.Shard, error) {
	return newMemShard(o.rank, nil, nil), nil
}

func (o *memOpener) OpenOverwrite(path string, schema storeapi.Schema) (storeapi.Shard, error) {
	sh := &memShard{rank: o.rank, schema: schema, writable: true}
	o.last = sh
	return sh, nil
}
