// Package parquetstore is the concrete storeapi.Shard/Opener binding
// (spec.md §6.1): every input and output shard is a parquet file,
// materialized fully into memory on open since a join's random-access
// `At` and append workload gains nothing from the teacher's row-group
// streaming (core/parquet_reader.go). Writing follows
// catalog/manager.go's dynamic-schema GenericWriter pattern; a Filter
// view precomputes the surviving row set as a roaring.Bitmap, the same
// structure columnar/merge_iterator.go and columnar/merge.go use for
// row-set bookkeeping, so ForEachSelected/CountLocal only ever walk set
// bits instead of re-running the predicate per call.
package parquetstore

import (
	"fmt"
	"os"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/parquet-go/parquet-go"

	"bytedb/internal/jsonvalue"
	"bytedb/internal/storeapi"
)

// Store is a storeapi.Opener bound to one peer's rank, which every
// predicate evaluated through a shard it opens needs for the
// synthesized `mpiid` column (spec.md §6.2).
type Store struct {
	rank uint32
}

// NewStore builds a parquet-backed Opener for one peer.
func NewStore(rank uint32) *Store {
	return &Store{rank: rank}
}

// shard is the in-memory materialization of one parquet file, plus the
// optional Filter view layered on top of it.
type shard struct {
	rank     uint32
	path     string
	schema   storeapi.Schema
	rows     []storeapi.Record
	selected *roaring.Bitmap // nil means "every row", i.e. no filter applied
	writable bool
}

// OpenReadOnly reads path fully into memory (spec.md §6.1 `open_read_only`).
func (s *Store) OpenReadOnly(path string) (storeapi.Shard, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("parquetstore: open %s: %w", path, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("parquetstore: stat %s: %w", path, err)
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("parquetstore: open parquet file %s: %w", path, err)
	}

	schema := schemaFromParquet(pf.Schema())
	reader := parquet.NewReader(pf)
	defer reader.Close()

	rows := make([]storeapi.Record, 0, pf.NumRows())
	for {
		rowData := make(map[string]any)
		if err := reader.Read(&rowData); err != nil {
			break
		}
		rows = append(rows, recordFromMap(schema, rowData))
	}

	return &shard{rank: s.rank, path: path, schema: schema, rows: rows}, nil
}

// OpenOverwrite truncates (or creates) path with the given schema,
// returning a shard that buffers appended rows in memory until Close
// flushes them in one GenericWriter pass (spec.md §3 "the output shard
// is created or truncated at phase 4 start").
func (s *Store) OpenOverwrite(path string, schema storeapi.Schema) (storeapi.Shard, error) {
	return &shard{rank: s.rank, path: path, schema: schema, writable: true}, nil
}

func (sh *shard) CountLocal() (uint64, error) {
	if sh.selected == nil {
		return uint64(len(sh.rows)), nil
	}
	return sh.selected.GetCardinality(), nil
}

// Filter evaluates pred against every row still visible through sh's own
// selection (so filters compose: Filter(a).Filter(b) is "a and b"),
// recording survivors in a fresh roaring.Bitmap. A nil pred clears any
// filter and returns a view over every row.
func (sh *shard) Filter(pred storeapi.Predicate) storeapi.Shard {
	if pred == nil {
		return &shard{rank: sh.rank, path: sh.path, schema: sh.schema, rows: sh.rows, writable: sh.writable}
	}
	out := roaring.New()
	_ = sh.forEachIndex(func(idx uint64) error {
		rec := sh.rows[idx]
		ok, err := pred.Eval(storeapi.EvalContext{Record: rec, RowIndex: idx, PeerRank: sh.rank})
		if err == nil && ok {
			out.Add(uint32(idx))
		}
		return nil
	})
	return &shard{rank: sh.rank, path: sh.path, schema: sh.schema, rows: sh.rows, selected: out, writable: sh.writable}
}

// FilterErr is like Filter but surfaces the first predicate evaluation
// error instead of silently excluding that row. It is not part of the
// storeapi.Shard interface; internal/join's phase 0 finds it by a type
// assertion and uses it in place of Filter when it is present.
func (sh *shard) FilterErr(pred storeapi.Predicate) (storeapi.Shard, error) {
	out := roaring.New()
	var firstErr error
	_ = sh.forEachIndex(func(idx uint64) error {
		rec := sh.rows[idx]
		ok, err := pred.Eval(storeapi.EvalContext{Record: rec, RowIndex: idx, PeerRank: sh.rank})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return nil
		}
		if ok {
			out.Add(uint32(idx))
		}
		return nil
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return &shard{rank: sh.rank, path: sh.path, schema: sh.schema, rows: sh.rows, selected: out, writable: sh.writable}, nil
}

func (sh *shard) forEachIndex(fn func(idx uint64) error) error {
	if sh.selected == nil {
		for i := range sh.rows {
			if err := fn(uint64(i)); err != nil {
				return err
			}
		}
		return nil
	}
	it := sh.selected.Iterator()
	for it.HasNext() {
		if err := fn(uint64(it.Next())); err != nil {
			return err
		}
	}
	return nil
}

func (sh *shard) ForEachSelected(fn func(rowIndex uint64, rec storeapi.Record) error) error {
	return sh.forEachIndex(func(idx uint64) error {
		return fn(idx, sh.rows[idx])
	})
}

func (sh *shard) At(rowIndex uint64) (storeapi.Record, error) {
	if rowIndex >= uint64(len(sh.rows)) {
		return storeapi.Record{}, fmt.Errorf("parquetstore: row index %d out of range (%d rows)", rowIndex, len(sh.rows))
	}
	return sh.rows[rowIndex], nil
}

func (sh *shard) AppendLocal(rec storeapi.Record) error {
	if !sh.writable {
		return fmt.Errorf("parquetstore: shard %s is read-only", sh.path)
	}
	sh.rows = append(sh.rows, rec)
	return nil
}

func (sh *shard) Allocator() storeapi.Allocator { return allocator{} }

func (sh *shard) Schema() storeapi.Schema { return sh.schema }

// Close flushes buffered rows to disk in writable mode using the same
// dynamic-schema GenericWriter shape catalog/manager.go's
// writeParquetFile builds; read-only shards have nothing to flush.
func (sh *shard) Close() error {
	if !sh.writable {
		return nil
	}
	f, err := os.Create(sh.path)
	if err != nil {
		return fmt.Errorf("parquetstore: create %s: %w", sh.path, err)
	}
	defer f.Close()

	pschema := parquetSchemaFromRows(sh.schema, sh.rows)
	writer := parquet.NewGenericWriter[map[string]any](f, &parquet.WriterConfig{
		Schema:      pschema,
		Compression: &parquet.Snappy,
	})
	maps := make([]map[string]any, len(sh.rows))
	for i, r := range sh.rows {
		maps[i] = mapFromRecord(r)
	}
	if len(maps) > 0 {
		if _, err := writer.Write(maps); err != nil {
			return fmt.Errorf("parquetstore: write %s: %w", sh.path, err)
		}
	}
	return writer.Close()
}

type allocator struct{}

func (allocator) NewRecord() storeapi.Record { return storeapi.Record{} }

// schemaFromParquet derives a storeapi.Schema from an opened file's
// native parquet schema.
func schemaFromParquet(ps *parquet.Schema) storeapi.Schema {
	var cols []storeapi.Column
	for _, f := range ps.Fields() {
		cols = append(cols, storeapi.Column{Name: f.Name(), Type: "any", Nullable: f.Optional()})
	}
	return storeapi.Schema{Columns: cols}
}

// parquetSchemaFromRows builds a dynamic parquet.Schema for sh.schema's
// declared columns, inferring each leaf type from the first row that has
// a non-null value for it (spec.md's output columns are all declared
// "any"; a leaf type still has to be picked to write the file), the same
// fallback catalog/manager.go's createFieldFromValue applies.
func parquetSchemaFromRows(schema storeapi.Schema, rows []storeapi.Record) *parquet.Schema {
	group := make(parquet.Group)
	for _, col := range schema.Columns {
		group[col.Name] = parquet.Optional(fieldForColumn(col.Name, rows))
	}
	return parquet.NewSchema("join_output", group)
}

func fieldForColumn(name string, rows []storeapi.Record) parquet.Node {
	for _, r := range rows {
		v, ok := r.Get(name)
		if !ok || v.Kind == jsonvalue.KindNull {
			continue
		}
		switch v.Kind {
		case jsonvalue.KindBool:
			return parquet.Leaf(parquet.BooleanType)
		case jsonvalue.KindInt64:
			return parquet.Leaf(parquet.Int64Type)
		case jsonvalue.KindUint64:
			return parquet.Leaf(parquet.Int64Type)
		case jsonvalue.KindDouble:
			return parquet.Leaf(parquet.DoubleType)
		case jsonvalue.KindString:
			return parquet.String()
		default:
			return parquet.String()
		}
	}
	return parquet.String()
}

// recordFromMap converts one decoded parquet row into a storeapi.Record,
// visiting columns in schema order rather than ranging the decoded map
// (whose iteration order Go randomizes per process) so every peer that
// opens a shard built from the same schema sees fields in the same order,
// per spec.md §9's cross-peer iteration-order requirement.
func recordFromMap(schema storeapi.Schema, m map[string]any) storeapi.Record {
	rec := storeapi.Record{}
	for _, col := range schema.Columns {
		if v, ok := m[col.Name]; ok {
			rec = rec.With(col.Name, jsonvalue.FromAny(v))
		}
	}
	return rec
}

// mapFromRecord is recordFromMap's inverse, used when flushing a
// writable shard.
func mapFromRecord(r storeapi.Record) map[string]any {
	m := make(map[string]any, len(r.Fields))
	for _, f := range r.Fields {
		m[f.Key] = jsonvalue.ToAny(f.Value)
	}
	return m
}
