package storeapi

// EvalContext is what a Predicate is evaluated against: one row, plus the
// two synthesized columns spec.md §6.2 always makes available (`rowid`,
// `mpiid`) that do not live in the record itself.
type EvalContext struct {
	Record   Record
	RowIndex uint64
	PeerRank uint32
}

// Predicate is the store side of the predicate engine contract (spec.md
// §6.2): something that can be evaluated against a row to decide whether
// it survives a pre-filter. internal/predicate.Compiled implements this;
// storeapi does not import internal/predicate to avoid a cycle, since
// internal/predicate needs storeapi.Record to describe what it evaluates
// against.
type Predicate interface {
	Eval(ctx EvalContext) (bool, error)
}

// Allocator is an opaque per-shard builder handed to callers that need to
// construct records compatible with AppendLocal (spec.md §6.1
// `get_allocator`). The parquet-backed store's allocator is a stateless
// value: unlike the teacher's Metall-arena lineage, Go records need no
// arena, so Allocator exists only for interface parity with the external
// contract spec.md names.
type Allocator interface {
	NewRecord() Record
}

// Shard is the contract the join core requires of a persistent sharded
// record store (spec.md §6.1). internal/store/parquetstore is the
// concrete, parquet-backed implementation; internal/join depends only on
// this interface.
type Shard interface {
	// CountLocal returns the number of rows visible through the current
	// filter (or all rows, if none was set).
	CountLocal() (uint64, error)

	// Filter returns a view of the shard where subsequent iteration and
	// counting only consider rows for which pred evaluates true. Passing
	// a nil predicate clears any filter.
	Filter(pred Predicate) Shard

	// ForEachSelected calls fn once per surviving row, in row-index
	// order, stopping and returning fn's error if it returns non-nil.
	ForEachSelected(fn func(rowIndex uint64, rec Record) error) error

	// At performs a random-access read of one row by its absolute row
	// index in the shard (independent of any active filter).
	At(rowIndex uint64) (Record, error)

	// AppendLocal appends rec as a new row at the end of the shard.
	AppendLocal(rec Record) error

	// Allocator returns the shard's record builder (spec.md §6.1
	// `get_allocator`).
	Allocator() Allocator

	// Schema reports the shard's column schema.
	Schema() Schema

	// Close flushes any buffered writes and releases underlying
	// resources.
	Close() error
}

// Opener is the subset of the store contract the CLI needs to open or
// create shards by path, kept separate from Shard so join-phase code
// never has to know about filesystem paths.
type Opener interface {
	OpenReadOnly(path string) (Shard, error)
	OpenOverwrite(path string, schema Schema) (Shard, error)
}
