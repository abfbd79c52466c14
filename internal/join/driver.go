package join

import (
	"context"
	"fmt"
	"log"

	"bytedb/internal/joinerr"
	"bytedb/internal/storeapi"
	"bytedb/internal/transport"
)

// state names the JoinDriver's position in the phase/barrier state
// machine spec.md §4.6 defines: {init, P0, B0, P1, B1, P2, B2, P3, B3,
// P4, B4, done, failed}.
type state string

const (
	stateInit   state = "init"
	stateP0     state = "P0"
	stateB0     state = "B0"
	stateP1     state = "P1"
	stateB1     state = "B1"
	stateP2     state = "P2"
	stateB2     state = "B2"
	stateP3     state = "P3"
	stateB3     state = "B3"
	stateP4     state = "P4"
	stateB4     state = "B4"
	stateDone   state = "done"
	stateFailed state = "failed"
)

const handlerReportError = "report_error"
const handlerBroadcastResult = "broadcast_result"

// Driver orchestrates phases 0-4 across the cohort, enforcing the
// barriers between them and aggregating the final result (spec.md
// §4.6). It is the phase-scoped context object spec.md §9 describes in
// place of process-wide mutable state: every buffer a phase needs
// (HashIndex per side, MergeCandidates, JoinData) is a field here, owned
// by one Driver instance per run.
type Driver struct {
	trans transport.Transport
	cfg   *Config
	rc    *resolvedColumns

	leftView, rightView storeapi.Shard
	output              storeapi.Shard
	shipRightColumns    []string

	lhsIndex, rhsIndex HashIndex
	candidates         []mergeCandidate
	joinData           []joinDatum

	localOutputCount uint64
	state            state
	err              *joinerr.Error

	reportedErrs []reportedErr
	finalResult  *Result
}

type reportedErr struct {
	rank uint32
	kind joinerr.Kind
	msg  string
}

// Result is the outcome of a cohort run, identical on every peer once
// Run returns (spec.md §6.4).
type Result struct {
	OK          bool
	Code        uint64
	Message     string
	OutputCount uint64
}

// NewDriver builds a driver for one peer. cfg.Left/cfg.Right must already
// be open; cfg.Output is consulted only at phase 4 (spec.md §3).
func NewDriver(trans transport.Transport, cfg *Config) *Driver {
	return &Driver{trans: trans, cfg: cfg, state: stateInit}
}

func (d *Driver) logf(format string, args ...any) {
	log.Printf("[peer %d] "+format, append([]any{d.trans.Rank()}, args...)...)
}

// fail records the first error this peer encounters. Subsequent errors
// are ignored: spec.md §7 "no error is recovered locally during phases"
// — the peer stops doing productive work after the first one, but the
// first error is what gets reported.
func (d *Driver) fail(err *joinerr.Error) {
	if d.err == nil {
		d.err = err
		d.state = stateFailed
		d.logf("phase failed: %v", err)
	}
}

func (d *Driver) failed() bool { return d.err != nil }

// Run drives this peer through every phase and barrier, returning the
// cohort-wide aggregated Result. Run itself never returns a Go error for
// a phase failure on this or any other peer: failures are reported
// through Result, per spec.md §6.4's exit-code/summary contract. Run
// only returns a non-nil error for a context cancellation or a
// transport-level failure so severe the barriers themselves could not
// complete.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	d.registerHandlers()
	d.registerAggregationHandlers()

	rc, verr := d.cfg.Validate()
	if verr != nil {
		d.fail(verr.(*joinerr.Error))
	} else {
		d.rc = rc
		d.shipRightColumns = unionColumns(rc.rightColumns, rc.rightOn)
	}

	d.state = stateP0
	d.guarded(func() error { return d.phase0() })
	d.state = stateB0
	if err := d.barrier(ctx); err != nil {
		return nil, err
	}

	d.state = stateP1
	d.guarded(func() error { return d.phase1() })
	d.state = stateB1
	if err := d.barrier(ctx); err != nil {
		return nil, err
	}

	d.state = stateP2
	d.guarded(func() error { return d.runPlanner() })
	d.state = stateB2
	if err := d.barrier(ctx); err != nil {
		return nil, err
	}

	d.state = stateP3
	d.guarded(func() error { return d.runShipper() })
	d.state = stateB3
	if err := d.barrier(ctx); err != nil {
		return nil, err
	}

	d.state = stateP4
	d.guarded(func() error { return d.phase4() })
	if d.output != nil {
		d.guarded(func() error {
			if err := d.output.Close(); err != nil {
				return joinerr.IOf("close output shard: %w", err)
			}
			return nil
		})
	}
	d.state = stateB4
	if err := d.barrier(ctx); err != nil {
		return nil, err
	}

	result, err := d.aggregate(ctx)
	if err != nil {
		return nil, err
	}
	if result.OK {
		d.state = stateDone
	} else {
		d.state = stateFailed
	}
	return result, nil
}

// guarded runs fn only if this peer has not already failed, and records
// any error fn returns (spec.md §4.6: "that peer records an error code
// and still participates in remaining barriers").
func (d *Driver) guarded(fn func() error) {
	if d.failed() {
		return
	}
	if err := fn(); err != nil {
		if je, ok := err.(*joinerr.Error); ok {
			d.fail(je)
		} else {
			d.fail(joinerr.New(joinerr.KindIO, err))
		}
	}
}

// barrier enters the collective barrier regardless of local failure
// state, so one peer's error never deadlocks the rest of the cohort.
func (d *Driver) barrier(ctx context.Context) error {
	if err := d.trans.Barrier(ctx); err != nil {
		return fmt.Errorf("join: barrier at state %s: %w", d.state, err)
	}
	return nil
}

// phase0 applies each side's pre-filter (if any) and establishes the
// filtered views phase 1 iterates, plus a pre-count used only for
// diagnostics (spec.md §2 "phase 0 (filter + pre-count)").
func (d *Driver) phase0() error {
	filter := func(sh storeapi.Shard, pred storeapi.Predicate) (storeapi.Shard, error) {
		if fe, ok := sh.(interface {
			FilterErr(storeapi.Predicate) (storeapi.Shard, error)
		}); ok {
			return fe.FilterErr(pred)
		}
		return sh.Filter(pred), nil
	}
	var err error
	d.leftView = d.cfg.Left
	if d.cfg.LeftFilter != nil {
		if d.leftView, err = filter(d.cfg.Left, d.cfg.LeftFilter); err != nil {
			return joinerr.Filterf("filter lhs rows: %w", err)
		}
	}
	d.rightView = d.cfg.Right
	if d.cfg.RightFilter != nil {
		if d.rightView, err = filter(d.cfg.Right, d.cfg.RightFilter); err != nil {
			return joinerr.Filterf("filter rhs rows: %w", err)
		}
	}

	lc, err := d.leftView.CountLocal()
	if err != nil {
		return joinerr.IOf("count local lhs rows: %w", err)
	}
	rc, err := d.rightView.CountLocal()
	if err != nil {
		return joinerr.IOf("count local rhs rows: %w", err)
	}
	d.logf("phase0: %d lhs rows, %d rhs rows survive the pre-filter", lc, rc)
	return nil
}

// phase1 hash-partitions both sides across the cohort (spec.md §4.2).
func (d *Driver) phase1() error {
	if err := d.partitionSide(LHS, d.leftView, d.rc.leftOn); err != nil {
		return err
	}
	return d.partitionSide(RHS, d.rightView, d.rc.rightOn)
}

// phase4 opens the output shard in overwrite mode (spec.md §3: "the
// output shard is created or truncated at phase 4 start") and runs the
// emitter.
func (d *Driver) phase4() error {
	out, err := d.cfg.Output.OpenOverwrite(d.cfg.OutputPath, d.outputSchema())
	if err != nil {
		return joinerr.IOf("open output shard for overwrite: %w", err)
	}
	d.output = out
	return d.runEmitter()
}

// outputSchema derives the output shard's column schema from the
// projection lists and their "_l"/"_r" suffixes; an empty projection
// list can't be resolved to concrete names without a side's source
// schema, so those columns are taken from the input shard's schema.
func (d *Driver) outputSchema() storeapi.Schema {
	var cols []storeapi.Column
	appendSide := func(side Side, projection []string) {
		names := projection
		if len(names) == 0 {
			src := d.cfg.Left.Schema()
			if side == RHS {
				src = d.cfg.Right.Schema()
			}
			for _, c := range src.Columns {
				names = append(names, c.Name)
			}
		}
		for _, n := range names {
			cols = append(cols, storeapi.Column{Name: n + suffixFor(side), Type: "any", Nullable: true})
		}
	}
	appendSide(LHS, d.rc.leftColumns)
	appendSide(RHS, d.rc.rightColumns)
	return storeapi.Schema{Columns: cols}
}

// unionColumns returns project unchanged if it is empty (meaning "all
// fields", already a superset of anything), otherwise project with any
// name from mustInclude that isn't already present appended at the end.
// Used to build the rhs ship-list spec.md §4.4 requires: the user's
// right_columns projection plus the right_on key columns, even when the
// user omitted them (spec.md §9's resolved Open Question).
func unionColumns(project, mustInclude []string) []string {
	if len(project) == 0 {
		return project
	}
	has := make(map[string]bool, len(project))
	for _, c := range project {
		has[c] = true
	}
	out := append([]string{}, project...)
	for _, c := range mustInclude {
		if !has[c] {
			out = append(out, c)
			has[c] = true
		}
	}
	return out
}
