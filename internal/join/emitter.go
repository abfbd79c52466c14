package join

import (
	"bytedb/internal/joinerr"
	"bytedb/internal/jsonvalue"
	"bytedb/internal/storeapi"
)

// runEmitter executes phase 4 (spec.md §4.5): for every JoinData entry,
// load each named local lhs row, verify full key-column equality against
// every shipped rhs row, and append a joined record for every match.
// JoinData is cleared at phase end; d.localOutputCount accumulates the
// count the driver later reduces across the cohort.
func (d *Driver) runEmitter() error {
	for _, jd := range d.joinData {
		for _, lhsIdx := range jd.LHSIndices {
			lhsRow, err := d.cfg.Left.At(lhsIdx)
			if err != nil {
				return joinerr.IOf("read lhs row %d: %w", lhsIdx, err)
			}
			for _, rhsRow := range jd.RHSRows {
				if !keyTupleEqual(lhsRow, rhsRow, d.rc.leftOn, d.rc.rightOn) {
					continue
				}
				joined := buildJoinedRecord(lhsRow, d.rc.leftColumns, rhsRow, d.rc.rightColumns)
				if err := d.output.AppendLocal(joined); err != nil {
					return joinerr.IOf("append output row: %w", err)
				}
				d.localOutputCount++
			}
		}
	}
	d.joinData = nil
	return nil
}

// keyTupleEqual implements spec.md §4.5's equality rule: every
// corresponding pair of key columns must compare equal by deep
// jsonvalue.Equal, with an absent column treated as an explicit null
// (spec.md §8 scenario S4: a row missing a key column matches both another
// row missing it and a row carrying that column as null) — mirroring
// HashKeyTuple's same absent-as-null rule, since a pair the hash accepts
// into the same bucket must also survive this verification step.
func keyTupleEqual(lhs, rhs storeapi.Record, leftOn, rightOn []string) bool {
	for i := range leftOn {
		lv, lok := lhs.Get(leftOn[i])
		if !lok {
			lv = jsonvalue.Null()
		}
		rv, rok := rhs.Get(rightOn[i])
		if !rok {
			rv = jsonvalue.Null()
		}
		if !jsonvalue.Equal(lv, rv) {
			return false
		}
	}
	return true
}

// buildJoinedRecord constructs the output row per spec.md §4.5: project
// each side (empty list = all fields), suffixing every selected field's
// key with "_l" or "_r".
func buildJoinedRecord(lhsRow storeapi.Record, leftColumns []string, rhsRow storeapi.Record, rightColumns []string) storeapi.Record {
	out := storeapi.Record{}
	left := storeapi.ProjectRecord(lhsRow, leftColumns)
	for _, f := range left.Fields {
		out = out.With(f.Key+suffixFor(LHS), f.Value)
	}
	right := storeapi.ProjectRecord(rhsRow, rightColumns)
	for _, f := range right.Fields {
		out = out.With(f.Key+suffixFor(RHS), f.Value)
	}
	return out
}
