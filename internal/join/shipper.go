package join

import (
	"bytedb/internal/joinerr"
	"bytedb/internal/storeapi"
)

// runShipper executes phase 3 (spec.md §4.4): for every MergeCandidates
// entry accumulated during phase 2, load and project the named local rhs
// rows, then ship that projected batch to every distinct lhs owner named
// in the candidate's lhs pack. MergeCandidates is cleared at phase end.
func (d *Driver) runShipper() error {
	for _, cand := range d.candidates {
		rows := make([]storeapi.Record, 0, len(cand.RHSIndices))
		for _, idx := range cand.RHSIndices {
			rec, err := d.cfg.Right.At(idx)
			if err != nil {
				return joinerr.IOf("read rhs row %d: %w", idx, err)
			}
			rows = append(rows, storeapi.ProjectRecord(rec, d.shipRightColumns))
		}

		if err := d.sendToLHSOwners(cand.LHSPack, rows); err != nil {
			return err
		}
	}
	d.candidates = nil
	return nil
}

// sendToLHSOwners partitions lhsPack by rank, preserving order (entries
// for the same rank are already contiguous: the pack was built from a
// HashIndex sorted by (hash, owner_rank)), and sends the whole payload to
// each distinct owner once (spec.md §4.4's bandwidth-for-simplicity
// trade-off).
func (d *Driver) sendToLHSOwners(lhsPack []lhsRef, payload []storeapi.Record) error {
	i := 0
	for i < len(lhsPack) {
		rank := lhsPack[i].Rank
		j := i + 1
		for j < len(lhsPack) && lhsPack[j].Rank == rank {
			j++
		}
		indices := make([]uint64, 0, j-i)
		for k := i; k < j; k++ {
			indices = append(indices, lhsPack[k].Idx)
		}
		if err := d.trans.SendAsync(rank, handlerReceiveJoinData, receiveJoinDataMsg{LHSIndices: indices, Payload: payload}); err != nil {
			return joinerr.Transportf("ship join data to lhs owner %d: %w", rank, err)
		}
		i = j
	}
	return nil
}
