package join

import "bytedb/internal/joinerr"

// runPlanner executes phase 2 (spec.md §4.3) on this peer: sort both
// HashIndex tables, then merge-walk them looking for hash-equal groups.
// For each group, the lhs side's (rank, index) pairs are packed whole and
// sent once per distinct rhs owner in the group, coalescing what could
// otherwise be many small messages (spec.md §4.3's stated rationale).
// Both tables are cleared at the end, per spec.md §3's lifecycle rule.
func (d *Driver) runPlanner() error {
	d.lhsIndex.sortByHashOwner()
	d.rhsIndex.sortByHashOwner()

	l, r := 0, 0
	lhs, rhs := d.lhsIndex.entries, d.rhsIndex.entries

	for l < len(lhs) && r < len(rhs) {
		switch {
		case lhs[l].Hash < rhs[r].Hash:
			l = groupEnd(lhs, l)
		case lhs[l].Hash > rhs[r].Hash:
			r = groupEnd(rhs, r)
		default:
			lEnd := groupEnd(lhs, l)
			rEnd := groupEnd(rhs, r)

			lhsPack := make([]lhsRef, 0, lEnd-l)
			for i := l; i < lEnd; i++ {
				lhsPack = append(lhsPack, lhsRef{Rank: lhs[i].OwnerRank, Idx: lhs[i].OwnerIdx})
			}

			if err := d.sendRHSOwnerGroups(rhs[r:rEnd], lhsPack); err != nil {
				return err
			}
			l, r = lEnd, rEnd
		}
	}

	d.lhsIndex.Clear()
	d.rhsIndex.Clear()
	return nil
}

// groupEnd returns the index just past the run of entries starting at i
// that share entries[i].Hash (entries must already be sorted by hash).
func groupEnd(entries []HashEntry, i int) int {
	j := i + 1
	for j < len(entries) && entries[j].Hash == entries[i].Hash {
		j++
	}
	return j
}

// sendRHSOwnerGroups walks one hash-equal run of rhs entries, grouping
// consecutive entries by owner rank (the run is already sorted by
// (hash, owner_rank), so same-owner entries are contiguous), and sends
// one "plan" message per owner group carrying that owner's local rhs
// indices plus the whole lhsPack.
func (d *Driver) sendRHSOwnerGroups(rhsGroup []HashEntry, lhsPack []lhsRef) error {
	i := 0
	for i < len(rhsGroup) {
		owner := rhsGroup[i].OwnerRank
		j := i + 1
		for j < len(rhsGroup) && rhsGroup[j].OwnerRank == owner {
			j++
		}
		indices := make([]uint64, 0, j-i)
		for k := i; k < j; k++ {
			indices = append(indices, rhsGroup[k].OwnerIdx)
		}
		if err := d.trans.SendAsync(owner, handlerPlan, planMsg{RHSIndices: indices, LHSPack: lhsPack}); err != nil {
			return joinerr.Transportf("plan message to rhs owner %d: %w", owner, err)
		}
		i = j
	}
	return nil
}
