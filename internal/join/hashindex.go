package join

import "sort"

// HashEntry is the triple spec.md §3 defines: a join-key hash plus the
// (rank, row index) of the row it was computed from.
type HashEntry struct {
	Hash      uint64
	OwnerRank uint32
	OwnerIdx  uint64
}

// HashIndex is a per-peer, per-side table of HashEntry values. Phase 1
// populates it (locally and via deposits from every other peer); phase 2
// sorts it, scans it, and clears it at phase end (spec.md §3 "explicitly
// cleared at phase end").
type HashIndex struct {
	entries []HashEntry
}

func (h *HashIndex) add(e HashEntry) {
	h.entries = append(h.entries, e)
}

func (h *HashIndex) Len() int { return len(h.entries) }

// Clear empties the table, per spec.md §3's lifecycle rule.
func (h *HashIndex) Clear() { h.entries = nil }

// byHashOwner sorts by (hash asc, owner_rank asc); spec.md §3 leaves ties
// on both fields unordered, which sort.Slice (not Stable) reflects.
func (h *HashIndex) sortByHashOwner() {
	sort.Slice(h.entries, func(i, j int) bool {
		a, b := h.entries[i], h.entries[j]
		if a.Hash != b.Hash {
			return a.Hash < b.Hash
		}
		return a.OwnerRank < b.OwnerRank
	})
}
