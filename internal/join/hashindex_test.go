package join

import "testing"

func TestHashIndexAddLenClear(t *testing.T) {
	var h HashIndex
	if h.Len() != 0 {
		t.Fatalf("expected empty index, got len %d", h.Len())
	}
	h.add(HashEntry{Hash: 1, OwnerRank: 0, OwnerIdx: 0})
	h.add(HashEntry{Hash: 2, OwnerRank: 1, OwnerIdx: 3})
	if h.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", h.Len())
	}
	h.Clear()
	if h.Len() != 0 {
		t.Fatalf("expected Clear to empty the index, got len %d", h.Len())
	}
}

func TestHashIndexSortByHashOwner(t *testing.T) {
	var h HashIndex
	h.add(HashEntry{Hash: 5, OwnerRank: 2, OwnerIdx: 0})
	h.add(HashEntry{Hash: 1, OwnerRank: 1, OwnerIdx: 0})
	h.add(HashEntry{Hash: 5, OwnerRank: 0, OwnerIdx: 0})
	h.add(HashEntry{Hash: 3, OwnerRank: 0, OwnerIdx: 0})

	h.sortByHashOwner()

	wantHashOrder := []uint64{1, 3, 5, 5}
	for i, want := range wantHashOrder {
		if h.entries[i].Hash != want {
			t.Fatalf("entry %d: expected hash %d, got %d", i, want, h.entries[i].Hash)
		}
	}
	// the two Hash==5 entries must additionally be ordered by OwnerRank asc.
	if h.entries[2].OwnerRank != 0 || h.entries[3].OwnerRank != 2 {
		t.Fatalf("expected ties on hash to be broken by owner rank ascending, got ranks %d, %d",
			h.entries[2].OwnerRank, h.entries[3].OwnerRank)
	}
}
