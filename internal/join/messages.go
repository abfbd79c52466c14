package join

import "bytedb/internal/storeapi"

// depositMsg is the payload of the "deposit" remote handler (spec.md
// §4.2): one HashEntry destined for its home peer's HashIndex[side].
type depositMsg struct {
	Side  Side
	Entry HashEntry
}

// lhsRef names one lhs row by (rank, row index), the unit MergePlanner
// groups into a candidate pack (spec.md §3 MergeCandidates).
type lhsRef struct {
	Rank uint32
	Idx  uint64
}

// planMsg is the payload of the "plan" remote handler (spec.md §4.3):
// a set of rhs row indices local to the recipient, paired with every lhs
// row (anywhere in the cohort) that shares their hash.
type planMsg struct {
	RHSIndices []uint64
	LHSPack    []lhsRef
}

// mergeCandidate is one entry of a peer's MergeCandidates list (spec.md
// §3): a group of local rhs rows and the remote lhs rows they might
// match, pending verification once the rhs rows are loaded and shipped.
type mergeCandidate struct {
	RHSIndices []uint64
	LHSPack    []lhsRef
}

// receiveJoinDataMsg is the payload of the "receive_join_data" remote
// handler (spec.md §4.4): a shipped, projected batch of rhs rows paired
// with the lhs rows (local to the recipient) that must be checked
// against every row in the batch.
type receiveJoinDataMsg struct {
	LHSIndices []uint64
	Payload    []storeapi.Record
}

// joinDatum is one entry of a peer's JoinData list (spec.md §3): local
// lhs row indices aligned with a batch of shipped rhs records that are
// each a candidate match for every listed lhs index.
type joinDatum struct {
	LHSIndices []uint64
	RHSRows    []storeapi.Record
}
