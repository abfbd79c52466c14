// Package join implements the distributed hash-partitioned equi-join
// core: StableHasher (internal/jsonvalue), HashIndex/Router, MergePlanner,
// DataShipper, JoinEmitter and the JoinDriver that orchestrates all four
// phases across a peer cohort (spec.md §§2-4).
package join

import (
	"bytedb/internal/joinerr"
	"bytedb/internal/predicate"
	"bytedb/internal/storeapi"
)

// Side identifies which input a HashEntry, filter, or column list belongs
// to.
type Side uint8

const (
	LHS Side = iota
	RHS
)

func (s Side) String() string {
	if s == LHS {
		return "lhs"
	}
	return "rhs"
}

// Config is the driver's exposed argument contract (spec.md §6.4). Path
// fields are resolved by the CLI layer into open storeapi.Shard handles
// before Config reaches the driver; Config itself only carries what the
// algorithm needs once the shards are open.
type Config struct {
	Left  storeapi.Shard
	Right storeapi.Shard
	// Output is created/truncated by the driver at phase 4 (spec.md §3
	// "the output shard is created or truncated at phase 4 start").
	Output storeapi.Opener
	OutputPath string

	LeftFilter  *predicate.Compiled
	RightFilter *predicate.Compiled

	On           []string
	LeftOn       []string
	RightOn      []string
	LeftColumns  []string
	RightColumns []string
	How          string
}

// resolvedColumns is Config after defaulting/validation: on-columns are
// guaranteed equal length and non-empty for both sides.
type resolvedColumns struct {
	leftOn, rightOn         []string
	leftColumns, rightColumns []string
}

// Validate checks the config error conditions spec.md §6.4/§7 name:
// unsupported `how`, and join columns missing or mismatched in length.
// It must run before any phase begins (spec.md §7).
func (c *Config) Validate() (*resolvedColumns, error) {
	how := c.How
	if how == "" {
		how = "inner"
	}
	if how != "inner" {
		return nil, joinerr.Configf("join: how=%q is not implemented; only \"inner\" is supported", how)
	}

	leftOn := c.LeftOn
	if len(leftOn) == 0 {
		leftOn = c.On
	}
	rightOn := c.RightOn
	if len(rightOn) == 0 {
		rightOn = c.On
	}
	if len(leftOn) == 0 {
		return nil, joinerr.Configf("join: at least one of {on, left_on} must be non-empty")
	}
	if len(rightOn) == 0 {
		return nil, joinerr.Configf("join: at least one of {on, right_on} must be non-empty")
	}
	if len(leftOn) != len(rightOn) {
		return nil, joinerr.Configf("join: left_on and right_on must have equal length, got %d and %d", len(leftOn), len(rightOn))
	}
	return &resolvedColumns{
		leftOn:       leftOn,
		rightOn:      rightOn,
		leftColumns:  c.LeftColumns,
		rightColumns: c.RightColumns,
	}, nil
}

// ResolvedColumns is the externally visible subset of a validated Config:
// the defaulted on-columns and projections, for callers outside this
// package (internal/cli's verify subcommand) that need to replay a join's
// shape without reaching into the Driver's internals.
type ResolvedColumns struct {
	LeftOn, RightOn           []string
	LeftColumns, RightColumns []string
}

// Resolve validates c and returns its defaulted column lists.
func (c *Config) Resolve() (*ResolvedColumns, error) {
	rc, err := c.Validate()
	if err != nil {
		return nil, err
	}
	return &ResolvedColumns{
		LeftOn: rc.leftOn, RightOn: rc.rightOn,
		LeftColumns: rc.leftColumns, RightColumns: rc.rightColumns,
	}, nil
}

func columnsFor(side Side, rc *resolvedColumns) (on, project []string) {
	if side == LHS {
		return rc.leftOn, rc.leftColumns
	}
	return rc.rightOn, rc.rightColumns
}

// suffixFor is the output key-suffix spec.md §4.5 specifies: "_l" for
// projected left columns, "_r" for projected right columns.
func suffixFor(side Side) string {
	if side == LHS {
		return "_l"
	}
	return "_r"
}
