package predicate

import (
	"strings"

	"bytedb/internal/joinerr"
)

const keysPrefix = "keys."

// SynthRowID and SynthPeerRank name the two always-available synthesized
// columns spec.md §6.2 specifies.
const (
	SynthRowID   = "rowid"
	SynthPeerRank = "mpiid"
)

// Compiled is a validated predicate AST, ready to evaluate against rows.
// It implements storeapi.Predicate.
type Compiled struct {
	root Expr
}

// Compile validates expr's free variables and returns an evaluatable
// predicate. A variable reference not under "keys." and not one of
// "rowid"/"mpiid" is a compile-time Filter error, per spec.md §6.2.
func Compile(expr Expr) (*Compiled, error) {
	if err := validate(expr); err != nil {
		return nil, err
	}
	return &Compiled{root: expr}, nil
}

func validate(e Expr) error {
	switch e.Op {
	case OpLit:
		return nil
	case OpVar:
		if e.Var == SynthRowID || e.Var == SynthPeerRank {
			return nil
		}
		if strings.HasPrefix(e.Var, keysPrefix) && len(e.Var) > len(keysPrefix) {
			return nil
		}
		return joinerr.Filterf("predicate: unknown selector %q (must be \"keys.<column>\", \"rowid\", or \"mpiid\")", e.Var)
	default:
		for _, a := range e.Args {
			if err := validate(a); err != nil {
				return err
			}
		}
		return nil
	}
}

// Column returns the bare record column name for a "keys.<column>"
// variable reference, and ok=false for any other variable (including the
// synthesized rowid/mpiid columns, which never name a record field).
func Column(varName string) (string, bool) {
	if strings.HasPrefix(varName, keysPrefix) && len(varName) > len(keysPrefix) {
		return varName[len(keysPrefix):], true
	}
	return "", false
}
