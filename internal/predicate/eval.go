package predicate

import (
	"bytedb/internal/jsonvalue"
	"bytedb/internal/joinerr"
	"bytedb/internal/storeapi"
)

// Eval evaluates the compiled predicate against ctx, satisfying
// storeapi.Predicate. Type errors during comparison (e.g. comparing a
// string to a bool with "lt") surface as a Filter error, fatal per-peer
// per spec.md §7.
func (c *Compiled) Eval(ctx storeapi.EvalContext) (bool, error) {
	return evalBool(c.root, ctx)
}

func evalBool(e Expr, ctx storeapi.EvalContext) (bool, error) {
	switch e.Op {
	case OpAnd:
		for _, a := range e.Args {
			ok, err := evalBool(a, ctx)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case OpOr:
		for _, a := range e.Args {
			ok, err := evalBool(a, ctx)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case OpNot:
		ok, err := evalBool(e.Args[0], ctx)
		return !ok, err
	case OpEq, OpNe:
		lv, lok, err := evalValue(e.Args[0], ctx)
		if err != nil {
			return false, err
		}
		rv, rok, err := evalValue(e.Args[1], ctx)
		if err != nil {
			return false, err
		}
		var eq bool
		switch {
		case !lok && !rok:
			eq = true
		case lok != rok:
			eq = false
		default:
			eq = jsonvalue.Equal(lv, rv)
		}
		if e.Op == OpNe {
			return !eq, nil
		}
		return eq, nil
	case OpLt, OpLte, OpGt, OpGte:
		lv, lok, err := evalValue(e.Args[0], ctx)
		if err != nil {
			return false, err
		}
		rv, rok, err := evalValue(e.Args[1], ctx)
		if err != nil {
			return false, err
		}
		if !lok || !rok {
			return false, joinerr.Filterf("predicate: %q compares against a missing field", e.Op)
		}
		cmp, err := compare(lv, rv)
		if err != nil {
			return false, err
		}
		switch e.Op {
		case OpLt:
			return cmp < 0, nil
		case OpLte:
			return cmp <= 0, nil
		case OpGt:
			return cmp > 0, nil
		default:
			return cmp >= 0, nil
		}
	case OpIn:
		needle, ok, err := evalValue(e.Args[0], ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		for _, cand := range e.Args[1:] {
			cv, cok, err := evalValue(cand, ctx)
			if err != nil {
				return false, err
			}
			if cok && jsonvalue.Equal(needle, cv) {
				return true, nil
			}
		}
		return false, nil
	case OpVar, OpLit:
		v, ok, err := evalValue(e, ctx)
		if err != nil {
			return false, err
		}
		return ok && v.Kind == jsonvalue.KindBool && v.Bool, nil
	default:
		return false, joinerr.Filterf("predicate: unknown operator %q", e.Op)
	}
}

// evalValue resolves a literal or variable node to a Value. ok is false
// only for a variable reference to an absent record field (literals and
// the synthesized rowid/mpiid columns are always present).
func evalValue(e Expr, ctx storeapi.EvalContext) (jsonvalue.Value, bool, error) {
	switch e.Op {
	case OpLit:
		return e.Lit, true, nil
	case OpVar:
		switch e.Var {
		case SynthRowID:
			return jsonvalue.Uint64(ctx.RowIndex), true, nil
		case SynthPeerRank:
			return jsonvalue.Uint64(uint64(ctx.PeerRank)), true, nil
		default:
			col, ok := Column(e.Var)
			if !ok {
				return jsonvalue.Value{}, false, joinerr.Filterf("predicate: unknown selector %q", e.Var)
			}
			v, ok := ctx.Record.Get(col)
			return v, ok, nil
		}
	default:
		return jsonvalue.Value{}, false, joinerr.Filterf("predicate: operator %q used in value position", e.Op)
	}
}

// compare orders two values for lt/lte/gt/gte. Numeric kinds compare by
// value across int64/uint64/double; strings compare byte-lexically;
// everything else is a Filter error, since ordering bools/null/composite
// values is not a meaningful predicate.
func compare(a, b jsonvalue.Value) (int, error) {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		default:
			return 0, nil
		}
	}
	if a.Kind == jsonvalue.KindString && b.Kind == jsonvalue.KindString {
		switch {
		case a.Str < b.Str:
			return -1, nil
		case a.Str > b.Str:
			return 1, nil
		default:
			return 0, nil
		}
	}
	return 0, joinerr.Filterf("predicate: cannot order values of kind %v and %v", a.Kind, b.Kind)
}

func asFloat(v jsonvalue.Value) (float64, bool) {
	switch v.Kind {
	case jsonvalue.KindInt64:
		return float64(v.Int64), true
	case jsonvalue.KindUint64:
		return float64(v.Uint64), true
	case jsonvalue.KindDouble:
		return v.Double, true
	default:
		return 0, false
	}
}
