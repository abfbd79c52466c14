// Package predicate implements the JSON-logic-style predicate engine
// spec.md §6.2 describes: an AST of operations referring to fields under
// a `keys.<colname>` selector prefix, plus the two synthesized columns
// `rowid` and `mpiid`. The naming follows the `json_logic` vocabulary
// found in _examples/original_source's MetallFrame lineage.
package predicate

import "bytedb/internal/jsonvalue"

// Op identifies the kind of AST node.
type Op string

const (
	OpLit Op = "lit" // a literal value
	OpVar Op = "var" // a field reference: "keys.<col>", "rowid", or "mpiid"

	OpEq  Op = "eq"
	OpNe  Op = "ne"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpAnd Op = "and"
	OpOr  Op = "or"
	OpNot Op = "not"
	OpIn  Op = "in"
)

// Expr is one node of the predicate AST.
type Expr struct {
	Op   Op
	Var  string          // set when Op == OpVar
	Lit  jsonvalue.Value  // set when Op == OpLit
	Args []Expr           // operands, for all other ops
}

// Var builds a field-reference node.
func Var(name string) Expr { return Expr{Op: OpVar, Var: name} }

// Lit builds a literal node.
func Lit(v jsonvalue.Value) Expr { return Expr{Op: OpLit, Lit: v} }

func op(o Op, args ...Expr) Expr { return Expr{Op: o, Args: args} }

func Eq(a, b Expr) Expr       { return op(OpEq, a, b) }
func Ne(a, b Expr) Expr       { return op(OpNe, a, b) }
func Lt(a, b Expr) Expr       { return op(OpLt, a, b) }
func Lte(a, b Expr) Expr      { return op(OpLte, a, b) }
func Gt(a, b Expr) Expr       { return op(OpGt, a, b) }
func Gte(a, b Expr) Expr      { return op(OpGte, a, b) }
func And(args ...Expr) Expr   { return op(OpAnd, args...) }
func Or(args ...Expr) Expr    { return op(OpOr, args...) }
func Not(a Expr) Expr         { return op(OpNot, a) }
func In(a Expr, set ...Expr) Expr {
	return op(OpIn, append([]Expr{a}, set...)...)
}
