package predicate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"bytedb/internal/jsonvalue"
)

// ParseJSON parses a JSON-logic-style predicate document, e.g.
//
//	{"and": [{"gt": [{"var": "keys.a"}, 0]}, {"var": "keys.active"}]}
//
// into an Expr tree. Bare JSON scalars (numbers, strings, bools, null)
// parse as literal nodes; a single-key object whose key is "var" parses
// as a field reference; any other single-key object parses as an
// operator node whose value is the (array of) operands.
func ParseJSON(data []byte) (Expr, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Expr{}, fmt.Errorf("predicate: invalid JSON: %w", err)
	}
	return parseNode(raw)
}

func parseNode(raw any) (Expr, error) {
	switch v := raw.(type) {
	case nil:
		return Lit(jsonvalue.Null()), nil
	case bool:
		return Lit(jsonvalue.Bool(v)), nil
	case string:
		return Lit(jsonvalue.String(v)), nil
	case json.Number:
		return Lit(parseNumber(v)), nil
	case []any:
		return Expr{}, fmt.Errorf("predicate: bare array is not a valid node")
	case map[string]any:
		if len(v) != 1 {
			return Expr{}, fmt.Errorf("predicate: operator object must have exactly one key, got %d", len(v))
		}
		for key, val := range v {
			if key == string(OpVar) {
				name, ok := val.(string)
				if !ok {
					return Expr{}, fmt.Errorf("predicate: \"var\" value must be a string")
				}
				return Var(name), nil
			}
			return parseOp(Op(key), val)
		}
	}
	return Expr{}, fmt.Errorf("predicate: unsupported node type %T", raw)
}

func parseOp(o Op, val any) (Expr, error) {
	switch o {
	case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte:
		args, err := parseArgs(val, 2, 2)
		if err != nil {
			return Expr{}, fmt.Errorf("predicate: %q: %w", o, err)
		}
		return op(o, args...), nil
	case OpNot:
		args, err := parseArgs(val, 1, 1)
		if err != nil {
			return Expr{}, fmt.Errorf("predicate: %q: %w", o, err)
		}
		return op(o, args...), nil
	case OpAnd, OpOr:
		args, err := parseArgs(val, 0, -1)
		if err != nil {
			return Expr{}, fmt.Errorf("predicate: %q: %w", o, err)
		}
		return op(o, args...), nil
	case OpIn:
		args, err := parseArgs(val, 1, -1)
		if err != nil {
			return Expr{}, fmt.Errorf("predicate: %q: %w", o, err)
		}
		return op(o, args...), nil
	default:
		return Expr{}, fmt.Errorf("predicate: unknown operator %q", o)
	}
}

func parseArgs(val any, min, max int) ([]Expr, error) {
	arr, ok := val.([]any)
	if !ok {
		arr = []any{val}
	}
	if min >= 0 && len(arr) < min {
		return nil, fmt.Errorf("expected at least %d operands, got %d", min, len(arr))
	}
	if max >= 0 && len(arr) > max {
		return nil, fmt.Errorf("expected at most %d operands, got %d", max, len(arr))
	}
	out := make([]Expr, len(arr))
	for i, a := range arr {
		e, err := parseNode(a)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func parseNumber(n json.Number) jsonvalue.Value {
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return jsonvalue.Int64(i)
	}
	if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		return jsonvalue.Uint64(u)
	}
	f, _ := n.Float64()
	return jsonvalue.Double(f)
}
