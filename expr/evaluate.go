package expr

import (
	"encoding/json"
	"fmt"
)

// Record maps attribute names to values. Supported values are Go numbers
// (including json.Number), strings and booleans. A key that is absent or
// holds nil is a missing attribute.
type Record map[string]any

// Evaluate applies the tree to a record. AND and OR evaluate children left to
// right and stop at the first child that decides the result, so an error in a
// later child is never reported once the outcome is known.
func Evaluate(n Node, rec Record) (bool, error) {
	switch n := n.(type) {
	case *Comparison:
		raw, ok := rec[n.Attribute]
		if !ok || raw == nil {
			return false, &MissingAttributeError{Attribute: n.Attribute}
		}
		return compare(n, raw)

	case *Logical:
		if (n.Op != And && n.Op != Or) || len(n.Children) == 0 {
			return false, &InvalidTreeError{Reason: fmt.Sprintf("logical node %q with %d children", n.Op, len(n.Children))}
		}
		// A run of AND stops on false, a run of OR stops on true.
		stop := n.Op == Or
		for _, child := range n.Children {
			v, err := Evaluate(child, rec)
			if err != nil {
				return false, err
			}
			if v == stop {
				return stop, nil
			}
		}
		return !stop, nil

	case *Not:
		v, err := Evaluate(n.Child, rec)
		if err != nil {
			return false, err
		}
		return !v, nil

	case nil:
		return false, &InvalidTreeError{Reason: "nil node"}

	default:
		return false, &InvalidTreeError{Reason: fmt.Sprintf("unknown node type %T", n)}
	}
}

// operand is a record value reduced to one of the three literal kinds.
type operand struct {
	kind LiteralKind
	num  float64
	str  string
	b    bool
}

func toOperand(attr string, v any) (operand, error) {
	switch v := v.(type) {
	case string:
		return operand{kind: StringLiteral, str: v}, nil
	case bool:
		return operand{kind: BoolLiteral, b: v}, nil
	case float64:
		return operand{kind: NumberLiteral, num: v}, nil
	case float32:
		return operand{kind: NumberLiteral, num: float64(v)}, nil
	case int:
		return operand{kind: NumberLiteral, num: float64(v)}, nil
	case int8:
		return operand{kind: NumberLiteral, num: float64(v)}, nil
	case int16:
		return operand{kind: NumberLiteral, num: float64(v)}, nil
	case int32:
		return operand{kind: NumberLiteral, num: float64(v)}, nil
	case int64:
		return operand{kind: NumberLiteral, num: float64(v)}, nil
	case uint:
		return operand{kind: NumberLiteral, num: float64(v)}, nil
	case uint8:
		return operand{kind: NumberLiteral, num: float64(v)}, nil
	case uint16:
		return operand{kind: NumberLiteral, num: float64(v)}, nil
	case uint32:
		return operand{kind: NumberLiteral, num: float64(v)}, nil
	case uint64:
		return operand{kind: NumberLiteral, num: float64(v)}, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return operand{}, &TypeMismatchError{Attribute: attr, Expected: "number", Actual: "malformed number"}
		}
		return operand{kind: NumberLiteral, num: f}, nil
	default:
		return operand{}, &TypeMismatchError{Attribute: attr, Expected: "number, string or boolean", Actual: fmt.Sprintf("%T", v)}
	}
}

// compare applies the coercion policy:
//   - a numeric-looking string meets a number as a number;
//   - ordering operators need two numbers after that coercion;
//   - two strings are compared as text for = and !=;
//   - booleans only meet booleans, and only for = and !=.
//
// Every other pairing is a *TypeMismatchError.
func compare(c *Comparison, raw any) (bool, error) {
	if !c.Op.valid() {
		return false, &InvalidTreeError{Reason: fmt.Sprintf("unknown comparison operator %q", c.Op)}
	}
	v, err := toOperand(c.Attribute, raw)
	if err != nil {
		return false, err
	}
	lit := c.Value
	mismatch := func(expected string) error {
		return &TypeMismatchError{Attribute: c.Attribute, Expected: expected, Actual: v.kind.String()}
	}

	switch lit.Kind {
	case NumberLiteral:
		switch v.kind {
		case NumberLiteral:
			return compareNumbers(c.Op, v.num, lit.Number), nil
		case StringLiteral:
			if f, ok := isNumeric(v.str); ok {
				return compareNumbers(c.Op, f, lit.Number), nil
			}
			return false, &TypeMismatchError{Attribute: c.Attribute, Expected: "number", Actual: "non-numeric string"}
		}
		return false, mismatch("number")

	case StringLiteral:
		switch v.kind {
		case NumberLiteral:
			if f, ok := isNumeric(lit.Text); ok {
				return compareNumbers(c.Op, v.num, f), nil
			}
			return false, mismatch("string")
		case StringLiteral:
			if !c.Op.IsOrdering() {
				return (v.str == lit.Text) == (c.Op == OpEq), nil
			}
			left, lok := isNumeric(v.str)
			right, rok := isNumeric(lit.Text)
			if !lok || !rok {
				return false, &TypeMismatchError{Attribute: c.Attribute, Expected: "number", Actual: "string"}
			}
			return compareNumbers(c.Op, left, right), nil
		}
		return false, mismatch("string")

	case BoolLiteral:
		if v.kind != BoolLiteral {
			return false, mismatch("boolean")
		}
		if c.Op.IsOrdering() {
			return false, mismatch("number")
		}
		return (v.b == lit.Bool) == (c.Op == OpEq), nil
	}

	return false, &InvalidTreeError{Reason: fmt.Sprintf("comparison on %q has no literal", c.Attribute)}
}

func compareNumbers(op CompareOp, a, b float64) bool {
	switch op {
	case OpGt:
		return a > b
	case OpLt:
		return a < b
	case OpGe:
		return a >= b
	case OpLe:
		return a <= b
	case OpEq:
		return a == b
	case OpNe:
		return a != b
	}
	return false
}
