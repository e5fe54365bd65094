package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Node is a rule tree node. It is implemented only by *Comparison, *Logical
// and *Not; a type switch over those three is exhaustive.
//
// Nodes are values: once built they are never modified, so trees may be
// shared between rules and used from any number of goroutines.
type Node interface {
	node()
}

// CompareOp is a comparison operator.
type CompareOp string

const (
	OpGt CompareOp = ">"
	OpLt CompareOp = "<"
	OpGe CompareOp = ">="
	OpLe CompareOp = "<="
	OpEq CompareOp = "="
	OpNe CompareOp = "!="
)

// IsOrdering reports whether the operator requires numeric operands.
func (op CompareOp) IsOrdering() bool {
	switch op {
	case OpGt, OpLt, OpGe, OpLe:
		return true
	}
	return false
}

func (op CompareOp) valid() bool {
	return op.IsOrdering() || op == OpEq || op == OpNe
}

// LogicalOp joins the children of a Logical node.
type LogicalOp string

const (
	And LogicalOp = "AND"
	Or  LogicalOp = "OR"
)

// ParseLogicalOp accepts "AND" or "OR" in any letter case.
func ParseLogicalOp(s string) (LogicalOp, error) {
	switch LogicalOp(strings.ToUpper(strings.TrimSpace(s))) {
	case And:
		return And, nil
	case Or:
		return Or, nil
	}
	return "", fmt.Errorf("%w: %q (must be AND or OR)", ErrInvalidOperator, s)
}

// LiteralKind tags the active field of a Literal.
type LiteralKind uint8

const (
	NumberLiteral LiteralKind = iota + 1
	StringLiteral
	BoolLiteral
)

func (k LiteralKind) String() string {
	switch k {
	case NumberLiteral:
		return "number"
	case StringLiteral:
		return "string"
	case BoolLiteral:
		return "boolean"
	}
	return "LiteralKind(" + strconv.Itoa(int(k)) + ")"
}

// Literal is the constant side of a comparison. Only the field selected by
// Kind is meaningful.
type Literal struct {
	Kind   LiteralKind
	Number float64
	Text   string
	Bool   bool
}

// Number returns a numeric literal.
func Number(f float64) Literal { return Literal{Kind: NumberLiteral, Number: f} }

// String returns a string literal.
func String(s string) Literal { return Literal{Kind: StringLiteral, Text: s} }

// Bool returns a boolean literal.
func Bool(b bool) Literal { return Literal{Kind: BoolLiteral, Bool: b} }

// Comparison is a leaf: Attribute Op Value.
type Comparison struct {
	Attribute string
	Op        CompareOp
	Value     Literal
}

// Logical joins two or more children with AND or OR. Trees built by the
// combiner may hold a single child, which evaluates exactly like that child.
type Logical struct {
	Op       LogicalOp
	Children []Node
}

// Not negates its child.
type Not struct {
	Child Node
}

func (*Comparison) node() {}
func (*Logical) node()    {}
func (*Not) node()        {}

// NewLogical builds a Logical node over a private copy of children.
func NewLogical(op LogicalOp, children ...Node) *Logical {
	return &Logical{Op: op, Children: append([]Node(nil), children...)}
}

// Attributes returns the distinct attribute names referenced by n, in order
// of first appearance.
func Attributes(n Node) []string {
	var names []string
	seen := make(map[string]bool)
	Walk(n, func(n Node) {
		if c, ok := n.(*Comparison); ok && !seen[c.Attribute] {
			seen[c.Attribute] = true
			names = append(names, c.Attribute)
		}
	})
	return names
}

// Walk calls fn for n and each of its descendants in depth-first, left to
// right order.
func Walk(n Node, fn func(Node)) {
	if n == nil {
		return
	}
	fn(n)
	switch n := n.(type) {
	case *Logical:
		for _, child := range n.Children {
			Walk(child, fn)
		}
	case *Not:
		Walk(n.Child, fn)
	}
}

// Size returns the number of nodes in the tree.
func Size(n Node) int {
	count := 0
	Walk(n, func(Node) { count++ })
	return count
}
