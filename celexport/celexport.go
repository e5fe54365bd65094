// Package celexport renders rule trees as Common Expression Language (CEL)
// source so rules can be handed to systems that evaluate CEL natively.
//
// The export is faithful for records whose values already have the types the
// rule compares against. The rule engine also lets a numeric-looking string
// meet a number as a number; CEL does not, so such records fail in CEL with a
// no-such-overload error instead.
package celexport

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/liamcoop/eligibility/expr"
)

// ErrReservedAttribute is returned for attributes CEL cannot use as variables.
var ErrReservedAttribute = errors.New("attribute is a reserved CEL keyword")

// costLimit bounds a single CEL evaluation.
const costLimit = 1000000

var reservedKeywords = map[string]bool{
	// Boolean and null literals
	"true":  true,
	"false": true,
	"null":  true,
	// Control flow
	"if":       true,
	"else":     true,
	"for":      true,
	"while":    true,
	"break":    true,
	"continue": true,
	"return":   true,
	// Declarations
	"var":      true,
	"let":      true,
	"const":    true,
	"function": true,
	// Other keywords
	"in":        true,
	"as":        true,
	"import":    true,
	"package":   true,
	"namespace": true,
	"loop":      true,
	"void":      true,
}

// IsReserved reports whether name is reserved in CEL.
func IsReserved(name string) bool {
	return reservedKeywords[name]
}

var compareOps = map[expr.CompareOp]string{
	expr.OpEq: "==",
	expr.OpNe: "!=",
	expr.OpGt: ">",
	expr.OpLt: "<",
	expr.OpGe: ">=",
	expr.OpLe: "<=",
}

// Translate returns the CEL source equivalent to n.
func Translate(n expr.Node) (string, error) {
	if err := expr.Validate(n); err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := write(&sb, n); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func write(sb *strings.Builder, n expr.Node) error {
	switch n := n.(type) {
	case *expr.Comparison:
		if IsReserved(n.Attribute) {
			return fmt.Errorf("%w: %q", ErrReservedAttribute, n.Attribute)
		}
		lit, err := literal(n.Value)
		if err != nil {
			return fmt.Errorf("attribute %q: %w", n.Attribute, err)
		}
		sb.WriteString(n.Attribute)
		sb.WriteByte(' ')
		sb.WriteString(compareOps[n.Op])
		sb.WriteByte(' ')
		sb.WriteString(lit)
		return nil

	case *expr.Logical:
		sep := " && "
		if n.Op == expr.Or {
			sep = " || "
		}
		for i, child := range n.Children {
			if i > 0 {
				sb.WriteString(sep)
			}
			if err := writeOperand(sb, child); err != nil {
				return err
			}
		}
		return nil

	case *expr.Not:
		sb.WriteByte('!')
		if _, ok := n.Child.(*expr.Not); ok {
			return write(sb, n.Child)
		}
		sb.WriteByte('(')
		if err := write(sb, n.Child); err != nil {
			return err
		}
		sb.WriteByte(')')
		return nil
	}
	return fmt.Errorf("unsupported node %T", n)
}

// writeOperand parenthesizes nested logical nodes so CEL precedence cannot
// regroup them.
func writeOperand(sb *strings.Builder, n expr.Node) error {
	if _, ok := n.(*expr.Logical); !ok {
		return write(sb, n)
	}
	sb.WriteByte('(')
	if err := write(sb, n); err != nil {
		return err
	}
	sb.WriteByte(')')
	return nil
}

func literal(l expr.Literal) (string, error) {
	switch l.Kind {
	case expr.NumberLiteral:
		if math.IsNaN(l.Number) || math.IsInf(l.Number, 0) {
			return "", fmt.Errorf("number %v has no CEL literal", l.Number)
		}
		s := strconv.FormatFloat(l.Number, 'g', -1, 64)
		if !strings.ContainsAny(s, ".e") {
			s += ".0"
		}
		return s, nil
	case expr.StringLiteral:
		return strconv.Quote(l.Text), nil
	case expr.BoolLiteral:
		return strconv.FormatBool(l.Bool), nil
	}
	return "", fmt.Errorf("unknown literal kind %v", l.Kind)
}

// Compile translates n and compiles it into a CEL program. Every attribute is
// declared dyn and numbers of different types compare by value, so records
// holding ints evaluate against the rule's double literals.
func Compile(n expr.Node) (cel.Program, error) {
	src, err := Translate(n)
	if err != nil {
		return nil, err
	}

	opts := []cel.EnvOption{cel.CrossTypeNumericComparisons(true)}
	for _, attr := range expr.Attributes(n) {
		opts = append(opts, cel.Variable(attr, cel.DynType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(src)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression %q yields %s, want bool", src, ast.OutputType())
	}

	prg, err := env.Program(ast, cel.CostLimit(costLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return prg, nil
}

// Eval runs a compiled program against rec. A non-boolean result is no match.
func Eval(prg cel.Program, rec expr.Record) (bool, error) {
	out, _, err := prg.Eval(map[string]any(rec))
	if err != nil {
		return false, err
	}
	matched, _ := out.Value().(bool)
	return matched, nil
}
