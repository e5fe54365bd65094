package expr

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func cmpNode(attr string, op CompareOp, v Literal) *Comparison {
	return &Comparison{Attribute: attr, Op: op, Value: v}
}

func and(children ...Node) *Logical { return &Logical{Op: And, Children: children} }
func or(children ...Node) *Logical  { return &Logical{Op: Or, Children: children} }

func TestParse(t *testing.T) {
	for _, tt := range []struct {
		name string
		in   string
		want Node
	}{
		{
			name: "single comparison",
			in:   "age > 30",
			want: cmpNode("age", OpGt, Number(30)),
		},
		{
			name: "string literal",
			in:   "department = 'Sales'",
			want: cmpNode("department", OpEq, String("Sales")),
		},
		{
			name: "double quoted string",
			in:   `city != "New York"`,
			want: cmpNode("city", OpNe, String("New York")),
		},
		{
			name: "boolean literal",
			in:   "active = true",
			want: cmpNode("active", OpEq, Bool(true)),
		},
		{
			name: "and run flattened",
			in:   "a = 1 AND b = 2 AND c = 3",
			want: and(cmpNode("a", OpEq, Number(1)), cmpNode("b", OpEq, Number(2)), cmpNode("c", OpEq, Number(3))),
		},
		{
			name: "or run flattened",
			in:   "a = 1 or b = 2 OR c = 3",
			want: or(cmpNode("a", OpEq, Number(1)), cmpNode("b", OpEq, Number(2)), cmpNode("c", OpEq, Number(3))),
		},
		{
			name: "and binds tighter than or",
			in:   "a = 1 OR b = 2 AND c = 3",
			want: or(cmpNode("a", OpEq, Number(1)), and(cmpNode("b", OpEq, Number(2)), cmpNode("c", OpEq, Number(3)))),
		},
		{
			name: "parentheses override precedence",
			in:   "(a = 1 OR b = 2) AND c = 3",
			want: and(or(cmpNode("a", OpEq, Number(1)), cmpNode("b", OpEq, Number(2))), cmpNode("c", OpEq, Number(3))),
		},
		{
			name: "parenthesized run is not merged",
			in:   "a = 1 AND (b = 2 AND c = 3)",
			want: and(cmpNode("a", OpEq, Number(1)), and(cmpNode("b", OpEq, Number(2)), cmpNode("c", OpEq, Number(3)))),
		},
		{
			name: "redundant parentheses",
			in:   "((age >= 18))",
			want: cmpNode("age", OpGe, Number(18)),
		},
		{
			name: "not binds tighter than and",
			in:   "NOT a = 1 AND b = 2",
			want: and(&Not{Child: cmpNode("a", OpEq, Number(1))}, cmpNode("b", OpEq, Number(2))),
		},
		{
			name: "double negation",
			in:   "not NOT a <= -1.5",
			want: &Not{Child: &Not{Child: cmpNode("a", OpLe, Number(-1.5))}},
		},
		{
			name: "not over group",
			in:   "NOT (a < 1 OR b < 2)",
			want: &Not{Child: or(cmpNode("a", OpLt, Number(1)), cmpNode("b", OpLt, Number(2)))},
		},
		{
			name: "mixed",
			in:   "(age > 30 AND department = 'Sales') OR (experience >= 5 AND salary < 50000)",
			want: or(
				and(cmpNode("age", OpGt, Number(30)), cmpNode("department", OpEq, String("Sales"))),
				and(cmpNode("experience", OpGe, Number(5)), cmpNode("salary", OpLt, Number(50000))),
			),
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.in, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

// TestParseDeterministic verifies that parsing the same input twice yields
// structurally equal trees.
func TestParseDeterministic(t *testing.T) {
	const in = "NOT (a = 'x' OR b > 2) AND c != FALSE OR d <= 4"
	first, err := Parse(in)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	second, err := Parse(in)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Parse() not deterministic (-first +second):\n%s", diff)
	}
}

func TestParseSyntaxErrors(t *testing.T) {
	for _, tt := range []struct {
		name     string
		in       string
		pos      int
		expected string
	}{
		{"empty input", "", 0, "identifier, NOT or '('"},
		{"missing operand", "age > 30 AND", 12, "identifier, NOT or '('"},
		{"missing operator", "age 30", 4, "comparison operator"},
		{"missing literal", "age >", 5, "number, string, TRUE or FALSE"},
		{"identifier as literal", "age > limit", 6, "number, string, TRUE or FALSE"},
		{"unclosed paren", "(age > 30", 9, "')'"},
		{"stray closing paren", "age > 30)", 8, "AND, OR or end of input"},
		{"adjacent comparisons", "a = 1 b = 2", 6, "AND, OR or end of input"},
		{"literal first", "30 < age", 0, "identifier, NOT or '('"},
		{"empty group", "()", 1, "identifier, NOT or '('"},
		{"dangling not", "NOT", 3, "identifier, NOT or '('"},
		{"doubled operator", "age >> 30", 5, "number, string, TRUE or FALSE"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.in)
			var syntaxErr *SyntaxError
			if !errors.As(err, &syntaxErr) {
				t.Fatalf("Parse(%q) error = %v, want *SyntaxError", tt.in, err)
			}
			if syntaxErr.Pos != tt.pos {
				t.Errorf("Parse(%q) error position = %d, want %d", tt.in, syntaxErr.Pos, tt.pos)
			}
			if syntaxErr.Expected != tt.expected {
				t.Errorf("Parse(%q) expected = %q, want %q", tt.in, syntaxErr.Expected, tt.expected)
			}
			if KindOf(err) != KindSyntax {
				t.Errorf("KindOf() = %q, want %q", KindOf(err), KindSyntax)
			}
		})
	}
}

func TestParseLexErrors(t *testing.T) {
	for _, in := range []string{
		"name = 'Bob",
		"age > 3 && b = 1",
		"age ! 3",
	} {
		_, err := Parse(in)
		var lexErr *LexError
		if !errors.As(err, &lexErr) {
			t.Errorf("Parse(%q) error = %v, want *LexError", in, err)
		}
		if !IsParseError(err) {
			t.Errorf("IsParseError(%v) = false, want true", err)
		}
	}
}

func TestParseTokensWithoutEOF(t *testing.T) {
	tokens := []Token{
		{Kind: TokenIdent, Text: "age", Pos: 0},
		{Kind: TokenGt, Text: ">", Pos: 4},
		{Kind: TokenNumber, Text: "30", Pos: 6, Num: 30},
	}
	got, err := ParseTokens(tokens)
	if err != nil {
		t.Fatalf("ParseTokens() failed: %v", err)
	}
	if diff := cmp.Diff(cmpNode("age", OpGt, Number(30)), got); diff != "" {
		t.Errorf("ParseTokens() mismatch (-want +got):\n%s", diff)
	}
	if len(tokens) != 3 {
		t.Errorf("ParseTokens() modified its input")
	}
}

func TestAttributesAndSize(t *testing.T) {
	n, err := Parse("age > 1 AND (dept = 'x' OR NOT age < 5) AND city = 'y'")
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if diff := cmp.Diff([]string{"age", "dept", "city"}, Attributes(n)); diff != "" {
		t.Errorf("Attributes() mismatch (-want +got):\n%s", diff)
	}
	// AND, age, OR, dept, NOT, age, city
	if got := Size(n); got != 7 {
		t.Errorf("Size() = %d, want 7", got)
	}
}
