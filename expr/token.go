package expr

import "fmt"

// TokenKind identifies the lexical class of a token.
type TokenKind uint8

const (
	TokenEOF TokenKind = iota
	TokenIdent
	TokenString
	TokenNumber
	TokenBool

	// Comparison operators
	TokenGt // >
	TokenLt // <
	TokenGe // >=
	TokenLe // <=
	TokenEq // =
	TokenNe // !=

	// Logical operators
	TokenAnd
	TokenOr
	TokenNot

	// Delimiters
	TokenLParen
	TokenRParen
)

var tokenNames = map[TokenKind]string{
	TokenEOF:    "end of input",
	TokenIdent:  "identifier",
	TokenString: "string",
	TokenNumber: "number",
	TokenBool:   "boolean",
	TokenGt:     ">",
	TokenLt:     "<",
	TokenGe:     ">=",
	TokenLe:     "<=",
	TokenEq:     "=",
	TokenNe:     "!=",
	TokenAnd:    "AND",
	TokenOr:     "OR",
	TokenNot:    "NOT",
	TokenLParen: "(",
	TokenRParen: ")",
}

// String returns a human-readable name for the token kind.
func (k TokenKind) String() string {
	if name, ok := tokenNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TokenKind(%d)", uint8(k))
}

// IsComparison reports whether the kind is one of the six comparison operators.
func (k TokenKind) IsComparison() bool {
	return k >= TokenGt && k <= TokenNe
}

// Token is a single lexical unit of a rule string.
//
// Text holds the source text of the token, except for string literals where
// it holds the unquoted contents. Num is set for TokenNumber and Bool for
// TokenBool. Pos is the byte offset of the token's first character.
type Token struct {
	Kind TokenKind
	Text string
	Pos  int
	Num  float64
	Bool bool
}

// describe renders the token for error messages.
func (t Token) describe() string {
	switch t.Kind {
	case TokenEOF:
		return t.Kind.String()
	case TokenString:
		return fmt.Sprintf("string %q", t.Text)
	case TokenIdent, TokenNumber, TokenBool:
		return fmt.Sprintf("%s %q", t.Kind, t.Text)
	default:
		return fmt.Sprintf("%q", t.Text)
	}
}
