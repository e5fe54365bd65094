package expr

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyCombination is returned when a combination names no rules.
	ErrEmptyCombination = errors.New("combination requires at least one rule")

	// ErrInvalidOperator is returned for a logical operator other than AND or OR.
	ErrInvalidOperator = errors.New("invalid logical operator")
)

// LexError reports a character the tokenizer cannot start a token with, a
// string literal whose closing quote is missing, or a number literal too
// large for a float64.
type LexError struct {
	Pos          int
	Char         rune
	Unterminated bool
	OutOfRange   bool
}

func (e *LexError) Error() string {
	if e.OutOfRange {
		return fmt.Sprintf("lex error at position %d: number out of range", e.Pos)
	}
	if e.Unterminated {
		return fmt.Sprintf("lex error at position %d: unterminated string starting with %q", e.Pos, e.Char)
	}
	return fmt.Sprintf("lex error at position %d: unexpected character %q", e.Pos, e.Char)
}

// SyntaxError reports a grammar violation at the token starting at Pos.
type SyntaxError struct {
	Pos      int
	Expected string
	Found    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at position %d: expected %s, found %s", e.Pos, e.Expected, e.Found)
}

// UnknownRuleIDError reports a rule id the lookup collaborator could not resolve.
type UnknownRuleIDError struct {
	ID string
}

func (e *UnknownRuleIDError) Error() string {
	return fmt.Sprintf("unknown rule id %q", e.ID)
}

// MissingAttributeError reports an attribute referenced by a comparison that
// is absent from the data record.
type MissingAttributeError struct {
	Attribute string
}

func (e *MissingAttributeError) Error() string {
	return fmt.Sprintf("attribute %q not found in data", e.Attribute)
}

// TypeMismatchError reports a comparison whose operands cannot be reconciled
// under the coercion policy.
type TypeMismatchError struct {
	Attribute string
	Expected  string
	Actual    string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch on attribute %q: expected %s, got %s", e.Attribute, e.Expected, e.Actual)
}

// ErrorKind classifies engine failures for callers that translate them into
// user-facing responses.
type ErrorKind string

const (
	KindNone             ErrorKind = ""
	KindLex              ErrorKind = "lex_error"
	KindSyntax           ErrorKind = "syntax_error"
	KindUnknownRuleID    ErrorKind = "unknown_rule_id"
	KindMissingAttribute ErrorKind = "missing_attribute"
	KindTypeMismatch     ErrorKind = "type_mismatch"
	KindInvalidTree      ErrorKind = "invalid_tree"
	KindInternal         ErrorKind = "internal"
)

// KindOf returns the kind of the first engine error found in err's chain.
// Errors that did not originate in this package are KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var (
		lexErr      *LexError
		syntaxErr   *SyntaxError
		unknownErr  *UnknownRuleIDError
		missingErr  *MissingAttributeError
		mismatchErr *TypeMismatchError
		treeErr     *InvalidTreeError
	)
	switch {
	case errors.As(err, &lexErr):
		return KindLex
	case errors.As(err, &syntaxErr):
		return KindSyntax
	case errors.As(err, &unknownErr):
		return KindUnknownRuleID
	case errors.As(err, &missingErr):
		return KindMissingAttribute
	case errors.As(err, &mismatchErr):
		return KindTypeMismatch
	case errors.As(err, &treeErr),
		errors.Is(err, ErrEmptyCombination),
		errors.Is(err, ErrInvalidOperator):
		return KindInvalidTree
	default:
		return KindInternal
	}
}

// IsParseError reports whether err is a tokenizer or parser failure.
func IsParseError(err error) bool {
	k := KindOf(err)
	return k == KindLex || k == KindSyntax
}

// IsEvaluationError reports whether err is scoped to a single evaluation.
func IsEvaluationError(err error) bool {
	k := KindOf(err)
	return k == KindMissingAttribute || k == KindTypeMismatch
}
