package rules

import (
	"errors"
	"fmt"

	"github.com/liamcoop/eligibility/expr"
)

var (
	// ErrRuleNotFound is returned for an unknown id, and by evaluation for a
	// rule that exists but is inactive.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrDuplicateRule is returned when adding a rule whose id is taken.
	ErrDuplicateRule = errors.New("rule already exists")
)

// ValidationError reports request input rejected before it reaches the
// parser or the store.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

const (
	KindValidation expr.ErrorKind = "validation_error"
	KindNotFound   expr.ErrorKind = "not_found"
	KindDuplicate  expr.ErrorKind = "duplicate"
)

// ErrorKind classifies any error returned by this package. Service errors are
// checked first, then the rule language's own kinds.
func ErrorKind(err error) expr.ErrorKind {
	var validationErr *ValidationError
	switch {
	case err == nil:
		return expr.KindNone
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.Is(err, ErrRuleNotFound):
		return KindNotFound
	case errors.Is(err, ErrDuplicateRule):
		return KindDuplicate
	default:
		return expr.KindOf(err)
	}
}
