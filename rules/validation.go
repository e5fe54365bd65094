package rules

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/liamcoop/eligibility/expr"
)

const (
	MaxNameLength       = 255
	MaxRuleStringLength = 4096
	MaxCombineRules     = 100
	MaxRecordAttributes = 1000

	DefaultRuleName     = "Unnamed Rule"
	DefaultCombinedName = "Combined Rule"
)

// normalizeName trims the name, falls back to def when it is empty and
// rejects names that are too long or contain control characters.
func normalizeName(name, def string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return def, nil
	}
	if n := utf8.RuneCountInString(name); n > MaxNameLength {
		return "", invalid("name", "length %d exceeds maximum of %d characters", n, MaxNameLength)
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return "", invalid("name", "must not contain control characters")
	}
	return name, nil
}

// validateRuleString checks size limits only; the parser owns the syntax.
func validateRuleString(s string) error {
	if strings.TrimSpace(s) == "" {
		return invalid("rule_string", "cannot be empty")
	}
	if len(s) > MaxRuleStringLength {
		return invalid("rule_string", "length %d exceeds maximum of %d bytes", len(s), MaxRuleStringLength)
	}
	return nil
}

// parseOperator accepts AND or OR in any case. An empty operator means OR.
func parseOperator(op string) (expr.LogicalOp, error) {
	if strings.TrimSpace(op) == "" {
		return expr.Or, nil
	}
	parsed, err := expr.ParseLogicalOp(op)
	if err != nil {
		return "", invalid("operator", "%q must be AND or OR", op)
	}
	return parsed, nil
}

// validateRuleIDs requires between 1 and MaxCombineRules non-empty ids. Ids
// that name no rule are left for the lookup to report.
func validateRuleIDs(ids []string) error {
	if len(ids) == 0 {
		return invalid("rule_ids", "at least one rule id is required")
	}
	if len(ids) > MaxCombineRules {
		return invalid("rule_ids", "%d ids exceed maximum of %d", len(ids), MaxCombineRules)
	}
	for i, id := range ids {
		if strings.TrimSpace(id) == "" {
			return invalid("rule_ids", "element %d is empty", i)
		}
	}
	return nil
}

// validateRecord bounds the record size. Values are checked lazily by the
// evaluator, so attributes a rule never reads may hold anything.
func validateRecord(rec expr.Record) error {
	if rec == nil {
		return invalid("data", "is required")
	}
	if len(rec) > MaxRecordAttributes {
		return invalid("data", "%d attributes exceed maximum of %d", len(rec), MaxRecordAttributes)
	}
	for key := range rec {
		if strings.TrimSpace(key) == "" {
			return invalid("data", "attribute names cannot be empty")
		}
	}
	return nil
}
