package rules

import (
	"time"

	"github.com/liamcoop/eligibility/expr"
)

// Kind distinguishes rules parsed from a rule string from rules built by
// combining other rules.
type Kind string

const (
	KindSimple   Kind = "simple"
	KindCombined Kind = "combined"
)

// Rule is a stored eligibility rule. Rules are immutable once stored apart
// from the Active flag; treat values returned by a RuleStore as read-only.
type Rule struct {
	ID         string
	Name       string
	RuleString string
	AST        expr.Node
	Kind       Kind

	// Operator and SourceRuleIDs are set for combined rules only.
	Operator      expr.LogicalOp
	SourceRuleIDs []string

	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EvaluationResult contains the outcome of evaluating a rule against one
// data record. Error is set when the evaluation failed, in which case Matched
// is false.
type EvaluationResult struct {
	RuleID     string
	RuleName   string
	RuleString string
	Matched    bool
	Error      error
	Duration   time.Duration
}
