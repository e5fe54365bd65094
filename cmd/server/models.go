package main

import (
	"encoding/json"
	"time"

	"github.com/liamcoop/eligibility/expr"
	"github.com/liamcoop/eligibility/rules"
)

// API request and response models

// CreateRuleRequest represents the request body for creating a rule
type CreateRuleRequest struct {
	Name       string `json:"name" example:"Senior sales"`
	RuleString string `json:"rule_string" example:"age > 30 AND department = 'Sales'"`
}

// CombineRulesRequest represents the request body for combining rules.
// Operator defaults to OR.
type CombineRulesRequest struct {
	Name     string   `json:"name" example:"Either check"`
	Operator string   `json:"operator" example:"AND"`
	RuleIDs  []string `json:"rule_ids"`
}

// SetActiveRequest represents the request body for activating or
// deactivating a rule
type SetActiveRequest struct {
	Active *bool `json:"active"`
}

// EvaluateRequest represents the request body for evaluating one record
type EvaluateRequest struct {
	RuleID string      `json:"rule_id"`
	Data   expr.Record `json:"data"`
}

// EvaluateBatchRequest represents the request body for evaluating many
// records against one rule
type EvaluateBatchRequest struct {
	RuleID  string        `json:"rule_id"`
	Records []expr.Record `json:"records"`
}

// EvaluateAllRequest represents the request body for evaluating one record
// against every active rule
type EvaluateAllRequest struct {
	Data expr.Record `json:"data"`
}

// RuleResponse represents a rule in API responses
type RuleResponse struct {
	ID            string          `json:"id" example:"123e4567-e89b-12d3-a456-426614174000"`
	Name          string          `json:"name" example:"Senior sales"`
	RuleString    string          `json:"rule_string" example:"age > 30 AND department = 'Sales'"`
	AST           json.RawMessage `json:"ast"`
	Kind          rules.Kind      `json:"kind" example:"simple"`
	Operator      expr.LogicalOp  `json:"operator,omitempty" example:"AND"`
	SourceRuleIDs []string        `json:"source_rule_ids,omitempty"`
	IsActive      bool            `json:"is_active" example:"true"`
	CreatedAt     time.Time       `json:"created_at" example:"2024-01-15T10:30:00Z"`
	UpdatedAt     time.Time       `json:"updated_at" example:"2024-01-15T10:30:00Z"`
}

// EvaluateResponse represents the outcome of a single evaluation
type EvaluateResponse struct {
	Result     bool   `json:"result"`
	RuleString string `json:"rule_string"`
}

// ResultResponse represents one entry of a batch or evaluate-all response
type ResultResponse struct {
	Index    *int           `json:"index,omitempty"`
	RuleID   string         `json:"rule_id"`
	RuleName string         `json:"rule_name"`
	Result   bool           `json:"result"`
	Error    string         `json:"error,omitempty"`
	Kind     expr.ErrorKind `json:"kind,omitempty"`
}

// ResultsResponse wraps batch and evaluate-all results
type ResultsResponse struct {
	Results        []ResultResponse `json:"results"`
	EvaluationTime string           `json:"evaluation_time"`
}

// CELResponse represents a rule exported as CEL
type CELResponse struct {
	RuleID     string   `json:"rule_id"`
	Expression string   `json:"expression" example:"age > 30.0 && department == \"Sales\""`
	Variables  []string `json:"variables"`
}

// ErrorResponse represents an error in API responses
type ErrorResponse struct {
	Error   string         `json:"error" example:"invalid rule"`
	Kind    expr.ErrorKind `json:"kind,omitempty" example:"syntax_error"`
	Details string         `json:"details,omitempty"`
}

func toRuleResponse(rule *rules.Rule) (RuleResponse, error) {
	ast, err := expr.EncodeJSON(rule.AST)
	if err != nil {
		return RuleResponse{}, err
	}
	return RuleResponse{
		ID:            rule.ID,
		Name:          rule.Name,
		RuleString:    rule.RuleString,
		AST:           ast,
		Kind:          rule.Kind,
		Operator:      rule.Operator,
		SourceRuleIDs: rule.SourceRuleIDs,
		IsActive:      rule.Active,
		CreatedAt:     rule.CreatedAt,
		UpdatedAt:     rule.UpdatedAt,
	}, nil
}

func toResultResponse(r *rules.EvaluationResult) ResultResponse {
	resp := ResultResponse{
		RuleID:   r.RuleID,
		RuleName: r.RuleName,
		Result:   r.Matched,
	}
	if r.Error != nil {
		resp.Error = r.Error.Error()
		resp.Kind = rules.ErrorKind(r.Error)
	}
	return resp
}
