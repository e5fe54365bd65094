package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/liamcoop/eligibility/expr"
	"github.com/liamcoop/eligibility/internal/config"
	"github.com/liamcoop/eligibility/internal/metrics"
	"github.com/liamcoop/eligibility/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := rules.NewInMemoryRuleStore()
	m := metrics.New()
	engine := rules.NewEngineWithConfig(store, rules.DefaultEngineConfig(), m)
	return NewServer(engine, store, m, config.ServerConfig{
		RequestTimeout: 5 * time.Second,
		SlowRequest:    time.Second,
	})
}

// doRequest sends body (if any) as JSON and returns the recorded response.
func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func createRule(t *testing.T, s *Server, name, ruleString string) RuleResponse {
	t.Helper()
	rec := doRequest(t, s, http.MethodPost, "/api/v1/rules", CreateRuleRequest{Name: name, RuleString: ruleString})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[RuleResponse](t, rec)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]any](t, rec)["status"])
}

func TestCreateRule(t *testing.T) {
	s := newTestServer(t)

	rule := createRule(t, s, "Senior sales", "(age > 30 AND department = 'Sales')")
	assert.NotEmpty(t, rule.ID)
	assert.Equal(t, "Senior sales", rule.Name)
	assert.Equal(t, "(age > 30 AND department = 'Sales')", rule.RuleString)
	assert.Equal(t, rules.KindSimple, rule.Kind)
	assert.True(t, rule.IsActive)

	tree, err := expr.DecodeJSON(rule.AST)
	require.NoError(t, err)
	assert.Equal(t, []string{"age", "department"}, expr.Attributes(tree))
}

func TestCreateRuleErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		wantCode int
		wantKind expr.ErrorKind
	}{
		{"invalid operator", CreateRuleRequest{RuleString: "age >> 30"}, http.StatusBadRequest, expr.KindSyntax},
		{"missing paren", CreateRuleRequest{RuleString: "(age > 30 AND department = 'Sales'"}, http.StatusBadRequest, expr.KindSyntax},
		{"bad character", CreateRuleRequest{RuleString: "age # 30"}, http.StatusBadRequest, expr.KindLex},
		{"missing rule string", CreateRuleRequest{Name: "x"}, http.StatusBadRequest, rules.KindValidation},
		{"malformed json", `{"rule_string": `, http.StatusBadRequest, rules.KindValidation},
		{"empty body", "", http.StatusBadRequest, rules.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			rec := doRequest(t, s, http.MethodPost, "/api/v1/rules", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)

			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, tt.wantKind, resp.Kind)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestSyntaxErrorDetails(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/rules", CreateRuleRequest{RuleString: "age >> 30"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Details, "position 5")
}

func TestListAndGetRules(t *testing.T) {
	s := newTestServer(t)
	first := createRule(t, s, "first", "a = 1")
	time.Sleep(2 * time.Millisecond)
	second := createRule(t, s, "second", "b = 2")

	rec := doRequest(t, s, http.MethodPut, "/api/v1/rules/"+first.ID+"/active", map[string]bool{"active": false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decode[RuleResponse](t, rec).IsActive)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	active := decode[[]RuleResponse](t, rec)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/rules?active_only=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[[]RuleResponse](t, rec)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")

	rec = doRequest(t, s, http.MethodGet, "/api/v1/rules/"+first.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[RuleResponse](t, rec)
	assert.Equal(t, "a = 1", got.RuleString)
	assert.False(t, got.IsActive)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/rules/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, rules.KindNotFound, decode[ErrorResponse](t, rec).Kind)
}

func TestListRulesEmpty(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestSetActiveRequiresField(t *testing.T) {
	s := newTestServer(t)
	rule := createRule(t, s, "", "a = 1")

	rec := doRequest(t, s, http.MethodPut, "/api/v1/rules/"+rule.ID+"/active", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteRule(t *testing.T) {
	s := newTestServer(t)
	rule := createRule(t, s, "", "a = 1")

	rec := doRequest(t, s, http.MethodDelete, "/api/v1/rules/"+rule.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, s, http.MethodDelete, "/api/v1/rules/"+rule.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCombineAndEvaluate(t *testing.T) {
	s := newTestServer(t)
	r1 := createRule(t, s, "", "age > 30")
	r2 := createRule(t, s, "", "salary > 50000")

	rec := doRequest(t, s, http.MethodPost, "/api/v1/rules/combine", CombineRulesRequest{
		RuleIDs: []string{r1.ID, r2.ID},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	combined := decode[RuleResponse](t, rec)
	assert.Equal(t, rules.DefaultCombinedName, combined.Name)
	assert.Equal(t, expr.Or, combined.Operator)
	assert.Equal(t, rules.KindCombined, combined.Kind)
	assert.Equal(t, []string{r1.ID, r2.ID}, combined.SourceRuleIDs)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/rules/evaluate", map[string]any{
		"rule_id": combined.ID,
		"data":    map[string]any{"age": 20, "salary": 60000},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[EvaluateResponse](t, rec)
	assert.True(t, resp.Result)
	assert.Equal(t, "(age > 30) OR (salary > 50000)", resp.RuleString)
}

func TestCombineErrors(t *testing.T) {
	s := newTestServer(t)
	r1 := createRule(t, s, "", "a = 1")

	tests := []struct {
		name     string
		req      CombineRulesRequest
		wantCode int
		wantKind expr.ErrorKind
	}{
		{"no ids", CombineRulesRequest{}, http.StatusBadRequest, rules.KindValidation},
		{"bad operator", CombineRulesRequest{Operator: "XOR", RuleIDs: []string{r1.ID}}, http.StatusBadRequest, rules.KindValidation},
		{"unknown id", CombineRulesRequest{RuleIDs: []string{r1.ID, "123e4567-e89b-12d3-a456-426614174000"}}, http.StatusNotFound, expr.KindUnknownRuleID},
		{"non-uuid id", CombineRulesRequest{RuleIDs: []string{r1.ID, "rule-42"}}, http.StatusNotFound, expr.KindUnknownRuleID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodPost, "/api/v1/rules/combine", tt.req)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantKind, decode[ErrorResponse](t, rec).Kind)
		})
	}
}

func TestEvaluateScenarios(t *testing.T) {
	s := newTestServer(t)
	rule := createRule(t, s, "", "(age > 30 AND department = 'Sales')")

	tests := []struct {
		name       string
		data       map[string]any
		wantCode   int
		wantResult bool
		wantKind   expr.ErrorKind
	}{
		{"match", map[string]any{"age": 35, "department": "Sales"}, http.StatusOK, true, ""},
		{"no match", map[string]any{"age": 25, "department": "Sales"}, http.StatusOK, false, ""},
		{"numeric string", map[string]any{"age": "35", "department": "Sales"}, http.StatusOK, true, ""},
		{"missing attribute", map[string]any{"department": "Sales"}, http.StatusBadRequest, false, expr.KindMissingAttribute},
		{"type mismatch", map[string]any{"age": "old", "department": "Sales"}, http.StatusBadRequest, false, expr.KindTypeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodPost, "/api/v1/rules/evaluate", map[string]any{
				"rule_id": rule.ID,
				"data":    tt.data,
			})
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, tt.wantResult, decode[EvaluateResponse](t, rec).Result)
				return
			}
			assert.Equal(t, tt.wantKind, decode[ErrorResponse](t, rec).Kind)
		})
	}
}

func TestEvaluateRequestErrors(t *testing.T) {
	s := newTestServer(t)
	rule := createRule(t, s, "", "a = 1")

	rec := doRequest(t, s, http.MethodPost, "/api/v1/rules/evaluate", map[string]any{"data": map[string]any{"a": 1}})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing rule_id")

	rec = doRequest(t, s, http.MethodPost, "/api/v1/rules/evaluate", map[string]any{"rule_id": rule.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing data")

	rec = doRequest(t, s, http.MethodPost, "/api/v1/rules/evaluate", map[string]any{
		"rule_id": "123e4567-e89b-12d3-a456-426614174000",
		"data":    map[string]any{"a": 1},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code, "unknown rule")
}

func TestEvaluateBatch(t *testing.T) {
	s := newTestServer(t)
	rule := createRule(t, s, "", "age >= 18")

	rec := doRequest(t, s, http.MethodPost, "/api/v1/rules/evaluate/batch", map[string]any{
		"rule_id": rule.ID,
		"records": []map[string]any{
			{"age": 30},
			{"age": 12},
			{"name": "no age"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[ResultsResponse](t, rec)
	require.Len(t, resp.Results, 3)
	for i, r := range resp.Results {
		require.NotNil(t, r.Index)
		assert.Equal(t, i, *r.Index)
		assert.Equal(t, rule.ID, r.RuleID)
	}
	assert.True(t, resp.Results[0].Result)
	assert.False(t, resp.Results[1].Result)
	assert.Empty(t, resp.Results[1].Error)
	assert.Equal(t, expr.KindMissingAttribute, resp.Results[2].Kind)
	assert.NotEmpty(t, resp.EvaluationTime)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/rules/evaluate/batch", map[string]any{
		"rule_id": rule.ID,
		"records": []map[string]any{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvaluateAll(t *testing.T) {
	s := newTestServer(t)
	adult := createRule(t, s, "adult", "age >= 18")
	sales := createRule(t, s, "sales", "department = 'Sales'")

	rec := doRequest(t, s, http.MethodPost, "/api/v1/rules/evaluate/all", map[string]any{
		"data": map[string]any{"age": 40, "department": "HR"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[ResultsResponse](t, rec)
	require.Len(t, resp.Results, 2)
	byID := map[string]ResultResponse{}
	for _, r := range resp.Results {
		byID[r.RuleID] = r
	}
	assert.True(t, byID[adult.ID].Result)
	assert.False(t, byID[sales.ID].Result)
	assert.Nil(t, byID[adult.ID].Index)
}

func TestExportCEL(t *testing.T) {
	s := newTestServer(t)
	rule := createRule(t, s, "", "age > 30 AND NOT department = 'HR'")

	rec := doRequest(t, s, http.MethodGet, "/api/v1/rules/"+rule.ID+"/cel", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[CELResponse](t, rec)
	assert.Equal(t, `age > 30.0 && !(department == "HR")`, resp.Expression)
	assert.Equal(t, []string{"age", "department"}, resp.Variables)

	reserved := createRule(t, s, "", "in = 1")
	rec = doRequest(t, s, http.MethodGet, "/api/v1/rules/"+reserved.ID+"/cel", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	createRule(t, s, "", "a = 1")

	rec := doRequest(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rules_created_total 1")
}

func TestStatusForKind(t *testing.T) {
	tests := map[expr.ErrorKind]int{
		rules.KindValidation:      http.StatusBadRequest,
		expr.KindLex:              http.StatusBadRequest,
		expr.KindSyntax:           http.StatusBadRequest,
		expr.KindMissingAttribute: http.StatusBadRequest,
		expr.KindTypeMismatch:     http.StatusBadRequest,
		rules.KindNotFound:        http.StatusNotFound,
		expr.KindUnknownRuleID:    http.StatusNotFound,
		rules.KindDuplicate:       http.StatusConflict,
		expr.KindInternal:         http.StatusInternalServerError,
	}
	for kind, want := range tests {
		assert.Equal(t, want, statusForKind(kind), "kind %q", kind)
	}
}

func TestOpenStore(t *testing.T) {
	store, closer, err := openStore(config.DatabaseConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.IsType(t, &rules.InMemoryRuleStore{}, store)

	store, closer, err = openStore(config.DatabaseConfig{
		Driver:  "sqlite",
		URL:     t.TempDir() + "/rules.db",
		Migrate: true,
	})
	require.NoError(t, err)
	require.NotNil(t, closer)
	defer closer.Close()

	en := rules.NewEngine(store)
	rule, err := en.CreateRule("", "a = 1")
	require.NoError(t, err)
	_, err = en.GetRule(rule.ID)
	assert.NoError(t, err)
}
