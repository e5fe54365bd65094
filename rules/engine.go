package rules

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/liamcoop/eligibility/expr"
	"github.com/liamcoop/eligibility/internal/logger"
	"github.com/liamcoop/eligibility/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// EngineConfig tunes an Engine.
type EngineConfig struct {
	Cache CacheConfig

	// BatchConcurrency bounds the goroutines used by EvaluateBatch.
	BatchConcurrency int

	// MaxBatch bounds the number of records accepted by EvaluateBatch.
	MaxBatch int
}

// DefaultEngineConfig returns the defaults used by NewEngine.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Cache:            DefaultCacheConfig(),
		BatchConcurrency: 8,
		MaxBatch:         1000,
	}
}

// Engine is the rule service: it parses, stores, combines and evaluates
// rules. It is safe for concurrent use.
type Engine struct {
	store   RuleStore
	cache   RulesCache
	metrics *metrics.Metrics
	config  EngineConfig

	// fillMu orders cache fills against deactivation and deletion: a fill
	// holds the read lock from store read to cache write, and SetActive and
	// DeleteRule hold the write lock until the entry is invalidated.
	fillMu sync.RWMutex
}

// NewEngine creates an engine over store with default settings and no metrics.
func NewEngine(store RuleStore) *Engine {
	return NewEngineWithConfig(store, DefaultEngineConfig(), nil)
}

// NewEngineWithConfig creates an engine. m may be nil.
func NewEngineWithConfig(store RuleStore, config EngineConfig, m *metrics.Metrics) *Engine {
	if config.BatchConcurrency < 1 {
		config.BatchConcurrency = 1
	}
	if config.MaxBatch < 1 {
		config.MaxBatch = DefaultEngineConfig().MaxBatch
	}
	return &Engine{
		store:   store,
		cache:   NewInMemoryRulesCache(config.Cache),
		metrics: m,
		config:  config,
	}
}

// fail records err against op and returns it unchanged.
func (en *Engine) fail(op string, err error) error {
	kind := ErrorKind(err)
	en.metrics.EngineError(string(kind))
	switch {
	case kind == expr.KindInternal:
		logger.Error("rule engine failure", "op", op, "error", err)
	case expr.IsParseError(err):
		logger.Debug("rule string rejected", "op", op, "kind", kind, "error", err)
	case expr.IsEvaluationError(err):
		logger.Debug("rule evaluation failed", "op", op, "kind", kind, "error", err)
	default:
		logger.Debug("rule engine request rejected", "op", op, "kind", kind, "error", err)
	}
	return err
}

// CreateRule parses ruleString and stores it as a new active rule. An empty
// name becomes DefaultRuleName.
func (en *Engine) CreateRule(name, ruleString string) (*Rule, error) {
	name, err := normalizeName(name, DefaultRuleName)
	if err != nil {
		return nil, en.fail("create", err)
	}
	if err := validateRuleString(ruleString); err != nil {
		return nil, en.fail("create", err)
	}

	ast, err := expr.Parse(ruleString)
	if err != nil {
		return nil, en.fail("create", err)
	}

	rule := &Rule{
		ID:         uuid.NewString(),
		Name:       name,
		RuleString: ruleString,
		AST:        ast,
		Kind:       KindSimple,
		Active:     true,
	}
	if err := en.store.Add(rule); err != nil {
		return nil, en.fail("create", err)
	}

	en.metrics.RuleCreated()
	logger.Info("rule created", "rule_id", rule.ID, "name", rule.Name, "nodes", expr.Size(ast))
	return rule, nil
}

// CombineRules joins the trees of the given active rules under operator and
// stores the result as a new rule. An empty operator means OR and an empty
// name becomes DefaultCombinedName. The stored rule string joins the source
// strings, each parenthesized, for display.
func (en *Engine) CombineRules(name, operator string, ids []string) (*Rule, error) {
	op, err := parseOperator(operator)
	if err != nil {
		return nil, en.fail("combine", err)
	}
	name, err = normalizeName(name, DefaultCombinedName)
	if err != nil {
		return nil, en.fail("combine", err)
	}
	if err := validateRuleIDs(ids); err != nil {
		return nil, en.fail("combine", err)
	}

	sources := make([]string, 0, len(ids))
	lookup := expr.LookupFunc(func(id string) (expr.Node, bool, error) {
		r, err := en.activeRule(id)
		if errors.Is(err, ErrRuleNotFound) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		sources = append(sources, r.RuleString)
		return r.AST, true, nil
	})

	tree, err := expr.CombineRules(op, ids, lookup)
	if err != nil {
		return nil, en.fail("combine", err)
	}

	rule := &Rule{
		ID:            uuid.NewString(),
		Name:          name,
		RuleString:    "(" + strings.Join(sources, ") "+string(op)+" (") + ")",
		AST:           tree,
		Kind:          KindCombined,
		Operator:      op,
		SourceRuleIDs: append([]string(nil), ids...),
		Active:        true,
	}
	if err := en.store.Add(rule); err != nil {
		return nil, en.fail("combine", err)
	}

	en.metrics.RuleCombined()
	logger.Info("rules combined", "rule_id", rule.ID, "name", rule.Name, "operator", op, "sources", len(ids))
	return rule, nil
}

// activeRule resolves id through the cache. Inactive rules are reported as
// ErrRuleNotFound.
func (en *Engine) activeRule(id string) (*Rule, error) {
	if r := en.cache.Get(id); r != nil {
		en.metrics.CacheLookup(true)
		return r, nil
	}
	en.metrics.CacheLookup(false)

	en.fillMu.RLock()
	defer en.fillMu.RUnlock()

	r, err := en.store.Get(id)
	if err != nil {
		return nil, err
	}
	if !r.Active {
		return nil, fmt.Errorf("%w: %s is inactive", ErrRuleNotFound, id)
	}
	en.cache.Set(r)
	return r, nil
}

// Evaluate applies an active rule to one record. When evaluation itself fails
// the result is returned alongside the error with Matched false.
func (en *Engine) Evaluate(ruleID string, rec expr.Record) (*EvaluationResult, error) {
	if err := validateRecord(rec); err != nil {
		return nil, en.fail("evaluate", err)
	}
	rule, err := en.activeRule(ruleID)
	if err != nil {
		return nil, en.fail("evaluate", err)
	}
	return en.evaluate(rule, rec)
}

func (en *Engine) evaluate(rule *Rule, rec expr.Record) (*EvaluationResult, error) {
	start := time.Now()
	matched, err := expr.Evaluate(rule.AST, rec)
	result := &EvaluationResult{
		RuleID:     rule.ID,
		RuleName:   rule.Name,
		RuleString: rule.RuleString,
		Matched:    matched && err == nil,
		Duration:   time.Since(start),
	}
	if err != nil {
		result.Error = err
		en.metrics.ObserveEvaluation("error", result.Duration)
		return result, en.fail("evaluate", err)
	}
	en.metrics.ObserveEvaluation(strconv.FormatBool(matched), result.Duration)
	return result, nil
}

// EvaluateBatch applies one active rule to many records concurrently. The
// rule is resolved once; the results are in input order and per-record
// failures are reported in EvaluationResult.Error rather than failing the
// batch.
func (en *Engine) EvaluateBatch(ruleID string, records []expr.Record) ([]*EvaluationResult, error) {
	if len(records) == 0 {
		return nil, en.fail("evaluate_batch", invalid("records", "at least one record is required"))
	}
	if len(records) > en.config.MaxBatch {
		return nil, en.fail("evaluate_batch", invalid("records", "%d records exceed maximum of %d", len(records), en.config.MaxBatch))
	}
	rule, err := en.activeRule(ruleID)
	if err != nil {
		return nil, en.fail("evaluate_batch", err)
	}

	results := make([]*EvaluationResult, len(records))
	var g errgroup.Group
	g.SetLimit(en.config.BatchConcurrency)
	for i, rec := range records {
		g.Go(func() error {
			if err := validateRecord(rec); err != nil {
				results[i] = &EvaluationResult{RuleID: rule.ID, RuleName: rule.Name, RuleString: rule.RuleString, Error: err}
				return nil
			}
			results[i], _ = en.evaluate(rule, rec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, en.fail("evaluate_batch", err)
	}
	return results, nil
}

// EvaluateAll applies every active rule to one record, newest rule first.
// Evaluation errors are captured per rule and do not stop the others.
func (en *Engine) EvaluateAll(rec expr.Record) ([]*EvaluationResult, error) {
	if err := validateRecord(rec); err != nil {
		return nil, en.fail("evaluate_all", err)
	}
	active, err := en.store.List(true)
	if err != nil {
		return nil, en.fail("evaluate_all", err)
	}

	results := make([]*EvaluationResult, 0, len(active))
	for _, rule := range active {
		result, _ := en.evaluate(rule, rec)
		results = append(results, result)
	}
	return results, nil
}

// GetRule returns a rule by id, active or not.
func (en *Engine) GetRule(id string) (*Rule, error) {
	r, err := en.store.Get(id)
	if err != nil {
		return nil, en.fail("get", err)
	}
	return r, nil
}

// ListRules returns rules newest first.
func (en *Engine) ListRules(activeOnly bool) ([]*Rule, error) {
	list, err := en.store.List(activeOnly)
	if err != nil {
		return nil, en.fail("list", err)
	}
	return list, nil
}

// SetActive activates or deactivates a rule and returns its new state.
// Combined rules that embed it keep their copy of its tree.
func (en *Engine) SetActive(id string, active bool) (*Rule, error) {
	en.fillMu.Lock()
	err := en.store.SetActive(id, active)
	en.cache.Invalidate(id)
	en.fillMu.Unlock()
	if err != nil {
		return nil, en.fail("set_active", err)
	}
	logger.Info("rule activation changed", "rule_id", id, "active", active)
	return en.GetRule(id)
}

// DeleteRule removes a rule. Combined rules built from it still evaluate.
func (en *Engine) DeleteRule(id string) error {
	en.fillMu.Lock()
	err := en.store.Delete(id)
	en.cache.Invalidate(id)
	en.fillMu.Unlock()
	if err != nil {
		return en.fail("delete", err)
	}
	logger.Info("rule deleted", "rule_id", id)
	return nil
}
