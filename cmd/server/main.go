package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/liamcoop/eligibility/celexport"
	"github.com/liamcoop/eligibility/expr"
	"github.com/liamcoop/eligibility/internal/config"
	"github.com/liamcoop/eligibility/internal/logger"
	"github.com/liamcoop/eligibility/internal/metrics"
	"github.com/liamcoop/eligibility/migrations"
	"github.com/liamcoop/eligibility/rules"
)

// maxBodyBytes bounds request bodies; batch requests are the largest.
const maxBodyBytes = 4 << 20

type Server struct {
	engine  *rules.Engine
	store   rules.RuleStore
	metrics *metrics.Metrics
	config  config.ServerConfig
	router  *chi.Mux
}

func NewServer(engine *rules.Engine, store rules.RuleStore, m *metrics.Metrics, cfg config.ServerConfig) *Server {
	s := &Server{
		engine:  engine,
		store:   store,
		metrics: m,
		config:  cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if s.config.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.config.RequestTimeout))
	}

	// Health check and metrics
	r.Get("/api/v1/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1/rules", func(r chi.Router) {
		r.Get("/", s.handleListRules)
		r.Post("/", s.handleCreateRule)
		r.Post("/combine", s.handleCombineRules)

		// Evaluation
		r.Post("/evaluate", s.handleEvaluate)
		r.Post("/evaluate/batch", s.handleEvaluateBatch)
		r.Post("/evaluate/all", s.handleEvaluateAll)

		r.Route("/{ruleId}", func(r chi.Router) {
			r.Get("/", s.handleGetRule)
			r.Delete("/", s.handleDeleteRule)
			r.Put("/active", s.handleSetActive)
			r.Get("/cel", s.handleExportCEL)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger logs each request and feeds the logger's HTTP counters.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", duration,
			"request_id", middleware.GetReqID(r.Context()),
		}

		switch {
		case status >= 500:
			logger.ErrorHttp5xx()
			logger.Error("http request failed", args...)
		case status >= 400:
			logger.WarnHttp4xx(status)
			logger.Debug("http request rejected", args...)
		default:
			logger.Debug("http request", args...)
		}

		if s.config.SlowRequest > 0 && duration > s.config.SlowRequest {
			logger.WarnSlowRequest()
			logger.Warn("slow http request", args...)
		}
	})
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.store.(interface{ Ping() error }); ok {
		if err := p.Ping(); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
	})
}

// List rules handler. Only active rules are listed unless active_only is
// anything other than "true".
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	activeOnly := true
	if v := r.URL.Query().Get("active_only"); v != "" {
		activeOnly = strings.EqualFold(v, "true")
	}

	list, err := s.engine.ListRules(activeOnly)
	if err != nil {
		respondEngineError(w, "failed to list rules", err)
		return
	}

	resp := make([]RuleResponse, 0, len(list))
	for _, rule := range list {
		rr, err := toRuleResponse(rule)
		if err != nil {
			respondEngineError(w, "failed to encode rule", err)
			return
		}
		resp = append(resp, rr)
	}
	respondJSON(w, http.StatusOK, resp)
}

// Create rule handler
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rule, err := s.engine.CreateRule(req.Name, req.RuleString)
	if err != nil {
		respondEngineError(w, "failed to create rule", err)
		return
	}
	respondRule(w, http.StatusCreated, rule)
}

// Combine rules handler
func (s *Server) handleCombineRules(w http.ResponseWriter, r *http.Request) {
	var req CombineRulesRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rule, err := s.engine.CombineRules(req.Name, req.Operator, req.RuleIDs)
	if err != nil {
		respondEngineError(w, "failed to combine rules", err)
		return
	}
	respondRule(w, http.StatusCreated, rule)
}

// Get rule handler
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.engine.GetRule(chi.URLParam(r, "ruleId"))
	if err != nil {
		respondEngineError(w, "rule not found", err)
		return
	}
	respondRule(w, http.StatusOK, rule)
}

// Delete rule handler
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteRule(chi.URLParam(r, "ruleId")); err != nil {
		respondEngineError(w, "failed to delete rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Activate or deactivate rule handler
func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req SetActiveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Active == nil {
		respondError(w, http.StatusBadRequest, "active is required", rules.KindValidation, nil)
		return
	}

	rule, err := s.engine.SetActive(chi.URLParam(r, "ruleId"), *req.Active)
	if err != nil {
		respondEngineError(w, "failed to update rule", err)
		return
	}
	respondRule(w, http.StatusOK, rule)
}

// CEL export handler
func (s *Server) handleExportCEL(w http.ResponseWriter, r *http.Request) {
	rule, err := s.engine.GetRule(chi.URLParam(r, "ruleId"))
	if err != nil {
		respondEngineError(w, "rule not found", err)
		return
	}

	src, err := celexport.Translate(rule.AST)
	if errors.Is(err, celexport.ErrReservedAttribute) {
		respondError(w, http.StatusUnprocessableEntity, "rule cannot be expressed in CEL", "", err)
		return
	}
	if err != nil {
		respondEngineError(w, "failed to export rule", err)
		return
	}

	respondJSON(w, http.StatusOK, CELResponse{
		RuleID:     rule.ID,
		Expression: src,
		Variables:  expr.Attributes(rule.AST),
	})
}

// Evaluation handler
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RuleID == "" {
		respondError(w, http.StatusBadRequest, "rule_id is required", rules.KindValidation, nil)
		return
	}

	result, err := s.engine.Evaluate(req.RuleID, req.Data)
	if err != nil {
		respondEngineError(w, "failed to evaluate rule", err)
		return
	}
	respondJSON(w, http.StatusOK, EvaluateResponse{
		Result:     result.Matched,
		RuleString: result.RuleString,
	})
}

// Batch evaluation handler
func (s *Server) handleEvaluateBatch(w http.ResponseWriter, r *http.Request) {
	var req EvaluateBatchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RuleID == "" {
		respondError(w, http.StatusBadRequest, "rule_id is required", rules.KindValidation, nil)
		return
	}

	start := time.Now()
	results, err := s.engine.EvaluateBatch(req.RuleID, req.Records)
	if err != nil {
		respondEngineError(w, "failed to evaluate records", err)
		return
	}

	resp := ResultsResponse{
		Results:        make([]ResultResponse, len(results)),
		EvaluationTime: time.Since(start).String(),
	}
	for i, result := range results {
		resp.Results[i] = toResultResponse(result)
		resp.Results[i].Index = &i
	}
	respondJSON(w, http.StatusOK, resp)
}

// Evaluate-all handler
func (s *Server) handleEvaluateAll(w http.ResponseWriter, r *http.Request) {
	var req EvaluateAllRequest
	if !decodeBody(w, r, &req) {
		return
	}

	start := time.Now()
	results, err := s.engine.EvaluateAll(req.Data)
	if err != nil {
		respondEngineError(w, "failed to evaluate rules", err)
		return
	}

	resp := ResultsResponse{
		Results:        make([]ResultResponse, 0, len(results)),
		EvaluationTime: time.Since(start).String(),
	}
	for _, result := range results {
		resp.Results = append(resp.Results, toResultResponse(result))
	}
	respondJSON(w, http.StatusOK, resp)
}

// Helper functions

// decodeBody decodes a JSON request body into v, writing a 400 response and
// returning false on failure. Numbers keep their text so large integers in
// records are not rounded before the evaluator sees them.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		msg := "invalid request body"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		respondError(w, http.StatusBadRequest, msg, rules.KindValidation, err)
		return false
	}
	return true
}

// statusForKind maps an error kind to its HTTP status.
func statusForKind(kind expr.ErrorKind) int {
	switch kind {
	case rules.KindValidation,
		expr.KindLex,
		expr.KindSyntax,
		expr.KindMissingAttribute,
		expr.KindTypeMismatch,
		expr.KindInvalidTree:
		return http.StatusBadRequest
	case rules.KindNotFound, expr.KindUnknownRuleID:
		return http.StatusNotFound
	case rules.KindDuplicate:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondEngineError(w http.ResponseWriter, message string, err error) {
	kind := rules.ErrorKind(err)
	status := statusForKind(kind)
	if status >= 500 {
		// Storage failures are logged by the engine; keep them out of responses.
		respondError(w, status, message, kind, nil)
		return
	}
	respondError(w, status, message, kind, err)
}

func respondRule(w http.ResponseWriter, status int, rule *rules.Rule) {
	resp, err := toRuleResponse(rule)
	if err != nil {
		logger.Error("failed to encode rule", "rule_id", rule.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to encode rule", expr.KindInternal, nil)
		return
	}
	respondJSON(w, status, resp)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, kind expr.ErrorKind, err error) {
	response := ErrorResponse{
		Error: message,
		Kind:  kind,
	}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}

// openStore returns the rule store selected by cfg. The closer is nil for the
// in-memory store.
func openStore(cfg config.DatabaseConfig) (rules.RuleStore, io.Closer, error) {
	if cfg.Driver == "memory" {
		return rules.NewInMemoryRuleStore(), nil, nil
	}

	dialect := rules.Postgres
	if cfg.IsSQLite() {
		dialect = rules.SQLite
	}
	db, err := rules.OpenDB(dialect, cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Migrate {
		if err := migrations.Up(db, cfg.Driver); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("database migrations applied", "driver", cfg.Driver)
	}
	return rules.NewSQLRuleStore(db, dialect), db, nil
}

func engineConfig(cfg *config.Config) rules.EngineConfig {
	return rules.EngineConfig{
		Cache: rules.CacheConfig{
			TTL:        cfg.Cache.TTL,
			MaxEntries: cfg.Cache.MaxEntries,
		},
		BatchConcurrency: cfg.Evaluation.BatchConcurrency,
		MaxBatch:         cfg.Evaluation.MaxBatch,
	}
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default: ./rules.yaml if present)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}

	ctx := context.Background()
	if err := logger.Configure(ctx, logger.Options{
		Level:       cfg.Log.Level,
		SampleRate:  cfg.Log.ErrorSampleRate,
		OTEL:        cfg.Log.OTEL,
		ServiceName: cfg.Log.ServiceName,
	}); err != nil {
		logger.Error("failed to configure logging, continuing with JSON logs", "error", err)
	}

	store, closer, err := openStore(cfg.Database)
	if err != nil {
		logger.Fatal("failed to open rule store", "driver", cfg.Database.Driver, "error", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	m := metrics.New()
	engine := rules.NewEngineWithConfig(store, engineConfig(cfg), m)
	server := NewServer(engine, store, m, cfg.Server)

	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port, "driver", cfg.Database.Driver)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := logger.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "logger shutdown: %v\n", err)
	}

	logger.Info("server stopped")
}
