package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/liamcoop/staffrules/internal/config"
	"github.com/liamcoop/staffrules/internal/logger"
	"github.com/liamcoop/staffrules/multitenantengine"
	"github.com/liamcoop/staffrules/roster"
	"github.com/liamcoop/staffrules/rules"
)

type Server struct {
	db      *sql.DB
	local   *sql.DB
	redis   *redis.Client
	manager *multitenantengine.Manager
	router  *chi.Mux
	timeout time.Duration
}

// NewServer opens the configured stores, loads every unit and sets up routes
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{timeout: cfg.Server.HandlerTimeout}

	if cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.Database.ConnMaxIdleTime)
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		s.db = db
	}

	if cfg.LocalStore.Path != "" {
		local, err := rules.OpenSQLite(cfg.LocalStore.Path)
		if err != nil {
			return nil, err
		}
		s.local = local
	}

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		s.redis = redis.NewClient(opts)
		if err := s.redis.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, evaluation results will not be shared", "error", err)
		}
	}

	opts := multitenantengine.Options{
		DB:          s.db,
		Local:       s.local,
		RedisPrefix: cfg.Redis.KeyPrefix,
		RedisRules:  cfg.Redis.StoreRules,
		Cache: rules.CacheConfig{
			Freshness:  cfg.Cache.Freshness,
			MaxEntries: cfg.Cache.MaxEntries,
		},
		CalendarStart: cfg.CalendarStart(time.Now()),
		CalendarDays:  cfg.Calendar.Days,
	}
	if s.redis != nil {
		opts.Redis = s.redis
	}
	s.manager = multitenantengine.NewManager(opts)

	logger.Info("loading units from database")
	if err := s.manager.LoadAllUnits(ctx); err != nil {
		return nil, fmt.Errorf("failed to load units: %w", err)
	}

	if err := s.seedRosters(ctx, cfg.Rosters); err != nil {
		return nil, err
	}

	units := s.manager.ListUnits()
	logger.Info("units loaded", "count", len(units), "units", units)

	s.setupRoutes()
	return s, nil
}

// newServerWithManager wires routes over an existing manager
func newServerWithManager(manager *multitenantengine.Manager) *Server {
	s := &Server{manager: manager, timeout: 60 * time.Second}
	s.setupRoutes()
	return s
}

// seedRosters loads roster files named in the config, creating units as needed
func (s *Server) seedRosters(ctx context.Context, files map[string]string) error {
	unitIDs := make([]string, 0, len(files))
	for id := range files {
		unitIDs = append(unitIDs, id)
	}
	sort.Strings(unitIDs)

	for _, unitID := range unitIDs {
		data, err := roster.LoadFile(files[unitID])
		if err != nil {
			return err
		}
		if _, err := s.manager.GetUnit(unitID); err != nil {
			if _, err := s.manager.CreateUnit(ctx, unitID, ""); err != nil {
				return fmt.Errorf("failed to create unit %s: %w", unitID, err)
			}
		}
		if _, err := s.manager.SetRoster(unitID, data); err != nil {
			return err
		}
		logger.Info("roster loaded", "unit", unitID, "employees", len(data.Employees), "assignments", len(data.Assignments))
	}
	return nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if s.timeout > 0 {
		r.Use(middleware.Timeout(s.timeout))
	}

	r.Get("/api/v1/health", s.handleHealth)

	r.Route("/api/v1/units", func(r chi.Router) {
		r.Get("/", s.handleListUnits)
		r.Post("/", s.handleCreateUnit)

		r.Route("/{unitId}", func(r chi.Router) {
			r.Get("/", s.handleGetUnit)
			r.Delete("/", s.handleDeleteUnit)

			r.Put("/roster", s.handleSetRoster)
			r.Put("/calendar", s.handleSetCalendar)

			r.Post("/evaluate", s.handleEvaluate)
			r.Post("/rules/preview", s.handlePreviewRule)

			// Rule management
			r.Get("/rules", s.handleListRules)
			r.Post("/rules", s.handleCreateRule)
			r.Get("/rules/{ruleId}", s.handleGetRule)
			r.Put("/rules/{ruleId}", s.handleUpdateRule)
			r.Delete("/rules/{ruleId}", s.handleDeleteRule)

			r.Get("/templates", s.handleListTemplates)
			r.Post("/templates/{templateId}", s.handleCreateFromTemplate)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger logs each request and counts 4xx/5xx responses
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		switch {
		case status >= 500:
			logger.ErrorHttp5xx()
		case status >= 400:
			logger.WarnHttp4xx()
		}
		logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"requestId", middleware.GetReqID(r.Context()),
		)
	})
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:      "healthy",
		UnitsLoaded: len(s.manager.ListUnits()),
		Counters:    logger.Counters(),
	}
	status := http.StatusOK

	if s.db != nil {
		resp.Database = "ok"
		if err := s.db.PingContext(r.Context()); err != nil {
			// rules are still served from memory and the local store
			resp.Status = "degraded"
			resp.Database = err.Error()
		}
	}
	if s.redis != nil {
		resp.Redis = "ok"
		if err := s.redis.Ping(r.Context()).Err(); err != nil {
			resp.Status = "degraded"
			resp.Redis = err.Error()
		}
	}

	respondJSON(w, status, resp)
}

func unitResponse(u *multitenantengine.Unit) UnitResponse {
	start, days := u.Calendar.Interval()
	return UnitResponse{
		ID:            u.ID,
		Name:          u.Name,
		Rules:         len(u.Engine.GetRules()),
		CalendarStart: start.Format(roster.DateLayout),
		CalendarDays:  days,
	}
}

// List units handler
func (s *Server) handleListUnits(w http.ResponseWriter, r *http.Request) {
	units := []UnitResponse{}
	for _, id := range s.manager.ListUnits() {
		u, err := s.manager.GetUnit(id)
		if err != nil {
			// deleted since ListUnits
			continue
		}
		units = append(units, unitResponse(u))
	}
	respondJSON(w, http.StatusOK, UnitsListResponse{Units: units})
}

// Create unit handler
func (s *Server) handleCreateUnit(w http.ResponseWriter, r *http.Request) {
	var req CreateUnitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := multitenantengine.ValidateUnitID(req.ID); err != nil {
		respondError(w, http.StatusBadRequest, "invalid unit id", err)
		return
	}

	u, err := s.manager.CreateUnit(r.Context(), req.ID, req.Name)
	if err != nil {
		respondError(w, statusFor(err), "failed to create unit", err)
		return
	}
	respondJSON(w, http.StatusCreated, unitResponse(u))
}

func (s *Server) handleGetUnit(w http.ResponseWriter, r *http.Request) {
	u, err := s.manager.GetUnit(chi.URLParam(r, "unitId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "unit not found", err)
		return
	}
	respondJSON(w, http.StatusOK, unitResponse(u))
}

func (s *Server) handleDeleteUnit(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.DeleteUnit(chi.URLParam(r, "unitId")); err != nil {
		respondError(w, http.StatusNotFound, "unit not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Roster upload handler
func (s *Server) handleSetRoster(w http.ResponseWriter, r *http.Request) {
	var data roster.Data
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	warnings, err := s.manager.SetRoster(chi.URLParam(r, "unitId"), data)
	if err != nil {
		respondError(w, http.StatusNotFound, "unit not found", err)
		return
	}
	if warnings == nil {
		warnings = []multitenantengine.RosterWarning{}
	}

	respondJSON(w, http.StatusOK, RosterResponse{
		Employees:   len(data.Employees),
		Assignments: len(data.Assignments),
		Warnings:    warnings,
	})
}

func (s *Server) handleSetCalendar(w http.ResponseWriter, r *http.Request) {
	var req CalendarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	start, err := time.Parse(roster.DateLayout, req.Start)
	if err != nil {
		respondError(w, http.StatusBadRequest, "start must be YYYY-MM-DD", err)
		return
	}
	if req.Days < 0 {
		respondError(w, http.StatusBadRequest, "days must not be negative", nil)
		return
	}

	unitID := chi.URLParam(r, "unitId")
	if err := s.manager.SetCalendar(unitID, start, req.Days); err != nil {
		respondError(w, statusFor(err), "failed to set calendar", err)
		return
	}

	u, _ := s.manager.GetUnit(unitID)
	respondJSON(w, http.StatusOK, unitResponse(u))
}

// Evaluation handler. An empty body evaluates the unit's calendar interval.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	u, err := s.manager.GetUnit(chi.URLParam(r, "unitId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "unit not found", err)
		return
	}

	start, days := u.Calendar.Interval()
	if req.Start != "" {
		if start, err = time.Parse(roster.DateLayout, req.Start); err != nil {
			respondError(w, http.StatusBadRequest, "start must be YYYY-MM-DD", err)
			return
		}
	}
	if req.Days != nil {
		if *req.Days < 0 {
			respondError(w, http.StatusBadRequest, "days must not be negative", nil)
			return
		}
		days = *req.Days
	}

	startTime := time.Now()
	violations := u.Engine.EvaluateRulesFor(start, days)
	evaluationTime := time.Since(startTime)

	if violations == nil {
		violations = []*rules.Violation{}
	}
	diagnostics := u.Engine.Diagnostics()
	if diagnostics == nil {
		diagnostics = []rules.Diagnostic{}
	}

	respondJSON(w, http.StatusOK, EvaluateResponse{
		Violations:     violations,
		Diagnostics:    diagnostics,
		Summary:        summarize(violations),
		EvaluationTime: evaluationTime.String(),
	})
}

// Preview handler: evaluates a rule without storing it
func (s *Server) handlePreviewRule(w http.ResponseWriter, r *http.Request) {
	engine, err := s.manager.GetEngine(chi.URLParam(r, "unitId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "unit not found", err)
		return
	}

	var rule rules.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if rule.Name == "" {
		rule.Name = "Preview"
	}
	if err := rules.ValidateRule(&rule, nil); err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule", err)
		return
	}

	violations, diagnostics := engine.EvaluateSingleRule(&rule)
	if violations == nil {
		violations = []*rules.Violation{}
	}
	if diagnostics == nil {
		diagnostics = []rules.Diagnostic{}
	}
	respondJSON(w, http.StatusOK, PreviewResponse{Violations: violations, Diagnostics: diagnostics})
}

// Create rule handler
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	engine, err := s.manager.GetEngine(chi.URLParam(r, "unitId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "unit not found", err)
		return
	}

	var rule rules.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	// Add rule (this validates it and assigns an ID when missing)
	if err := engine.AddRule(&rule); err != nil {
		respondError(w, statusFor(err), "failed to add rule", err)
		return
	}

	respondJSON(w, http.StatusCreated, &rule)
}

// List rules handler
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	engine, err := s.manager.GetEngine(chi.URLParam(r, "unitId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "unit not found", err)
		return
	}

	rulesList := engine.GetRules()
	if rulesList == nil {
		rulesList = []*rules.Rule{}
	}
	respondJSON(w, http.StatusOK, RulesListResponse{Rules: rulesList})
}

// Get rule handler
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	engine, err := s.manager.GetEngine(chi.URLParam(r, "unitId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "unit not found", err)
		return
	}

	rule, err := engine.GetRule(chi.URLParam(r, "ruleId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

// Update rule handler
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	engine, err := s.manager.GetEngine(chi.URLParam(r, "unitId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "unit not found", err)
		return
	}

	var rule rules.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	rule.ID = chi.URLParam(r, "ruleId")

	if err := engine.UpdateRule(&rule); err != nil {
		respondError(w, statusFor(err), "failed to update rule", err)
		return
	}

	updated, err := engine.GetRule(rule.ID)
	if err != nil {
		respondError(w, statusFor(err), "failed to read updated rule", err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// Delete rule handler
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	engine, err := s.manager.GetEngine(chi.URLParam(r, "unitId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "unit not found", err)
		return
	}

	if err := engine.RemoveRule(chi.URLParam(r, "ruleId")); err != nil {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	engine, err := s.manager.GetEngine(chi.URLParam(r, "unitId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "unit not found", err)
		return
	}
	respondJSON(w, http.StatusOK, TemplatesListResponse{Templates: engine.GetRuleTemplates()})
}

func (s *Server) handleCreateFromTemplate(w http.ResponseWriter, r *http.Request) {
	engine, err := s.manager.GetEngine(chi.URLParam(r, "unitId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "unit not found", err)
		return
	}

	rule, err := engine.CreateRuleFromTemplate(chi.URLParam(r, "templateId"))
	if err != nil {
		respondError(w, statusFor(err), "failed to create rule from template", err)
		return
	}
	respondJSON(w, http.StatusCreated, rule)
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, rules.ErrInvalidRule):
		return http.StatusBadRequest
	case errors.Is(err, rules.ErrRuleNotFound),
		errors.Is(err, rules.ErrTemplateNotFound),
		errors.Is(err, multitenantengine.ErrUnitNotFound):
		return http.StatusNotFound
	case errors.Is(err, rules.ErrRuleExists),
		errors.Is(err, multitenantengine.ErrUnitExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	if status >= 500 {
		logger.Error(message, "error", err)
	}
	respondJSON(w, status, response)
}

func (s *Server) Close() {
	s.manager.Close()
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.local != nil {
		_ = s.local.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}

	if level, err := logger.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}
	logger.SetSampleRate(cfg.Logging.ErrorSampleRate)

	ctx := context.Background()
	server, err := NewServer(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}
	defer server.Close()

	port := strconv.Itoa(cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("server starting", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := logger.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "logger shutdown error: %v\n", err)
	}

	logger.Info("server stopped")
}
