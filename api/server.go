// Package api provides the HTTP API server for the price optimizer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/time/rate"

	"price-optimizer/db"
	"price-optimizer/internal/service"
	contracts "price-optimizer/pkg/api"
	apperrors "price-optimizer/pkg/errors"
)

// Server is the HTTP API server
type Server struct {
	httpServer *http.Server
	svc        *service.Service
	config     *Config
	logger     zerolog.Logger
	limiter    *ipLimiter
	version    string
	startedAt  time.Time
}

// Config holds server configuration
type Config struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	MaxRequestSize int64
	CORSOrigins    []string
	RateLimit      float64 // requests per second per client IP; 0 disables
	RateBurst      int
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		RequestTimeout: 30 * time.Second,
		MaxRequestSize: 1 << 20, // 1MB
		CORSOrigins:    []string{"*"},
		RateLimit:      20,
		RateBurst:      40,
	}
}

// NewServer creates a new API server. svc may be nil when no model is
// loaded; model routes then answer 503.
func NewServer(svc *service.Service, config *Config, logger zerolog.Logger, version string) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	s := &Server{
		svc:       svc,
		config:    config,
		logger:    logger,
		version:   version,
		startedAt: time.Now(),
	}
	if config.RateLimit > 0 {
		s.limiter = newIPLimiter(rate.Limit(config.RateLimit), config.RateBurst)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, took time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", status).
			Int("size", size).
			Dur("took", took).
			Msg("request")
	}))
	r.Use(hlog.RemoteAddrHandler("ip"))
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)
	r.Use(s.metricsMiddleware)

	// Health endpoints (for ALB/NLB)
	r.Get("/health", s.handleHealth)
	r.Get("/health/live", s.handleLiveness)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/version", s.handleVersion)
	if s.svc != nil {
		r.Method(http.MethodGet, "/metrics", s.svc.Metrics().Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(s.config.RequestTimeout))
		if s.limiter != nil {
			r.Use(s.rateLimitMiddleware)
		}
		r.Use(s.requireModel)
		r.Get("/model", s.handleModel)
		r.Post("/optimize", s.handleOptimize)
		r.Post("/predict", s.handlePredict)
		r.Get("/runs", s.handleListRuns)
	})

	return r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info().Int("port", s.config.Port).Str("version", s.version).Msg("Starting price optimizer API")
	return s.httpServer.ListenAndServe()
}

// StartWithGracefulShutdown runs the server until ctx is cancelled, then
// drains in-flight requests.
func (s *Server) StartWithGracefulShutdown(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.Start(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		s.logger.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		allowed := false
		for _, o := range s.config.CORSOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.svc == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.svc.Metrics().ObserveHTTP(route, r.Method, status, time.Since(start))
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			s.jsonError(w, http.StatusTooManyRequests, "rate limit exceeded", "RATE_LIMITED", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireModel(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.svc == nil {
			s.jsonError(w, http.StatusServiceUnavailable, "model not loaded", "MODEL_NOT_LOADED", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// ipLimiter keeps one token bucket per client IP.
type ipLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	clients  map[string]*ipEntry
	lastScan time.Time
}

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const limiterIdleTTL = 3 * time.Minute

func newIPLimiter(limit rate.Limit, burst int) *ipLimiter {
	if burst < 1 {
		burst = 1
	}
	return &ipLimiter{limit: limit, burst: burst, clients: make(map[string]*ipEntry), lastScan: time.Now()}
}

func (l *ipLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastScan) > limiterIdleTTL {
		for k, e := range l.clients {
			if now.Sub(e.lastSeen) > limiterIdleTTL {
				delete(l.clients, k)
			}
		}
		l.lastScan = now
	}

	e, ok := l.clients[ip]
	if !ok {
		e = &ipEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = e
	}
	e.lastSeen = now
	return e.limiter.Allow()
}

// =============================================================================
// HEALTH ENDPOINTS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":       "healthy",
		"service":      "price-optimizer",
		"version":      s.version,
		"uptime":       time.Since(s.startedAt).Round(time.Second).String(),
		"model_loaded": s.svc != nil,
	}
	if s.svc != nil {
		body["model_version"] = s.svc.ModelVersion()
	}
	s.jsonResponse(w, http.StatusOK, body)
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.svc == nil {
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "model not loaded",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	cacheStatus := "disabled"
	if s.svc.HasCache() {
		cacheStatus = "ok"
		if err := s.svc.CacheReady(ctx); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("Result cache unreachable")
			cacheStatus = "unreachable"
		}
	}

	if err := s.svc.Ready(ctx); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("Run store not ready")
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "run store unreachable",
			"cache":  cacheStatus,
		})
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ready", "cache": cacheStatus})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"version": s.version,
		"service": "price-optimizer",
	})
}

// =============================================================================
// MODEL ENDPOINTS
// =============================================================================

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.svc.ModelInfo())
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var payload contracts.PricingRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), apperrors.CodeInvalidRequest, "")
		return
	}
	req, err := payload.ToRequest()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts, err := searchOptions(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.svc.Optimize(r.Context(), req, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var payload contracts.PredictRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), apperrors.CodeInvalidRequest, "")
		return
	}
	req, price, err := payload.ToRequest()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.svc.Predict(r.Context(), req, price)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func searchOptions(r *http.Request) (contracts.SearchOptions, error) {
	var opts contracts.SearchOptions
	q := r.URL.Query()

	parseFloat := func(name string) (*float64, error) {
		raw := q.Get(name)
		if raw == "" {
			return nil, nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, apperrors.NewInvalidRequestError(name, fmt.Sprintf("must be a number, got %q", raw))
		}
		return &v, nil
	}

	var err error
	if opts.MinPrice, err = parseFloat("min_price"); err != nil {
		return opts, err
	}
	if opts.MaxPrice, err = parseFloat("max_price"); err != nil {
		return opts, err
	}
	if raw := q.Get("samples"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return opts, apperrors.NewInvalidRequestError("samples", fmt.Sprintf("must be an integer, got %q", raw))
		}
		opts.Samples = n
	}
	return opts, nil
}

// =============================================================================
// RUNS ENDPOINT
// =============================================================================

// RunResponse is one recorded optimization run
type RunResponse struct {
	ID           string                   `json:"id"`
	ModelVersion string                   `json:"model_version"`
	Request      contracts.PricingRequest `json:"request"`
	OptimalPrice string                   `json:"optimal_price"`
	MaxProfit    string                   `json:"max_profit"`
	PredictedQty float64                  `json:"predicted_qty"`
	Search       map[string]string        `json:"search"`
	DurationMS   float64                  `json:"duration_ms"`
	CacheHit     bool                     `json:"cache_hit"`
	CreatedAt    string                   `json:"created_at"`
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, apperrors.NewInvalidRequestError("limit", fmt.Sprintf("must be an integer, got %q", raw)))
			return
		}
		limit = n
	}

	runs, err := s.svc.ListRuns(r.Context(), db.ListLimit(limit))
	if errors.Is(err, service.ErrNoRunStore) {
		s.jsonError(w, http.StatusNotImplemented, err.Error(), "", "")
		return
	}
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Failed to list runs")
		s.jsonError(w, http.StatusInternalServerError, "failed to list runs", "", "")
		return
	}

	resp := make([]RunResponse, len(runs))
	for i, run := range runs {
		resp[i] = RunResponse{
			ID:           run.ID.String(),
			ModelVersion: run.ModelVersion,
			Request:      run.Request,
			OptimalPrice: run.OptimalPrice.StringFixed(db.MoneyPlaces),
			MaxProfit:    run.MaxProfit.StringFixed(db.MoneyPlaces),
			PredictedQty: run.PredictedQty,
			Search: map[string]string{
				"min_price": run.SearchMin.StringFixed(db.MoneyPlaces),
				"max_price": run.SearchMax.StringFixed(db.MoneyPlaces),
				"samples":   strconv.Itoa(run.Samples),
				"skipped":   strconv.Itoa(run.Skipped),
			},
			DurationMS: float64(run.Duration.Microseconds()) / 1000,
			CacheHit:   run.CacheHit,
			CreatedAt:  run.CreatedAt.Format(time.RFC3339),
		}
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

// writeError maps optimizer errors to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var oe *apperrors.OptimizationError
	if !errors.As(err, &oe) {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			s.jsonError(w, http.StatusGatewayTimeout, "optimization timed out", "", "")
			return
		}
		hlog.FromRequest(r).Error().Err(err).Msg("Unexpected optimization failure")
		s.jsonError(w, http.StatusInternalServerError, "internal error", "", "")
		return
	}

	status := http.StatusInternalServerError
	switch oe.Code {
	case apperrors.CodeInvalidRequest:
		status = http.StatusBadRequest
	case apperrors.CodeNoFeasiblePrice, apperrors.CodeNonFinitePrediction:
		status = http.StatusUnprocessableEntity
	case apperrors.CodeInvalidFeatureVector, apperrors.CodeInvalidModel:
		hlog.FromRequest(r).Error().Err(err).Str("code", oe.Code).Msg("Model and feature builder disagree")
	}

	msg := oe.Message
	if oe.Field != "" {
		msg = oe.Field + " " + oe.Message
	}
	s.jsonError(w, status, msg, oe.Code, oe.Field)
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message, code, field string) {
	s.jsonResponse(w, status, contracts.ErrorResponse{
		Success: false,
		Error:   message,
		Code:    code,
		Field:   field,
	})
}
