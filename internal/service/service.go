// Package service orchestrates one optimization for the serving layer:
// cache lookup, sweep, run recording, event publishing and metrics.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"price-optimizer/db"
	"price-optimizer/internal/cache"
	"price-optimizer/internal/events"
	"price-optimizer/internal/metrics"
	"price-optimizer/internal/optimizer"
	"price-optimizer/pkg/api"
	apperrors "price-optimizer/pkg/errors"
)

// ErrNoRunStore is returned by ListRuns when no store is configured.
var ErrNoRunStore = errors.New("no run store configured")

// OutcomeCache is implemented by *cache.ResultCache.
type OutcomeCache interface {
	Get(ctx context.Context, key string) (*cache.Entry, bool, error)
	Set(ctx context.Context, key string, entry cache.Entry) error
	Ping(ctx context.Context) error
}

// EventPublisher is implemented by *events.Publisher.
type EventPublisher interface {
	PublishPriceOptimized(ctx context.Context, event events.PriceOptimized) error
}

// Service is safe for concurrent use.
type Service struct {
	opt       *optimizer.Optimizer
	checksum  string
	scope     cache.Scope
	cache     OutcomeCache
	store     db.RunStore
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithCache(c OutcomeCache) Option       { return func(s *Service) { s.cache = c } }
func WithRunStore(st db.RunStore) Option    { return func(s *Service) { s.store = st } }
func WithPublisher(p EventPublisher) Option { return func(s *Service) { s.publisher = p } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }
func WithLogger(l zerolog.Logger) Option    { return func(s *Service) { s.logger = l } }

// WithModelChecksum sets the artifact SHA-256 that scopes cache entries, so
// two artifacts sharing a version never share outcomes.
func WithModelChecksum(sum string) Option { return func(s *Service) { s.checksum = sum } }

// New creates a service around an optimizer. Cache, store and publisher are
// optional.
func New(opt *optimizer.Optimizer, opts ...Option) *Service {
	s := &Service{opt: opt, logger: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	m := opt.Model()
	cfg := opt.Config()
	s.scope = cache.Scope{
		ModelVersion:    m.Version(),
		ModelChecksum:   s.checksum,
		Samples:         cfg.Samples,
		UpperMultiplier: cfg.UpperMultiplier,
		PriceFloor:      cfg.PriceFloor,
	}
	s.metrics.SetModel(m.Version(), string(m.Transform()), m.Len())
	return s
}

func (s *Service) Optimizer() *optimizer.Optimizer { return s.opt }
func (s *Service) Metrics() *metrics.Metrics       { return s.metrics }
func (s *Service) HasRunStore() bool               { return s.store != nil }

// ModelVersion returns the loaded model's version.
func (s *Service) ModelVersion() string { return s.opt.Model().Version() }

// Optimize serves one optimization. Cache, store and event failures are
// logged and counted but never fail the request.
func (s *Service) Optimize(ctx context.Context, req api.PricingRequest, opts api.SearchOptions) (*api.OptimizeResponse, error) {
	start := time.Now()
	version := s.ModelVersion()

	if err := s.opt.Validate(req); err != nil {
		s.countOutcome(err)
		return nil, err
	}

	key, entry, hit := s.lookup(ctx, req, opts)
	if !hit {
		outcome, err := s.opt.Optimize(ctx, req, opts)
		if err != nil {
			s.countOutcome(err)
			return nil, err
		}
		entry = &cache.Entry{Result: outcome.OptimizationResult, Search: outcome.Search}
		s.metrics.OptimizeDuration.Observe(time.Since(start).Seconds())
		s.metrics.CandidatesSkipped.Add(float64(outcome.Search.Skipped))
		s.saveToCache(ctx, key, *entry)
	}
	s.countOutcome(nil)

	run := db.NewRun(version, req, entry.Result, entry.Search, time.Since(start), hit)
	s.record(ctx, run)
	s.publish(ctx, run, entry.Result)

	s.logger.Info().
		Str("run_id", run.ID.String()).
		Str("category", req.Category).
		Float64("optimal_price", entry.Result.OptimalPrice).
		Float64("max_profit", entry.Result.MaxProfit).
		Bool("cache_hit", hit).
		Dur("took", time.Since(start)).
		Msg("Price optimized")

	return &api.OptimizeResponse{
		OptimizationResult: entry.Result,
		RunID:              run.ID.String(),
		ModelVersion:       version,
		CacheHit:           hit,
		Search:             entry.Search,
		Success:            true,
	}, nil
}

// Predict evaluates a single price.
func (s *Service) Predict(ctx context.Context, req api.PricingRequest, price float64) (*api.PredictResponse, error) {
	ev, err := s.opt.Evaluate(req, price)
	if err != nil {
		return nil, err
	}
	return &api.PredictResponse{
		PriceEvaluation: *ev,
		ModelVersion:    s.ModelVersion(),
		Success:         true,
	}, nil
}

// ModelInfo summarizes the loaded model.
func (s *Service) ModelInfo() api.ModelInfo {
	m := s.opt.Model()
	return api.ModelInfo{
		Version:         m.Version(),
		TargetTransform: string(m.Transform()),
		FeatureCount:    m.Len(),
		Features:        m.Schema().Names(),
		Categories:      m.Categories(),
		Intercept:       m.Intercept(),
	}
}

// ListRuns returns recent runs from the store.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]*db.Run, error) {
	if s.store == nil {
		return nil, ErrNoRunStore
	}
	return s.store.ListRuns(ctx, limit)
}

// Ready checks the run store, the only dependency the service needs to
// record runs.
func (s *Service) Ready(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	return s.store.Ping(ctx)
}

// HasCache reports whether a result cache is configured.
func (s *Service) HasCache() bool { return s.cache != nil }

// CacheReady pings the result cache. The cache is best-effort, so callers
// report the result without failing readiness on it.
func (s *Service) CacheReady(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Ping(ctx)
}

func (s *Service) lookup(ctx context.Context, req api.PricingRequest, opts api.SearchOptions) (string, *cache.Entry, bool) {
	if s.cache == nil {
		return "", nil, false
	}
	key, err := cache.Key(s.scope, req, opts)
	if err != nil {
		s.sideEffectFailed("cache", err)
		return "", nil, false
	}
	entry, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.sideEffectFailed("cache", err)
		return key, nil, false
	}
	if ok {
		s.metrics.CacheLookups.WithLabelValues("hit").Inc()
		return key, entry, true
	}
	s.metrics.CacheLookups.WithLabelValues("miss").Inc()
	return key, nil, false
}

func (s *Service) saveToCache(ctx context.Context, key string, entry cache.Entry) {
	if s.cache == nil || key == "" {
		return
	}
	if err := s.cache.Set(ctx, key, entry); err != nil {
		s.sideEffectFailed("cache", err)
	}
}

func (s *Service) record(ctx context.Context, run *db.Run) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveRun(ctx, run); err != nil {
		s.sideEffectFailed("run_store", err)
	}
}

func (s *Service) publish(ctx context.Context, run *db.Run, result api.OptimizationResult) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishPriceOptimized(ctx, events.PriceOptimized{
		RunID:        run.ID.String(),
		ModelVersion: run.ModelVersion,
		Request:      run.Request,
		Result:       result,
		CacheHit:     run.CacheHit,
		OccurredAt:   run.CreatedAt,
	})
	if err != nil {
		s.sideEffectFailed("events", err)
	}
}

func (s *Service) sideEffectFailed(sink string, err error) {
	s.metrics.SideEffectErrors.WithLabelValues(sink).Inc()
	s.logger.Warn().Err(err).Str("sink", sink).Msg("Side effect failed")
}

func (s *Service) countOutcome(err error) {
	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(apperrors.CodeOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	s.metrics.Optimizations.WithLabelValues(outcome).Inc()
}
