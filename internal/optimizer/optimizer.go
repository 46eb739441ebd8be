// Package optimizer sweeps a candidate price range and returns the price that
// maximizes predicted profit.
package optimizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"price-optimizer/internal/demand"
	"price-optimizer/internal/features"
	"price-optimizer/pkg/api"
	apperrors "price-optimizer/pkg/errors"
	"price-optimizer/pkg/numeric"
)

const (
	MinSamples = 2
	MaxSamples = 100000

	// sweepChunk is how many candidates are evaluated between context checks.
	sweepChunk = 256
)

// Config holds the sweep tunables.
type Config struct {
	Samples         int
	UpperMultiplier float64
	PriceFloor      float64
}

// DefaultConfig returns the default sweep configuration.
func DefaultConfig() Config {
	return Config{
		Samples:         1000,
		UpperMultiplier: 3,
		PriceFloor:      0.01,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Samples < MinSamples || c.Samples > MaxSamples {
		return fmt.Errorf("samples must be in [%d, %d], got %d", MinSamples, MaxSamples, c.Samples)
	}
	if !numeric.IsFinite(c.UpperMultiplier) || c.UpperMultiplier <= 1 {
		return fmt.Errorf("upper multiplier must be a finite value above 1, got %v", c.UpperMultiplier)
	}
	if !numeric.IsFinite(c.PriceFloor) || c.PriceFloor <= 0 {
		return fmt.Errorf("price floor must be positive and finite, got %v", c.PriceFloor)
	}
	return nil
}

// Outcome is an optimization result with the search diagnostics.
type Outcome struct {
	api.OptimizationResult
	Search api.SearchSummary
}

// Optimizer is immutable and safe for concurrent use.
type Optimizer struct {
	model   *demand.DemandModel
	builder *features.Builder
	config  Config
	logger  zerolog.Logger
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithLogger sets the logger used for request warnings.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Optimizer) { o.logger = logger }
}

// New creates an optimizer over a fitted model.
func New(model *demand.FittedModel, config Config, opts ...Option) (*Optimizer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid optimizer config: %w", err)
	}
	builder, err := features.NewBuilder(model)
	if err != nil {
		return nil, err
	}
	o := &Optimizer{
		model:   demand.NewDemandModel(model),
		builder: builder,
		config:  config,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Config returns the optimizer's configuration.
func (o *Optimizer) Config() Config { return o.config }

// Model returns the fitted model the optimizer predicts with.
func (o *Optimizer) Model() *demand.FittedModel { return o.model.Model() }

// Builder returns the feature builder.
func (o *Optimizer) Builder() *features.Builder { return o.builder }

// Validate checks that a request is usable. Scores outside 1-5 only warn.
func (o *Optimizer) Validate(req api.PricingRequest) error {
	nonNegative := []struct {
		name  string
		value float64
	}{
		{"cogs", req.Cogs},
		{"freight", req.Freight},
		{"comp1", req.Comp1},
		{"comp2", req.Comp2},
		{"comp3", req.Comp3},
	}
	for _, f := range nonNegative {
		if !numeric.IsFinite(f.value) {
			return apperrors.NewInvalidRequestError(f.name, "must be a finite number")
		}
		if f.value < 0 {
			return apperrors.NewInvalidRequestError(f.name, fmt.Sprintf("must be non-negative, got %v", f.value))
		}
	}
	if !numeric.IsFinite(req.Score) {
		return apperrors.NewInvalidRequestError("score", "must be a finite number")
	}
	if req.Customers < 0 {
		return apperrors.NewInvalidRequestError("customers", fmt.Sprintf("must be non-negative, got %d", req.Customers))
	}
	if req.Score < 1 || req.Score > 5 {
		o.logger.Warn().
			Float64("score", req.Score).
			Str("category", req.Category).
			Msg("product score outside the expected 1-5 range")
	}
	if req.Category != "" && !o.builder.KnownCategory(req.Category) {
		o.logger.Debug().Str("category", req.Category).Msg("unknown category, encoding as all zeros")
	}
	return nil
}

// Bounds returns the candidate range for a request with no overrides.
func (o *Optimizer) Bounds(req api.PricingRequest) (lower, upper float64) {
	lower, upper, _ = o.bounds(req)
	return lower, upper
}

// bounds also names the request field the upper bound was derived from.
func (o *Optimizer) bounds(req api.PricingRequest) (lower, upper float64, upperField string) {
	mult := o.config.UpperMultiplier
	lower = numeric.ClampMin(req.LandedCost(), o.config.PriceFloor)

	upperField = "comp1"
	top := req.Comp1
	if req.Comp2 > top {
		upperField, top = "comp2", req.Comp2
	}
	if req.Comp3 > top {
		upperField, top = "comp3", req.Comp3
	}
	upper = top * mult

	if upper <= lower {
		upper = lower * mult
		upperField = costField(req)
		if upper <= lower {
			upper = lower + 1
		}
	}
	return lower, upper, upperField
}

// costField names the larger of the two cost fields.
func costField(req api.PricingRequest) string {
	if req.Freight > req.Cogs {
		return "freight"
	}
	return "cogs"
}

// searchRange applies per-call overrides to the default range. Every bound it
// returns is finite.
func (o *Optimizer) searchRange(req api.PricingRequest, opts api.SearchOptions) (lower, upper float64, samples int, err error) {
	lower, upper, upperField := o.bounds(req)
	if !numeric.IsFinite(lower) {
		return 0, 0, 0, apperrors.NewInvalidRequestError(costField(req), "cogs + freight overflows")
	}
	floor := lower

	samples = o.config.Samples
	if opts.Samples != 0 {
		if opts.Samples < MinSamples || opts.Samples > MaxSamples {
			return 0, 0, 0, apperrors.NewInvalidRequestError("samples",
				fmt.Sprintf("must be in [%d, %d], got %d", MinSamples, MaxSamples, opts.Samples))
		}
		samples = opts.Samples
	}

	if opts.MinPrice != nil {
		if !numeric.IsFinite(*opts.MinPrice) {
			return 0, 0, 0, apperrors.NewInvalidRequestError("min_price", "must be a finite number")
		}
		lower = numeric.ClampMin(*opts.MinPrice, floor)
		if opts.MaxPrice == nil && upper <= lower {
			upper = lower * o.config.UpperMultiplier
			upperField = "min_price"
		}
	}
	if opts.MaxPrice != nil {
		if !numeric.IsFinite(*opts.MaxPrice) {
			return 0, 0, 0, apperrors.NewInvalidRequestError("max_price", "must be a finite number")
		}
		if *opts.MaxPrice <= lower {
			return 0, 0, 0, apperrors.NewInvalidRequestError("max_price",
				fmt.Sprintf("must be above the effective minimum price %.4f, got %v", lower, *opts.MaxPrice))
		}
		upper = *opts.MaxPrice
		upperField = "max_price"
	}

	// GridPoint multiplies the span by the candidate index before dividing.
	if !numeric.IsFinite(upper) || !numeric.IsFinite(float64(samples-1)*(upper-lower)) {
		return 0, 0, 0, apperrors.NewInvalidRequestError(upperField,
			fmt.Sprintf("is too large: the search range upper bound overflows (multiplier %v)", o.config.UpperMultiplier))
	}
	return lower, upper, samples, nil
}

// Optimize finds the profit-maximizing price with the default search range.
// Candidates whose prediction or profit is not finite are skipped; ties keep
// the lower price. ctx is checked between sweep chunks.
func (o *Optimizer) Optimize(ctx context.Context, req api.PricingRequest, opts api.SearchOptions) (*Outcome, error) {
	if err := o.Validate(req); err != nil {
		return nil, err
	}
	lower, upper, samples, err := o.searchRange(req, opts)
	if err != nil {
		return nil, err
	}

	build := o.builder.Sweep(req)

	var (
		found   bool
		best    api.OptimizationResult
		skipped int
	)
	for i := 0; i < samples; i++ {
		if i%sweepChunk == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("sweep aborted after %d candidates: %w", i, err)
			}
		}

		price := numeric.GridPoint(lower, upper, i, samples)
		qty, err := o.model.Predict(build(price))
		if err != nil {
			if errors.Is(err, apperrors.ErrNonFinitePrediction) {
				skipped++
				continue
			}
			return nil, err
		}
		profit := (price - req.Cogs - req.Freight) * qty
		if !numeric.IsFinite(profit) {
			skipped++
			continue
		}
		if !found || profit > best.MaxProfit {
			found = true
			best = api.OptimizationResult{OptimalPrice: price, MaxProfit: profit, PredictedQty: qty}
		}
	}

	search := api.SearchSummary{
		MinPrice:  lower,
		MaxPrice:  upper,
		Samples:   samples,
		Evaluated: samples - skipped,
		Skipped:   skipped,
	}
	if !found {
		return nil, apperrors.NewNoFeasiblePriceError(samples, lower, upper)
	}

	o.logger.Debug().
		Float64("optimal_price", best.OptimalPrice).
		Float64("max_profit", best.MaxProfit).
		Int("skipped", skipped).
		Msg("sweep complete")

	return &Outcome{OptimizationResult: best, Search: search}, nil
}

// Evaluate predicts demand and profit at a single price. Profit is not
// clamped and is negative below break-even.
func (o *Optimizer) Evaluate(req api.PricingRequest, price float64) (*api.PriceEvaluation, error) {
	if err := o.Validate(req); err != nil {
		return nil, err
	}
	if !numeric.IsFinite(price) || price <= 0 {
		return nil, apperrors.NewInvalidRequestError("unit_price", fmt.Sprintf("must be positive and finite, got %v", price))
	}

	qty, err := o.model.Predict(o.builder.Build(req, price))
	if err != nil {
		return nil, err
	}
	margin := price - req.Cogs - req.Freight
	profit := margin * qty
	if !numeric.IsFinite(profit) {
		return nil, apperrors.ErrNonFinitePrediction
	}
	return &api.PriceEvaluation{
		UnitPrice:       price,
		PredictedQty:    qty,
		PredictedProfit: profit,
		Margin:          margin,
	}, nil
}
