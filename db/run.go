// Package db defines the optimization run audit record and the store
// interface its backends implement.
package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"price-optimizer/pkg/api"
	"price-optimizer/pkg/numeric"
)

// MoneyPlaces is the scale money columns are rounded to.
const MoneyPlaces = 4

// Run is one optimization served by the service.
type Run struct {
	ID           uuid.UUID
	ModelVersion string
	Request      api.PricingRequest

	OptimalPrice decimal.Decimal
	MaxProfit    decimal.Decimal
	PredictedQty float64

	SearchMin decimal.Decimal
	SearchMax decimal.Decimal
	Samples   int
	Skipped   int

	Duration  time.Duration
	CacheHit  bool
	CreatedAt time.Time
}

// NewRun builds a run record from an optimization result.
func NewRun(modelVersion string, req api.PricingRequest, result api.OptimizationResult, search api.SearchSummary, took time.Duration, cacheHit bool) *Run {
	return &Run{
		ID:           uuid.New(),
		ModelVersion: modelVersion,
		Request:      req,
		OptimalPrice: Money(result.OptimalPrice),
		MaxProfit:    Money(result.MaxProfit),
		PredictedQty: result.PredictedQty,
		SearchMin:    Money(search.MinPrice),
		SearchMax:    Money(search.MaxPrice),
		Samples:      search.Samples,
		Skipped:      search.Skipped,
		Duration:     took,
		CacheHit:     cacheHit,
		CreatedAt:    time.Now().UTC(),
	}
}

// Money converts a float amount to a decimal rounded to MoneyPlaces.
// NaN and ±Inf have no decimal form and record as zero.
func Money(v float64) decimal.Decimal {
	if !numeric.IsFinite(v) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v).Round(MoneyPlaces)
}

// RunStore is an append-only sink for optimization runs.
type RunStore interface {
	SaveRun(ctx context.Context, run *Run) error
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	Ping(ctx context.Context) error
	Close() error
}

// ListLimit clamps a requested page size.
func ListLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > 500:
		return 500
	default:
		return limit
	}
}
