// Package features derives model inputs from a pricing request and a
// candidate price, mirroring the training-time feature engineering.
package features

import (
	"fmt"
	"math"
	"strings"

	"price-optimizer/internal/demand"
	"price-optimizer/pkg/api"
	"price-optimizer/pkg/numeric"
)

// Epsilon guards competitor-price denominators.
const Epsilon = 1e-6

// raw holds the per-request aggregates shared by every candidate price.
type raw struct {
	req                  api.PricingRequest
	compMin, compMax     float64
	compMean, compSpread float64
	landed               float64
}

func newRaw(req api.PricingRequest) raw {
	r := raw{
		req:      req,
		compMin:  numeric.Min(req.Comp1, req.Comp2, req.Comp3),
		compMax:  numeric.Max(req.Comp1, req.Comp2, req.Comp3),
		compMean: numeric.Mean(req.Comp1, req.Comp2, req.Comp3),
		landed:   req.LandedCost(),
	}
	r.compSpread = r.compMax - r.compMin
	return r
}

type derive func(r *raw, p float64) float64

// catalog lists every non-category feature the builder can produce.
var catalog = map[string]derive{
	"unit_price":    func(_ *raw, p float64) float64 { return p },
	"cogs":          func(r *raw, _ float64) float64 { return r.req.Cogs },
	"freight_price": func(r *raw, _ float64) float64 { return r.req.Freight },
	"product_score": func(r *raw, _ float64) float64 { return r.req.Score },
	"customers":     func(r *raw, _ float64) float64 { return float64(r.req.Customers) },
	"comp_1":        func(r *raw, _ float64) float64 { return r.req.Comp1 },
	"comp_2":        func(r *raw, _ float64) float64 { return r.req.Comp2 },
	"comp_3":        func(r *raw, _ float64) float64 { return r.req.Comp3 },

	"price_ratio_comp1": func(r *raw, p float64) float64 { return p / (r.req.Comp1 + Epsilon) },
	"price_ratio_comp2": func(r *raw, p float64) float64 { return p / (r.req.Comp2 + Epsilon) },
	"price_ratio_comp3": func(r *raw, p float64) float64 { return p / (r.req.Comp3 + Epsilon) },
	"price_diff_comp1":  func(r *raw, p float64) float64 { return p - r.req.Comp1 },
	"price_diff_comp2":  func(r *raw, p float64) float64 { return p - r.req.Comp2 },
	"price_diff_comp3":  func(r *raw, p float64) float64 { return p - r.req.Comp3 },

	"margin":        func(r *raw, p float64) float64 { return p - r.landed },
	"margin_pct":    func(r *raw, p float64) float64 { return (p - r.landed) / p },
	"landed_cost":   func(r *raw, _ float64) float64 { return r.landed },
	"freight_ratio": func(r *raw, p float64) float64 { return r.req.Freight / p },

	"comp_mean":             func(r *raw, _ float64) float64 { return r.compMean },
	"comp_min":              func(r *raw, _ float64) float64 { return r.compMin },
	"comp_max":              func(r *raw, _ float64) float64 { return r.compMax },
	"comp_spread":           func(r *raw, _ float64) float64 { return r.compSpread },
	"price_ratio_comp_mean": func(r *raw, p float64) float64 { return p / (r.compMean + Epsilon) },
	"price_diff_comp_min":   func(r *raw, p float64) float64 { return p - r.compMin },
	"price_position":        func(r *raw, p float64) float64 { return (p - r.compMin) / (r.compSpread + Epsilon) },

	"log_price":         func(_ *raw, p float64) float64 { return math.Log1p(p) },
	"price_sq":          func(_ *raw, p float64) float64 { return p * p },
	"log_customers":     func(r *raw, _ float64) float64 { return math.Log1p(float64(r.req.Customers)) },
	"score_x_customers": func(r *raw, _ float64) float64 { return r.req.Score * float64(r.req.Customers) },
}

// Known reports whether name can be derived by the builder.
func Known(name string) bool {
	if strings.HasPrefix(name, demand.CategoryPrefix) {
		return len(name) > len(demand.CategoryPrefix)
	}
	_, ok := catalog[name]
	return ok
}

// Builder turns a request and a candidate price into a standardized feature
// vector ordered exactly like the model. It is immutable after construction.
type Builder struct {
	schema     demand.Schema
	derivers   []derive // nil at category positions
	means      []float64
	scales     []float64
	categories map[string]int
}

// NewBuilder resolves every model feature against the catalog once. A feature
// the catalog cannot produce is a configuration error.
func NewBuilder(model *demand.FittedModel) (*Builder, error) {
	n := model.Len()
	b := &Builder{
		schema:     model.Schema(),
		derivers:   make([]derive, n),
		means:      make([]float64, n),
		scales:     make([]float64, n),
		categories: make(map[string]int),
	}

	var unknown []string
	for i := 0; i < n; i++ {
		name := b.schema.Name(i)
		b.means[i], b.scales[i] = model.Standardization(i)

		if !Known(name) {
			unknown = append(unknown, name)
			continue
		}
		if strings.HasPrefix(name, demand.CategoryPrefix) {
			b.categories[strings.TrimPrefix(name, demand.CategoryPrefix)] = i
			continue
		}
		b.derivers[i] = catalog[name]
	}

	if len(unknown) > 0 {
		return nil, fmt.Errorf("model features not derivable from a pricing request: %s", strings.Join(unknown, ", "))
	}
	return b, nil
}

// Schema returns the feature order the builder produces.
func (b *Builder) Schema() demand.Schema { return b.schema }

// KnownCategory reports whether category has a one-hot column.
func (b *Builder) KnownCategory(category string) bool {
	_, ok := b.categories[strings.TrimSpace(category)]
	return ok
}

// Build derives, one-hot encodes and standardizes the features for a single
// candidate price. Unknown or empty categories encode as all zeros.
func (b *Builder) Build(req api.PricingRequest, price float64) demand.FeatureVector {
	r := newRaw(req)
	return b.build(&r, price)
}

// Sweep returns a function that builds vectors for many prices against the
// same request, computing request-level aggregates once.
func (b *Builder) Sweep(req api.PricingRequest) func(price float64) demand.FeatureVector {
	r := newRaw(req)
	return func(price float64) demand.FeatureVector {
		return b.build(&r, price)
	}
}

func (b *Builder) build(r *raw, price float64) demand.FeatureVector {
	active := -1
	if idx, ok := b.categories[strings.TrimSpace(r.req.Category)]; ok {
		active = idx
	}

	values := make([]float64, len(b.derivers))
	for i, fn := range b.derivers {
		var x float64
		switch {
		case fn != nil:
			x = fn(r, price)
		case i == active:
			x = 1
		}
		values[i] = numeric.Standardize(x, b.means[i], b.scales[i])
	}
	return demand.FeatureVector{Schema: b.schema, Values: values}
}

// Raw returns the unstandardized feature values by name, for diagnostics.
func (b *Builder) Raw(req api.PricingRequest, price float64) map[string]float64 {
	r := newRaw(req)
	cat := strings.TrimSpace(req.Category)
	out := make(map[string]float64, len(b.derivers))
	for i, fn := range b.derivers {
		name := b.schema.Name(i)
		switch {
		case fn != nil:
			out[name] = fn(&r, price)
		case strings.TrimPrefix(name, demand.CategoryPrefix) == cat:
			out[name] = 1
		default:
			out[name] = 0
		}
	}
	return out
}
