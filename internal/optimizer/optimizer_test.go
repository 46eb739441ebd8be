package optimizer

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"price-optimizer/internal/demand"
	"price-optimizer/pkg/api"
	apperrors "price-optimizer/pkg/errors"
)

var referenceRequest = api.PricingRequest{
	Category:  "bed_bath_table",
	Cogs:      45,
	Freight:   15,
	Comp1:     120,
	Comp2:     150,
	Comp3:     100,
	Score:     4.2,
	Customers: 50,
}

func loadModel(t *testing.T, name string) *demand.FittedModel {
	t.Helper()
	path := filepath.Join("..", "..", "testdata", name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	m, err := demand.Parse(data, demand.FormatFromPath(path))
	if err != nil {
		t.Fatalf("failed to parse %s: %v", path, err)
	}
	return m
}

func newOptimizer(t *testing.T, m *demand.FittedModel) *Optimizer {
	t.Helper()
	o, err := New(m, DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create optimizer: %v", err)
	}
	return o
}

// constantModel predicts qty for every price.
func constantModel(t *testing.T, qty float64) *demand.FittedModel {
	t.Helper()
	m, err := demand.NewFittedModel(demand.Artifact{
		Intercept:    qty,
		FeatureNames: []string{"unit_price", "cogs"},
		Coefficients: []float64{0, 0},
		Means:        []float64{0, 0},
		Scales:       []float64{1, 1},
	})
	if err != nil {
		t.Fatalf("failed to build model: %v", err)
	}
	return m
}

// linearModel predicts qty = a - b*price.
func linearModel(t *testing.T, a, b float64) *demand.FittedModel {
	t.Helper()
	m, err := demand.NewFittedModel(demand.Artifact{
		Intercept:    a,
		FeatureNames: []string{"unit_price"},
		Coefficients: []float64{-b},
		Means:        []float64{0},
		Scales:       []float64{1},
	})
	if err != nil {
		t.Fatalf("failed to build model: %v", err)
	}
	return m
}

func TestReferenceFixture(t *testing.T) {
	for _, file := range []string{"reference_model.json", "reference_model.yaml"} {
		t.Run(file, func(t *testing.T) {
			o := newOptimizer(t, loadModel(t, file))
			out, err := o.Optimize(context.Background(), referenceRequest, api.SearchOptions{})
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}

			const tol = 1e-6
			if math.Abs(out.OptimalPrice-143.93393393393393) > tol {
				t.Errorf("Expected optimal price 143.933934, got %v", out.OptimalPrice)
			}
			if math.Abs(out.PredictedQty-31.189632134618275) > tol {
				t.Errorf("Expected predicted qty 31.189632, got %v", out.PredictedQty)
			}
			if math.Abs(out.MaxProfit-2617.868523010753) > tol {
				t.Errorf("Expected max profit 2617.868523, got %v", out.MaxProfit)
			}
			if out.Search.MinPrice != 60 || out.Search.MaxPrice != 450 {
				t.Errorf("Expected range [60, 450], got [%v, %v]", out.Search.MinPrice, out.Search.MaxPrice)
			}
			if out.Search.Samples != 1000 || out.Search.Skipped != 0 {
				t.Errorf("Expected 1000 samples and 0 skipped, got %+v", out.Search)
			}
		})
	}
}

func TestOptimalPriceAtLeastBreakEven(t *testing.T) {
	o := newOptimizer(t, loadModel(t, "reference_model.json"))

	requests := []api.PricingRequest{
		referenceRequest,
		{Category: "perfumery", Cogs: 80, Freight: 20, Comp1: 90, Comp2: 95, Comp3: 70, Score: 3, Customers: 10},
		{Category: "unknown", Cogs: 5, Freight: 1, Comp1: 30, Comp2: 0, Comp3: 12, Score: 5, Customers: 200},
		{Cogs: 300, Freight: 40, Comp1: 100, Comp2: 100, Comp3: 100, Score: 1, Customers: 0},
	}
	for _, req := range requests {
		out, err := o.Optimize(context.Background(), req, api.SearchOptions{})
		if err != nil {
			t.Fatalf("Expected no error for %+v, got %v", req, err)
		}
		if out.OptimalPrice < req.LandedCost() {
			t.Errorf("Expected price >= %v, got %v", req.LandedCost(), out.OptimalPrice)
		}
		if out.PredictedQty < 0 {
			t.Errorf("Expected non-negative qty, got %v", out.PredictedQty)
		}
		want := (out.OptimalPrice - req.Cogs - req.Freight) * out.PredictedQty
		if out.MaxProfit != want {
			t.Errorf("Expected profit %v, got %v", want, out.MaxProfit)
		}
	}
}

func TestDeterminism(t *testing.T) {
	o := newOptimizer(t, loadModel(t, "reference_model.json"))
	first, err := o.Optimize(context.Background(), referenceRequest, api.SearchOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := o.Optimize(context.Background(), referenceRequest, api.SearchOptions{})
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if *again != *first {
			t.Fatalf("Expected identical outcomes, got %+v and %+v", first, again)
		}
	}
}

func TestZeroCostUsesFloor(t *testing.T) {
	o := newOptimizer(t, linearModel(t, 100, 1))
	req := api.PricingRequest{Comp1: 40, Comp2: 50, Comp3: 60, Score: 4, Customers: 1}

	out, err := o.Optimize(context.Background(), req, api.SearchOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if out.Search.MinPrice != 0.01 {
		t.Errorf("Expected floor 0.01, got %v", out.Search.MinPrice)
	}
	// p*(100-p) peaks at 50
	if math.Abs(out.OptimalPrice-50) > 0.2 {
		t.Errorf("Expected optimum near 50, got %v", out.OptimalPrice)
	}
	if out.MaxProfit <= 0 {
		t.Errorf("Expected positive profit, got %v", out.MaxProfit)
	}
}

func TestConstantQuantityPicksUpperBound(t *testing.T) {
	o := newOptimizer(t, constantModel(t, 5))
	out, err := o.Optimize(context.Background(), referenceRequest, api.SearchOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if out.OptimalPrice != 450 {
		t.Errorf("Expected upper bound 450, got %v", out.OptimalPrice)
	}
	if out.PredictedQty != 5 {
		t.Errorf("Expected qty 5, got %v", out.PredictedQty)
	}
}

func TestTiesKeepLowerPrice(t *testing.T) {
	o := newOptimizer(t, constantModel(t, 0))
	out, err := o.Optimize(context.Background(), referenceRequest, api.SearchOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if out.OptimalPrice != 60 {
		t.Errorf("Expected lowest candidate 60 on an all-zero profit curve, got %v", out.OptimalPrice)
	}
}

func TestNaNModelHasNoFeasiblePrice(t *testing.T) {
	m, err := demand.NewFittedModel(demand.Artifact{
		Intercept:    1,
		FeatureNames: []string{"unit_price"},
		Coefficients: []float64{math.NaN()},
		Means:        []float64{0},
		Scales:       []float64{1},
	})
	if err != nil {
		t.Fatalf("Expected NaN coefficients to load, got %v", err)
	}
	o := newOptimizer(t, m)

	_, err = o.Optimize(context.Background(), referenceRequest, api.SearchOptions{})
	if !errors.Is(err, apperrors.ErrNoFeasiblePrice) {
		t.Errorf("Expected ErrNoFeasiblePrice, got %v", err)
	}
}

func TestPartiallyNonFiniteSweepSkips(t *testing.T) {
	// qty = expm1(price) overflows above ~709.78, and profit overflows a
	// little earlier.
	m, err := demand.NewFittedModel(demand.Artifact{
		TargetTransform: "log1p",
		FeatureNames:    []string{"unit_price"},
		Coefficients:    []float64{1},
		Means:           []float64{0},
		Scales:          []float64{1},
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	o := newOptimizer(t, m)
	f := func(v float64) *float64 { return &v }

	req := api.PricingRequest{Cogs: 699, Comp1: 1, Comp2: 1, Comp3: 1, Score: 3}
	out, err := o.Optimize(context.Background(), req, api.SearchOptions{MinPrice: f(700), MaxPrice: f(720), Samples: 21})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if out.Search.Skipped != 13 || out.Search.Evaluated != 8 {
		t.Errorf("Expected 13 skipped and 8 evaluated, got %+v", out.Search)
	}
	if out.OptimalPrice != 707 {
		t.Errorf("Expected 707, got %v", out.OptimalPrice)
	}
}

func TestCompetitorsBelowCostWidenRange(t *testing.T) {
	o := newOptimizer(t, constantModel(t, 1))
	req := api.PricingRequest{Cogs: 100, Freight: 20, Comp1: 30, Comp2: 35, Comp3: 10, Score: 3, Customers: 5}
	lower, upper := o.Bounds(req)
	if lower != 120 || upper != 360 {
		t.Errorf("Expected [120, 360], got [%v, %v]", lower, upper)
	}

	lower, upper = o.Bounds(api.PricingRequest{Score: 3})
	if lower != 0.01 || !(upper > lower) {
		t.Errorf("Expected a non-degenerate range above 0.01, got [%v, %v]", lower, upper)
	}
}

func TestOverflowingRangeRejected(t *testing.T) {
	o := newOptimizer(t, linearModel(t, 1000, 0))
	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name   string
		mutate func(*api.PricingRequest)
		opts   api.SearchOptions
		field  string
	}{
		{"huge comp1", func(r *api.PricingRequest) { r.Comp1 = 1e308 }, api.SearchOptions{}, "comp1"},
		{"huge comp3", func(r *api.PricingRequest) { r.Comp3 = 1e308 }, api.SearchOptions{}, "comp3"},
		{"huge cogs", func(r *api.PricingRequest) { r.Cogs = 1e308 }, api.SearchOptions{}, "cogs"},
		{"landed cost overflows", func(r *api.PricingRequest) { r.Cogs, r.Freight = 1e308, 1.5e308 }, api.SearchOptions{}, "freight"},
		{"huge min_price", func(*api.PricingRequest) {}, api.SearchOptions{MinPrice: f(1e308)}, "min_price"},
		{"span overflows grid", func(*api.PricingRequest) {}, api.SearchOptions{MaxPrice: f(1.7e308)}, "max_price"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := referenceRequest
			tt.mutate(&req)
			out, err := o.Optimize(context.Background(), req, tt.opts)
			if !errors.Is(err, apperrors.ErrInvalidRequest) {
				t.Fatalf("Expected ErrInvalidRequest, got %+v, %v", out, err)
			}
			var oe *apperrors.OptimizationError
			if !errors.As(err, &oe) || oe.Field != tt.field {
				t.Errorf("Expected field %s, got %v", tt.field, err)
			}
		})
	}

	top := 1e300
	want := top * DefaultConfig().UpperMultiplier
	req := referenceRequest
	req.Comp1 = top
	out, err := o.Optimize(context.Background(), req, api.SearchOptions{})
	if err != nil {
		t.Fatalf("Expected a large but finite range to succeed, got %v", err)
	}
	if out.Search.MaxPrice != want || out.OptimalPrice != want || math.IsInf(out.MaxProfit, 0) {
		t.Errorf("Expected a finite optimum at %v, got %+v", want, out)
	}
}

func TestValidationErrors(t *testing.T) {
	o := newOptimizer(t, constantModel(t, 1))

	tests := []struct {
		name   string
		mutate func(*api.PricingRequest)
		field  string
	}{
		{"negative cogs", func(r *api.PricingRequest) { r.Cogs = -1 }, "cogs"},
		{"NaN freight", func(r *api.PricingRequest) { r.Freight = math.NaN() }, "freight"},
		{"inf comp2", func(r *api.PricingRequest) { r.Comp2 = math.Inf(1) }, "comp2"},
		{"negative comp3", func(r *api.PricingRequest) { r.Comp3 = -0.5 }, "comp3"},
		{"NaN score", func(r *api.PricingRequest) { r.Score = math.NaN() }, "score"},
		{"negative customers", func(r *api.PricingRequest) { r.Customers = -3 }, "customers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := referenceRequest
			tt.mutate(&req)
			_, err := o.Optimize(context.Background(), req, api.SearchOptions{})
			if !errors.Is(err, apperrors.ErrInvalidRequest) {
				t.Fatalf("Expected ErrInvalidRequest, got %v", err)
			}
			var oe *apperrors.OptimizationError
			if !errors.As(err, &oe) || oe.Field != tt.field {
				t.Errorf("Expected field %s, got %v", tt.field, err)
			}
		})
	}

	req := referenceRequest
	req.Score = 9
	if _, err := o.Optimize(context.Background(), req, api.SearchOptions{}); err != nil {
		t.Errorf("Expected out-of-range score to only warn, got %v", err)
	}
}

func TestSearchOptions(t *testing.T) {
	o := newOptimizer(t, constantModel(t, 2))
	f := func(v float64) *float64 { return &v }

	out, err := o.Optimize(context.Background(), referenceRequest, api.SearchOptions{MinPrice: f(10), MaxPrice: f(200), Samples: 11})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if out.Search.MinPrice != 60 {
		t.Errorf("Expected min_price below break-even raised to 60, got %v", out.Search.MinPrice)
	}
	if out.Search.MaxPrice != 200 || out.OptimalPrice != 200 {
		t.Errorf("Expected max 200, got %+v", out)
	}
	if out.Search.Samples != 11 {
		t.Errorf("Expected 11 samples, got %d", out.Search.Samples)
	}

	bad := []api.SearchOptions{
		{MaxPrice: f(60)},
		{MinPrice: f(100), MaxPrice: f(90)},
		{Samples: 1},
		{Samples: MaxSamples + 1},
		{MinPrice: f(math.NaN())},
	}
	for _, opts := range bad {
		if _, err := o.Optimize(context.Background(), referenceRequest, opts); !errors.Is(err, apperrors.ErrInvalidRequest) {
			t.Errorf("Expected ErrInvalidRequest for %+v, got %v", opts, err)
		}
	}
}

func TestOptimizeCancelled(t *testing.T) {
	o := newOptimizer(t, constantModel(t, 1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Optimize(ctx, referenceRequest, api.SearchOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestEvaluate(t *testing.T) {
	o := newOptimizer(t, linearModel(t, 100, 1))

	ev, err := o.Evaluate(referenceRequest, 50)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if ev.PredictedQty != 50 || ev.Margin != -10 || ev.PredictedProfit != -500 {
		t.Errorf("Expected qty 50, margin -10, profit -500, got %+v", ev)
	}

	for _, price := range []float64{0, -1, math.Inf(1), math.NaN()} {
		if _, err := o.Evaluate(referenceRequest, price); !errors.Is(err, apperrors.ErrInvalidRequest) {
			t.Errorf("Expected ErrInvalidRequest for price %v, got %v", price, err)
		}
	}

	nan, err := demand.NewFittedModel(demand.Artifact{
		FeatureNames: []string{"unit_price"},
		Coefficients: []float64{math.NaN()},
		Means:        []float64{0},
		Scales:       []float64{1},
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := newOptimizer(t, nan).Evaluate(referenceRequest, 10); !errors.Is(err, apperrors.ErrNonFinitePrediction) {
		t.Errorf("Expected ErrNonFinitePrediction, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	bad := []Config{
		{Samples: 1, UpperMultiplier: 3, PriceFloor: 0.01},
		{Samples: 100001, UpperMultiplier: 3, PriceFloor: 0.01},
		{Samples: 10, UpperMultiplier: 1, PriceFloor: 0.01},
		{Samples: 10, UpperMultiplier: math.Inf(1), PriceFloor: 0.01},
		{Samples: 10, UpperMultiplier: 3, PriceFloor: 0},
	}
	for _, c := range bad {
		if err := c.Validate(); err == nil {
			t.Errorf("Expected error for %+v", c)
		}
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("Expected default config to be valid, got %v", err)
	}
}

func TestNewRejectsUnknownFeature(t *testing.T) {
	m, err := demand.NewFittedModel(demand.Artifact{
		FeatureNames: []string{"unit_price", "day_of_week"},
		Coefficients: []float64{1, 1},
		Means:        []float64{0, 0},
		Scales:       []float64{1, 1},
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := New(m, DefaultConfig()); err == nil {
		t.Error("Expected error for an underivable feature")
	}
}

func TestConcurrentOptimize(t *testing.T) {
	o := newOptimizer(t, loadModel(t, "reference_model.json"))
	want, err := o.Optimize(context.Background(), referenceRequest, api.SearchOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan string, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := o.Optimize(context.Background(), referenceRequest, api.SearchOptions{})
			if err != nil || *got != *want {
				errs <- "concurrent optimize diverged"
			}
		}()
	}
	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Error(msg)
	}
}
