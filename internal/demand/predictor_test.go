package demand

import (
	"errors"
	"math"
	"testing"

	apperrors "price-optimizer/pkg/errors"
)

func mustModel(t *testing.T, a Artifact) *DemandModel {
	t.Helper()
	m, err := NewFittedModel(a)
	if err != nil {
		t.Fatalf("failed to build model: %v", err)
	}
	return NewDemandModel(m)
}

func TestPredict(t *testing.T) {
	d := mustModel(t, testArtifact())
	v := FeatureVector{Schema: d.Model().Schema(), Values: []float64{2, 1, 1}}

	// 10 - 4 + 1 + 3
	qty, err := d.Predict(v)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if qty != 10 {
		t.Errorf("Expected 10, got %v", qty)
	}
}

func TestPredictClampsNegative(t *testing.T) {
	d := mustModel(t, testArtifact())
	v := FeatureVector{Schema: d.Model().Schema(), Values: []float64{100, 0, 0}}

	qty, err := d.Predict(v)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if qty != 0 {
		t.Errorf("Expected clamped 0, got %v", qty)
	}
}

func TestPredictLog1p(t *testing.T) {
	a := testArtifact()
	a.TargetTransform = "log1p"
	a.Intercept = math.Log1p(9)
	a.Coefficients = []float64{0, 0, 0}
	d := mustModel(t, a)

	qty, err := d.Predict(FeatureVector{Schema: d.Model().Schema(), Values: []float64{5, 5, 1}})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if math.Abs(qty-9) > 1e-9 {
		t.Errorf("Expected 9, got %v", qty)
	}
}

func TestPredictSchemaMismatch(t *testing.T) {
	d := mustModel(t, testArtifact())

	tests := []struct {
		name string
		v    FeatureVector
	}{
		{"short values", FeatureVector{Schema: d.Model().Schema(), Values: []float64{1, 2}}},
		{"short schema", FeatureVector{Schema: NewSchema([]string{"unit_price"}), Values: []float64{1, 2, 3}}},
		{"reordered", FeatureVector{
			Schema: NewSchema([]string{"cogs", "unit_price", "category_perfumery"}),
			Values: []float64{1, 2, 3},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Predict(tt.v)
			if !errors.Is(err, apperrors.ErrInvalidFeatureVector) {
				t.Errorf("Expected ErrInvalidFeatureVector, got %v", err)
			}
		})
	}
}

func TestPredictNonFinite(t *testing.T) {
	a := testArtifact()
	a.Coefficients[0] = math.NaN()
	d := mustModel(t, a)

	_, err := d.Predict(FeatureVector{Schema: d.Model().Schema(), Values: []float64{1, 1, 1}})
	if !errors.Is(err, apperrors.ErrNonFinitePrediction) {
		t.Errorf("Expected ErrNonFinitePrediction, got %v", err)
	}

	a = testArtifact()
	a.Coefficients[0] = math.Inf(1)
	d = mustModel(t, a)
	_, err = d.Predict(FeatureVector{Schema: d.Model().Schema(), Values: []float64{1, 0, 0}})
	if !errors.Is(err, apperrors.ErrNonFinitePrediction) {
		t.Errorf("Expected ErrNonFinitePrediction for +Inf, got %v", err)
	}
}

func TestSchemaEqual(t *testing.T) {
	a := NewSchema([]string{"a", "b"})
	if !a.Equal(NewSchema([]string{"a", "b"})) {
		t.Error("Expected equal schemas")
	}
	if a.Equal(NewSchema([]string{"a"})) {
		t.Error("Expected different lengths to be unequal")
	}
	if a.Equal(NewSchema([]string{"b", "a"})) {
		t.Error("Expected different order to be unequal")
	}
	names := a.Names()
	names[0] = "z"
	if a.Name(0) != "a" {
		t.Error("Expected Names to return a copy")
	}
}
