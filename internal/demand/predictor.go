package demand

import (
	apperrors "price-optimizer/pkg/errors"
	"price-optimizer/pkg/numeric"
)

// DemandModel predicts quantity from a standardized feature vector.
type DemandModel struct {
	model *FittedModel
}

// NewDemandModel wraps a fitted model.
func NewDemandModel(model *FittedModel) *DemandModel {
	return &DemandModel{model: model}
}

// Model returns the underlying fitted model.
func (d *DemandModel) Model() *FittedModel { return d.model }

// Predict computes intercept + Σ coef·x, applies the target transform and
// clamps negative quantities to 0.
//
// A schema mismatch returns ErrInvalidFeatureVector. A NaN or infinite
// quantity returns ErrNonFinitePrediction, which sweep callers skip.
func (d *DemandModel) Predict(v FeatureVector) (float64, error) {
	schema := d.model.schema
	if len(v.Values) != schema.Len() || v.Schema.Len() != schema.Len() {
		return 0, apperrors.NewInvalidFeatureVectorError(
			"vector has %d values over %d names, model expects %d features",
			len(v.Values), v.Schema.Len(), schema.Len())
	}
	if i := v.Schema.firstMismatch(schema); i >= 0 {
		return 0, apperrors.NewInvalidFeatureVectorError(
			"feature %d is %q, model expects %q", i, v.Schema.Name(i), schema.Name(i))
	}

	y := d.model.intercept
	for i, x := range v.Values {
		y += d.model.coefs[i] * x
	}

	qty := d.model.transform.Apply(y)
	if !numeric.IsFinite(qty) {
		return 0, apperrors.ErrNonFinitePrediction
	}
	return numeric.ClampMin(qty, 0), nil
}
