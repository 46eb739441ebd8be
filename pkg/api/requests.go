// Package api defines the shared request/response contracts for the optimizer.
package api

import (
	apperrors "price-optimizer/pkg/errors"
)

// PricingRequest is the validated-shape input to the optimizer core.
type PricingRequest struct {
	Category  string  `json:"category"`
	Cogs      float64 `json:"cogs"`
	Freight   float64 `json:"freight"`
	Comp1     float64 `json:"comp1"`
	Comp2     float64 `json:"comp2"`
	Comp3     float64 `json:"comp3"`
	Score     float64 `json:"score"`
	Customers int64   `json:"customers"`
}

// LandedCost is cogs + freight, the break-even price.
func (r PricingRequest) LandedCost() float64 {
	return r.Cogs + r.Freight
}

// PricingRequestPayload is the wire shape of a pricing request. Pointer
// fields distinguish an absent field from an explicit zero.
type PricingRequestPayload struct {
	Category  *string  `json:"category"`
	Cogs      *float64 `json:"cogs"`
	Freight   *float64 `json:"freight"`
	Comp1     *float64 `json:"comp1"`
	Comp2     *float64 `json:"comp2"`
	Comp3     *float64 `json:"comp3"`
	Score     *float64 `json:"score"`
	Customers *int64   `json:"customers"`
}

// ToRequest converts the payload, rejecting absent required fields.
// Category is optional; an absent category encodes as unknown.
func (p PricingRequestPayload) ToRequest() (PricingRequest, error) {
	var req PricingRequest
	if p.Category != nil {
		req.Category = *p.Category
	}

	required := []struct {
		name string
		src  *float64
		dst  *float64
	}{
		{"cogs", p.Cogs, &req.Cogs},
		{"freight", p.Freight, &req.Freight},
		{"comp1", p.Comp1, &req.Comp1},
		{"comp2", p.Comp2, &req.Comp2},
		{"comp3", p.Comp3, &req.Comp3},
		{"score", p.Score, &req.Score},
	}
	for _, f := range required {
		if f.src == nil {
			return PricingRequest{}, apperrors.NewInvalidRequestError(f.name, "is required")
		}
		*f.dst = *f.src
	}
	if p.Customers == nil {
		return PricingRequest{}, apperrors.NewInvalidRequestError("customers", "is required")
	}
	req.Customers = *p.Customers
	return req, nil
}

// PredictRequestPayload is the wire shape of a single-price evaluation.
type PredictRequestPayload struct {
	PricingRequestPayload
	UnitPrice *float64 `json:"unit_price"`
}

// ToRequest converts the payload into a pricing request and a price.
func (p PredictRequestPayload) ToRequest() (PricingRequest, float64, error) {
	req, err := p.PricingRequestPayload.ToRequest()
	if err != nil {
		return PricingRequest{}, 0, err
	}
	if p.UnitPrice == nil {
		return PricingRequest{}, 0, apperrors.NewInvalidRequestError("unit_price", "is required")
	}
	return req, *p.UnitPrice, nil
}

// SearchOptions overrides the optimizer's default candidate range per call.
// Zero values mean "use the configured default".
type SearchOptions struct {
	MinPrice *float64 `json:"min_price,omitempty"`
	MaxPrice *float64 `json:"max_price,omitempty"`
	Samples  int      `json:"samples,omitempty"`
}
