package api

// OptimizationResult is the profit-maximizing candidate.
type OptimizationResult struct {
	OptimalPrice float64 `json:"optimal_price"`
	MaxProfit    float64 `json:"max_profit"`
	PredictedQty float64 `json:"predicted_qty"`
}

// SearchSummary describes the swept candidate range.
type SearchSummary struct {
	MinPrice  float64 `json:"min_price"`
	MaxPrice  float64 `json:"max_price"`
	Samples   int     `json:"samples"`
	Evaluated int     `json:"evaluated"`
	Skipped   int     `json:"skipped"`
}

// PriceEvaluation is the demand and profit predicted at a single price.
// PredictedProfit is margin × quantity and is not floored at zero: below
// break-even it is negative, so callers see the loss instead of a flat 0.
type PriceEvaluation struct {
	UnitPrice       float64 `json:"unit_price"`
	PredictedQty    float64 `json:"predicted_qty"`
	PredictedProfit float64 `json:"predicted_profit"`
	Margin          float64 `json:"margin"`
}

// OptimizeResponse is the HTTP response for an optimization.
type OptimizeResponse struct {
	OptimizationResult
	RunID        string        `json:"run_id"`
	ModelVersion string        `json:"model_version"`
	CacheHit     bool          `json:"cache_hit"`
	Search       SearchSummary `json:"search"`
	Success      bool          `json:"success"`
}

// PredictResponse is the HTTP response for a single-price evaluation.
type PredictResponse struct {
	PriceEvaluation
	ModelVersion string `json:"model_version"`
	Success      bool   `json:"success"`
}

// ModelInfo summarizes the loaded model artifact.
type ModelInfo struct {
	Version         string   `json:"version"`
	TargetTransform string   `json:"target_transform"`
	FeatureCount    int      `json:"feature_count"`
	Features        []string `json:"features"`
	Categories      []string `json:"categories"`
	Intercept       float64  `json:"intercept"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
}
