// Package errors provides severity-aware error types for price optimization.
package errors

import "fmt"

// Severity indicates error impact level.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error codes
const (
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeInvalidFeatureVector = "INVALID_FEATURE_VECTOR"
	CodeNonFinitePrediction  = "NON_FINITE_PREDICTION"
	CodeNoFeasiblePrice      = "NO_FEASIBLE_PRICE"
	CodeInvalidModel         = "INVALID_MODEL"
)

// OptimizationError is a structured error with context.
// Two OptimizationErrors match under errors.Is when their codes are equal.
type OptimizationError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Field       string   `json:"field,omitempty"`
	Severity    Severity `json:"severity"`
	Recoverable bool     `json:"recoverable"`
	Err         error    `json:"-"`
}

func (e *OptimizationError) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", e.Severity, e.Code, e.Message)
	if e.Field != "" {
		msg += fmt.Sprintf(" (field: %s)", e.Field)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OptimizationError) Unwrap() error { return e.Err }

// Is reports whether target is an OptimizationError with the same code.
func (e *OptimizationError) Is(target error) bool {
	t, ok := target.(*OptimizationError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is matching.
var (
	ErrInvalidRequest       = &OptimizationError{Code: CodeInvalidRequest, Message: "invalid request", Severity: SeverityWarning, Recoverable: true}
	ErrInvalidFeatureVector = &OptimizationError{Code: CodeInvalidFeatureVector, Message: "feature vector does not match model schema", Severity: SeverityFatal}
	ErrNonFinitePrediction  = &OptimizationError{Code: CodeNonFinitePrediction, Message: "prediction is not finite", Severity: SeverityInfo, Recoverable: true}
	ErrNoFeasiblePrice      = &OptimizationError{Code: CodeNoFeasiblePrice, Message: "no candidate price produced a finite profit", Severity: SeverityError, Recoverable: true}
	ErrInvalidModel         = &OptimizationError{Code: CodeInvalidModel, Message: "invalid model artifact", Severity: SeverityFatal}
)

// NewInvalidRequestError creates an error for a rejected request field.
func NewInvalidRequestError(field, reason string) *OptimizationError {
	return &OptimizationError{
		Code:        CodeInvalidRequest,
		Message:     reason,
		Field:       field,
		Severity:    SeverityWarning,
		Recoverable: true,
	}
}

// NewInvalidFeatureVectorError creates an error for a schema mismatch between
// a built feature vector and the loaded model.
func NewInvalidFeatureVectorError(format string, args ...any) *OptimizationError {
	return &OptimizationError{
		Code:     CodeInvalidFeatureVector,
		Message:  fmt.Sprintf(format, args...),
		Severity: SeverityFatal,
	}
}

// NewNoFeasiblePriceError creates an error for a sweep where every candidate was skipped.
func NewNoFeasiblePriceError(evaluated int, minPrice, maxPrice float64) *OptimizationError {
	return &OptimizationError{
		Code:        CodeNoFeasiblePrice,
		Message:     fmt.Sprintf("none of %d candidates in [%.4f, %.4f] produced a finite profit", evaluated, minPrice, maxPrice),
		Severity:    SeverityError,
		Recoverable: true,
	}
}

// NewInvalidModelError creates an error for an artifact that violates the model schema.
func NewInvalidModelError(format string, args ...any) *OptimizationError {
	return &OptimizationError{
		Code:     CodeInvalidModel,
		Message:  fmt.Sprintf(format, args...),
		Severity: SeverityFatal,
	}
}

// CodeOf returns the code of the first OptimizationError in err's chain, or "".
func CodeOf(err error) string {
	for err != nil {
		if oe, ok := err.(*OptimizationError); ok {
			return oe.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
