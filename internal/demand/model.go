// Package demand holds the fitted linear demand model and its predictor.
package demand

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "price-optimizer/pkg/errors"
	"price-optimizer/pkg/numeric"
)

// CategoryPrefix marks one-hot category indicator features.
const CategoryPrefix = "category_"

// TargetTransform maps the linear output to a quantity.
type TargetTransform string

const (
	TransformIdentity TargetTransform = "identity"
	// TransformLog1p means the model was fit on log1p(qty); quantity = expm1(output).
	TransformLog1p TargetTransform = "log1p"
)

// Apply converts a linear output to a quantity.
func (t TargetTransform) Apply(y float64) float64 {
	if t == TransformLog1p {
		return math.Expm1(y)
	}
	return y
}

// Format is the serialization of a model artifact.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks a format from a file extension; anything that is not
// .yaml/.yml is treated as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Artifact is the serialized form of a fitted model. The four per-feature
// slices are aligned by index.
type Artifact struct {
	Version         string    `json:"version" yaml:"version"`
	TargetTransform string    `json:"target_transform" yaml:"target_transform"`
	Intercept       float64   `json:"intercept" yaml:"intercept"`
	FeatureNames    []string  `json:"feature_names" yaml:"feature_names"`
	Coefficients    []float64 `json:"coefficients" yaml:"coefficients"`
	Means           []float64 `json:"means" yaml:"means"`
	Scales          []float64 `json:"scales" yaml:"scales"`
}

// FittedModel is the immutable parameter set of a trained linear model.
// It is safe for concurrent readers.
type FittedModel struct {
	version   string
	transform TargetTransform
	intercept float64
	schema    Schema
	coefs     []float64
	means     []float64
	scales    []float64
}

// Parse decodes and validates an artifact.
func Parse(data []byte, format Format) (*FittedModel, error) {
	var a Artifact
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &a)
	default:
		err = json.Unmarshal(data, &a)
	}
	if err != nil {
		return nil, &apperrors.OptimizationError{
			Code:     apperrors.CodeInvalidModel,
			Message:  fmt.Sprintf("failed to decode %s artifact", format),
			Severity: apperrors.SeverityFatal,
			Err:      err,
		}
	}
	return NewFittedModel(a)
}

// NewFittedModel validates an artifact and copies it into an immutable model.
func NewFittedModel(a Artifact) (*FittedModel, error) {
	n := len(a.FeatureNames)
	if n == 0 {
		return nil, apperrors.NewInvalidModelError("artifact has no features")
	}
	if len(a.Coefficients) != n || len(a.Means) != n || len(a.Scales) != n {
		return nil, apperrors.NewInvalidModelError(
			"misaligned artifact: %d feature names, %d coefficients, %d means, %d scales",
			n, len(a.Coefficients), len(a.Means), len(a.Scales))
	}

	seen := make(map[string]int, n)
	for i, name := range a.FeatureNames {
		if strings.TrimSpace(name) == "" {
			return nil, apperrors.NewInvalidModelError("feature %d has an empty name", i)
		}
		if j, dup := seen[name]; dup {
			return nil, apperrors.NewInvalidModelError("feature %q appears at positions %d and %d", name, j, i)
		}
		seen[name] = i
	}

	transform := TargetTransform(strings.ToLower(a.TargetTransform))
	switch transform {
	case "":
		transform = TransformIdentity
	case TransformIdentity, TransformLog1p:
	default:
		return nil, apperrors.NewInvalidModelError("unknown target transform %q", a.TargetTransform)
	}

	version := a.Version
	if version == "" {
		version = "unversioned"
	}

	return &FittedModel{
		version:   version,
		transform: transform,
		intercept: a.Intercept,
		schema:    NewSchema(a.FeatureNames),
		coefs:     append([]float64(nil), a.Coefficients...),
		means:     append([]float64(nil), a.Means...),
		scales:    append([]float64(nil), a.Scales...),
	}, nil
}

func (m *FittedModel) Version() string            { return m.version }
func (m *FittedModel) Transform() TargetTransform { return m.transform }
func (m *FittedModel) Intercept() float64         { return m.intercept }
func (m *FittedModel) Schema() Schema             { return m.schema }
func (m *FittedModel) Len() int                   { return m.schema.Len() }

// Standardization returns the mean and scale of feature i.
func (m *FittedModel) Standardization(i int) (mean, scale float64) {
	return m.means[i], m.scales[i]
}

// Coefficient returns the coefficient of feature i.
func (m *FittedModel) Coefficient(i int) float64 {
	return m.coefs[i]
}

// Categories returns the known product categories, in feature order.
func (m *FittedModel) Categories() []string {
	var cats []string
	for i := 0; i < m.schema.Len(); i++ {
		if name := m.schema.Name(i); strings.HasPrefix(name, CategoryPrefix) {
			cats = append(cats, strings.TrimPrefix(name, CategoryPrefix))
		}
	}
	return cats
}

// Warnings lists parameters that load but will degrade predictions:
// non-finite coefficients, means or intercept, and zero or non-finite scales.
func (m *FittedModel) Warnings() []string {
	var warnings []string
	if !numeric.IsFinite(m.intercept) {
		warnings = append(warnings, "intercept is not finite")
	}
	for i := 0; i < m.schema.Len(); i++ {
		name := m.schema.Name(i)
		if !numeric.IsFinite(m.coefs[i]) {
			warnings = append(warnings, fmt.Sprintf("%s: coefficient is not finite", name))
		}
		if !numeric.IsFinite(m.means[i]) {
			warnings = append(warnings, fmt.Sprintf("%s: mean is not finite", name))
		}
		if m.scales[i] == 0 || !numeric.IsFinite(m.scales[i]) {
			warnings = append(warnings, fmt.Sprintf("%s: scale is zero or not finite, feature contributes nothing", name))
		}
	}
	sort.Strings(warnings)
	return warnings
}
