package model

import (
	"fmt"
	"math"
)

// Logistic is a fitted logistic regression. A single coefficient row is a binary
// model; K rows are a multinomial (softmax) model over K classes.
type Logistic struct {
	Kind         Kind        `json:"kind"`
	Features     []string    `json:"feature_names,omitempty"`
	Coefficients [][]float64 `json:"coefficients"`
	Intercepts   []float64   `json:"intercepts"`
}

// FeatureNames returns the declared training columns, if any.
func (m *Logistic) FeatureNames() []string {
	return m.Features
}

// NumInputs returns the expected input width.
func (m *Logistic) NumInputs() int {
	if len(m.Coefficients) == 0 {
		return 0
	}
	return len(m.Coefficients[0])
}

// Validate checks coefficient shapes.
func (m *Logistic) Validate() error {
	if len(m.Coefficients) == 0 {
		return fmt.Errorf("%w: logistic model has no coefficients", ErrInvalidModel)
	}
	if len(m.Intercepts) == 0 {
		m.Intercepts = make([]float64, len(m.Coefficients))
	}
	if len(m.Intercepts) != len(m.Coefficients) {
		return fmt.Errorf("%w: %d intercepts for %d coefficient rows", ErrInvalidModel, len(m.Intercepts), len(m.Coefficients))
	}
	width := len(m.Coefficients[0])
	for i, row := range m.Coefficients {
		if len(row) != width || width == 0 {
			return fmt.Errorf("%w: coefficient row %d has width %d", ErrInvalidModel, i, len(row))
		}
	}
	if len(m.Features) > 0 && len(m.Features) != width {
		return fmt.Errorf("%w: %d feature names for width %d", ErrInvalidModel, len(m.Features), width)
	}
	return nil
}

// PredictProba returns [1-p, p] for binary models and the softmax distribution otherwise.
func (m *Logistic) PredictProba(x []float64) ([]float64, error) {
	if len(x) != m.NumInputs() {
		return nil, fmt.Errorf("%w: got %d features, model expects %d", ErrFeatureCount, len(x), m.NumInputs())
	}

	logits := make([]float64, len(m.Coefficients))
	for k, row := range m.Coefficients {
		z := m.Intercepts[k]
		for i, w := range row {
			z += w * x[i]
		}
		logits[k] = z
	}

	if len(logits) == 1 {
		p := sigmoid(logits[0])
		return []float64{1 - p, p}, nil
	}
	return softmax(logits), nil
}

func softmax(z []float64) []float64 {
	maxZ := math.Inf(-1)
	for _, v := range z {
		maxZ = math.Max(maxZ, v)
	}
	out := make([]float64, len(z))
	var sum float64
	for i, v := range z {
		out[i] = math.Exp(v - maxZ)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
