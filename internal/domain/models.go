package domain

import (
	"math"
	"sort"
)

// FeatureRecord maps a measurement or derived column name to its numeric value.
type FeatureRecord map[string]float64

// Clone returns an independent copy of the record.
func (r FeatureRecord) Clone() FeatureRecord {
	out := make(FeatureRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Get returns the value of a column, or 0 when absent.
func (r FeatureRecord) Get(column string) float64 {
	return r[column]
}

// Columns returns the column names in lexical order.
func (r FeatureRecord) Columns() []string {
	cols := make([]string, 0, len(r))
	for k := range r {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// ProbabilityVector is a class distribution ordered by class index.
// Index 0 is the negative class and index 1 the positive class.
type ProbabilityVector []float64

// NeutralVector is used when no base classifier is available.
func NeutralVector() ProbabilityVector {
	return ProbabilityVector{0.5, 0.5}
}

// Positive returns the positive-class probability. A singleton vector is
// interpreted as the positive probability itself.
func (v ProbabilityVector) Positive() float64 {
	switch len(v) {
	case 0:
		return 0
	case 1:
		return v[0]
	default:
		return v[1]
	}
}

// Clone returns an independent copy of the vector.
func (v ProbabilityVector) Clone() ProbabilityVector {
	out := make(ProbabilityVector, len(v))
	copy(out, v)
	return out
}

// ClampProbability bounds p to [0,1]. NaN maps to 0.
func ClampProbability(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	return math.Max(0, math.Min(1, p))
}

// Attribution is a single ranked feature contribution.
type Attribution struct {
	Label        string    `json:"label"`
	Value        float64   `json:"value"`
	DisplayValue float64   `json:"display_value"`
	RawInput     string    `json:"raw_input"`
	Direction    Direction `json:"direction"`
}

// Degradation records a non-fatal component failure for one invocation.
type Degradation struct {
	Component string `json:"component"`
	Model     string `json:"model,omitempty"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

// DiagnosticResult is the outcome of one pipeline invocation. It is created once
// and never mutated afterwards by the engine.
type DiagnosticResult struct {
	Disease          DiseaseCategory `json:"disease"`
	Label            string          `json:"label"`
	Positive         bool            `json:"positive"`
	Confidence       float64         `json:"confidence"`
	Explanation      string          `json:"explanation"`
	SaliencyPath     string          `json:"saliency_path,omitempty"`
	Attributions     []Attribution   `json:"attributions"`
	EngineeredRecord FeatureRecord   `json:"engineered_record"`

	// Probability is the final fused probability in [0,1].
	Probability           float64  `json:"probability"`
	MLProbability         float64  `json:"ml_probability"`
	CalibratedProbability float64  `json:"calibrated_probability"`
	CNNProbability        *float64 `json:"cnn_probability,omitempty"`

	Degradations []Degradation `json:"degradations,omitempty"`
}

// HasSaliency reports whether a saliency artifact was produced.
func (r *DiagnosticResult) HasSaliency() bool {
	return r.SaliencyPath != ""
}
