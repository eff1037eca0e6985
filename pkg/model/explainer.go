package model

import (
	"fmt"
)

// LinearExplainer attributes weights_i * (x_i - baseline_i) to each feature.
type LinearExplainer struct {
	Kind     Kind      `json:"kind"`
	Features []string  `json:"feature_names,omitempty"`
	Weights  []float64 `json:"weights"`
	Baseline []float64 `json:"baseline,omitempty"`
}

// FeatureNames returns the columns the explainer was fitted on.
func (e *LinearExplainer) FeatureNames() []string {
	return e.Features
}

// Validate checks vector shapes.
func (e *LinearExplainer) Validate() error {
	if len(e.Weights) == 0 {
		return fmt.Errorf("%w: linear explainer has no weights", ErrInvalidModel)
	}
	if len(e.Baseline) == 0 {
		e.Baseline = make([]float64, len(e.Weights))
	}
	if len(e.Baseline) != len(e.Weights) {
		return fmt.Errorf("%w: baseline width %d, weights width %d", ErrInvalidModel, len(e.Baseline), len(e.Weights))
	}
	if len(e.Features) > 0 && len(e.Features) != len(e.Weights) {
		return fmt.Errorf("%w: %d feature names for %d weights", ErrInvalidModel, len(e.Features), len(e.Weights))
	}
	return nil
}

// Explain returns one attribution per input feature.
func (e *LinearExplainer) Explain(x []float64) ([]float64, error) {
	if len(x) != len(e.Weights) {
		return nil, fmt.Errorf("%w: got %d features, explainer expects %d", ErrFeatureCount, len(x), len(e.Weights))
	}
	out := make([]float64, len(x))
	for i, w := range e.Weights {
		out[i] = w * (x[i] - e.Baseline[i])
	}
	return out, nil
}

// TreePathExplainer decomposes an ensemble prediction along each decision path:
// every split credits its feature with the change in expected positive output
// between parent and child node.
type TreePathExplainer struct {
	model *TreeEnsemble
}

// Explain returns one attribution per input feature. Mean ensembles average
// contributions over trees; boosted ensembles sum margin contributions.
func (e *TreePathExplainer) Explain(x []float64) ([]float64, error) {
	m := e.model
	if err := m.checkInput(x); err != nil {
		return nil, err
	}

	out := make([]float64, len(x))
	for i := range m.Trees {
		t := &m.Trees[i]
		n := &t.Nodes[0]
		for !n.IsLeaf() {
			child, err := t.step(n, x)
			if err != nil {
				return nil, err
			}
			out[n.Feature] += m.positive(child) - m.positive(n)
			n = child
		}
	}

	if m.Aggregation == AggregateMean {
		k := float64(len(m.Trees))
		for i := range out {
			out[i] /= k
		}
	}
	return out, nil
}

// ExpectedValue returns the positive output at the tree roots, the value the
// path contributions are measured from.
func (e *TreePathExplainer) ExpectedValue() float64 {
	m := e.model
	var sum float64
	for i := range m.Trees {
		sum += m.positive(&m.Trees[i].Nodes[0])
	}
	if m.Aggregation == AggregateMean {
		return sum / float64(len(m.Trees))
	}
	return m.BaseScore + sum
}
