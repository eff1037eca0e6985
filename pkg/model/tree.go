package model

import (
	"fmt"
	"math"
)

// Aggregation selects how tree outputs combine.
type Aggregation string

const (
	// AggregateMean averages leaf class-probability vectors (bagged forests).
	AggregateMean Aggregation = "mean"
	// AggregateLogisticSum sums leaf margins and applies the sigmoid (gradient boosting).
	AggregateLogisticSum Aggregation = "logistic_sum"
)

// Node is one decision-tree node. Left == -1 marks a leaf. Value holds the
// expected output at the node: a class-probability vector for mean trees, a
// single margin for boosted trees.
type Node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value"`
}

// IsLeaf reports whether the node terminates the path.
func (n *Node) IsLeaf() bool {
	return n.Left < 0
}

// Tree is a flattened decision tree rooted at node 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// TreeEnsemble is a fitted forest or boosted ensemble.
type TreeEnsemble struct {
	Kind        Kind        `json:"kind"`
	Name        string      `json:"name,omitempty"`
	Features    []string    `json:"feature_names,omitempty"`
	NumFeatures int         `json:"n_features,omitempty"`
	NumClasses  int         `json:"n_classes"`
	Aggregation Aggregation `json:"aggregation"`
	BaseScore   float64     `json:"base_score"`
	Trees       []Tree      `json:"trees"`
}

// FeatureNames returns the declared training columns, if any.
func (m *TreeEnsemble) FeatureNames() []string {
	return m.Features
}

// Validate checks structural integrity so that inference cannot index out of range.
func (m *TreeEnsemble) Validate() error {
	if m.Aggregation == "" {
		m.Aggregation = AggregateMean
	}
	if m.Aggregation != AggregateMean && m.Aggregation != AggregateLogisticSum {
		return fmt.Errorf("%w: unknown aggregation %q", ErrInvalidModel, m.Aggregation)
	}
	if m.NumClasses == 0 {
		m.NumClasses = 2
	}
	if len(m.Trees) == 0 {
		return fmt.Errorf("%w: ensemble has no trees", ErrInvalidModel)
	}
	if len(m.Features) > 0 {
		m.NumFeatures = len(m.Features)
	}

	width := m.valueWidth()
	for ti, t := range m.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("%w: tree %d is empty", ErrInvalidModel, ti)
		}
		for ni, n := range t.Nodes {
			if len(n.Value) != width {
				return fmt.Errorf("%w: tree %d node %d has %d values, want %d", ErrInvalidModel, ti, ni, len(n.Value), width)
			}
			if n.IsLeaf() {
				continue
			}
			if n.Left <= ni || n.Right <= ni || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
				return fmt.Errorf("%w: tree %d node %d has invalid children", ErrInvalidModel, ti, ni)
			}
			if n.Feature < 0 || (m.NumFeatures > 0 && n.Feature >= m.NumFeatures) {
				return fmt.Errorf("%w: tree %d node %d splits on feature %d", ErrInvalidModel, ti, ni, n.Feature)
			}
		}
	}
	return nil
}

func (m *TreeEnsemble) valueWidth() int {
	if m.Aggregation == AggregateLogisticSum {
		return 1
	}
	return m.NumClasses
}

// PredictProba returns class probabilities for mean ensembles and a single
// positive-class probability for boosted ensembles.
func (m *TreeEnsemble) PredictProba(x []float64) ([]float64, error) {
	if err := m.checkInput(x); err != nil {
		return nil, err
	}

	if m.Aggregation == AggregateLogisticSum {
		margin := m.BaseScore
		for i := range m.Trees {
			leaf, err := m.Trees[i].leaf(x)
			if err != nil {
				return nil, err
			}
			margin += leaf.Value[0]
		}
		return []float64{sigmoid(margin)}, nil
	}

	out := make([]float64, m.NumClasses)
	for i := range m.Trees {
		leaf, err := m.Trees[i].leaf(x)
		if err != nil {
			return nil, err
		}
		for c, v := range leaf.Value {
			out[c] += v
		}
	}
	n := float64(len(m.Trees))
	for c := range out {
		out[c] /= n
	}
	return out, nil
}

// Explainer returns a path-attribution explainer over this ensemble.
func (m *TreeEnsemble) Explainer() (*TreePathExplainer, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &TreePathExplainer{model: m}, nil
}

func (m *TreeEnsemble) checkInput(x []float64) error {
	if m.NumFeatures > 0 && len(x) != m.NumFeatures {
		return fmt.Errorf("%w: got %d features, model expects %d", ErrFeatureCount, len(x), m.NumFeatures)
	}
	return nil
}

// positive extracts the positive-class component of a node value.
func (m *TreeEnsemble) positive(n *Node) float64 {
	if len(n.Value) > 1 {
		return n.Value[1]
	}
	return n.Value[0]
}

func (t *Tree) leaf(x []float64) (*Node, error) {
	n := &t.Nodes[0]
	for !n.IsLeaf() {
		next, err := t.step(n, x)
		if err != nil {
			return nil, err
		}
		n = next
	}
	return n, nil
}

// step routes x one level down. NaN goes left.
func (t *Tree) step(n *Node, x []float64) (*Node, error) {
	if n.Feature >= len(x) {
		return nil, fmt.Errorf("%w: split on feature %d with %d inputs", ErrFeatureCount, n.Feature, len(x))
	}
	v := x[n.Feature]
	if math.IsNaN(v) || v <= n.Threshold {
		return &t.Nodes[n.Left], nil
	}
	return &t.Nodes[n.Right], nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
