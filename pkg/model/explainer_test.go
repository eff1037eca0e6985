package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinearExplainer_Explain(t *testing.T) {
	e := &LinearExplainer{
		Kind:     KindLinearExplainer,
		Weights:  []float64{0.01, -0.5, 2},
		Baseline: []float64{30, 0, 1},
	}
	require.NoError(t, e.Validate())

	got, err := e.Explain([]float64{60, 1, 1})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.3, -0.5, 0}, got, 1e-9)

	_, err = e.Explain([]float64{1})
	assert.ErrorIs(t, err, ErrFeatureCount)
}

func TestLinearExplainer_ValidateZeroBaseline(t *testing.T) {
	e := &LinearExplainer{Weights: []float64{1, 2}}
	require.NoError(t, e.Validate())
	assert.Equal(t, []float64{0, 0}, e.Baseline)

	got, err := e.Explain([]float64{3, 4})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 8}, got)
}

func TestLinearExplainer_ValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		e    *LinearExplainer
	}{
		{"no weights", &LinearExplainer{}},
		{"baseline width", &LinearExplainer{Weights: []float64{1}, Baseline: []float64{1, 2}}},
		{"feature names", &LinearExplainer{Weights: []float64{1}, Features: []string{"a", "b"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.e.Validate(), ErrInvalidModel)
		})
	}
}

func TestTreePathExplainer_SumsToPrediction(t *testing.T) {
	m := forest()
	e, err := m.Explainer()
	require.NoError(t, err)

	inputs := [][]float64{{5, 0}, {60, 0}, {60, 1}, {5, 1}}
	for _, x := range inputs {
		contrib, err := e.Explain(x)
		require.NoError(t, err)
		require.Len(t, contrib, 2)

		p, err := m.PredictProba(x)
		require.NoError(t, err)

		sum := e.ExpectedValue()
		for _, c := range contrib {
			sum += c
		}
		assert.InDelta(t, p[1], sum, 1e-9)
	}
}

func TestTreePathExplainer_Direction(t *testing.T) {
	e, err := forest().Explainer()
	require.NoError(t, err)

	contrib, err := e.Explain([]float64{60, 0})
	require.NoError(t, err)
	assert.Greater(t, contrib[0], 0.0)
	assert.Less(t, contrib[1], 0.0)
}

func TestTreePathExplainer_LogisticSum(t *testing.T) {
	m := &TreeEnsemble{
		Aggregation: AggregateLogisticSum,
		Trees: []Tree{{Nodes: []Node{
			{Feature: 0, Threshold: 20, Left: 1, Right: 2, Value: []float64{0.5}},
			{Left: -1, Right: -1, Value: []float64{-1}},
			{Left: -1, Right: -1, Value: []float64{2}},
		}}},
	}
	e, err := m.Explainer()
	require.NoError(t, err)

	contrib, err := e.Explain([]float64{25})
	require.NoError(t, err)
	assert.InDelta(t, 1.5, contrib[0], 1e-9)
}
