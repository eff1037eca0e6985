package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hybrid-diagnosis-engine/internal/domain"
	"github.com/hybrid-diagnosis-engine/internal/registry"
)

func basePredictions(rf, xgb, lgbm domain.ProbabilityVector) *BasePredictions {
	return &BasePredictions{Vectors: map[domain.ModelKey]domain.ProbabilityVector{
		domain.ModelRandomForest: rf,
		domain.ModelXGBoost:      xgb,
		domain.ModelLightGBM:     lgbm,
	}}
}

func TestStackingCombiner_MeanWithoutMeta(t *testing.T) {
	logger := newTestLogger()
	c := NewStackingCombiner(logger, registry.New(logger))

	tests := []struct {
		name          string
		rf, xgb, lgbm domain.ProbabilityVector
		want          float64
	}{
		{"Neutral", domain.NeutralVector(), domain.NeutralVector(), domain.NeutralVector(), 0.5},
		{"Mixed", domain.ProbabilityVector{0.9, 0.1}, domain.ProbabilityVector{0.3, 0.7}, domain.ProbabilityVector{0.2, 0.8}, (0.1 + 0.7 + 0.8) / 3},
		{"Extremes", domain.ProbabilityVector{0, 1}, domain.ProbabilityVector{1, 0}, domain.ProbabilityVector{1, 0}, 1.0 / 3},
		{"Three_Class", domain.ProbabilityVector{0.2, 0.6, 0.2}, domain.ProbabilityVector{0.5, 0.5}, domain.ProbabilityVector{0.5, 0.5}, (0.6 + 0.5 + 0.5) / 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Combine(basePredictions(tt.rf, tt.xgb, tt.lgbm))
			assert.InDelta(t, tt.want, got.Probability, 1e-12)
			assert.False(t, got.UsedMeta)
			assert.Nil(t, got.Degradation)
		})
	}
}

func TestStackingCombiner_MetaLearner(t *testing.T) {
	logger := newTestLogger()

	t.Run("Concatenates_In_Fixed_Order", func(t *testing.T) {
		meta := new(MockScorer)
		meta.On("PredictProba", []float64{0.9, 0.1, 0.3, 0.7, 0.2, 0.8}).Return([]float64{0.25, 0.75}, nil)
		c := NewStackingCombiner(logger, registry.New(logger, registry.WithScorer(domain.ModelMeta, meta)))

		got := c.Combine(basePredictions(
			domain.ProbabilityVector{0.9, 0.1},
			domain.ProbabilityVector{0.3, 0.7},
			domain.ProbabilityVector{0.2, 0.8},
		))
		assert.True(t, got.UsedMeta)
		assert.Equal(t, 0.75, got.Probability)
		meta.AssertExpectations(t)
	})

	t.Run("Scalar_Output", func(t *testing.T) {
		meta := scorerReturning([]float64{0.4})
		c := NewStackingCombiner(logger, registry.New(logger, registry.WithScorer(domain.ModelMeta, meta)))

		got := c.Combine(basePredictions(domain.NeutralVector(), domain.NeutralVector(), domain.NeutralVector()))
		assert.InDelta(t, 0.4, got.Probability, 1e-12)
	})

	t.Run("Failure_Falls_Back_To_Mean", func(t *testing.T) {
		meta := new(MockScorer)
		meta.On("PredictProba", mock.Anything).Return(nil, errors.New("expecting 9 features"))
		c := NewStackingCombiner(logger, registry.New(logger, registry.WithScorer(domain.ModelMeta, meta)))

		got := c.Combine(basePredictions(
			domain.ProbabilityVector{0.4, 0.6},
			domain.ProbabilityVector{0.4, 0.6},
			domain.ProbabilityVector{0.1, 0.9},
		))
		assert.False(t, got.UsedMeta)
		assert.InDelta(t, 0.7, got.Probability, 1e-12)
		require.NotNil(t, got.Degradation)
		assert.Equal(t, domain.ComponentStacking, got.Degradation.Component)
		assert.Equal(t, "meta", got.Degradation.Model)
	})
}

func TestStackInput(t *testing.T) {
	got := StackInput([]domain.ProbabilityVector{{0.1, 0.9}, {0.2, 0.3, 0.5}, {1, 0}})
	assert.Equal(t, []float64{0.1, 0.9, 0.2, 0.3, 0.5, 1, 0}, got)
}
