package service

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/hybrid-diagnosis-engine/internal/domain"
)

// StackingOutcome is the pre-calibration probability and how it was produced.
type StackingOutcome struct {
	Probability float64
	UsedMeta    bool
	Degradation *domain.Degradation
}

// StackingCombiner merges the base vectors with the meta-learner, or their mean.
type StackingCombiner struct {
	logger *logrus.Logger
	models domain.ModelProvider
}

// NewStackingCombiner creates a combiner over the registry.
func NewStackingCombiner(logger *logrus.Logger, models domain.ModelProvider) *StackingCombiner {
	return &StackingCombiner{logger: logger, models: models}
}

// StackInput concatenates the vectors in rf, xgb, lgbm order.
func StackInput(vectors []domain.ProbabilityVector) []float64 {
	var n int
	for _, v := range vectors {
		n += len(v)
	}
	out := make([]float64, 0, n)
	for _, v := range vectors {
		out = append(out, v...)
	}
	return out
}

// MeanPositive is the unweighted mean of positive-class probabilities.
func MeanPositive(vectors []domain.ProbabilityVector) float64 {
	if len(vectors) == 0 {
		return 0.5
	}
	var sum float64
	for _, v := range vectors {
		sum += v.Positive()
	}
	return sum / float64(len(vectors))
}

// Combine produces ml_prob. A failing meta-learner falls back to the mean.
func (c *StackingCombiner) Combine(base *BasePredictions) StackingOutcome {
	vectors := base.Ordered()

	meta, ok := c.models.Get(domain.ModelMeta)
	if !ok {
		return StackingOutcome{Probability: domain.ClampProbability(MeanPositive(vectors))}
	}

	raw, err := safePredict(meta, StackInput(vectors))
	if err == nil {
		var out domain.ProbabilityVector
		if out, err = NormalizeOutput(raw); err == nil {
			return StackingOutcome{Probability: out.Positive(), UsedMeta: true}
		}
	}

	cerr := domain.NewComponentError(domain.ComponentStacking, domain.ModelMeta, domain.ErrInference,
		fmt.Errorf("meta-learner: %w", err))
	c.logger.WithError(err).Warn("Meta-learner failed, using mean of base probabilities")
	d := cerr.Degradation()
	return StackingOutcome{
		Probability: domain.ClampProbability(MeanPositive(vectors)),
		Degradation: &d,
	}
}
