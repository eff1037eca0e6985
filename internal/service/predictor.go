package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/hybrid-diagnosis-engine/internal/domain"
	"github.com/hybrid-diagnosis-engine/internal/features"
)

// BasePredictions holds one probability vector per base classifier role, after
// substitution for absent or failed models.
type BasePredictions struct {
	Vectors map[domain.ModelKey]domain.ProbabilityVector
	// Sources records which model produced each role's vector. An empty key
	// means the neutral vector was used.
	Sources      map[domain.ModelKey]domain.ModelKey
	Degradations []domain.Degradation
}

// Ordered returns the vectors in stacking order: rf, xgb, lgbm.
func (b *BasePredictions) Ordered() []domain.ProbabilityVector {
	out := make([]domain.ProbabilityVector, 0, len(domain.BaseModelKeys))
	for _, key := range domain.BaseModelKeys {
		out = append(out, b.Vectors[key])
	}
	return out
}

// Positives returns the positive-class probability of each role in stacking order.
func (b *BasePredictions) Positives() []float64 {
	out := make([]float64, 0, len(domain.BaseModelKeys))
	for _, v := range b.Ordered() {
		out = append(out, v.Positive())
	}
	return out
}

// BasePredictor invokes the three base classifiers. When breakers are enabled
// each model sits behind its own circuit breaker, whose state spans calls.
type BasePredictor struct {
	logger   *logrus.Logger
	models   domain.ModelProvider
	parallel bool
	breakers map[domain.ModelKey]*gobreaker.CircuitBreaker
}

// NewBasePredictor creates a base predictor set over the registry. A zero
// cfg.Breaker.MaxFailures disables the breakers, so a failure only affects the
// call it happened in.
func NewBasePredictor(logger *logrus.Logger, models domain.ModelProvider, cfg domain.InferenceConfig) *BasePredictor {
	p := &BasePredictor{
		logger:   logger,
		models:   models,
		parallel: cfg.ParallelBaseModels,
		breakers: make(map[domain.ModelKey]*gobreaker.CircuitBreaker, len(domain.BaseModelKeys)),
	}
	maxFailures := cfg.Breaker.MaxFailures
	if maxFailures == 0 {
		return p
	}
	for _, key := range domain.BaseModelKeys {
		p.breakers[key] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        key.String(),
			MaxRequests: 1,
			Timeout:     cfg.Breaker.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.WithFields(logrus.Fields{
					"model": name,
					"from":  from.String(),
					"to":    to.String(),
				}).Warn("Model circuit breaker changed state")
			},
		})
	}
	return p
}

type roleOutcome struct {
	vector domain.ProbabilityVector
	err    error
}

// Predict scores the engineered record with every available base classifier.
// It never fails: absent roles are substituted by the first available sibling
// in rf, xgb, lgbm order, or by the neutral vector.
func (p *BasePredictor) Predict(ctx context.Context, record domain.FeatureRecord) *BasePredictions {
	outcomes := make(map[domain.ModelKey]*roleOutcome, len(domain.BaseModelKeys))
	for _, key := range domain.BaseModelKeys {
		if p.models.Has(key) {
			outcomes[key] = &roleOutcome{}
		}
	}

	if p.parallel && len(outcomes) > 1 {
		var mu sync.Mutex
		g, _ := errgroup.WithContext(ctx)
		for key := range outcomes {
			g.Go(func() error {
				v, err := p.score(key, record)
				mu.Lock()
				outcomes[key].vector, outcomes[key].err = v, err
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for key, o := range outcomes {
			o.vector, o.err = p.score(key, record)
		}
	}

	result := &BasePredictions{
		Vectors: make(map[domain.ModelKey]domain.ProbabilityVector, len(domain.BaseModelKeys)),
		Sources: make(map[domain.ModelKey]domain.ModelKey, len(domain.BaseModelKeys)),
	}
	for _, key := range domain.BaseModelKeys {
		o, ok := outcomes[key]
		if !ok {
			continue
		}
		if o.err != nil {
			kind := domain.ErrInference
			if errors.Is(o.err, gobreaker.ErrOpenState) || errors.Is(o.err, gobreaker.ErrTooManyRequests) {
				kind = domain.ErrCircuitOpen
			}
			cerr := domain.NewComponentError(domain.ComponentBaseModels, key, kind, o.err)
			p.logger.WithFields(logrus.Fields{
				"model": key,
				"error": o.err.Error(),
			}).Warn("Base model failed, treating as absent")
			result.Degradations = append(result.Degradations, cerr.Degradation())
			continue
		}
		result.Vectors[key] = o.vector
		result.Sources[key] = key
	}

	substitute, source := domain.NeutralVector(), domain.ModelKey("")
	for _, key := range domain.BaseModelKeys {
		if v, ok := result.Vectors[key]; ok {
			substitute, source = v, key
			break
		}
	}
	for _, key := range domain.BaseModelKeys {
		if _, ok := result.Vectors[key]; ok {
			continue
		}
		result.Vectors[key] = substitute.Clone()
		result.Sources[key] = source
	}

	p.logger.WithFields(logrus.Fields{
		"rf":   result.Vectors[domain.ModelRandomForest].Positive(),
		"xgb":  result.Vectors[domain.ModelXGBoost].Positive(),
		"lgbm": result.Vectors[domain.ModelLightGBM].Positive(),
	}).Debug("Base model probabilities")

	return result
}

func (p *BasePredictor) score(key domain.ModelKey, record domain.FeatureRecord) (domain.ProbabilityVector, error) {
	scorer, ok := p.models.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrArtifactMissing, key)
	}
	aligned := features.Align(record, scorer, features.FallbackColumns(key))
	if len(aligned.Imputed) > 0 {
		p.logger.WithFields(logrus.Fields{
			"model":   key,
			"source":  aligned.Source,
			"imputed": aligned.Imputed,
		}).Debug(domain.ErrSchemaMismatch.Error() + ": missing columns imputed with 0")
	}

	invoke := func() (domain.ProbabilityVector, error) {
		raw, err := safePredict(scorer, aligned.Values)
		if err != nil {
			return nil, err
		}
		return NormalizeOutput(raw)
	}

	breaker, ok := p.breakers[key]
	if !ok {
		return invoke()
	}
	out, err := breaker.Execute(func() (interface{}, error) {
		return invoke()
	})
	if err != nil {
		return nil, err
	}
	return out.(domain.ProbabilityVector), nil
}

// safePredict converts a panicking scorer into an inference error.
func safePredict(s domain.Scorer, x []float64) (raw []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: scorer panicked: %v", domain.ErrInference, r)
		}
	}()
	return s.PredictProba(x)
}

// NormalizeOutput turns raw scorer output into a class-probability vector.
// Singleton outputs are expanded to [1-p, p]; all entries are clamped to [0,1].
func NormalizeOutput(raw []float64) (domain.ProbabilityVector, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty output", domain.ErrInference)
	}
	for _, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite output", domain.ErrInference)
		}
	}
	if len(raw) == 1 {
		p := domain.ClampProbability(raw[0])
		return domain.ProbabilityVector{1 - p, p}, nil
	}
	out := make(domain.ProbabilityVector, len(raw))
	for i, v := range raw {
		out[i] = domain.ClampProbability(v)
	}
	return out, nil
}
