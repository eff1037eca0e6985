package service

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/hybrid-diagnosis-engine/internal/domain"
	"github.com/hybrid-diagnosis-engine/internal/features"
)

const (
	// MaxAttributions is the number of contributors reported.
	MaxAttributions = 5
	// AttributionThreshold drops contributions with negligible magnitude.
	AttributionThreshold = 0.001
	// displayScale maps |attribution| to a 0-100 display bar.
	displayScale = 50
)

// attributionPairings lists the explainer/model keys per category, preferred first.
var attributionPairings = map[domain.DiseaseCategory][]domain.ModelKey{
	domain.AE: {domain.ModelRandomForest, domain.ModelXGBoost},
	domain.PV: {domain.ModelXGBoost, domain.ModelRandomForest},
}

// AttributionRanker explains the prediction with the explainer paired to the disease.
type AttributionRanker struct {
	logger *logrus.Logger
	models domain.ModelProvider
}

// NewAttributionRanker creates a ranker over the registry.
func NewAttributionRanker(logger *logrus.Logger, models domain.ModelProvider) *AttributionRanker {
	return &AttributionRanker{logger: logger, models: models}
}

// Rank returns the top contributors. Without an explainer the list is empty and no
// degradation is reported; explainer failures yield an empty list and a degradation.
func (r *AttributionRanker) Rank(disease domain.DiseaseCategory, record domain.FeatureRecord) ([]domain.Attribution, *domain.Degradation) {
	key, explainer, ok := r.selectExplainer(disease)
	if !ok {
		r.logger.WithField("disease", disease).Debug("No explainer available, skipping attribution")
		return []domain.Attribution{}, nil
	}

	model, _ := r.models.Get(key)
	aligned := features.Align(record, model, features.FallbackColumns(key))

	scores, err := safeExplain(explainer, aligned.Values)
	if err == nil {
		for _, s := range scores {
			if math.IsNaN(s) || math.IsInf(s, 0) {
				err = fmt.Errorf("%w: non-finite attribution", domain.ErrAttribution)
				break
			}
		}
	}
	if err != nil {
		cerr := domain.NewComponentError(domain.ComponentAttribution, key, domain.ErrAttribution, err)
		r.logger.WithFields(logrus.Fields{
			"model": key,
			"error": err.Error(),
		}).Warn("Attribution failed, returning empty list")
		d := cerr.Degradation()
		return []domain.Attribution{}, &d
	}

	return RankAttributions(aligned.Columns, aligned.Values, scores), nil
}

func (r *AttributionRanker) selectExplainer(disease domain.DiseaseCategory) (domain.ModelKey, domain.Explainer, bool) {
	for _, key := range attributionPairings[disease] {
		if e, ok := r.models.Explainer(key); ok {
			return key, e, true
		}
	}
	return "", nil, false
}

// RankAttributions orders scores by descending magnitude, keeps the top
// MaxAttributions above AttributionThreshold and resolves their directions.
// Only the overlapping prefix of columns and scores is considered.
func RankAttributions(columns []string, values, scores []float64) []domain.Attribution {
	n := min(len(columns), len(values), len(scores))
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return math.Abs(scores[idx[a]]) > math.Abs(scores[idx[b]])
	})
	if len(idx) > MaxAttributions {
		idx = idx[:MaxAttributions]
	}

	out := make([]domain.Attribution, 0, len(idx))
	for _, i := range idx {
		impact := scores[i]
		if math.Abs(impact) < AttributionThreshold {
			continue
		}
		out = append(out, domain.Attribution{
			Label:        columns[i],
			Value:        impact,
			DisplayValue: math.Min(100, math.Abs(impact)*displayScale),
			RawInput:     fmt.Sprintf("%.2f", values[i]),
			Direction:    ResolveDirection(columns[i], impact, values[i]),
		})
	}
	return out
}

// ResolveDirection follows the attribution sign unless the literal value crosses
// a clinical threshold, which always reads as increased risk.
func ResolveDirection(feature string, impact, value float64) domain.Direction {
	if directionOverrides.AnyMatches(feature, value) {
		return domain.IncreasedRisk
	}
	if impact > 0 {
		return domain.IncreasedRisk
	}
	return domain.DecreasedRisk
}

func safeExplain(e domain.Explainer, x []float64) (scores []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: explainer panicked: %v", domain.ErrAttribution, r)
		}
	}()
	return e.Explain(x)
}
