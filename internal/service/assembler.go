package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/hybrid-diagnosis-engine/internal/domain"
)

const (
	MinConfidence = 5.0
	MaxConfidence = 95.0

	fallbackReason = "clinical pattern matching"
)

// DisplayConfidence decides the label side and the displayed confidence:
// final*100 when positive, (1-final)*100 otherwise, rounded to two decimals and
// clipped to [5,95].
func DisplayConfidence(finalProb float64) (positive bool, confidence float64) {
	positive = finalProb > 0.5
	if positive {
		confidence = finalProb * 100
	} else {
		confidence = (1 - finalProb) * 100
	}
	confidence = math.Round(confidence*100) / 100
	return positive, math.Max(MinConfidence, math.Min(MaxConfidence, confidence))
}

// Explain renders the explanation sentence for a result.
func Explain(disease domain.DiseaseCategory, label string, confidence float64, record domain.FeatureRecord) string {
	conf := FormatNumber(confidence)
	if label == domain.LabelNormal {
		return fmt.Sprintf("The AI analysis indicates a %s%% probability of Normal status.", conf)
	}

	var reasons []string
	for _, r := range guardrailRules[disease].Matched(record) {
		if r.Reason != "" {
			reasons = append(reasons, r.Describe(record))
		}
	}
	reason := fallbackReason
	if len(reasons) > 0 {
		reason = strings.Join(reasons, ", ")
	}
	return fmt.Sprintf("The model predicts %s (%s%% risk score) driven by %s.", label, conf, reason)
}

// Assembly collects the stage outputs the final result is built from.
type Assembly struct {
	Disease      domain.DiseaseCategory
	Record       domain.FeatureRecord
	Stacking     StackingOutcome
	Calibration  Calibration
	Imaging      *ImagingOutcome
	Attributions []domain.Attribution
	Degradations []domain.Degradation
}

// FinalProbability is the calibrated probability, fused with the CNN when imaging ran.
func (a *Assembly) FinalProbability() float64 {
	if a.Imaging != nil && a.Imaging.Ran {
		return Fuse(a.Calibration.Calibrated, a.Imaging.CNNProbability)
	}
	return a.Calibration.Calibrated
}

// Assemble builds the diagnostic result.
func Assemble(a *Assembly) *domain.DiagnosticResult {
	final := a.FinalProbability()
	positive, confidence := DisplayConfidence(final)

	label := domain.LabelNormal
	if positive {
		label = a.Disease.PositiveLabel()
	}

	res := &domain.DiagnosticResult{
		Disease:               a.Disease,
		Label:                 label,
		Positive:              positive,
		Confidence:            confidence,
		Explanation:           Explain(a.Disease, label, confidence, a.Record),
		Attributions:          a.Attributions,
		EngineeredRecord:      a.Record,
		Probability:           final,
		MLProbability:         a.Stacking.Probability,
		CalibratedProbability: a.Calibration.Calibrated,
		Degradations:          a.Degradations,
	}
	if res.Attributions == nil {
		res.Attributions = []domain.Attribution{}
	}
	if a.Imaging != nil {
		if a.Imaging.Ran {
			p := a.Imaging.CNNProbability
			res.CNNProbability = &p
		}
		res.SaliencyPath = a.Imaging.SaliencyPath
	}
	return res
}
