package service

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/hybrid-diagnosis-engine/internal/domain"
)

// maxClinicalProbability caps the rule-derived probability.
const maxClinicalProbability = 0.99

// Calibration is the guardrail outcome for one case.
type Calibration struct {
	MLProbability       float64
	ClinicalPoints      float64
	ClinicalProbability float64
	Calibrated          float64
	Matched             []ClinicalRule
}

// Guardrail raises the ML probability to the clinical-rule probability when
// biomarkers are definitively abnormal. It never lowers it.
type Guardrail struct {
	logger *logrus.Logger
	rules  map[domain.DiseaseCategory]RuleTable
}

// NewGuardrail creates a guardrail with the built-in rule tables.
func NewGuardrail(logger *logrus.Logger) *Guardrail {
	return &Guardrail{logger: logger, rules: guardrailRules}
}

// Calibrate returns max(ml, min(0.99, points/100)) when any rule matches, else ml.
func (g *Guardrail) Calibrate(disease domain.DiseaseCategory, record domain.FeatureRecord, mlProb float64) Calibration {
	c := Calibration{
		MLProbability: mlProb,
		Calibrated:    mlProb,
		Matched:       g.rules[disease].Matched(record),
	}
	for _, r := range c.Matched {
		c.ClinicalPoints += r.Points
	}
	if c.ClinicalPoints > 0 {
		c.ClinicalProbability = math.Min(maxClinicalProbability, c.ClinicalPoints/100)
		c.Calibrated = math.Max(mlProb, c.ClinicalProbability)
	}
	c.Calibrated = domain.ClampProbability(c.Calibrated)

	if len(c.Matched) > 0 {
		rules := make([]string, 0, len(c.Matched))
		for _, r := range c.Matched {
			rules = append(rules, r.String())
		}
		g.logger.WithFields(logrus.Fields{
			"disease":    disease,
			"rules":      rules,
			"points":     c.ClinicalPoints,
			"ml_prob":    mlProb,
			"calibrated": c.Calibrated,
		}).Debug("Clinical guardrail matched")
	}
	return c
}
