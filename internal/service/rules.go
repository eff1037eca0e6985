package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hybrid-diagnosis-engine/internal/domain"
)

// Comparator is a threshold test applied to a single feature value.
type Comparator string

const (
	GreaterThan    Comparator = ">"
	GreaterOrEqual Comparator = ">="
	Equal          Comparator = "=="
	LessThan       Comparator = "<"
	LessOrEqual    Comparator = "<="
)

// Holds reports whether v satisfies the comparison against threshold.
func (c Comparator) Holds(v, threshold float64) bool {
	switch c {
	case GreaterThan:
		return v > threshold
	case GreaterOrEqual:
		return v >= threshold
	case Equal:
		return v == threshold
	case LessThan:
		return v < threshold
	case LessOrEqual:
		return v <= threshold
	default:
		return false
	}
}

// ClinicalRule is one row of a declarative threshold table.
type ClinicalRule struct {
	Feature   string
	Op        Comparator
	Threshold float64
	// Points added to the clinical confidence when the rule matches.
	Points float64
	// Reason is the explanation phrase; %s is replaced by the feature value.
	// Rules without a reason are not mentioned in explanations.
	Reason string
}

// Matches evaluates the rule against a record. Absent features read as 0.
func (r ClinicalRule) Matches(record domain.FeatureRecord) bool {
	return r.Op.Holds(record.Get(r.Feature), r.Threshold)
}

// Describe renders the rule's explanation phrase for the record.
func (r ClinicalRule) Describe(record domain.FeatureRecord) string {
	if !strings.Contains(r.Reason, "%s") {
		return r.Reason
	}
	return fmt.Sprintf(r.Reason, FormatNumber(record.Get(r.Feature)))
}

// String renders the rule as "feature op threshold".
func (r ClinicalRule) String() string {
	return fmt.Sprintf("%s %s %s", r.Feature, r.Op, FormatNumber(r.Threshold))
}

// RuleTable is the evaluator over a list of rules.
type RuleTable []ClinicalRule

// Matched returns the rules that hold for the record, in table order.
func (t RuleTable) Matched(record domain.FeatureRecord) []ClinicalRule {
	var out []ClinicalRule
	for _, r := range t {
		if r.Matches(record) {
			out = append(out, r)
		}
	}
	return out
}

// AnyMatches reports whether some rule on the given feature holds for value.
func (t RuleTable) AnyMatches(feature string, value float64) bool {
	for _, r := range t {
		if r.Feature == feature && r.Op.Holds(value, r.Threshold) {
			return true
		}
	}
	return false
}

// guardrailRules are the biomarker point tables per disease category.
var guardrailRules = map[domain.DiseaseCategory]RuleTable{
	domain.AE: {
		{Feature: "csf_protein", Op: GreaterThan, Threshold: 45, Points: 35, Reason: "high CSF protein (%s mg/dL)"},
		{Feature: "seizures", Op: Equal, Threshold: 1, Points: 25, Reason: "seizure activity"},
		{Feature: "memory_loss", Op: Equal, Threshold: 1, Points: 20},
	},
	domain.PV: {
		{Feature: "dsg1_index", Op: GreaterThan, Threshold: 20, Points: 50, Reason: "elevated Dsg1 (%s)"},
		{Feature: "dsg3_index", Op: GreaterThan, Threshold: 20, Points: 30, Reason: "elevated Dsg3 (%s)"},
		{Feature: "skin_blisters", Op: Equal, Threshold: 1, Points: 30},
		{Feature: "mucosal_ulcers", Op: Equal, Threshold: 1, Points: 20},
	},
}

// directionOverrides force "Increased Risk" when a literal value is medically abnormal.
var directionOverrides = RuleTable{
	{Feature: "dsg1_index", Op: GreaterThan, Threshold: 20},
	{Feature: "dsg3_index", Op: GreaterThan, Threshold: 20},
	{Feature: "csf_protein", Op: GreaterThan, Threshold: 45},
	{Feature: "csf_cells", Op: GreaterThan, Threshold: 5},
	{Feature: "mucosal_ulcers", Op: GreaterThan, Threshold: 0},
	{Feature: "skin_blisters", Op: GreaterThan, Threshold: 0},
	{Feature: "seizures", Op: GreaterThan, Threshold: 0},
}

// GuardrailRules returns a copy of the point table for a category.
func GuardrailRules(disease domain.DiseaseCategory) RuleTable {
	return append(RuleTable(nil), guardrailRules[disease]...)
}

// FormatNumber renders v in its shortest form with at least one decimal place.
func FormatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}
