// Package features turns raw case data into the engineered feature record shared by
// every model, and aligns that record to each model's own column schema.
package features

import (
	"math"

	"github.com/spf13/cast"

	"github.com/hybrid-diagnosis-engine/internal/domain"
)

// BaseColumns are the measurements every engineered record carries.
var BaseColumns = []string{
	"age", "sex", "seizures", "memory_loss", "psychiatric_symptoms",
	"skin_blisters", "mucosal_ulcers", "pain_score", "csf_protein",
	"csf_cells", "antibody_titer", "dsg1_index", "dsg3_index",
	"mri_abnormal", "eeg_abnormal", "tumor_status", "infection_status",
}

// DerivedColumns are computed from the base columns, in evaluation order.
var DerivedColumns = []string{
	"csf_protein_log", "csf_cells_log", "csf_inflammation", "csf_ratio",
	"imaging_score", "age_x_csf",
	"neuro_score", "skin_score", "total_symptoms", "clinical_contrast",
	"pain_x_skin", "symptom_severity",
	"neuro_x_csf", "skin_x_pain", "csf_product",
	"spurious_marker",
}

var allColumns = append(append([]string{}, BaseColumns...), DerivedColumns...)

// Columns returns the canonical column order of an engineered record.
func Columns() []string {
	out := make([]string, len(allColumns))
	copy(out, allColumns)
	return out
}

// Engineer derives the full feature superset. The same columns are produced for
// every disease category.
type Engineer struct{}

// NewEngineer creates a feature engineer.
func NewEngineer() *Engineer {
	return &Engineer{}
}

// FromRaw coerces raw case values and engineers them. Unknown keys are ignored.
func (e *Engineer) FromRaw(raw map[string]any) domain.FeatureRecord {
	base := make(domain.FeatureRecord, len(BaseColumns))
	for _, col := range BaseColumns {
		if v, ok := raw[col]; ok {
			base[col] = Coerce(v)
		}
	}
	return e.Engineer(base)
}

// Engineer returns a new record holding every base and derived column. Missing
// base columns default to 0. Derived columns present on the input are recomputed,
// so engineering an engineered record is idempotent.
func (e *Engineer) Engineer(record domain.FeatureRecord) domain.FeatureRecord {
	df := make(domain.FeatureRecord, len(allColumns))
	for _, col := range BaseColumns {
		df[col] = finite(record[col])
	}

	protein, cells := df["csf_protein"], df["csf_cells"]

	df["csf_protein_log"] = log1p(protein)
	df["csf_cells_log"] = log1p(cells)
	df["csf_inflammation"] = protein * cells
	df["csf_ratio"] = ratio(protein, cells+1)
	df["imaging_score"] = df["mri_abnormal"] + df["eeg_abnormal"]
	df["age_x_csf"] = df["age"] * protein

	neuro := df["seizures"] + df["memory_loss"] + df["psychiatric_symptoms"]
	skin := df["skin_blisters"] + df["mucosal_ulcers"]
	pain := df["pain_score"]

	df["neuro_score"] = neuro
	df["skin_score"] = skin
	df["total_symptoms"] = neuro + skin
	df["clinical_contrast"] = neuro - skin
	df["pain_x_skin"] = pain * skin
	df["symptom_severity"] = (neuro + skin) * pain

	df["neuro_x_csf"] = neuro * protein
	df["skin_x_pain"] = skin * pain
	df["csf_product"] = protein * cells

	df["spurious_marker"] = 0

	for col, v := range df {
		df[col] = finite(v)
	}
	return df
}

// Coerce converts a raw case value to a number. Numbers, numeric strings and
// booleans convert; everything else, including NaN and infinities, becomes 0.
func Coerce(v any) float64 {
	if v == nil {
		return 0
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0
	}
	return finite(f)
}

func log1p(x float64) float64 {
	if x <= -1 {
		return 0
	}
	return math.Log1p(x)
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}

