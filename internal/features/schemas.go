package features

import (
	"github.com/hybrid-diagnosis-engine/internal/domain"
)

// RandomForestColumns is the fallback schema of the rf model (AE focused).
var RandomForestColumns = []string{
	"csf_protein", "csf_cells", "mri_abnormal", "eeg_abnormal",
	"age", "sex", "spurious_marker", "csf_protein_log",
	"csf_cells_log", "csf_inflammation", "csf_ratio",
	"imaging_score", "age_x_csf",
}

// XGBoostColumns is the fallback schema of the xgb model (includes skin symptoms).
var XGBoostColumns = []string{
	"seizures", "memory_loss", "psychiatric_symptoms", "skin_blisters",
	"mucosal_ulcers", "pain_score", "age", "sex", "csf_protein",
	"neuro_score", "skin_score", "total_symptoms", "clinical_contrast",
	"pain_x_skin", "symptom_severity",
}

// FallbackColumns returns the configured schema for a base model, or nil when the
// model has none and must be fed the whole record.
func FallbackColumns(key domain.ModelKey) []string {
	switch key {
	case domain.ModelRandomForest:
		return RandomForestColumns
	case domain.ModelXGBoost:
		return XGBoostColumns
	default:
		return nil
	}
}
