// Package domain contains core entities and types for hybrid diagnostic inference:
// clinical case records, engineered feature records, fitted-model capabilities and the
// diagnostic result handed back to the caller.
//
// The supported disease categories are Autoimmune Encephalitis (AE), which also has an
// imaging path, and Pemphigus Vulgaris (PV).
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// DiseaseCategory selects which feature schema, rule tables and imaging path apply.
type DiseaseCategory string

const (
	AE DiseaseCategory = "AE"
	PV DiseaseCategory = "PV"
)

// ImagingCategory is the only category with an image classifier.
const ImagingCategory = AE

// Label values produced by the result assembler.
const (
	LabelNormal = "Normal"
	LabelAE     = "Autoimmune Encephalitis (AE)"
	LabelPV     = "Pemphigus Vulgaris (PV)"
)

// Direction of a feature attribution as shown to clinicians.
type Direction string

const (
	IncreasedRisk Direction = "Increased Risk"
	DecreasedRisk Direction = "Decreased Risk"
)

// ModelKey is the stable identity of a loaded artifact in the registry.
type ModelKey string

const (
	ModelRandomForest ModelKey = "rf"
	ModelXGBoost      ModelKey = "xgb"
	ModelLightGBM     ModelKey = "lgbm"
	ModelMeta         ModelKey = "meta"
	ModelCNN          ModelKey = "cnn"
)

// BaseModelKeys lists the base classifier roles in stacking order.
var BaseModelKeys = []ModelKey{ModelRandomForest, ModelXGBoost, ModelLightGBM}

var (
	ErrInvalidDisease = errors.New("invalid disease category")
)

// ParseDiseaseCategory accepts a category code case-insensitively.
// An empty value defaults to AE.
func ParseDiseaseCategory(s string) (DiseaseCategory, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "AE":
		return AE, nil
	case "PV":
		return PV, nil
	default:
		return "", NewValidationError("disease_category", fmt.Sprintf("%v: %q", ErrInvalidDisease, s), s)
	}
}

// IsValid reports whether the category is one of the supported codes.
func (d DiseaseCategory) IsValid() bool {
	switch d {
	case AE, PV:
		return true
	default:
		return false
	}
}

// String returns the category code.
func (d DiseaseCategory) String() string {
	return string(d)
}

// PositiveLabel returns the label used when the case is classified positive.
func (d DiseaseCategory) PositiveLabel() string {
	switch d {
	case PV:
		return LabelPV
	default:
		return LabelAE
	}
}

// FullName returns the disease name without the code suffix.
func (d DiseaseCategory) FullName() string {
	switch d {
	case PV:
		return "Pemphigus Vulgaris"
	default:
		return "Autoimmune Encephalitis"
	}
}

// SupportsImaging reports whether an image classifier applies to this category.
func (d DiseaseCategory) SupportsImaging() bool {
	return d == ImagingCategory
}

// String returns the model key.
func (k ModelKey) String() string {
	return string(k)
}

// IsBase reports whether the key names one of the three base classifier roles.
func (k ModelKey) IsBase() bool {
	for _, b := range BaseModelKeys {
		if b == k {
			return true
		}
	}
	return false
}
