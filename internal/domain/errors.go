package domain

import (
	"errors"
	"fmt"
)

// Error kinds for the degradation taxonomy. None of these abort a prediction;
// they identify which contribution was dropped for a single invocation.
var (
	ErrArtifactMissing = errors.New("artifact missing")
	ErrInvalidArtifact = errors.New("invalid artifact")
	ErrSchemaMismatch  = errors.New("schema mismatch")
	ErrInference       = errors.New("inference failed")
	ErrCircuitOpen     = errors.New("circuit open")
	ErrImaging         = errors.New("imaging failed")
	ErrAttribution     = errors.New("attribution failed")
)

// Component names used in ComponentError and Degradation records.
const (
	ComponentRegistry    = "registry"
	ComponentBaseModels  = "base_models"
	ComponentStacking    = "stacking"
	ComponentImaging     = "imaging"
	ComponentAttribution = "attribution"
)

// ComponentError wraps a failure inside one pipeline component.
type ComponentError struct {
	Component string
	Model     ModelKey
	Kind      error
	Err       error
}

// Error implements the error interface
func (e *ComponentError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("%s[%s]: %v: %v", e.Component, e.Model, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Component, e.Kind, e.Err)
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *ComponentError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Degradation converts the error into its result record.
func (e *ComponentError) Degradation() Degradation {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	kind := ""
	if e.Kind != nil {
		kind = e.Kind.Error()
	}
	return Degradation{
		Component: e.Component,
		Model:     string(e.Model),
		Kind:      kind,
		Message:   msg,
	}
}

// NewComponentError creates a ComponentError.
func NewComponentError(component string, model ModelKey, kind, err error) *ComponentError {
	return &ComponentError{Component: component, Model: model, Kind: kind, Err: err}
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
