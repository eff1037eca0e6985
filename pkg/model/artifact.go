// Package model implements inference over pre-fitted tabular models exported to a
// portable JSON form: bagged and boosted decision-tree ensembles, logistic
// regression, and linear attribution explainers.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Kind discriminates artifact types in the JSON envelope.
type Kind string

const (
	KindTreeEnsemble    Kind = "tree_ensemble"
	KindLogistic        Kind = "logistic"
	KindLinearExplainer Kind = "linear_explainer"
	KindCNN             Kind = "cnn"
)

var (
	ErrUnknownKind    = errors.New("unknown artifact kind")
	ErrInvalidModel   = errors.New("invalid model")
	ErrFeatureCount   = errors.New("feature count mismatch")
	ErrNonFiniteValue = errors.New("non-finite value")
)

type envelope struct {
	Kind Kind `json:"kind"`
}

// ReadKind returns the kind declared by an artifact file.
func ReadKind(path string) (Kind, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("decoding artifact envelope: %w", err)
	}
	return env.Kind, data, nil
}

// Load decodes a tabular artifact file into its concrete type: *TreeEnsemble,
// *Logistic or *LinearExplainer. Image artifacts are loaded by package vision.
func Load(path string) (any, error) {
	kind, data, err := ReadKind(path)
	if err != nil {
		return nil, err
	}
	return Decode(kind, data)
}

// Decode decodes artifact bytes of a known kind.
func Decode(kind Kind, data []byte) (any, error) {
	switch kind {
	case KindTreeEnsemble:
		var m TreeEnsemble
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decoding tree ensemble: %w", err)
		}
		if err := m.Validate(); err != nil {
			return nil, err
		}
		return &m, nil
	case KindLogistic:
		var m Logistic
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decoding logistic model: %w", err)
		}
		if err := m.Validate(); err != nil {
			return nil, err
		}
		return &m, nil
	case KindLinearExplainer:
		var m LinearExplainer
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decoding linear explainer: %w", err)
		}
		if err := m.Validate(); err != nil {
			return nil, err
		}
		return &m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
