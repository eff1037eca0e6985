package domain

import (
	"context"
	"image"
)

// Scorer is a pre-fitted classifier. The input is ordered by the model's own
// column schema; the output is either a class-probability array or a single
// positive-class probability.
type Scorer interface {
	PredictProba(x []float64) ([]float64, error)
}

// SchemaProvider is implemented by scorers that declare the columns they were fitted on.
type SchemaProvider interface {
	FeatureNames() []string
}

// Explainer produces one signed attribution score per input column for the positive class.
type Explainer interface {
	Explain(x []float64) ([]float64, error)
}

// ImageClassifier scores a preprocessed image and exposes the class-activation
// map for the positive class.
type ImageClassifier interface {
	InputSize() int
	Preprocess(img image.Image) ([]float32, error)
	PositiveProbability(tensor []float32) (float64, error)
	ActivationMap(tensor []float32) ([][]float64, error)
}

// ModelProvider is the read-only view of loaded artifacts the pipeline consumes.
type ModelProvider interface {
	Has(key ModelKey) bool
	Get(key ModelKey) (Scorer, bool)
	Explainer(key ModelKey) (Explainer, bool)
	ImageClassifier() (ImageClassifier, bool)
	Available() []ModelKey
}

// ResultStore persists diagnostic results on behalf of the caller.
type ResultStore interface {
	Save(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	List(ctx context.Context, limit, offset int) ([]*Session, error)
	Close() error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetModelConfig() *ModelConfig
	GetMediaConfig() *MediaConfig
	GetInferenceConfig() *InferenceConfig
	GetImagingConfig() *ImagingConfig
	Reload() error
	Validate() error
}
