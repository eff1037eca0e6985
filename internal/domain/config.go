package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Models    ModelConfig     `mapstructure:"models"`
	Media     MediaConfig     `mapstructure:"media"`
	Inference InferenceConfig `mapstructure:"inference"`
	Imaging   ImagingConfig   `mapstructure:"imaging"`
	Store     StoreConfig     `mapstructure:"store"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ModelConfig locates the fitted-model artifacts
type ModelConfig struct {
	Dir string `mapstructure:"dir"`
}

// MediaConfig locates saliency output and how it is referenced by callers
type MediaConfig struct {
	Dir string `mapstructure:"dir"`
	URL string `mapstructure:"url"`
}

// InferenceConfig controls base model evaluation
type InferenceConfig struct {
	ParallelBaseModels bool          `mapstructure:"parallel_base_models"`
	SerializeModels    bool          `mapstructure:"serialize_models"` // for non-reentrant scorers
	Breaker            BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig configures the per-model circuit breakers
type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

// ImagingConfig controls the image classifier and saliency generation
type ImagingConfig struct {
	Enabled               bool          `mapstructure:"enabled"`
	Timeout               time.Duration `mapstructure:"timeout"`
	SaliencyRatePerSecond float64       `mapstructure:"saliency_rate_per_second"`
	SaliencyBurst         int           `mapstructure:"saliency_burst"`
	CacheSize             int           `mapstructure:"cache_size"`
}

// StoreConfig represents the session store configuration
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
