package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hybrid-diagnosis-engine/internal/domain"
	"github.com/spf13/viper"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
}

// Option customizes a Manager before the first load
type Option func(*Manager)

// WithConfigFile reads an explicit configuration file instead of searching the default paths
func WithConfigFile(path string) Option {
	return func(m *Manager) {
		m.configFile = path
	}
}

// NewManager creates a new configuration manager
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/hybrid-diagnosis/")
	}

	// Set environment variable prefix and enable automatic env binding
	v.SetEnvPrefix("DIAGNOSIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read configuration file (optional - will use defaults and env vars if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("models.dir", "./ml_models")

	v.SetDefault("media.dir", "./media")
	v.SetDefault("media.url", "/media")

	v.SetDefault("inference.parallel_base_models", false)
	v.SetDefault("inference.serialize_models", false)
	v.SetDefault("inference.breaker.max_failures", 0)
	v.SetDefault("inference.breaker.open_timeout", "30s")

	v.SetDefault("imaging.enabled", true)
	v.SetDefault("imaging.timeout", "30s")
	v.SetDefault("imaging.saliency_rate_per_second", 0)
	v.SetDefault("imaging.saliency_burst", 1)
	v.SetDefault("imaging.cache_size", 128)

	v.SetDefault("store.path", "./data/diagnosis.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetModelConfig returns the model artifact configuration
func (m *Manager) GetModelConfig() *domain.ModelConfig {
	return &m.config.Models
}

// GetMediaConfig returns the media output configuration
func (m *Manager) GetMediaConfig() *domain.MediaConfig {
	return &m.config.Media
}

// GetInferenceConfig returns base model evaluation settings
func (m *Manager) GetInferenceConfig() *domain.InferenceConfig {
	return &m.config.Inference
}

// GetImagingConfig returns imaging settings
func (m *Manager) GetImagingConfig() *domain.ImagingConfig {
	return &m.config.Imaging
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Models.Dir == "" {
		return fmt.Errorf("model directory is required")
	}
	if config.Media.Dir == "" {
		return fmt.Errorf("media directory is required")
	}

	if config.Inference.Breaker.OpenTimeout < 0 {
		return fmt.Errorf("invalid breaker open timeout: %s", config.Inference.Breaker.OpenTimeout)
	}

	if config.Imaging.Timeout < 0 {
		return fmt.Errorf("invalid imaging timeout: %s", config.Imaging.Timeout)
	}
	if config.Imaging.SaliencyRatePerSecond < 0 {
		return fmt.Errorf("invalid saliency rate: %v", config.Imaging.SaliencyRatePerSecond)
	}
	if config.Imaging.SaliencyBurst < 0 {
		return fmt.Errorf("invalid saliency burst: %d", config.Imaging.SaliencyBurst)
	}
	if config.Imaging.CacheSize < 0 {
		return fmt.Errorf("invalid imaging cache size: %d", config.Imaging.CacheSize)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	switch strings.ToLower(config.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", config.Logging.Format)
	}

	return nil
}

// ConfigFileUsed returns the file viper read, or an empty string when running on defaults
func (m *Manager) ConfigFileUsed() string {
	return m.v.ConfigFileUsed()
}
