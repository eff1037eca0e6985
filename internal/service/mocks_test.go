package service

import (
	"image"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"github.com/hybrid-diagnosis-engine/internal/domain"
)

// MockScorer is a mock implementation of the domain.Scorer interface
type MockScorer struct {
	mock.Mock
	features []string
}

func (m *MockScorer) PredictProba(x []float64) ([]float64, error) {
	args := m.Called(x)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float64), args.Error(1)
}

func (m *MockScorer) FeatureNames() []string {
	return m.features
}

// MockExplainer is a mock implementation of the domain.Explainer interface
type MockExplainer struct {
	mock.Mock
}

func (m *MockExplainer) Explain(x []float64) ([]float64, error) {
	args := m.Called(x)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float64), args.Error(1)
}

// MockImageClassifier is a mock implementation of the domain.ImageClassifier interface
type MockImageClassifier struct {
	mock.Mock
	size int
}

func (m *MockImageClassifier) InputSize() int {
	return m.size
}

func (m *MockImageClassifier) Preprocess(img image.Image) ([]float32, error) {
	b := img.Bounds()
	return make([]float32, 3*b.Dx()*b.Dy()), nil
}

func (m *MockImageClassifier) PositiveProbability(tensor []float32) (float64, error) {
	args := m.Called(tensor)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockImageClassifier) ActivationMap(tensor []float32) ([][]float64, error) {
	args := m.Called(tensor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float64), args.Error(1)
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress logs during testing
	return logger
}

func scorerReturning(out []float64) *MockScorer {
	s := new(MockScorer)
	s.On("PredictProba", mock.Anything).Return(out, nil)
	return s
}

func testConfig(mediaDir string) *domain.Config {
	return &domain.Config{
		Models: domain.ModelConfig{Dir: "unused"},
		Media:  domain.MediaConfig{Dir: mediaDir, URL: "/media"},
		Imaging: domain.ImagingConfig{
			Enabled:       true,
			Timeout:       10 * time.Second,
			SaliencyBurst: 1,
			CacheSize:     16,
		},
	}
}
