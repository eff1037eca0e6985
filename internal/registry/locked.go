package registry

import (
	"image"
	"sync"

	"github.com/hybrid-diagnosis-engine/internal/domain"
)

type lockedScorer struct {
	mu *sync.Mutex
	s  domain.Scorer
}

func (l *lockedScorer) PredictProba(x []float64) ([]float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.s.PredictProba(x)
}

// FeatureNames forwards the wrapped scorer's schema so alignment still sees it.
func (l *lockedScorer) FeatureNames() []string {
	if sp, ok := l.s.(domain.SchemaProvider); ok {
		return sp.FeatureNames()
	}
	return nil
}

type lockedExplainer struct {
	mu *sync.Mutex
	e  domain.Explainer
}

func (l *lockedExplainer) Explain(x []float64) ([]float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.e.Explain(x)
}

type lockedClassifier struct {
	mu *sync.Mutex
	c  domain.ImageClassifier
}

func (l *lockedClassifier) InputSize() int {
	return l.c.InputSize()
}

func (l *lockedClassifier) Preprocess(img image.Image) ([]float32, error) {
	return l.c.Preprocess(img)
}

func (l *lockedClassifier) PositiveProbability(tensor []float32) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.c.PositiveProbability(tensor)
}

func (l *lockedClassifier) ActivationMap(tensor []float32) ([][]float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.c.ActivationMap(tensor)
}
