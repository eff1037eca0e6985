// Package registry loads fitted model artifacts once at startup and serves them
// read-only to the diagnostic pipeline.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/hybrid-diagnosis-engine/internal/domain"
	"github.com/hybrid-diagnosis-engine/pkg/model"
	"github.com/hybrid-diagnosis-engine/pkg/vision"
)

// Artifact file names searched in the model directory, first found wins.
var (
	scorerFiles = map[domain.ModelKey][]string{
		domain.ModelRandomForest: {"rf_model.json"},
		domain.ModelXGBoost:      {"xgb_model.json"},
		domain.ModelLightGBM:     {"lgb_model.json"},
		domain.ModelMeta:         {"stacking_meta_learner.json"},
	}
	explainerFiles = map[domain.ModelKey][]string{
		domain.ModelRandomForest: {"shap_explainer_rf.json"},
		domain.ModelXGBoost:      {"shap_explainer_xgb.json"},
	}
	classifierFiles = []string{"ae_cnn_model.json", "fusion_ann.json"}

	keyOrder = []domain.ModelKey{
		domain.ModelRandomForest,
		domain.ModelXGBoost,
		domain.ModelLightGBM,
		domain.ModelMeta,
		domain.ModelCNN,
	}
)

// Registry is an immutable set of loaded models. It is populated once by Load or
// New and safe for concurrent use afterwards.
type Registry struct {
	logger     *logrus.Logger
	serialize  bool
	scorers    map[domain.ModelKey]domain.Scorer
	explainers map[domain.ModelKey]domain.Explainer
	classifier domain.ImageClassifier
	locks      map[domain.ModelKey]*sync.Mutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithSerializedAccess guards every model with a mutex so that non-reentrant
// scoring implementations are invoked by one caller at a time.
func WithSerializedAccess(enabled bool) Option {
	return func(r *Registry) {
		r.serialize = enabled
	}
}

// WithScorer registers a scorer under key.
func WithScorer(key domain.ModelKey, s domain.Scorer) Option {
	return func(r *Registry) {
		if s != nil {
			r.scorers[key] = s
		}
	}
}

// WithExplainer registers an explainer for the model under key.
func WithExplainer(key domain.ModelKey, e domain.Explainer) Option {
	return func(r *Registry) {
		if e != nil {
			r.explainers[key] = e
		}
	}
}

// WithImageClassifier registers the imaging model.
func WithImageClassifier(c domain.ImageClassifier) Option {
	return func(r *Registry) {
		if c != nil {
			r.classifier = c
		}
	}
}

// New builds a registry from already constructed models.
func New(logger *logrus.Logger, opts ...Option) *Registry {
	r := &Registry{
		logger:     logger,
		scorers:    make(map[domain.ModelKey]domain.Scorer),
		explainers: make(map[domain.ModelKey]domain.Explainer),
		locks:      make(map[domain.ModelKey]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.seal()
	return r
}

// Load reads every known artifact from dir. Missing or invalid files never fail
// the load; the corresponding model is simply absent.
func Load(dir string, logger *logrus.Logger, opts ...Option) *Registry {
	r := &Registry{
		logger:     logger,
		scorers:    make(map[domain.ModelKey]domain.Scorer),
		explainers: make(map[domain.ModelKey]domain.Explainer),
		locks:      make(map[domain.ModelKey]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		logger.WithField("dir", dir).Warn("Model directory unavailable, all models degraded")
		r.seal()
		return r
	}

	for _, key := range domain.BaseModelKeys {
		r.loadScorer(dir, key)
	}
	r.loadScorer(dir, domain.ModelMeta)
	for _, key := range []domain.ModelKey{domain.ModelRandomForest, domain.ModelXGBoost} {
		r.loadExplainer(dir, key)
	}
	r.loadClassifier(dir)

	r.seal()
	logger.WithFields(logrus.Fields{
		"dir":       dir,
		"available": r.Available(),
	}).Info("Model registry loaded")
	return r
}

func (r *Registry) loadScorer(dir string, key domain.ModelKey) {
	if _, ok := r.scorers[key]; ok {
		return
	}
	path, ok := r.find(dir, key, scorerFiles[key])
	if !ok {
		return
	}
	v, err := model.Load(path)
	if err != nil {
		r.invalid(key, path, err)
		return
	}
	s, ok := v.(domain.Scorer)
	if !ok {
		r.invalid(key, path, fmt.Errorf("%w: artifact is not a scorer", domain.ErrInvalidArtifact))
		return
	}
	r.scorers[key] = s
	r.loaded(key, path)
}

func (r *Registry) loadExplainer(dir string, key domain.ModelKey) {
	if _, ok := r.explainers[key]; ok {
		return
	}
	if path, ok := r.find(dir, key, explainerFiles[key]); ok {
		v, err := model.Load(path)
		if err == nil {
			if e, isExplainer := v.(*model.LinearExplainer); isExplainer {
				r.explainers[key] = e
				r.loaded(key, path)
				return
			}
			err = fmt.Errorf("%w: artifact is not an explainer", domain.ErrInvalidArtifact)
		}
		r.invalid(key, path, err)
	}

	// Tree ensembles carry node values, so path attribution can be derived.
	tree, ok := r.scorers[key].(*model.TreeEnsemble)
	if !ok {
		return
	}
	e, err := tree.Explainer()
	if err != nil {
		r.invalid(key, "derived", err)
		return
	}
	r.explainers[key] = e
	r.logger.WithField("model", key).Info("Derived path explainer from tree ensemble")
}

func (r *Registry) loadClassifier(dir string) {
	if r.classifier != nil {
		return
	}
	path, ok := r.find(dir, domain.ModelCNN, classifierFiles)
	if !ok {
		return
	}
	n, err := vision.Load(path)
	if err != nil {
		r.invalid(domain.ModelCNN, path, err)
		return
	}
	r.classifier = n
	r.loaded(domain.ModelCNN, path)
}

func (r *Registry) find(dir string, key domain.ModelKey, names []string) (string, bool) {
	for _, name := range names {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, true
		} else if !errors.Is(err, fs.ErrNotExist) {
			r.invalid(key, path, err)
		}
	}
	if len(names) > 0 {
		r.logger.WithFields(logrus.Fields{
			"model": key,
			"files": names,
		}).Info("Model artifact not found")
	}
	return "", false
}

func (r *Registry) loaded(key domain.ModelKey, path string) {
	r.logger.WithFields(logrus.Fields{
		"model": key,
		"file":  filepath.Base(path),
	}).Info("Loaded model artifact")
}

func (r *Registry) invalid(key domain.ModelKey, path string, err error) {
	cerr := domain.NewComponentError(domain.ComponentRegistry, key, domain.ErrInvalidArtifact, err)
	r.logger.WithFields(logrus.Fields{
		"component": cerr.Component,
		"model":     key,
		"file":      filepath.Base(path),
		"error":     cerr.Error(),
	}).Warn("Invalid model artifact, treating as missing")
}

// seal wraps models with per-model locks when serialized access was requested.
// An explainer shares its model's lock.
func (r *Registry) seal() {
	if !r.serialize {
		return
	}
	for key, s := range r.scorers {
		r.scorers[key] = &lockedScorer{mu: r.lock(key), s: s}
	}
	for key, e := range r.explainers {
		r.explainers[key] = &lockedExplainer{mu: r.lock(key), e: e}
	}
	if r.classifier != nil {
		r.classifier = &lockedClassifier{mu: r.lock(domain.ModelCNN), c: r.classifier}
	}
}

func (r *Registry) lock(key domain.ModelKey) *sync.Mutex {
	mu, ok := r.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		r.locks[key] = mu
	}
	return mu
}

// Has reports whether a model is loaded under key.
func (r *Registry) Has(key domain.ModelKey) bool {
	if key == domain.ModelCNN {
		return r.classifier != nil
	}
	_, ok := r.scorers[key]
	return ok
}

// Get returns the scorer for key.
func (r *Registry) Get(key domain.ModelKey) (domain.Scorer, bool) {
	s, ok := r.scorers[key]
	return s, ok
}

// Explainer returns the attribution explainer paired with the model under key.
func (r *Registry) Explainer(key domain.ModelKey) (domain.Explainer, bool) {
	e, ok := r.explainers[key]
	return e, ok
}

// ImageClassifier returns the imaging model.
func (r *Registry) ImageClassifier() (domain.ImageClassifier, bool) {
	return r.classifier, r.classifier != nil
}

// Available lists loaded model keys in canonical order.
func (r *Registry) Available() []domain.ModelKey {
	var keys []domain.ModelKey
	for _, key := range keyOrder {
		if r.Has(key) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Explainers lists model keys that have an explainer, in canonical order.
func (r *Registry) Explainers() []domain.ModelKey {
	var keys []domain.ModelKey
	for _, key := range keyOrder {
		if _, ok := r.explainers[key]; ok {
			keys = append(keys, key)
		}
	}
	return keys
}

var _ domain.ModelProvider = (*Registry)(nil)
