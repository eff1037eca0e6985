package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/hybrid-diagnosis-engine/internal/domain"
	"github.com/hybrid-diagnosis-engine/pkg/vision"
)

const (
	// FusionTabularWeight and FusionImageWeight blend calibrated and CNN probabilities.
	FusionTabularWeight = 0.7
	FusionImageWeight   = 0.3

	// SaliencyThreshold is the CNN probability from which a heatmap is drawn.
	SaliencyThreshold = 0.5

	saliencyDir = "grad_cam"
)

// Fuse blends the calibrated tabular probability with the CNN probability.
func Fuse(calibrated, cnnProb float64) float64 {
	return domain.ClampProbability(FusionTabularWeight*calibrated + FusionImageWeight*cnnProb)
}

// ImagingOutcome is the result of the imaging sub-pipeline. Fusion applies only
// when Ran is true.
type ImagingOutcome struct {
	Ran            bool
	CNNProbability float64
	// SaliencyPath is the retrievable reference; SaliencyFile the file on disk.
	SaliencyPath string
	SaliencyFile string
	Heatmap      bool
	Degradations []domain.Degradation
}

type cnnResult struct {
	probability float64
	cam         [][]float64
}

type decodedImage struct {
	img    image.Image
	tensor []float32
	key    string
}

// ImagingPipeline runs the image classifier and renders saliency artifacts.
type ImagingPipeline struct {
	logger   *logrus.Logger
	models   domain.ModelProvider
	cfg      domain.ImagingConfig
	mediaDir string
	mediaURL string
	limiter  *rate.Limiter
	cache    *lru.Cache[string, cnnResult]
}

// NewImagingPipeline creates the imaging sub-pipeline.
func NewImagingPipeline(logger *logrus.Logger, models domain.ModelProvider, cfg domain.ImagingConfig, media domain.MediaConfig) (*ImagingPipeline, error) {
	p := &ImagingPipeline{
		logger:   logger,
		models:   models,
		cfg:      cfg,
		mediaDir: media.Dir,
		mediaURL: strings.TrimRight(media.URL, "/"),
	}
	if cfg.SaliencyRatePerSecond > 0 {
		burst := cfg.SaliencyBurst
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(cfg.SaliencyRatePerSecond), burst)
	}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, cnnResult](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create imaging cache: %w", err)
		}
		p.cache = cache
	}
	return p, nil
}

// Applies reports whether imaging runs for this case.
func (p *ImagingPipeline) Applies(disease domain.DiseaseCategory, imagePath string) bool {
	if !p.cfg.Enabled || !disease.SupportsImaging() || imagePath == "" {
		return false
	}
	_, ok := p.models.ImageClassifier()
	return ok
}

// Run classifies the image and writes the saliency artifact. Every failure is
// reported as a degradation; the returned outcome is never nil.
func (p *ImagingPipeline) Run(ctx context.Context, imagePath string) *ImagingOutcome {
	out := &ImagingOutcome{}
	classifier, ok := p.models.ImageClassifier()
	if !ok {
		return out
	}

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	// Phase 1: inference. Expiry here means tabular-only.
	type classified struct {
		in  *decodedImage
		res cnnResult
	}
	cl, err := runBounded(ctx, func() (classified, error) {
		in, err := p.decode(imagePath, classifier)
		if err != nil {
			return classified{}, err
		}
		res, err := p.classify(in, classifier)
		return classified{in: in, res: res}, err
	}, nil)
	if err != nil {
		p.degrade(out, "inference", err)
		return out
	}
	out.Ran = true
	out.CNNProbability = cl.res.probability

	// Phase 2: saliency. Expiry here only drops the artifact.
	name := filepath.Base(imagePath)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	art, err := runBounded(ctx, func() (saliency, error) {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return saliency{}, fmt.Errorf("saliency rate limit: %w", err)
			}
		}
		return p.renderSaliency(ctx, cl.in, cl.res, stem, classifier)
	}, p.discardSaliency)
	if err != nil {
		p.degrade(out, "saliency", err)
	} else {
		out.SaliencyPath, out.SaliencyFile, out.Heatmap = art.path, art.file, art.heatmap
	}

	p.logger.WithFields(logrus.Fields{
		"cnn_prob": out.CNNProbability,
		"heatmap":  out.Heatmap,
		"saliency": out.SaliencyPath,
	}).Info("Imaging completed")
	return out
}

func (p *ImagingPipeline) decode(imagePath string, c domain.ImageClassifier) (*decodedImage, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	tensor, err := c.Preprocess(img)
	if err != nil {
		return nil, fmt.Errorf("preprocessing image: %w", err)
	}
	sum := sha256.Sum256(data)
	return &decodedImage{img: img, tensor: tensor, key: hex.EncodeToString(sum[:])}, nil
}

func (p *ImagingPipeline) classify(in *decodedImage, c domain.ImageClassifier) (res cnnResult, err error) {
	if p.cache != nil {
		if cached, ok := p.cache.Get(in.key); ok {
			return cached, nil
		}
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classifier panicked: %v", r)
		}
	}()

	prob, err := c.PositiveProbability(in.tensor)
	if err != nil {
		return cnnResult{}, fmt.Errorf("forward pass: %w", err)
	}
	res = cnnResult{probability: domain.ClampProbability(prob)}
	if p.cache != nil {
		p.cache.Add(in.key, res)
	}
	return res, nil
}

type saliency struct {
	path    string
	file    string
	heatmap bool
}

// renderSaliency writes either the resized original (negative call) or the
// Grad-CAM overlay (positive call).
func (p *ImagingPipeline) renderSaliency(ctx context.Context, in *decodedImage, res cnnResult, stem string, c domain.ImageClassifier) (art saliency, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("saliency panicked: %v", r)
		}
	}()

	base := vision.Resize(in.img, c.InputSize())
	var img image.Image = base
	art.file = "scan_" + stem + ".png"

	if res.probability >= SaliencyThreshold {
		cam := res.cam
		if cam == nil {
			cam, err = c.ActivationMap(in.tensor)
			if err != nil {
				return saliency{}, fmt.Errorf("activation map: %w", err)
			}
			if p.cache != nil {
				p.cache.Add(in.key, cnnResult{probability: res.probability, cam: cam})
			}
		}
		img = vision.Overlay(base, cam)
		art.file = "gradcam_" + stem + ".png"
		art.heatmap = true
	}

	if err := ctx.Err(); err != nil {
		return saliency{}, err
	}
	full := filepath.Join(p.mediaDir, saliencyDir, art.file)
	if err := vision.SavePNG(full, img); err != nil {
		return saliency{}, err
	}
	art.path = p.mediaURL + "/" + saliencyDir + "/" + art.file
	art.file = full
	return art, nil
}

func (p *ImagingPipeline) degrade(out *ImagingOutcome, stage string, err error) {
	cerr := domain.NewComponentError(domain.ComponentImaging, domain.ModelCNN, domain.ErrImaging,
		fmt.Errorf("%s: %w", stage, err))
	p.logger.WithFields(logrus.Fields{
		"stage": stage,
		"error": err.Error(),
	}).Warn("Imaging step failed")
	out.Degradations = append(out.Degradations, cerr.Degradation())
}

// discardSaliency removes an artifact written after its call already gave up.
func (p *ImagingPipeline) discardSaliency(art saliency) {
	if art.file == "" {
		return
	}
	if err := os.Remove(art.file); err != nil && !errors.Is(err, fs.ErrNotExist) {
		p.logger.WithFields(logrus.Fields{
			"file":  art.file,
			"error": err.Error(),
		}).Warn("Failed to remove abandoned saliency artifact")
	}
}

// runBounded runs fn and returns early with the context error if ctx expires
// first. A result that arrives after that is passed to discard when fn succeeded.
func runBounded[T any](ctx context.Context, fn func() (T, error), discard func(T)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v: v, err: err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		if discard != nil {
			go func() {
				if r := <-done; r.err == nil {
					discard(r.v)
				}
			}()
		}
		return zero, fmt.Errorf("imaging timed out: %w", ctx.Err())
	}
}
