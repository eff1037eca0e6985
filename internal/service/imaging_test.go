package service

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hybrid-diagnosis-engine/internal/domain"
	"github.com/hybrid-diagnosis-engine/internal/registry"
	"github.com/hybrid-diagnosis-engine/pkg/vision"
)

func writeScan(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 12, 12))
	for y := 0; y < 12; y++ {
		for x := 0; x < 12; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 20), G: uint8(y * 20), B: 90, A: 255})
		}
	}
	path := filepath.Join(dir, name)
	require.NoError(t, vision.SavePNG(path, img))
	return path
}

func newImaging(t *testing.T, classifier domain.ImageClassifier, cfg *domain.Config) *ImagingPipeline {
	t.Helper()
	logger := newTestLogger()
	var opts []registry.Option
	if classifier != nil {
		opts = append(opts, registry.WithImageClassifier(classifier))
	}
	p, err := NewImagingPipeline(logger, registry.New(logger, opts...), cfg.Imaging, cfg.Media)
	require.NoError(t, err)
	return p
}

func TestImagingPipeline_Applies(t *testing.T) {
	cfg := testConfig(t.TempDir())
	classifier := &MockImageClassifier{size: 4}

	withCNN := newImaging(t, classifier, cfg)
	assert.True(t, withCNN.Applies(domain.AE, "scan.png"))
	assert.False(t, withCNN.Applies(domain.PV, "scan.png"))
	assert.False(t, withCNN.Applies(domain.AE, ""))

	assert.False(t, newImaging(t, nil, cfg).Applies(domain.AE, "scan.png"))

	disabled := testConfig(t.TempDir())
	disabled.Imaging.Enabled = false
	assert.False(t, newImaging(t, classifier, disabled).Applies(domain.AE, "scan.png"))
}

func TestImagingPipeline_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("Negative_Writes_Plain_Scan", func(t *testing.T) {
		media := t.TempDir()
		scan := writeScan(t, t.TempDir(), "patient_01.png")
		classifier := &MockImageClassifier{size: 4}
		classifier.On("PositiveProbability", mock.Anything).Return(0.49, nil)

		out := newImaging(t, classifier, testConfig(media)).Run(ctx, scan)

		require.True(t, out.Ran)
		assert.Empty(t, out.Degradations)
		assert.Equal(t, 0.49, out.CNNProbability)
		assert.False(t, out.Heatmap)
		assert.Equal(t, "/media/grad_cam/scan_patient_01.png", out.SaliencyPath)
		assert.FileExists(t, filepath.Join(media, "grad_cam", "scan_patient_01.png"))
		classifier.AssertNotCalled(t, "ActivationMap", mock.Anything)
	})

	t.Run("Positive_Writes_Overlay", func(t *testing.T) {
		media := t.TempDir()
		scan := writeScan(t, t.TempDir(), "patient_02.png")
		classifier := &MockImageClassifier{size: 4}
		classifier.On("PositiveProbability", mock.Anything).Return(0.51, nil)
		classifier.On("ActivationMap", mock.Anything).Return([][]float64{{0, 0.5}, {1, 0}}, nil)

		out := newImaging(t, classifier, testConfig(media)).Run(ctx, scan)

		require.True(t, out.Ran)
		assert.True(t, out.Heatmap)
		assert.Equal(t, "/media/grad_cam/gradcam_patient_02.png", out.SaliencyPath)
		assert.Equal(t, filepath.Join(media, "grad_cam", "gradcam_patient_02.png"), out.SaliencyFile)

		img, err := vision.DecodeFile(out.SaliencyFile)
		require.NoError(t, err)
		assert.Equal(t, 4, img.Bounds().Dx())
	})

	t.Run("Unreadable_Image_Not_Fused", func(t *testing.T) {
		classifier := &MockImageClassifier{size: 4}
		path := filepath.Join(t.TempDir(), "broken.png")
		require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

		out := newImaging(t, classifier, testConfig(t.TempDir())).Run(ctx, path)

		assert.False(t, out.Ran)
		require.Len(t, out.Degradations, 1)
		assert.Equal(t, domain.ComponentImaging, out.Degradations[0].Component)
		assert.Equal(t, "cnn", out.Degradations[0].Model)
		classifier.AssertNotCalled(t, "PositiveProbability", mock.Anything)
	})

	t.Run("Forward_Failure_Not_Fused", func(t *testing.T) {
		scan := writeScan(t, t.TempDir(), "x.png")
		classifier := &MockImageClassifier{size: 4}
		classifier.On("PositiveProbability", mock.Anything).Return(0.0, errors.New("tensor mismatch"))

		out := newImaging(t, classifier, testConfig(t.TempDir())).Run(ctx, scan)
		assert.False(t, out.Ran)
		assert.Len(t, out.Degradations, 1)
	})

	t.Run("Saliency_Failure_Still_Fused", func(t *testing.T) {
		scan := writeScan(t, t.TempDir(), "y.png")
		classifier := &MockImageClassifier{size: 4}
		classifier.On("PositiveProbability", mock.Anything).Return(0.8, nil)
		classifier.On("ActivationMap", mock.Anything).Return(nil, errors.New("no gradients"))

		out := newImaging(t, classifier, testConfig(t.TempDir())).Run(ctx, scan)
		assert.True(t, out.Ran)
		assert.Equal(t, 0.8, out.CNNProbability)
		assert.Empty(t, out.SaliencyPath)
		assert.Len(t, out.Degradations, 1)
	})

	t.Run("Timeout_Not_Fused", func(t *testing.T) {
		scan := writeScan(t, t.TempDir(), "slow.png")
		release := make(chan struct{})
		defer close(release)
		classifier := &MockImageClassifier{size: 4}
		classifier.On("PositiveProbability", mock.Anything).
			Run(func(mock.Arguments) { <-release }).
			Return(0.9, nil)

		cfg := testConfig(t.TempDir())
		cfg.Imaging.Timeout = 20 * time.Millisecond
		out := newImaging(t, classifier, cfg).Run(ctx, scan)

		assert.False(t, out.Ran)
		require.Len(t, out.Degradations, 1)
		assert.Contains(t, out.Degradations[0].Message, "timed out")
	})

	t.Run("Cache_Reuses_Inference", func(t *testing.T) {
		scan := writeScan(t, t.TempDir(), "cached.png")
		classifier := &MockImageClassifier{size: 4}
		classifier.On("PositiveProbability", mock.Anything).Return(0.7, nil)
		classifier.On("ActivationMap", mock.Anything).Return([][]float64{{1}}, nil)

		p := newImaging(t, classifier, testConfig(t.TempDir()))
		first := p.Run(ctx, scan)
		second := p.Run(ctx, scan)

		assert.Equal(t, first.CNNProbability, second.CNNProbability)
		assert.Equal(t, first.SaliencyPath, second.SaliencyPath)
		classifier.AssertNumberOfCalls(t, "PositiveProbability", 1)
		classifier.AssertNumberOfCalls(t, "ActivationMap", 1)
	})
}

func TestRunBounded(t *testing.T) {
	t.Run("Returns_Result", func(t *testing.T) {
		got, err := runBounded(context.Background(), func() (int, error) { return 7, nil }, nil)
		require.NoError(t, err)
		assert.Equal(t, 7, got)
	})

	t.Run("Late_Result_Discarded", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		release := make(chan struct{})
		discarded := make(chan int, 1)

		_, err := runBounded(ctx, func() (int, error) {
			<-release
			return 7, nil
		}, func(v int) { discarded <- v })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timed out")

		close(release)
		select {
		case v := <-discarded:
			assert.Equal(t, 7, v)
		case <-time.After(time.Second):
			t.Fatal("late result was not discarded")
		}
	})

	t.Run("Late_Failure_Not_Discarded", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		release := make(chan struct{})
		finished := make(chan struct{})
		discarded := make(chan int, 1)

		_, err := runBounded(ctx, func() (int, error) {
			defer close(finished)
			<-release
			return 0, errors.New("render failed")
		}, func(v int) { discarded <- v })
		require.Error(t, err)

		close(release)
		<-finished
		assert.Never(t, func() bool { return len(discarded) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	})
}

func TestImagingPipeline_DiscardSaliency(t *testing.T) {
	media := t.TempDir()
	p := newImaging(t, &MockImageClassifier{size: 4}, testConfig(media))

	path := writeScan(t, filepath.Join(media, "grad_cam"), "gradcam_late.png")
	p.discardSaliency(saliency{file: path, heatmap: true})
	assert.NoFileExists(t, path)

	// Already gone or never written
	p.discardSaliency(saliency{file: path})
	p.discardSaliency(saliency{})
}
