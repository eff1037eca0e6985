// Package vision implements a small convolutional image classifier with
// gradient-weighted class activation maps, plus the imaging helpers needed to
// render and persist saliency overlays.
package vision

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/hybrid-diagnosis-engine/pkg/model"
)

var (
	ErrInvalidNetwork = errors.New("invalid network")
	ErrTensorShape    = errors.New("tensor shape mismatch")
)

// ConvLayer is convolution followed by ReLU and an optional non-overlapping max pool.
// Weights are laid out [out][in][kernel][kernel].
type ConvLayer struct {
	In      int       `json:"in"`
	Out     int       `json:"out"`
	Kernel  int       `json:"kernel"`
	Stride  int       `json:"stride"`
	Padding int       `json:"padding"`
	Pool    int       `json:"pool"`
	Weights []float32 `json:"weights"`
	Bias    []float32 `json:"bias"`
}

// Dense is the linear classification head applied after global average pooling.
type Dense struct {
	Weights [][]float32 `json:"weights"`
	Bias    []float32   `json:"bias"`
}

// CNN is a fitted binary image classifier. Class index 1 is positive.
type CNN struct {
	Kind model.Kind  `json:"kind"`
	Size int         `json:"input_size"`
	Mean [3]float32  `json:"mean"`
	Std  [3]float32  `json:"std"`
	Conv []ConvLayer `json:"conv"`
	FC   Dense       `json:"fc"`

	validated bool
}

type dims struct{ c, h, w int }

// featureMap is a CHW activation volume.
type featureMap struct {
	dims
	data []float64
}

func (f *featureMap) at(c, y, x int) float64 {
	return f.data[(c*f.h+y)*f.w+x]
}

// Load reads a CNN artifact from disk.
func Load(path string) (*CNN, error) {
	kind, data, err := model.ReadKind(path)
	if err != nil {
		return nil, err
	}
	if kind != model.KindCNN {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownKind, kind)
	}
	return Decode(data)
}

// Decode parses and validates a CNN artifact.
func Decode(data []byte) (*CNN, error) {
	var n CNN
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("decoding cnn: %w", err)
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return &n, nil
}

// Validate checks that layer shapes chain and computes activation sizes.
func (n *CNN) Validate() error {
	if n.Size <= 0 {
		return fmt.Errorf("%w: input_size must be positive", ErrInvalidNetwork)
	}
	for i, s := range n.Std {
		if s == 0 {
			return fmt.Errorf("%w: std[%d] is zero", ErrInvalidNetwork, i)
		}
	}
	if len(n.Conv) == 0 {
		return fmt.Errorf("%w: no convolution layers", ErrInvalidNetwork)
	}

	cur := dims{c: 3, h: n.Size, w: n.Size}
	for i := range n.Conv {
		l := &n.Conv[i]
		if l.Stride == 0 {
			l.Stride = 1
		}
		if l.In != cur.c {
			return fmt.Errorf("%w: layer %d expects %d channels, got %d", ErrInvalidNetwork, i, l.In, cur.c)
		}
		if l.Out <= 0 || l.Kernel <= 0 || l.Stride < 0 || l.Padding < 0 || l.Pool < 0 {
			return fmt.Errorf("%w: layer %d has invalid geometry", ErrInvalidNetwork, i)
		}
		if len(l.Weights) != l.Out*l.In*l.Kernel*l.Kernel || len(l.Bias) != l.Out {
			return fmt.Errorf("%w: layer %d weight or bias size", ErrInvalidNetwork, i)
		}
		cur = dims{
			c: l.Out,
			h: (cur.h+2*l.Padding-l.Kernel)/l.Stride + 1,
			w: (cur.w+2*l.Padding-l.Kernel)/l.Stride + 1,
		}
		if l.Pool > 1 {
			cur.h /= l.Pool
			cur.w /= l.Pool
		}
		if cur.h <= 0 || cur.w <= 0 {
			return fmt.Errorf("%w: layer %d collapses spatial size", ErrInvalidNetwork, i)
		}
	}

	if len(n.FC.Weights) != 2 || len(n.FC.Bias) != 2 {
		return fmt.Errorf("%w: head must have 2 classes", ErrInvalidNetwork)
	}
	for j, row := range n.FC.Weights {
		if len(row) != cur.c {
			return fmt.Errorf("%w: head row %d has width %d, want %d", ErrInvalidNetwork, j, len(row), cur.c)
		}
	}
	n.validated = true
	return nil
}

// InputSize returns the square edge length the network consumes.
func (n *CNN) InputSize() int {
	return n.Size
}

// Preprocess resizes img to the input geometry and normalizes it into a CHW tensor.
func (n *CNN) Preprocess(img image.Image) ([]float32, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrTensorShape)
	}
	return Normalize(Resize(img, n.Size), n.Mean, n.Std), nil
}

// PositiveProbability runs the forward pass and returns softmax[1].
func (n *CNN) PositiveProbability(tensor []float32) (float64, error) {
	act, err := n.features(tensor)
	if err != nil {
		return 0, err
	}
	logits := n.head(act)
	p := softmax(logits)[1]
	if math.IsNaN(p) {
		return 0, fmt.Errorf("%w: non-finite output", model.ErrNonFiniteValue)
	}
	return p, nil
}

// ActivationMap returns the Grad-CAM map for the positive class at the
// resolution of the last convolution block, normalized to [0,1].
//
// The head is GAP followed by a linear layer, so the gradient of the positive
// logit with respect to every cell of channel k is W[1][k]/(H*W).
func (n *CNN) ActivationMap(tensor []float32) ([][]float64, error) {
	act, err := n.features(tensor)
	if err != nil {
		return nil, err
	}

	area := float64(act.h * act.w)
	cam := make([][]float64, act.h)
	var peak float64
	for y := 0; y < act.h; y++ {
		cam[y] = make([]float64, act.w)
		for x := 0; x < act.w; x++ {
			var v float64
			for c := 0; c < act.c; c++ {
				v += float64(n.FC.Weights[1][c]) / area * act.at(c, y, x)
			}
			v = math.Max(v, 0)
			cam[y][x] = v
			peak = math.Max(peak, v)
		}
	}
	if peak > 0 {
		for y := range cam {
			for x := range cam[y] {
				cam[y][x] /= peak
			}
		}
	}
	return cam, nil
}

func (n *CNN) features(tensor []float32) (*featureMap, error) {
	if want := 3 * n.Size * n.Size; len(tensor) != want {
		return nil, fmt.Errorf("%w: got %d values, want %d", ErrTensorShape, len(tensor), want)
	}
	if !n.validated {
		if err := n.Validate(); err != nil {
			return nil, err
		}
	}

	in := &featureMap{dims: dims{c: 3, h: n.Size, w: n.Size}, data: make([]float64, len(tensor))}
	for i, v := range tensor {
		in.data[i] = float64(v)
	}
	for i := range n.Conv {
		in = n.Conv[i].forward(in)
	}
	return in, nil
}

func (n *CNN) head(act *featureMap) []float64 {
	area := float64(act.h * act.w)
	pooled := make([]float64, act.c)
	for c := 0; c < act.c; c++ {
		var sum float64
		for _, v := range act.data[c*act.h*act.w : (c+1)*act.h*act.w] {
			sum += v
		}
		pooled[c] = sum / area
	}

	logits := make([]float64, 2)
	for j := range logits {
		z := float64(n.FC.Bias[j])
		for c, w := range n.FC.Weights[j] {
			z += float64(w) * pooled[c]
		}
		logits[j] = z
	}
	return logits
}

func (l *ConvLayer) forward(in *featureMap) *featureMap {
	oh := (in.h+2*l.Padding-l.Kernel)/l.Stride + 1
	ow := (in.w+2*l.Padding-l.Kernel)/l.Stride + 1
	out := &featureMap{dims: dims{c: l.Out, h: oh, w: ow}, data: make([]float64, l.Out*oh*ow)}

	k := l.Kernel
	for o := 0; o < l.Out; o++ {
		for y := 0; y < oh; y++ {
			for x := 0; x < ow; x++ {
				sum := float64(l.Bias[o])
				for c := 0; c < l.In; c++ {
					base := (o*l.In + c) * k * k
					for ky := 0; ky < k; ky++ {
						iy := y*l.Stride + ky - l.Padding
						if iy < 0 || iy >= in.h {
							continue
						}
						for kx := 0; kx < k; kx++ {
							ix := x*l.Stride + kx - l.Padding
							if ix < 0 || ix >= in.w {
								continue
							}
							sum += float64(l.Weights[base+ky*k+kx]) * in.at(c, iy, ix)
						}
					}
				}
				out.data[(o*oh+y)*ow+x] = math.Max(sum, 0)
			}
		}
	}

	if l.Pool > 1 {
		return maxPool(out, l.Pool)
	}
	return out
}

func maxPool(in *featureMap, p int) *featureMap {
	oh, ow := in.h/p, in.w/p
	out := &featureMap{dims: dims{c: in.c, h: oh, w: ow}, data: make([]float64, in.c*oh*ow)}
	for c := 0; c < in.c; c++ {
		for y := 0; y < oh; y++ {
			for x := 0; x < ow; x++ {
				m := math.Inf(-1)
				for dy := 0; dy < p; dy++ {
					for dx := 0; dx < p; dx++ {
						m = math.Max(m, in.at(c, y*p+dy, x*p+dx))
					}
				}
				out.data[(c*oh+y)*ow+x] = m
			}
		}
	}
	return out
}

func softmax(z []float64) []float64 {
	m := math.Max(z[0], z[1])
	a, b := math.Exp(z[0]-m), math.Exp(z[1]-m)
	return []float64{a / (a + b), b / (a + b)}
}
