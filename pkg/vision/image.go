package vision

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	// Registered decoders for Decode.
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// HeatmapWeight is the opacity of the colour-mapped activation in an overlay.
const HeatmapWeight = 0.4

// DecodeFile opens and decodes an image in any registered format.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding image %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// Resize scales img to size x size RGBA using bilinear interpolation.
func Resize(img image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// Normalize converts an RGBA image into a CHW tensor of (v/255 - mean) / std.
func Normalize(img *image.RGBA, mean, std [3]float32) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	out := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			px := img.Pix[i : i+3 : i+3]
			for c := 0; c < 3; c++ {
				out[c*plane+y*w+x] = (float32(px[c])/255 - mean[c]) / std[c]
			}
		}
	}
	return out
}

// Jet maps v in [0,1] to the classic blue-cyan-yellow-red colour scale.
func Jet(v float64) color.RGBA {
	channel := func(center float64) uint8 {
		d := 4*v - center
		if d < 0 {
			d = -d
		}
		c := 1.5 - d
		switch {
		case c < 0:
			c = 0
		case c > 1:
			c = 1
		}
		return uint8(c*255 + 0.5)
	}
	return color.RGBA{R: channel(3), G: channel(2), B: channel(1), A: 255}
}

// Heatmap renders an activation map as a jet-coloured image upscaled to the
// given bounds with bilinear interpolation.
func Heatmap(cam [][]float64, bounds image.Rectangle) *image.RGBA {
	h := len(cam)
	w := 0
	if h > 0 {
		w = len(cam[0])
	}
	gray := image.NewGray(image.Rect(0, 0, max(w, 1), max(h, 1)))
	for y := 0; y < h; y++ {
		for x := 0; x < w && x < len(cam[y]); x++ {
			v := cam[y][x]
			if v < 0 {
				v = 0
			} else if v > 1 {
				v = 1
			}
			gray.SetGray(x, y, color.Gray{Y: uint8(v*255 + 0.5)})
		}
	}

	up := image.NewGray(bounds)
	draw.BiLinear.Scale(up, bounds, gray, gray.Bounds(), draw.Src, nil)

	out := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			out.SetRGBA(x, y, Jet(float64(up.GrayAt(x, y).Y)/255))
		}
	}
	return out
}

// Overlay alpha-blends the jet-coloured activation map over base:
// HeatmapWeight of heatmap and the remainder of the original.
func Overlay(base *image.RGBA, cam [][]float64) *image.RGBA {
	b := base.Bounds()
	heat := Heatmap(cam, b)
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i, j := out.PixOffset(x, y), base.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := HeatmapWeight*float64(heat.Pix[i+c]) + (1-HeatmapWeight)*float64(base.Pix[j+c])
				out.Pix[i+c] = uint8(v + 0.5)
			}
			out.Pix[i+3] = 255
		}
	}
	return out
}

// SavePNG writes img to path, creating parent directories as needed.
func SavePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return f.Close()
}
