package service

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"

	_ "github.com/gen2brain/avif"
	_ "golang.org/x/image/webp"
)

// ITU-R BT.601 luma weights.
const (
	lumaR = 0.299
	lumaG = 0.587
	lumaB = 0.114
)

type PreprocessOptions struct {
	// NormalizeSigned scales samples to [-1,1] instead of [0,1].
	NormalizeSigned bool
	// Filter is the resampling filter; the zero value means bilinear.
	Filter imaging.ResampleFilter
}

// ResampleFilter resolves a configured filter name.
func ResampleFilter(name string) (imaging.ResampleFilter, error) {
	switch strings.ToLower(name) {
	case "", "linear", "bilinear":
		return imaging.Linear, nil
	case "catmullrom", "bicubic":
		return imaging.CatmullRom, nil
	case "lanczos":
		return imaging.Lanczos, nil
	default:
		return imaging.ResampleFilter{}, fmt.Errorf("unknown resample filter %q", name)
	}
}

// Preprocessor turns encoded images into model input tensors.
type Preprocessor struct {
	signed bool
	filter imaging.ResampleFilter
}

func NewPreprocessor(opts PreprocessOptions) *Preprocessor {
	filter := opts.Filter
	if filter.Kernel == nil {
		filter = imaging.Linear
	}
	return &Preprocessor{signed: opts.NormalizeSigned, filter: filter}
}

// Decode decodes an encoded image and applies its EXIF orientation.
func (p *Preprocessor) Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImageDecode, err)
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrImageDecode)
	}
	return img, nil
}

// FromBytes decodes data and builds a tensor of the given [1, H, W, C] shape.
func (p *Preprocessor) FromBytes(data []byte, shape Shape) (Tensor, error) {
	if err := checkInputShape(shape); err != nil {
		return Tensor{}, err
	}
	img, err := p.Decode(data)
	if err != nil {
		return Tensor{}, err
	}
	return p.Tensor(img, shape)
}

// Tensor center-crops img to the input aspect ratio, resizes it to the input
// size and writes normalized samples in NHWC order.
func (p *Preprocessor) Tensor(img image.Image, shape Shape) (Tensor, error) {
	if err := checkInputShape(shape); err != nil {
		return Tensor{}, err
	}
	h, w, c := int(shape[1]), int(shape[2]), int(shape[3])

	crop := CenterCrop(img.Bounds(), w, h)
	if crop.Empty() {
		return Tensor{}, fmt.Errorf("%w: empty image", ErrImageDecode)
	}
	resized := imaging.Resize(imaging.Crop(img, crop), w, h, p.filter)

	data := make([]float32, 0, h*w*c)
	for y := range h {
		row := resized.Pix[y*resized.Stride:]
		for x := range w {
			px := row[x*4:]
			r, g, b := p.normalize(px[0]), p.normalize(px[1]), p.normalize(px[2])
			if c == 1 {
				data = append(data, lumaR*r+lumaG*g+lumaB*b)
			} else {
				data = append(data, r, g, b)
			}
		}
	}
	return Tensor{Shape: Shape{1, int64(h), int64(w), int64(c)}, Data: data}, nil
}

func (p *Preprocessor) normalize(v uint8) float32 {
	f := float32(v) / 255
	if p.signed {
		return (f - 0.5) * 2
	}
	return f
}

func checkInputShape(shape Shape) error {
	if len(shape) != 4 || shape[0] != 1 || shape[1] <= 0 || shape[2] <= 0 {
		return fmt.Errorf("%w: input %v, want [1 H W C]", ErrShapeMismatch, shape)
	}
	if c := shape[3]; c != 1 && c != 3 {
		return fmt.Errorf("%w: %d input channels not supported", ErrShapeMismatch, c)
	}
	return nil
}

// CenterCrop returns the largest centered region of bounds with the aspect
// ratio targetW:targetH.
func CenterCrop(bounds image.Rectangle, targetW, targetH int) image.Rectangle {
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW <= 0 || srcH <= 0 || targetW <= 0 || targetH <= 0 {
		return image.Rectangle{}
	}
	targetAspect := float64(targetW) / float64(targetH)
	cropW, cropH := srcW, srcH
	switch {
	case srcW*targetH > srcH*targetW:
		cropW = clamp(int(math.Round(float64(srcH)*targetAspect)), 1, srcW)
	case srcW*targetH < srcH*targetW:
		cropH = clamp(int(math.Round(float64(srcW)/targetAspect)), 1, srcH)
	}
	x0 := int(math.Round(float64(srcW-cropW) / 2))
	y0 := int(math.Round(float64(srcH-cropH) / 2))
	origin := bounds.Min.Add(image.Pt(x0, y0))
	return image.Rectangle{Min: origin, Max: origin.Add(image.Pt(cropW, cropH))}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
