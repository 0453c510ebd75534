package service

import "errors"

var (
	ErrModelUnavailable  = errors.New("model unavailable")
	ErrLabelsUnavailable = errors.New("labels unavailable")
	ErrImageDecode       = errors.New("image decode failed")
	ErrShapeMismatch     = errors.New("shape mismatch")
	ErrEngineFault       = errors.New("inference failed")
)

// Reason maps a classification failure to a short metric-friendly name.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, ErrLabelsUnavailable):
		return "labels_unavailable"
	case errors.Is(err, ErrImageDecode):
		return "image_decode"
	case errors.Is(err, ErrShapeMismatch):
		return "shape_mismatch"
	case errors.Is(err, ErrEngineFault):
		return "engine_fault"
	default:
		return "unknown"
	}
}
