package service

import (
	"errors"
	"fmt"
)

// TryInOrder loads candidates in priority order and returns the first engine
// that loads with a supported tensor contract, along with its identifier.
// Failed candidates are skipped; their errors are only reported when every
// candidate fails.
func TryInOrder(candidates []string, loader ModelLoader) (Engine, string, error) {
	var errs []error
	for _, id := range candidates {
		engine, err := loader.LoadModel(id)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		if err := ValidateShapes(engine.InputShape(), engine.OutputShape()); err != nil {
			_ = engine.Destroy()
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		return engine, id, nil
	}
	if len(errs) == 0 {
		return nil, "", fmt.Errorf("%w: no candidates", ErrModelUnavailable)
	}
	return nil, "", fmt.Errorf("%w: %w", ErrModelUnavailable, errors.Join(errs...))
}

// ValidateShapes checks the [1, H, W, C] input and [1, numClasses] output
// contract.
func ValidateShapes(in, out Shape) error {
	if len(in) != 4 || in[0] != 1 {
		return fmt.Errorf("%w: input %v, want [1 H W C]", ErrShapeMismatch, in)
	}
	for _, d := range in[1:] {
		if d <= 0 {
			return fmt.Errorf("%w: input %v has a non-positive dimension", ErrShapeMismatch, in)
		}
	}
	if len(out) != 2 || out[0] != 1 || out[1] <= 0 {
		return fmt.Errorf("%w: output %v, want [1 numClasses]", ErrShapeMismatch, out)
	}
	return nil
}
