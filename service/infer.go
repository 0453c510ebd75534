package service

import (
	"fmt"
	"math"
)

// Invoke runs t through engine and returns its raw [1, numClasses] scores.
// Engine errors, panics and non-finite scores are reported as ErrEngineFault.
func Invoke(engine Engine, t Tensor) (scores []float32, err error) {
	in := engine.InputShape()
	if !t.Shape.Equal(in) || len(t.Data) != in.Size() {
		return nil, fmt.Errorf("%w: tensor %v (%d values), engine expects %v",
			ErrShapeMismatch, t.Shape, len(t.Data), in)
	}

	defer func() {
		if r := recover(); r != nil {
			scores, err = nil, fmt.Errorf("%w: panic: %v", ErrEngineFault, r)
		}
	}()
	out, err := engine.Run(t.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngineFault, err)
	}
	if want := engine.OutputShape().Size(); len(out) != want {
		return nil, fmt.Errorf("%w: engine returned %d scores, declared %d",
			ErrShapeMismatch, len(out), want)
	}
	for i, v := range out {
		if f := float64(v); math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: score %d is %v", ErrEngineFault, i, v)
		}
	}
	return out, nil
}
