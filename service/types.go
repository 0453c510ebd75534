package service

import (
	"fmt"
	"slices"
)

// MaxResults is the most results a classification returns.
const MaxResults = 3

// FallbackLabel is reported whenever no real classification can be produced.
const FallbackLabel = "Model not available"

type Result struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Fallback returns the single-entry result used in place of any failure.
func Fallback() []Result {
	return []Result{{Label: FallbackLabel, Confidence: 1.0}}
}

// Shape is a tensor shape, outermost dimension first.
type Shape []int64

func (s Shape) Size() int {
	if len(s) == 0 {
		return 0
	}
	n := 1
	for _, d := range s {
		n *= int(d)
	}
	return n
}

func (s Shape) Equal(o Shape) bool {
	return slices.Equal(s, o)
}

func (s Shape) String() string {
	return fmt.Sprint([]int64(s))
}

// Tensor is a dense float32 tensor stored row-major. Image tensors are NHWC.
type Tensor struct {
	Shape Shape
	Data  []float32
}

// Engine is a loaded inference model. Input is [1, H, W, C], output is
// [1, numClasses]. Implementations need not be safe for concurrent Run calls.
type Engine interface {
	InputShape() Shape
	OutputShape() Shape
	Run(input []float32) ([]float32, error)
	Destroy() error
}

type ModelLoader interface {
	LoadModel(id string) (Engine, error)
}

type TextLoader interface {
	LoadText(id string) (string, error)
}
