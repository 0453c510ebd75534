package onnx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/krau/objclassify/assets"
	"github.com/krau/objclassify/service"
	ort "github.com/yalue/onnxruntime_go"
)

// Engine is a single ONNX session with pre-allocated input and output
// tensors. Run calls are serialized.
type Engine struct {
	mu       sync.Mutex
	session  *ort.AdvancedSession
	input    *ort.Tensor[float32]
	output   *ort.Tensor[float32]
	inShape  service.Shape
	outShape service.Shape
}

func (e *Engine) InputShape() service.Shape  { return e.inShape }
func (e *Engine) OutputShape() service.Shape { return e.outShape }

func (e *Engine) Run(input []float32) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, errors.New("session destroyed")
	}
	dst := e.input.GetData()
	if len(input) != len(dst) {
		return nil, fmt.Errorf("input has %d values, session expects %d", len(input), len(dst))
	}
	copy(dst, input)
	if err := e.session.Run(); err != nil {
		return nil, err
	}
	src := e.output.GetData()
	scores := make([]float32, len(src))
	copy(scores, src)
	return scores, nil
}

func (e *Engine) Destroy() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	if e.session != nil {
		errs = append(errs, e.session.Destroy())
		e.session = nil
	}
	if e.input != nil {
		errs = append(errs, e.input.Destroy())
		e.input = nil
	}
	if e.output != nil {
		errs = append(errs, e.output.Destroy())
		e.output = nil
	}
	return errors.Join(errs...)
}

// Loader opens model candidates from Dir, downloading a missing file first
// when URLs names a source for it.
type Loader struct {
	Dir            string
	URLs           map[string]string
	Fetcher        *assets.Fetcher
	IntraOpThreads int
}

func (l *Loader) LoadModel(id string) (service.Engine, error) {
	path := filepath.Join(l.Dir, id)
	if url := l.URLs[id]; url != "" && l.Fetcher != nil {
		if err := l.Fetcher.Ensure(context.Background(), url, path); err != nil {
			return nil, err
		}
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	if !ort.IsInitialized() {
		return nil, errors.New("onnx runtime not initialized")
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	in, out, inShape, outShape, err := selectIO(inputs, outputs)
	if err != nil {
		return nil, err
	}
	return newEngine(path, in.Name, out.Name, inShape, outShape, l.IntraOpThreads)
}

// selectIO picks the model's image input and score output and checks they
// follow the [1,H,W,C] -> [1,numClasses] float contract. A dynamic batch
// dimension is pinned to 1.
func selectIO(inputs, outputs []ort.InputOutputInfo) (in, out ort.InputOutputInfo, inShape, outShape service.Shape, err error) {
	if len(inputs) != 1 || len(outputs) == 0 {
		err = fmt.Errorf("%w: unexpected io (in:%d out:%d)", service.ErrShapeMismatch, len(inputs), len(outputs))
		return
	}
	in, out = inputs[0], outputs[0]
	for _, info := range []ort.InputOutputInfo{in, out} {
		if info.OrtValueType != ort.ONNXTypeTensor || info.DataType != ort.TensorElementDataTypeFloat {
			err = fmt.Errorf("%w: %s is not a float tensor", service.ErrShapeMismatch, info.Name)
			return
		}
	}
	inShape, outShape = pinBatch(in.Dimensions), pinBatch(out.Dimensions)
	err = service.ValidateShapes(inShape, outShape)
	return
}

func pinBatch(dims ort.Shape) service.Shape {
	s := make(service.Shape, len(dims))
	copy(s, dims)
	if len(s) > 0 && s[0] < 0 {
		s[0] = 1
	}
	return s
}

func newEngine(path, inName, outName string, inShape, outShape service.Shape, threads int) (*Engine, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer opts.Destroy()
	if threads > 0 {
		if err := opts.SetIntraOpNumThreads(threads); err != nil {
			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(inShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(outShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		path,
		[]string{inName},
		[]string{outName},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX Runtime session: %w", err)
	}

	return &Engine{
		session:  session,
		input:    inputTensor,
		output:   outputTensor,
		inShape:  inShape,
		outShape: outShape,
	}, nil
}
