package service

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	in, out Shape
	scores  []float32
	err     error
	panics  bool
	delay   time.Duration

	runs      atomic.Int32
	active    atomic.Int32
	maxActive atomic.Int32
	destroyed atomic.Int32
	lastInput []float32
	mu        sync.Mutex
}

func (e *fakeEngine) InputShape() Shape  { return e.in }
func (e *fakeEngine) OutputShape() Shape { return e.out }

func (e *fakeEngine) Run(input []float32) ([]float32, error) {
	e.runs.Add(1)
	n := e.active.Add(1)
	defer e.active.Add(-1)
	for {
		m := e.maxActive.Load()
		if n <= m || e.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	e.mu.Lock()
	e.lastInput = input
	e.mu.Unlock()
	if e.panics {
		panic("engine exploded")
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.scores, nil
}

func (e *fakeEngine) Destroy() error {
	e.destroyed.Add(1)
	return nil
}

type fakeModels struct {
	engines  map[string]*fakeEngine
	attempts []string
}

func (m *fakeModels) LoadModel(id string) (Engine, error) {
	m.attempts = append(m.attempts, id)
	e, ok := m.engines[id]
	if !ok {
		return nil, errors.New("no such model")
	}
	return e, nil
}

type fakeTexts map[string]string

func (f fakeTexts) LoadText(id string) (string, error) {
	s, ok := f[id]
	if !ok {
		return "", errors.New("not found")
	}
	return s, nil
}

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	return encodePNG(t, img)
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
