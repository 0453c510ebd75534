package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryInOrder(t *testing.T) {
	quant := &fakeEngine{in: Shape{1, 8, 8, 3}, out: Shape{1, 4}}
	float := &fakeEngine{in: Shape{1, 8, 8, 3}, out: Shape{1, 4}}

	t.Run("first success wins", func(t *testing.T) {
		models := &fakeModels{engines: map[string]*fakeEngine{"quant": quant, "float": float}}
		engine, id, err := TryInOrder([]string{"quant", "float"}, models)
		require.NoError(t, err)
		assert.Same(t, quant, engine)
		assert.Equal(t, "quant", id)
		assert.Equal(t, []string{"quant"}, models.attempts)
	})

	t.Run("skips failures", func(t *testing.T) {
		models := &fakeModels{engines: map[string]*fakeEngine{"float": float}}
		engine, id, err := TryInOrder([]string{"quant", "float"}, models)
		require.NoError(t, err)
		assert.Same(t, float, engine)
		assert.Equal(t, "float", id)
		assert.Equal(t, []string{"quant", "float"}, models.attempts)
	})

	t.Run("skips unsupported shapes", func(t *testing.T) {
		bad := &fakeEngine{in: Shape{1, 3, 8, 8, 1}, out: Shape{1, 4}}
		models := &fakeModels{engines: map[string]*fakeEngine{"quant": bad, "float": float}}
		engine, _, err := TryInOrder([]string{"quant", "float"}, models)
		require.NoError(t, err)
		assert.Same(t, float, engine)
		assert.Equal(t, int32(1), bad.destroyed.Load())
	})

	t.Run("none available", func(t *testing.T) {
		models := &fakeModels{}
		engine, _, err := TryInOrder([]string{"quant", "float"}, models)
		assert.Nil(t, engine)
		assert.ErrorIs(t, err, ErrModelUnavailable)
		assert.ErrorContains(t, err, "quant")
		assert.ErrorContains(t, err, "float")
	})

	t.Run("no candidates", func(t *testing.T) {
		_, _, err := TryInOrder(nil, &fakeModels{})
		assert.ErrorIs(t, err, ErrModelUnavailable)
	})
}

func TestValidateShapes(t *testing.T) {
	tests := []struct {
		name    string
		in, out Shape
		ok      bool
	}{
		{"valid rgb", Shape{1, 224, 224, 3}, Shape{1, 10}, true},
		{"valid mono", Shape{1, 28, 28, 1}, Shape{1, 10}, true},
		{"batch of two", Shape{2, 224, 224, 3}, Shape{1, 10}, false},
		{"rank three input", Shape{224, 224, 3}, Shape{1, 10}, false},
		{"dynamic height", Shape{1, -1, 224, 3}, Shape{1, 10}, false},
		{"rank three output", Shape{1, 224, 224, 3}, Shape{1, 10, 1}, false},
		{"empty output", Shape{1, 224, 224, 3}, Shape{1, 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateShapes(tt.in, tt.out)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrShapeMismatch)
			}
		})
	}
}
