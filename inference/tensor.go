package inference

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// Shape is the dimension list of a tensor.
type Shape []int64

// Size returns the number of elements of the shape, 0 for an empty shape.
func (s Shape) Size() int64 {
	if len(s) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range s {
		n *= d
	}
	return n
}

// Equal reports whether both shapes have the same dimensions.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Valid reports whether the shape has at least one dimension and all dimensions are positive.
func (s Shape) Valid() bool {
	if len(s) == 0 {
		return false
	}
	for _, d := range s {
		if d <= 0 {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	return append(Shape(nil), s...)
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = fmt.Sprint(d)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Releaser is anything owned by a processing cycle that must be freed before the cycle returns.
type Releaser interface {
	Release() error
}

// ReleaseFunc adapts a function to the Releaser interface.
type ReleaseFunc func() error

// Release calls f.
func (f ReleaseFunc) Release() error {
	return f()
}

// Tensor is a float32 buffer with a single owner.
//
// A tensor returned by a backend may be backed by native memory; Data must not be used after
// Release.
type Tensor struct {
	Shape Shape
	Data  []float32

	release  func() error
	released atomic.Bool
}

// NewTensor wraps Go memory in a tensor.
//
// Arguments:
//   - shape: The tensor shape.
//   - data: The backing data, len(data) must equal shape.Size().
//
// Returns:
//   - *Tensor: The tensor.
//   - error: An error if the data does not fit the shape.
func NewTensor(shape Shape, data []float32) (*Tensor, error) {
	if int64(len(data)) != shape.Size() {
		return nil, errors.Errorf("tensor data holds %d values, shape %v needs %d", len(data), shape, shape.Size())
	}
	return &Tensor{Shape: shape.Clone(), Data: data}, nil
}

// Zeros allocates a zero-valued tensor of the given shape.
func Zeros(shape Shape) *Tensor {
	return &Tensor{Shape: shape.Clone(), Data: make([]float32, shape.Size())}
}

// WrapTensor builds a tensor whose Release runs release exactly once.
//
// Backends use this to hand out natively allocated outputs.
func WrapTensor(shape Shape, data []float32, release func() error) *Tensor {
	return &Tensor{Shape: shape.Clone(), Data: data, release: release}
}

// Release frees the tensor. Only the first call has an effect.
func (t *Tensor) Release() error {
	if t == nil || !t.released.CompareAndSwap(false, true) {
		return nil
	}
	t.Data = nil
	if t.release != nil {
		return t.release()
	}
	return nil
}

// Released reports whether Release has been called.
func (t *Tensor) Released() bool {
	return t.released.Load()
}
