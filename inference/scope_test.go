package inference

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestScopeReleasesInReverseOrder(t *testing.T) {
	var order []int
	s := NewScope()
	for i := 0; i < 3; i++ {
		i := i
		s.Track(ReleaseFunc(func() error {
			order = append(order, i)
			return nil
		}))
	}
	assert.Equal(t, 3, s.Len())

	require.NoError(t, s.Close())
	assert.Equal(t, []int{2, 1, 0}, order)
	assert.Equal(t, 0, s.Len())
	require.NoError(t, s.Close(), "closing twice is a no-op")
	assert.Len(t, order, 3)
}

func TestScopeCombinesErrors(t *testing.T) {
	s := NewScope()
	errA := errors.New("a")
	errB := errors.New("b")
	s.Track(ReleaseFunc(func() error { return errA }))
	s.Track(ReleaseFunc(func() error { return nil }))
	s.Track(ReleaseFunc(func() error { return errB }))

	err := s.Close()
	assert.Equal(t, []error{errB, errA}, multierr.Errors(err))
}

func TestScopeTrackAfterClose(t *testing.T) {
	s := NewScope()
	require.NoError(t, s.Close())

	tensor := Zeros(Shape{1, 2})
	s.Tensor(tensor)
	assert.True(t, tensor.Released())
}

func TestTensorReleaseOnce(t *testing.T) {
	calls := 0
	tensor := WrapTensor(Shape{2}, []float32{1, 2}, func() error {
		calls++
		return nil
	})

	assert.False(t, tensor.Released())
	require.NoError(t, tensor.Release())
	require.NoError(t, tensor.Release())
	assert.True(t, tensor.Released())
	assert.Equal(t, 1, calls)
	assert.Nil(t, tensor.Data)
}

func TestNewTensorValidatesSize(t *testing.T) {
	_, err := NewTensor(Shape{1, 3}, []float32{1, 2})
	assert.Error(t, err)

	tensor, err := NewTensor(Shape{1, 2}, []float32{1, 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), tensor.Shape.Size())
}

func TestShape(t *testing.T) {
	assert.True(t, Shape{1, 640, 640, 3}.Equal(Shape{1, 640, 640, 3}))
	assert.False(t, Shape{1, 640, 640, 3}.Equal(Shape{1, 3, 640, 640}))
	assert.False(t, Shape{1, -1, 640, 3}.Valid())
	assert.False(t, Shape{}.Valid())
	assert.Equal(t, "[1 3 8 8]", Shape{1, 3, 8, 8}.String())
}
