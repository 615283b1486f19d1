package postprocess

import (
	"testing"

	"github.com/nvr-ai/live-detect/images"
	"github.com/nvr-ai/live-detect/inference"
	"github.com/nvr-ai/live-detect/models/preprocess"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type candidate struct {
	cx, cy, w, h float32
	scores       []float32
}

// rawOutput lays candidates out box-major, [1, 4+C, N], the way YOLO exports emit them.
func rawOutput(t *testing.T, numClasses int, cands []candidate) *inference.Tensor {
	t.Helper()
	d, n := 4+numClasses, len(cands)
	data := make([]float32, d*n)
	for i, c := range cands {
		row := append([]float32{c.cx, c.cy, c.w, c.h}, c.scores...)
		require.Len(t, row, d)
		for k, v := range row {
			data[k*n+i] = v
		}
	}
	tensor, err := inference.NewTensor(inference.Shape{1, int64(d), int64(n)}, data)
	require.NoError(t, err)
	return tensor
}

func TestDecode(t *testing.T) {
	raw := rawOutput(t, 3, []candidate{
		{cx: 50, cy: 40, w: 20, h: 10, scores: []float32{0.1, 0.7, 0.3}},
		{cx: 51, cy: 41, w: 20, h: 10, scores: []float32{0.6, 0.1, 0.1}},
		{cx: 200, cy: 200, w: 30, h: 30, scores: []float32{0.05, 0.1, 0.15}},
		{cx: 300, cy: 100, w: 40, h: 20, scores: []float32{0.2, 0.1, 0.45}},
	})
	before := append([]float32(nil), raw.Data...)

	dets, err := Decode(raw, 3, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, dets, 2)

	assert.Equal(t, Detection{Box: images.Box{Y1: 35, X1: 40, Y2: 45, X2: 60}, Score: 0.7, Class: 1}, dets[0])
	assert.Equal(t, Detection{Box: images.Box{Y1: 90, X1: 280, Y2: 110, X2: 320}, Score: 0.45, Class: 2}, dets[1])
	assert.Equal(t, before, raw.Data, "raw output is not modified")
}

func TestDecodeSingleClass(t *testing.T) {
	raw := rawOutput(t, 1, []candidate{
		{cx: 10, cy: 10, w: 4, h: 4, scores: []float32{0.9}},
	})
	dets, err := Decode(raw, 1, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, 0, dets[0].Class)
}

func TestDecodeEmpty(t *testing.T) {
	raw, err := inference.NewTensor(inference.Shape{1, 84, 0}, []float32{})
	require.NoError(t, err)

	dets, err := Decode(raw, 80, DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, dets)
}

func TestDecodeShapeMismatch(t *testing.T) {
	raw := rawOutput(t, 3, []candidate{{cx: 1, cy: 1, w: 1, h: 1, scores: []float32{1, 0, 0}}})

	_, err := Decode(raw, 80, DefaultConfig())
	assert.True(t, errors.Is(err, inference.ErrDecode))

	flat, err := inference.NewTensor(inference.Shape{7}, make([]float32, 7))
	require.NoError(t, err)
	_, err = Decode(flat, 3, DefaultConfig())
	assert.True(t, errors.Is(err, inference.ErrDecode))

	_, err = Decode(nil, 3, DefaultConfig())
	assert.True(t, errors.Is(err, inference.ErrDecode))

	require.NoError(t, raw.Release())
	_, err = Decode(raw, 3, DefaultConfig())
	assert.True(t, errors.Is(err, inference.ErrDecode))
}

func TestProcessMapsToFrame(t *testing.T) {
	// A 100x50 frame letterboxed into 64x64: one model pixel is 100/64 frame pixels.
	lb := preprocess.NewLetterbox(100, 50, 64, 64)
	raw := rawOutput(t, 2, []candidate{
		{cx: 32, cy: 16, w: 16, h: 8, scores: []float32{0.1, 0.8}},
		{cx: 60, cy: 30, w: 16, h: 8, scores: []float32{0.9, 0.1}},
	})

	dets, err := Process(raw, 2, lb, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, dets, 2)

	assert.InDelta(t, 0.9, dets[0].Score, 1e-6)
	assert.InDelta(t, 81.25, dets[0].Box.X1, 1e-3)
	assert.InDelta(t, 100, dets[0].Box.X2, 1e-3, "clamped to frame width")
	assert.InDelta(t, 50, dets[0].Box.Y2, 1e-3, "clamped to frame height")

	cx, cy := dets[1].Box.Center()
	assert.InDelta(t, 50, cx, 1e-3)
	assert.InDelta(t, 25, cy, 1e-3)
}
