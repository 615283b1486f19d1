package postprocess

import (
	"github.com/nvr-ai/live-detect/images"
	"github.com/nvr-ai/live-detect/inference"
	"github.com/nvr-ai/live-detect/models/preprocess"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Decode turns a raw YOLO output into detections in model input coordinates.
//
// The raw output is box-major, [1, 4+numClasses, N]. Each of the N candidates carries center-x,
// center-y, width and height followed by one score per class; the score of a candidate is its
// best class score and its class is the index of that score. The raw tensor is read but not
// modified, and ownership stays with the caller.
//
// Arguments:
//   - raw: The raw model output.
//   - numClasses: The number of class score rows.
//   - cfg: The suppression parameters.
//
// Returns:
//   - []Detection: The suppressed detections in selection order.
//   - error: ErrDecode if the output does not have the expected shape.
func Decode(raw *inference.Tensor, numClasses int, cfg Config) ([]Detection, error) {
	candidates, err := candidatesOf(raw, numClasses)
	if err != nil {
		return nil, err
	}
	return ApplyNMS(candidates, cfg), nil
}

// Process decodes a raw output and maps the detections onto the frame described by lb.
//
// Arguments:
//   - raw: The raw model output.
//   - numClasses: The number of class score rows.
//   - lb: The letterbox produced together with the input tensor of this output.
//   - cfg: The suppression parameters.
//
// Returns:
//   - []Detection: The detections in original frame pixels.
//   - error: ErrDecode if the output does not have the expected shape.
func Process(raw *inference.Tensor, numClasses int, lb preprocess.Letterbox, cfg Config) ([]Detection, error) {
	dets, err := Decode(raw, numClasses, cfg)
	if err != nil {
		return nil, err
	}
	for i := range dets {
		dets[i].Box = lb.ToFrame(dets[i].Box)
	}
	return dets, nil
}

func candidatesOf(raw *inference.Tensor, numClasses int) ([]Detection, error) {
	if raw == nil || raw.Released() {
		return nil, errors.Wrap(inference.ErrDecode, "no output tensor")
	}
	if numClasses <= 0 {
		return nil, errors.Wrapf(inference.ErrDecode, "invalid class count %d", numClasses)
	}
	d := 4 + numClasses
	s := raw.Shape
	if len(s) != 3 || s[0] != 1 || s[1] != int64(d) || s[2] < 0 {
		return nil, errors.Wrapf(inference.ErrDecode, "output shape %v, expected [1 %d N]", s, d)
	}
	n := int(s[2])
	if len(raw.Data) != d*n {
		return nil, errors.Wrapf(inference.ErrDecode, "output holds %d values, shape %v needs %d", len(raw.Data), s, d*n)
	}
	if n == 0 {
		return []Detection{}, nil
	}

	rows, err := detectionMajor(raw.Data, d, n)
	if err != nil {
		return nil, errors.Wrapf(inference.ErrDecode, "transpose: %v", err)
	}

	candidates := make([]Detection, n)
	for i := 0; i < n; i++ {
		r := rows[i*d : (i+1)*d]
		score, class := r[4], 0
		for c := 1; c < numClasses; c++ {
			if r[4+c] > score {
				score, class = r[4+c], c
			}
		}
		candidates[i] = Detection{
			Box:   images.BoxFromCenter(r[0], r[1], r[2], r[3]),
			Score: score,
			Class: class,
		}
	}
	return candidates, nil
}

// detectionMajor transposes [1, d, n] into [1, n, d] on a private copy.
func detectionMajor(data []float32, d, n int) ([]float32, error) {
	backing := make([]float32, len(data))
	copy(backing, data)

	t := tensor.New(tensor.WithShape(1, d, n), tensor.WithBacking(backing))
	if err := t.T(0, 2, 1); err != nil {
		return nil, err
	}
	if err := t.Transpose(); err != nil {
		return nil, err
	}
	rows, ok := t.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("unexpected tensor data %T", t.Data())
	}
	return rows, nil
}
