// Package postprocess - Decoding of raw detector output into deduplicated detections.
package postprocess

import (
	"fmt"

	"github.com/nvr-ai/live-detect/images"
	"go.uber.org/multierr"
)

// Detection represents a single detection result.
type Detection struct {
	// The bounding box of the detection, (y1, x1, y2, x2).
	Box images.Box
	// The confidence score of the detection.
	Score float32
	// The predicted class index of the detection.
	Class int
}

func (d Detection) String() string {
	return fmt.Sprintf("class=%d score=%.3f box=%s", d.Class, d.Score, d.Box)
}

// Config holds the decode and suppression parameters.
type Config struct {
	// MaxOutputSize caps the number of detections returned per frame.
	MaxOutputSize int `json:"max_output_size" yaml:"max_output_size"`
	// IoUThreshold is the overlap at or above which a lower scoring box is suppressed.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"`
	// ScoreThreshold drops candidates scoring below it before suppression.
	ScoreThreshold float32 `json:"score_threshold" yaml:"score_threshold"`
	// ClassAware restricts suppression to boxes of the same class.
	ClassAware bool `json:"class_aware" yaml:"class_aware"`
}

// DefaultConfig returns the standard thresholds: 100 detections, IoU 0.5, score 0.2, suppression
// across classes.
func DefaultConfig() Config {
	return Config{
		MaxOutputSize:  100,
		IoUThreshold:   0.5,
		ScoreThreshold: 0.2,
	}
}

// Validate checks that thresholds are in [0, 1] and the output cap is positive. Every violated
// bound is reported.
func (c Config) Validate() error {
	var err error
	if c.MaxOutputSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("max_output_size must be positive, got %d", c.MaxOutputSize))
	}
	if c.IoUThreshold < 0 || c.IoUThreshold > 1 {
		err = multierr.Append(err, fmt.Errorf("iou_threshold must be in [0, 1], got %v", c.IoUThreshold))
	}
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		err = multierr.Append(err, fmt.Errorf("score_threshold must be in [0, 1], got %v", c.ScoreThreshold))
	}
	return err
}
