// Package capture - Frame sources feeding the detection loop.
package capture

import (
	"context"

	"github.com/nvr-ai/live-detect/images"
	"github.com/pkg/errors"
)

// ErrCaptureUnsupported is returned by Open when the capture device or file cannot be used.
var ErrCaptureUnsupported = errors.New("capture unsupported")

// Source supplies frames to a single consumer with most-recent-frame-wins semantics.
type Source interface {
	// Open starts capturing. It fails with ErrCaptureUnsupported if the device is unavailable.
	Open(ctx context.Context) error
	// Close stops capturing and releases the device.
	Close() error
	// Ready is signalled whenever a new frame is available and closed when the stream ends.
	Ready() <-chan struct{}
	// CurrentFrame returns the newest unconsumed frame. It returns (nil, true) when no new frame is
	// pending and (nil, false) once the stream has ended.
	CurrentFrame() (*images.Frame, bool)
}

// Stats describes the frame flow of a source.
type Stats struct {
	// Published is the number of frames produced by the source.
	Published uint64
	// Consumed is the number of frames handed to the consumer.
	Consumed uint64
	// Dropped is the number of frames overwritten before they were consumed.
	Dropped uint64
}

// StatsReporter is implemented by sources that track their frame flow.
type StatsReporter interface {
	Stats() Stats
}
