package capture

import (
	"sync"

	"github.com/nvr-ai/live-detect/images"
)

// Slot is a single-frame mailbox between a producer and one consumer.
//
//   - Publish overwrites an unconsumed frame and counts it as dropped.
//   - Ready is signalled without blocking; a pending signal is never duplicated.
//   - Close ends the stream. A frame published before Close is still delivered.
type Slot struct {
	mu     sync.Mutex
	frame  *images.Frame
	ready  chan struct{}
	closed bool
	seq    uint64
	stats  Stats
}

// NewSlot creates an open, empty slot.
func NewSlot() *Slot {
	return &Slot{ready: make(chan struct{}, 1)}
}

// Publish stores frame as the newest frame. Frames published after Close are discarded.
//
// Arguments:
//   - frame: The frame. Its Seq is assigned by the slot.
func (s *Slot) Publish(frame *images.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.frame != nil {
		s.stats.Dropped++
	}
	s.seq++
	frame.Seq = s.seq
	s.frame = frame
	s.stats.Published++

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Ready returns the channel signalled on Publish and closed by Close.
func (s *Slot) Ready() <-chan struct{} {
	return s.ready
}

// Current takes the pending frame.
//
// Returns:
//   - *images.Frame: The newest unconsumed frame, nil if none is pending.
//   - bool: False once the slot is closed and drained.
func (s *Slot) Current() (*images.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f := s.frame; f != nil {
		s.frame = nil
		s.stats.Consumed++
		return f, true
	}
	return nil, !s.closed
}

// Close ends the stream. It is safe to call more than once.
func (s *Slot) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.ready)
}

// Closed reports whether Close has been called.
func (s *Slot) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Stats returns the frame counters.
func (s *Slot) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
