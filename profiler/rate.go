package profiler

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultWindow is the number of cycles a rate is computed over.
const DefaultWindow = 10

// RateMeter computes an effective frame rate once every window ticks.
type RateMeter struct {
	clock  clock.Clock
	window int

	mu    sync.Mutex
	start time.Time
	count int
	last  float64
}

// NewRateMeter creates a meter whose first window starts now.
//
// Arguments:
//   - window: Ticks per measurement. <= 0 uses DefaultWindow.
//   - c: The clock elapsed time is read from. nil uses the wall clock.
func NewRateMeter(window int, c clock.Clock) *RateMeter {
	if window <= 0 {
		window = DefaultWindow
	}
	if c == nil {
		c = clock.New()
	}
	return &RateMeter{clock: c, window: window, start: c.Now()}
}

// Tick counts one completed cycle.
//
// Returns:
//   - float64: The rate over the window that just closed, in ticks per second.
//   - bool: True only on the tick that closes a window.
func (r *RateMeter) Tick() (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.count++
	if r.count < r.window {
		return 0, false
	}

	now := r.clock.Now()
	elapsed := now.Sub(r.start)
	r.start = now
	r.count = 0
	if elapsed <= 0 {
		r.last = 0
		return 0, true
	}
	r.last = float64(r.window) / elapsed.Seconds()
	return r.last, true
}

// Last returns the most recently computed rate, 0 before the first window closes.
func (r *RateMeter) Last() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Reset starts a new window from now.
func (r *RateMeter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.start = r.clock.Now()
	r.count = 0
}
