// Package profiler - Per-stage operation timing and frame rate measurement for the detection loop.
package profiler

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// DefaultMaxSamples is the number of durations kept per operation for the average.
const DefaultMaxSamples = 600

// Operation is a snapshot of the timings recorded for one named operation.
type Operation struct {
	Name  string
	Count int64
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
	// Avg is the mean over the retained samples, not over the whole lifetime.
	Avg time.Duration
}

// timeTracker tracks timing statistics for one operation.
type timeTracker struct {
	durations []time.Duration
	window    time.Duration
	total     time.Duration
	min       time.Duration
	max       time.Duration
	count     int64
}

// Profiler records how long the named stages of a cycle take.
//
// It is safe for concurrent use. The zero value is not usable; create one with New.
type Profiler struct {
	clock      clock.Clock
	maxSamples int

	mu         sync.Mutex
	operations map[string]*timeTracker
}

// New creates a profiler.
//
// Arguments:
//   - c: The clock durations are measured with. nil uses the wall clock.
//   - maxSamples: Samples retained per operation for averaging. <= 0 uses DefaultMaxSamples.
//
// Returns:
//   - *Profiler: The profiler.
func New(c clock.Clock, maxSamples int) *Profiler {
	if c == nil {
		c = clock.New()
	}
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &Profiler{
		clock:      c,
		maxSamples: maxSamples,
		operations: make(map[string]*timeTracker),
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
//   - name: The name of the operation to track.
//
// Returns:
//   - func(): Call when the operation completes.
func (p *Profiler) StartOperation(name string) func() {
	start := p.clock.Now()
	return func() {
		p.Record(name, p.clock.Since(start))
	}
}

// Record adds one duration for the named operation.
func (p *Profiler) Record(name string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.operations[name]
	if !ok {
		t = &timeTracker{min: d, max: d}
		p.operations[name] = t
	}

	t.durations = append(t.durations, d)
	t.window += d
	if len(t.durations) > p.maxSamples {
		t.window -= t.durations[0]
		t.durations = t.durations[1:]
	}

	t.total += d
	t.count++
	if d < t.min {
		t.min = d
	}
	if d > t.max {
		t.max = d
	}
}

// Operations returns a snapshot of every operation, sorted by name.
func (p *Profiler) Operations() []Operation {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Operation, 0, len(p.operations))
	for name, t := range p.operations {
		op := Operation{Name: name, Count: t.count, Total: t.total, Min: t.min, Max: t.max}
		if n := len(t.durations); n > 0 {
			op.Avg = t.window / time.Duration(n)
		}
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Fields renders the snapshot as log fields, one per operation.
func (p *Profiler) Fields() []zap.Field {
	ops := p.Operations()
	fields := make([]zap.Field, 0, len(ops))
	for _, op := range ops {
		fields = append(fields, zap.Dict(op.Name,
			zap.Int64("count", op.Count),
			zap.Duration("avg", op.Avg),
			zap.Duration("min", op.Min),
			zap.Duration("max", op.Max),
		))
	}
	return fields
}
