package inference

import (
	"sync"

	"go.uber.org/multierr"
)

// Scope owns every buffer created during one processing cycle.
//
// Close releases the tracked resources in reverse order of acquisition. Anything tracked after
// Close is released immediately, so nothing can outlive the cycle that created it.
type Scope struct {
	mu     sync.Mutex
	items  []Releaser
	closed bool
}

// NewScope returns an empty scope.
func NewScope() *Scope {
	return &Scope{}
}

// Track hands ownership of r to the scope.
func (s *Scope) Track(r Releaser) {
	if r == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = r.Release()
		return
	}
	s.items = append(s.items, r)
	s.mu.Unlock()
}

// Tensor tracks t and returns it, for use in assignments.
func (s *Scope) Tensor(t *Tensor) *Tensor {
	if t != nil {
		s.Track(t)
	}
	return t
}

// Len returns the number of resources currently owned by the scope.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Close releases everything tracked by the scope.
//
// Returns:
//   - error: The combined release errors, nil if all releases succeeded.
func (s *Scope) Close() error {
	s.mu.Lock()
	items := s.items
	s.items = nil
	s.closed = true
	s.mu.Unlock()

	var err error
	for i := len(items) - 1; i >= 0; i-- {
		err = multierr.Append(err, items[i].Release())
	}
	return err
}
