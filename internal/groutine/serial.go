package groutine

import (
	"context"
	"sync"
)

// Serial runs queued functions one at a time, in order, on the goroutine calling Run.
//
// Push never blocks: the backlog grows as needed. Callers that must not stall
// (an event loop handing work to a slower I/O goroutine) can always hand off.
type Serial struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
}

// NewSerial creates an empty queue.
func NewSerial() *Serial {
	return &Serial{wake: make(chan struct{}, 1)}
}

// Push queues fn. It reports false once Run has returned.
func (s *Serial) Push(fn func()) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, fn)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// Len returns the number of functions waiting to run.
func (s *Serial) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Run executes queued functions until ctx is done. Whatever is still queued is dropped.
func (s *Serial) Run(ctx context.Context) {
	defer s.close()
	for {
		fn, ok := s.pop()
		if !ok {
			select {
			case <-s.wake:
				continue
			case <-ctx.Done():
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		fn()
	}
}

func (s *Serial) pop() (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	fn := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return fn, true
}

func (s *Serial) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.queue = nil
}
