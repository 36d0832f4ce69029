package watch

import "sync"

// Stop is the process-wide termination signal. It fires once and never
// resets; every session and the runner observe the same instance.
type Stop struct {
	once sync.Once
	ch   chan struct{}
}

func NewStop() *Stop {
	return &Stop{ch: make(chan struct{})}
}

// Trip fires the signal. Safe to call from any goroutine, any number of
// times.
func (s *Stop) Trip() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		close(s.ch)
	})
}

// Done returns a channel closed once the signal has fired.
func (s *Stop) Done() <-chan struct{} {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Stop) Fired() bool {
	if s == nil {
		return false
	}
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}
