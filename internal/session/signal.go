package session

import "sync"

// Signal is the process-wide "a response is being generated" flag. Only
// the Controller that owns it can change it; everyone else reads or
// subscribes.
type Signal struct {
	mu    sync.RWMutex
	value bool
	subs  []func(bool)
}

func newSignal() *Signal {
	return &Signal{}
}

// Get returns the current value.
func (s *Signal) Get() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Subscribe registers fn to be called on every change. fn runs
// synchronously and must not block.
func (s *Signal) Subscribe(fn func(bool)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

func (s *Signal) set(v bool) {
	s.mu.Lock()
	if s.value == v {
		s.mu.Unlock()
		return
	}
	s.value = v
	subs := s.subs
	s.mu.Unlock()

	for _, fn := range subs {
		fn(v)
	}
}
