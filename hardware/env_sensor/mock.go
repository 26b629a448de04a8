package env_sensor

import (
	"sync"
)

// Mock returns queued results in order, then keeps repeating Default.
type Mock struct {
	mu      sync.Mutex
	Default Sample
	Err     error
	queue   []mockResult
	Calls   int
}

type mockResult struct {
	s   Sample
	err error
}

func NewMock(def Sample) *Mock { return &Mock{Default: def} }

func (self *Mock) Push(s Sample, err error) {
	self.mu.Lock()
	self.queue = append(self.queue, mockResult{s, err})
	self.mu.Unlock()
}

func (self *Mock) Sample() (Sample, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.Calls++
	if len(self.queue) > 0 {
		r := self.queue[0]
		self.queue = self.queue[1:]
		return r.s, r.err
	}
	if self.Err != nil {
		return Sample{}, self.Err
	}
	return self.Default, nil
}

func (self *Mock) Close() error { return nil }
