package text_display

import (
	"fmt"
	"sync"
)

func NewMockTextDisplay(opt *TextDisplayConfig) (*TextDisplay, *MockDevicer) {
	dev := new(MockDevicer)
	display, err := NewTextDisplay(opt)
	if err != nil {
		// t.Fatal(err)
		panic(err)
	}
	display.dev = dev
	return display, dev
}

// MockDevicer keeps last written bytes per row.
type MockDevicer struct {
	mu     sync.Mutex
	lines  [2][]byte
	row    int
	Clears int
	Err    error
}

func (self *MockDevicer) Clear() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.Clears++
	self.lines[0], self.lines[1] = nil, nil
	return self.Err
}

func (self *MockDevicer) MoveTo(col, row int) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.row = row
	return self.Err
}

func (self *MockDevicer) Write(b []byte) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.Err != nil {
		return self.Err
	}
	if self.row >= 0 && self.row < len(self.lines) {
		self.lines[self.row] = append([]byte(nil), b...)
	}
	return nil
}

func (self *MockDevicer) Line(row int) string {
	self.mu.Lock()
	defer self.mu.Unlock()
	return string(self.lines[row])
}

func (self *MockDevicer) String() string {
	self.mu.Lock()
	defer self.mu.Unlock()
	return fmt.Sprintf("%s\n%s", self.lines[0], self.lines[1])
}
