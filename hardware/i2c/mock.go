package i2c

import (
	"sync"

	"github.com/juju/errors"
)

// MockBus records every write. After FailAfter successful writes
// (when FailAfter > 0) all writes return Err.
type MockBus struct {
	sync.Mutex
	Writes    [][]byte
	Addrs     []byte
	FailAfter int
	Err       error
}

var _ I2CBus = &MockBus{}

func NewMockBus() *MockBus { return &MockBus{} }

func (m *MockBus) Init() error  { return nil }
func (m *MockBus) Close() error { return nil }

func (m *MockBus) Write(addr byte, bw []byte) error {
	return m.Tx(addr, bw, nil)
}

func (m *MockBus) Tx(addr byte, bw []byte, br []byte) error {
	m.Lock()
	defer m.Unlock()
	if m.Err != nil && len(m.Writes) >= m.FailAfter {
		return errors.Annotatef(m.Err, "mock i2c addr=0x%02x", addr)
	}
	m.Writes = append(m.Writes, append([]byte(nil), bw...))
	m.Addrs = append(m.Addrs, addr)
	return nil
}

// Bytes returns all written bytes flattened, one byte per Write
// for PCF8574 style single byte writes.
func (m *MockBus) Bytes() []byte {
	m.Lock()
	defer m.Unlock()
	out := make([]byte, 0, len(m.Writes))
	for _, w := range m.Writes {
		out = append(out, w...)
	}
	return out
}

func (m *MockBus) Reset() {
	m.Lock()
	defer m.Unlock()
	m.Writes = nil
	m.Addrs = nil
}
