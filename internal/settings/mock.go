package settings

import (
	"sync"

	"github.com/temoto/drybox/log2"
)

// MemoryStorage is Storage for tests.
type MemoryStorage struct {
	sync.Mutex
	Data     []byte
	ReadErr  error
	WriteErr error
	Writes   int
}

func (m *MemoryStorage) Read() ([]byte, error) {
	m.Lock()
	defer m.Unlock()
	if m.Data == nil {
		return nil, m.ReadErr
	}
	return append([]byte(nil), m.Data...), m.ReadErr
}

func (m *MemoryStorage) Write(b []byte) (int, error) {
	m.Lock()
	defer m.Unlock()
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}
	m.Writes++
	m.Data = append([]byte(nil), b...)
	return len(b), nil
}

// NewMemory returns loaded store with default record.
func NewMemory(log *log2.Log) (*Store, *MemoryStorage) {
	storage := &MemoryStorage{}
	s := New(storage, log)
	if _, err := s.Load(); err != nil {
		panic("code error settings.NewMemory: " + err.Error())
	}
	return s, storage
}
