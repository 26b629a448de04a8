// Package settings keeps remotely tunable device configuration record.
// Record is persisted as JSON object with fixed set of canonical keys,
// unknown keys are preserved but not interpreted.
package settings

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/drybox/log2"
	"github.com/temoto/extremofile"
)

const StorageTag = "settings"

type Storage interface {
	Read() ([]byte, error)
	io.Writer
}

type Store struct {
	mu      sync.Mutex
	log     *log2.Log
	storage Storage
	raw     map[string]interface{}
	config  Config
	size    int
}

func New(storage Storage, log *log2.Log) *Store {
	return &Store{
		log:     log,
		storage: storage,
		raw:     Defaults(),
		config:  DefaultConfig(),
	}
}

// NewFile stores record under <root>/settings with main and backup copies.
func NewFile(root string, log *log2.Log) *Store {
	storage := extremofile.New(extremofile.Config{
		Dir:      filepath.Join(root, StorageTag),
		DirPerm:  0755,
		FilePerm: 0644,
	})
	return New(storage, log)
}

// Load reads persisted record. Absent, unreadable, corrupt or incomplete
// storage is replaced with defaults. Returned Config is always usable,
// error only reports that defaults could not be written.
func (self *Store) Load() (Config, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	tbegin := time.Now()
	b, err := self.storage.Read()
	self.log.Debugf("settings storage.read duration=%v", time.Since(tbegin))
	if err != nil {
		if extremofile.IsCritical(err) || b == nil {
			self.log.Errorf("settings read err=%v", err)
		} else {
			self.log.Infof("settings ignore non-critical storage err=%v", err)
		}
	}
	if len(b) > self.size {
		self.size = len(b)
	}
	if b != nil {
		raw, config, err := parse(b)
		if err == nil {
			self.raw, self.config = raw, config
			return config, nil
		}
		self.log.Errorf("settings invalid, using defaults err=%v", err)
	} else {
		self.log.Infof("settings not found, using defaults")
	}

	self.raw, self.config = Defaults(), DefaultConfig()
	if err := self.write(self.raw); err != nil {
		return self.config, errors.Annotate(err, "settings write defaults")
	}
	return self.config, nil
}

func parse(b []byte) (map[string]interface{}, Config, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, Config{}, errors.Annotate(err, "json")
	}
	if raw == nil {
		return nil, Config{}, errors.NotValidf("settings null")
	}
	config, err := Decode(raw)
	if err != nil {
		return nil, Config{}, err
	}
	return raw, config, nil
}

func (self *Store) write(raw map[string]interface{}) error {
	b, err := json.MarshalIndent(raw, "", "    ")
	if err != nil {
		return errors.Annotate(err, "json")
	}
	// extremofile rewrites files in place without truncate,
	// payload must never shrink or stale tail breaks checksum
	if len(b) < self.size {
		b = append(b, bytes.Repeat([]byte{' '}, self.size-len(b))...)
	}
	tbegin := time.Now()
	_, err = self.storage.Write(b)
	self.log.Debugf("settings storage.write duration=%v", time.Since(tbegin))
	if err != nil {
		return errors.Trace(err)
	}
	self.size = len(b)
	return nil
}

// Update merges partial into record, last writer wins. Empty partial is no-op.
// Whole merged record is persisted before it becomes current, so failed
// write leaves previous record in effect. Values of wrong type for
// canonical keys are rejected. Value ranges are not validated.
func (self *Store) Update(partial map[string]interface{}) (Config, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	if len(partial) == 0 {
		return self.config, nil
	}
	merged := copyMap(self.raw)
	for k, v := range partial {
		merged[k] = deepCopy(v)
	}
	config, err := Decode(merged)
	if err != nil {
		return self.config, errors.Annotate(err, "settings update")
	}
	if err := self.write(merged); err != nil {
		return self.config, errors.Annotate(err, "settings update")
	}
	self.raw, self.config = merged, config
	self.log.Debugf("settings updated keys=%d %s", len(partial), config.String())
	return config, nil
}

// UpdateJSON decodes object payload and applies Update.
// Payload that is not JSON object is ignored.
func (self *Store) UpdateJSON(payload []byte) (Config, error) {
	var partial map[string]interface{}
	if err := json.Unmarshal(payload, &partial); err != nil {
		self.log.Debugf("settings ignore non-object payload err=%v", err)
		return self.Config(), nil
	}
	return self.Update(partial)
}

func (self *Store) Config() Config {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.config
}

// Raw returns deep copy of whole record including unknown keys.
func (self *Store) Raw() map[string]interface{} {
	self.mu.Lock()
	defer self.mu.Unlock()
	return copyMap(self.raw)
}
