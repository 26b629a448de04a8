package env_sensor

import (
	"io/ioutil"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
)

// Linux dht11 IIO driver (DHT11, DHT22/AM2302) exposes milli-units.
const (
	iioTempFile = "in_temp_input"
	iioHumiFile = "in_humidityrelative_input"

	DefaultIIODir = "/sys/bus/iio/devices/iio:device0"
)

// DHT transfers fail often with EIO, driver rejects reads faster than 2s apart.
const iioRetryDelay = 2100 * time.Millisecond

type IIO struct {
	dir      string
	attempts int
	sleep    func(time.Duration)
}

func NewIIO(dir string, attempts int) (*IIO, error) {
	if dir == "" {
		dir = DefaultIIODir
	}
	if attempts <= 0 {
		attempts = 1
	}
	return &IIO{dir: dir, attempts: attempts, sleep: time.Sleep}, nil
}

func (self *IIO) String() string { return "iio:" + self.dir }

func (self *IIO) Sample() (Sample, error) {
	var err error
	for i := 0; i < self.attempts; i++ {
		if i > 0 {
			self.sleep(iioRetryDelay)
		}
		var s Sample
		if s, err = self.read(); err == nil {
			return s, nil
		}
	}
	return Sample{}, errors.Annotatef(err, "%s attempts=%d", self.String(), self.attempts)
}

func (self *IIO) read() (Sample, error) {
	t, err := readMilli(filepath.Join(self.dir, iioTempFile))
	if err != nil {
		return Sample{}, err
	}
	h, err := readMilli(filepath.Join(self.dir, iioHumiFile))
	if err != nil {
		return Sample{}, err
	}
	return Sample{Temperature: t, Humidity: h}, nil
}

func (self *IIO) Close() error { return nil }

func readMilli(path string) (float64, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return 0, errors.Trace(err)
	}
	s := strings.TrimSpace(string(b))
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, errors.Annotatef(err, "parse %s", path)
	}
	return float64(v) / 1000, nil
}
