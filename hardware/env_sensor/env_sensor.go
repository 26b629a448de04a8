// Package env_sensor reads ambient temperature and relative humidity
// from physical sensors. Values are raw, calibration is applied by caller.
package env_sensor

import (
	"fmt"

	"github.com/juju/errors"
)

const (
	DriverIIO    = "iio"
	DriverBME280 = "bme280"
	DriverMock   = "mock"
)

type Sample struct {
	Temperature float64 // degC
	Humidity    float64 // %RH
}

func (s Sample) String() string {
	return fmt.Sprintf("temperature=%.2f humidity=%.2f", s.Temperature, s.Humidity)
}

type Sampler interface {
	Sample() (Sample, error)
	Close() error
}

type Config struct {
	Driver string
	// iio
	IIODir   string
	Attempts int
	// bme280
	I2CBus  string
	Address uint16
}

func New(c Config) (Sampler, error) {
	switch c.Driver {
	case DriverIIO, "":
		return NewIIO(c.IIODir, c.Attempts)
	case DriverBME280:
		return NewBME280(c.I2CBus, c.Address)
	case DriverMock:
		return NewMock(Sample{Temperature: 20, Humidity: 5}), nil
	}
	return nil, errors.NotSupportedf("sensor driver=%s", c.Driver)
}
