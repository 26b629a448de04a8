package env_sensor

import (
	"fmt"

	"github.com/juju/errors"
	"github.com/temoto/drybox/helpers"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/devices/bmxx80"
	"periph.io/x/periph/host"
)

const DefaultBME280Address uint16 = 0x76

type BME280 struct {
	bus  i2c.BusCloser
	dev  *bmxx80.Dev
	addr uint16
}

// NewBME280 opens I2C bus by periph name or number, empty means first available.
func NewBME280(busName string, addr uint16) (*BME280, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Annotate(err, "periph host init")
	}
	if addr == 0 {
		addr = DefaultBME280Address
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, errors.Annotatef(err, "i2c open bus=%q", busName)
	}
	dev, err := bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
	if err != nil {
		_ = bus.Close()
		return nil, errors.Annotatef(err, "bme280 addr=0x%02x", addr)
	}
	return &BME280{bus: bus, dev: dev, addr: addr}, nil
}

func (self *BME280) String() string { return fmt.Sprintf("bme280:0x%02x", self.addr) }

func (self *BME280) Sample() (Sample, error) {
	var env physic.Env
	if err := self.dev.Sense(&env); err != nil {
		return Sample{}, errors.Annotate(err, self.String())
	}
	return envSample(env), nil
}

func envSample(env physic.Env) Sample {
	return Sample{
		Temperature: float64(env.Temperature-physic.ZeroCelsius) / float64(physic.Celsius),
		Humidity:    float64(env.Humidity) / float64(physic.PercentRH),
	}
}

func (self *BME280) Close() error {
	return helpers.FoldErrors([]error{self.dev.Halt(), self.bus.Close()})
}
