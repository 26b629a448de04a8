package state

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/drybox/hardware/buzzer"
	"github.com/temoto/drybox/hardware/env_sensor"
	"github.com/temoto/drybox/hardware/i2c"
	"github.com/temoto/drybox/hardware/lcd"
	"github.com/temoto/drybox/hardware/link"
	"github.com/temoto/drybox/hardware/text_display"
	"github.com/temoto/drybox/helpers"
	"github.com/temoto/drybox/internal/alarm"
	"github.com/temoto/drybox/log2"
)

const (
	LinkDriverWireless = "wireless"
	LinkDriverMock     = "mock"

	defaultMockMAC = "02:00:00:00:00:01"
)

type hardware struct {
	I2C struct {
		once
		Bus i2c.I2CBus
	}
	LCD struct {
		once
		Device  *lcd.LCD
		Display *text_display.TextDisplay
	}
	Sensor struct {
		once
		Sampler env_sensor.Sampler
	}
	Alarm struct {
		once
		Output alarm.Output
	}
	Link struct {
		once
		Linker link.Linker
	}
}

func (g *Global) I2CBus() (i2c.I2CBus, error) {
	x := &g.Hardware.I2C
	_ = x.do(func() error {
		if x.Bus != nil { // state-new testing mode
			return nil
		}
		bus := i2c.NewI2CBus(byte(g.Config.Hardware.I2CBus))
		if err := bus.Init(); err != nil {
			return errors.Annotatef(err, "config: hardware.i2c_bus=%d", g.Config.Hardware.I2CBus)
		}
		x.Bus = bus
		return nil
	})
	return x.Bus, x.err
}

// TextDisplay returns nil,nil when display is disabled in config.
func (g *Global) TextDisplay() (*text_display.TextDisplay, error) {
	x := &g.Hardware.LCD
	_ = x.do(func() error {
		if x.Display != nil { // state-new testing mode
			return nil
		}

		devConfig := &g.Config.Hardware.LCD
		if !devConfig.Enable {
			g.Log.Infof("text display is disabled")
			return nil
		}

		bus, err := g.I2CBus()
		if err != nil {
			return errors.Annotate(err, "text display")
		}
		addr := devConfig.Address
		if addr == 0 {
			addr = DefaultLCDAddress
		}
		rows, cols := devConfig.Rows, devConfig.Columns
		if rows == 0 {
			rows = 2
		}
		if cols == 0 {
			cols = 16
		}
		dev, err := lcd.New(bus, byte(addr), rows, cols)
		if err != nil {
			return errors.Annotatef(err, "lcd config=%#v", *devConfig)
		}
		x.Device = dev

		displayConfig := &text_display.TextDisplayConfig{
			Width:       uint32(cols),
			Codepage:    devConfig.Codepage,
			ScrollDelay: time.Duration(devConfig.ScrollDelay) * time.Millisecond,
			Log:         g.Log,
		}
		disp, err := text_display.NewTextDisplay(displayConfig)
		if err != nil {
			return errors.Annotatef(err, "NewTextDisplay config=%#v", displayConfig)
		}
		disp.SetDevice(dev)
		x.Display = disp
		go x.Display.Run()
		g.Log.Infof("text display %s", dev.String())
		return nil
	})
	return x.Display, x.err
}

func (g *Global) Sensor() (env_sensor.Sampler, error) {
	x := &g.Hardware.Sensor
	_ = x.do(func() error {
		if x.Sampler != nil { // state-new testing mode
			return nil
		}
		devConfig := &g.Config.Hardware.Sensor
		s, err := env_sensor.New(env_sensor.Config{
			Driver:   devConfig.Driver,
			IIODir:   devConfig.IIODir,
			Attempts: devConfig.Attempts,
			I2CBus:   devConfig.I2CBus,
			Address:  uint16(devConfig.Address),
		})
		if err != nil {
			return errors.Annotatef(err, "config: hardware.sensor=%#v", *devConfig)
		}
		x.Sampler = s
		return nil
	})
	return x.Sampler, x.err
}

// AlarmOutput is buzzer+LED pair. Without pin_chip outputs are simulated
// and state changes are only logged.
func (g *Global) AlarmOutput() (alarm.Output, error) {
	x := &g.Hardware.Alarm
	_ = x.do(func() error {
		if x.Output != nil { // state-new testing mode
			return nil
		}
		devConfig := &g.Config.Hardware.Alarm
		if devConfig.PinChip == "" {
			g.Log.Infof("alarm output pin_chip is empty, using simulated buzzer")
			x.Output = &logOutput{log: g.Log, Mock: &buzzer.Mock{}}
			return nil
		}
		b, err := buzzer.Open(devConfig.PinChip, uint32(devConfig.BuzzerPin), uint32(devConfig.LEDPin))
		if err != nil {
			return errors.Annotatef(err, "config: hardware.alarm=%#v", *devConfig)
		}
		g.Log.Infof("alarm output %s", b.String())
		x.Output = b
		return nil
	})
	return x.Output, x.err
}

func (g *Global) Link() (link.Linker, error) {
	x := &g.Hardware.Link
	_ = x.do(func() error {
		if x.Linker != nil { // state-new testing mode
			return nil
		}
		devConfig := &g.Config.Hardware.Link
		switch devConfig.Driver {
		case "", LinkDriverWireless:
			x.Linker = link.NewWireless(devConfig.Interface, devConfig.WpaCli)
		case LinkDriverMock:
			mac := devConfig.MockMAC
			if mac == "" {
				mac = defaultMockMAC
			}
			m, err := newMockLink(mac)
			if err != nil {
				return errors.Annotatef(err, "config: hardware.link.mock_mac=%s", mac)
			}
			x.Linker = m
		default:
			return errors.NotSupportedf("config: hardware.link.driver=%s valid: wireless, mock", devConfig.Driver)
		}
		return nil
	})
	return x.Linker, x.err
}

func newMockLink(mac string) (*link.Mock, error) {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &link.Mock{MAC: hw}, nil
}

func (g *Global) closeHardware() error {
	errs := make([]error, 0, 4)
	if d := g.Hardware.LCD.Display; d != nil {
		d.Stop()
	}
	if s := g.Hardware.Sensor.Sampler; s != nil {
		errs = append(errs, errors.Annotate(s.Close(), "sensor close"))
	}
	if out := g.Hardware.Alarm.Output; out != nil {
		errs = append(errs, errors.Annotate(out.Set(false), "alarm off"))
		if b, ok := out.(*buzzer.Buzzer); ok {
			errs = append(errs, errors.Annotate(b.Close(), "alarm close"))
		}
	}
	if bus := g.Hardware.I2C.Bus; bus != nil {
		errs = append(errs, errors.Annotate(bus.Close(), "i2c close"))
	}
	return helpers.FoldErrors(errs)
}

type logOutput struct {
	*buzzer.Mock
	log *log2.Log
}

func (self *logOutput) Set(on bool) error {
	self.log.Infof("alarm output (simulated) on=%t", on)
	return self.Mock.Set(on)
}

type once struct {
	sync.Mutex
	called uint32 // atomic bool
	err    error
}

func (o *once) done() bool {
	return atomic.LoadUint32(&o.called) == 1
}

func (o *once) do(f func() error) error {
	if o.done() { // fast path
		return o.err
	}
	o.Lock()
	defer o.Unlock()
	if o.done() {
		return o.err
	}
	o.err = f()
	atomic.StoreUint32(&o.called, 1)
	return o.err
}
