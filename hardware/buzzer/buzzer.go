// Package buzzer drives alarm outputs: buzzer and indicator LED,
// both plain GPIO lines switched together.
package buzzer

import (
	"fmt"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/gpio-cdev-go"
)

const ConsumerLabel = "drybox-alarm"

type Buzzer struct {
	mu        sync.Mutex
	chip      gpio.Chiper
	lines     gpio.Lineser
	pinBuzzer uint32
	pinLED    uint32
	setBuzzer gpio.LineSetFunc
	setLED    gpio.LineSetFunc
	on        bool
}

// Open requests both lines as outputs on chip device path, e.g. /dev/gpiochip0.
func Open(chipPath string, pinBuzzer, pinLED uint32) (*Buzzer, error) {
	chip, err := gpio.Open(chipPath, ConsumerLabel)
	if err != nil {
		return nil, errors.Annotatef(err, "gpio open chip=%s", chipPath)
	}
	self, err := NewWithChip(chip, pinBuzzer, pinLED)
	if err != nil {
		_ = chip.Close()
		return nil, err
	}
	return self, nil
}

func NewWithChip(chip gpio.Chiper, pinBuzzer, pinLED uint32) (*Buzzer, error) {
	if pinBuzzer == pinLED {
		return nil, errors.NotValidf("buzzer and led on same line=%d", pinBuzzer)
	}
	lines, err := chip.OpenLines(gpio.GPIOHANDLE_REQUEST_OUTPUT, ConsumerLabel, pinBuzzer, pinLED)
	if err != nil {
		return nil, errors.Annotatef(err, "gpio lines buzzer=%d led=%d", pinBuzzer, pinLED)
	}
	self := &Buzzer{
		chip:      chip,
		lines:     lines,
		pinBuzzer: pinBuzzer,
		pinLED:    pinLED,
		setBuzzer: lines.SetFunc(pinBuzzer),
		setLED:    lines.SetFunc(pinLED),
	}
	// known state after (re)start
	if err := self.Set(false); err != nil {
		_ = lines.Close()
		return nil, err
	}
	return self, nil
}

func (self *Buzzer) String() string {
	self.mu.Lock()
	defer self.mu.Unlock()
	return fmt.Sprintf("Buzzer(buzzer=%d led=%d on=%t)", self.pinBuzzer, self.pinLED, self.on)
}

// Set switches buzzer and LED together. On error the remembered state
// is left unchanged so caller may retry.
func (self *Buzzer) Set(on bool) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	var v byte
	if on {
		v = 1
	}
	self.setBuzzer(v)
	self.setLED(v)
	if err := self.lines.Flush(); err != nil {
		return errors.Annotatef(err, "buzzer set=%t", on)
	}
	self.on = on
	return nil
}

func (self *Buzzer) IsOn() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.on
}

func (self *Buzzer) Close() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	errs := []error{self.lines.Close()}
	if self.chip != nil {
		errs = append(errs, self.chip.Close())
	}
	for _, e := range errs {
		if e != nil {
			return errors.Annotate(e, "buzzer close")
		}
	}
	return nil
}

// Mock records state changes, Err fails Set.
type Mock struct {
	mu      sync.Mutex
	On      bool
	History []bool
	Err     error
}

func (self *Mock) Set(on bool) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.Err != nil {
		return self.Err
	}
	self.On = on
	self.History = append(self.History, on)
	return nil
}

func (self *Mock) IsOn() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.On
}
