// Package alarm switches buzzer with hysteresis in time:
// once asserted it stays on for at least onDelay then clears regardless
// of readings, and can not assert again until offDelay passed since clear.
package alarm

import (
	"fmt"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/drybox/internal/sensor"
	"github.com/temoto/drybox/internal/settings"
	"github.com/temoto/drybox/log2"
)

type Output interface {
	Set(on bool) error
}

type Thresholds struct {
	TempLow  float64
	TempHigh float64
	HumiLow  float64
	HumiHigh float64
	OnDelay  time.Duration
	OffDelay time.Duration
}

func ThresholdsFromConfig(c settings.Config) Thresholds {
	return Thresholds{
		TempLow:  c.TempLimitLower,
		TempHigh: c.TempLimitUpper,
		HumiLow:  c.HumiLimitLower,
		HumiHigh: c.HumiLimitUpper,
		OnDelay:  c.BuzzerOnDelay(),
		OffDelay: c.BuzzerOffDelay(),
	}
}

// Breached is true when any value is strictly outside its limits.
func (th Thresholds) Breached(r sensor.Reading) bool {
	return r.Temperature < th.TempLow || r.Temperature > th.TempHigh ||
		r.Humidity < th.HumiLow || r.Humidity > th.HumiHigh
}

type Transition uint8

const (
	TransitionNone Transition = iota
	TransitionAssert
	TransitionClear
)

func (t Transition) String() string {
	switch t {
	case TransitionNone:
		return "none"
	case TransitionAssert:
		return "assert"
	case TransitionClear:
		return "clear"
	}
	return fmt.Sprintf("Transition(%d)", uint8(t))
}

type State struct {
	Asserted       bool
	LastAssertedAt time.Time
	// zero means never cleared, first breach asserts immediately
	LastClearedAt time.Time
}

func (s State) String() string {
	if s.Asserted {
		return fmt.Sprintf("active since %s", s.LastAssertedAt.Format(time.RFC3339))
	}
	return "idle"
}

type Controller struct {
	mu    sync.Mutex
	log   *log2.Log
	out   Output
	state State
}

func NewController(out Output, log *log2.Log) *Controller {
	return &Controller{out: out, log: log}
}

// Evaluate performs at most one transition. When output fails
// state is not changed and error returned, next call retries.
func (self *Controller) Evaluate(now time.Time, r sensor.Reading, th Thresholds) (Transition, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	if self.state.Asserted {
		if now.Sub(self.state.LastAssertedAt) < th.OnDelay {
			return TransitionNone, nil
		}
		if err := self.out.Set(false); err != nil {
			return TransitionNone, errors.Annotate(err, "alarm clear")
		}
		self.state.Asserted = false
		self.state.LastClearedAt = now
		self.log.Infof("alarm cleared after=%v", now.Sub(self.state.LastAssertedAt))
		return TransitionClear, nil
	}

	if !th.Breached(r) {
		return TransitionNone, nil
	}
	if !self.state.LastClearedAt.IsZero() && now.Sub(self.state.LastClearedAt) < th.OffDelay {
		return TransitionNone, nil
	}
	if err := self.out.Set(true); err != nil {
		return TransitionNone, errors.Annotate(err, "alarm assert")
	}
	self.state.Asserted = true
	self.state.LastAssertedAt = now
	self.log.Infof("alarm asserted %s", r.String())
	return TransitionAssert, nil
}

func (self *Controller) State() State {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.state
}
