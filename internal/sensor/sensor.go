// Package sensor applies calibration to physical samples and keeps
// the most recent valid reading.
package sensor

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/drybox/hardware/env_sensor"
	"github.com/temoto/drybox/internal/settings"
)

type Reading struct {
	DeviceID    string
	Temperature float64
	Humidity    float64
	CapturedAt  time.Time
}

func (r Reading) String() string {
	return fmt.Sprintf("device=%s temperature=%.2f°C humidity=%.2f%% at=%s",
		r.DeviceID, r.Temperature, r.Humidity, r.CapturedAt.Format(time.RFC3339))
}

type Calibration struct {
	DeviceID   string
	TempOffset float64
	HumiOffset float64
}

func CalibrationFromConfig(c settings.Config) Calibration {
	return Calibration{
		DeviceID:   c.MqttClient,
		TempOffset: c.TempSetting,
		HumiOffset: c.HumiSetting,
	}
}

// ReadFailure means physical measurement failed, cached reading is intact.
type ReadFailure struct{ Err error }

func (r ReadFailure) Error() string { return "sensor read: " + r.Err.Error() }
func (r ReadFailure) Unwrap() error { return r.Err }

func IsReadFailure(err error) bool {
	if err == nil {
		return false
	}
	_, ok := errors.Cause(err).(ReadFailure)
	return ok
}

type Reader struct {
	mu      sync.Mutex
	sampler env_sensor.Sampler
	last    Reading
	valid   bool
}

func NewReader(sampler env_sensor.Sampler) *Reader {
	return &Reader{sampler: sampler}
}

// Sample takes one physical measurement, applies calibration and rounding.
// On failure previous reading stays available via Last.
func (self *Reader) Sample(now time.Time, cal Calibration) (Reading, error) {
	s, err := self.sampler.Sample()
	if err != nil {
		return Reading{}, errors.Trace(ReadFailure{Err: err})
	}
	if math.IsNaN(s.Temperature) || math.IsNaN(s.Humidity) {
		return Reading{}, errors.Trace(ReadFailure{Err: errors.NotValidf("sample %s", s.String())})
	}
	r := Reading{
		DeviceID:    cal.DeviceID,
		Temperature: Round2(s.Temperature + cal.TempOffset),
		Humidity:    Round2(s.Humidity + cal.HumiOffset),
		CapturedAt:  now,
	}

	self.mu.Lock()
	self.last, self.valid = r, true
	self.mu.Unlock()
	return r, nil
}

func (self *Reader) Last() (Reading, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.last, self.valid
}

func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}
