// Package loop is the device control core: one goroutine, fixed cadence,
// every iteration isolated so a fault in one component never stops the device.
package loop

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/drybox/helpers"
	"github.com/temoto/drybox/internal/alarm"
	"github.com/temoto/drybox/internal/metrics"
	"github.com/temoto/drybox/internal/sensor"
	"github.com/temoto/drybox/internal/settings"
	"github.com/temoto/drybox/internal/tele"
	"github.com/temoto/drybox/log2"
)

const (
	DefaultBaseInterval = 2 * time.Second
	DefaultPollInterval = 1 * time.Second
)

var ErrRestartRequested = errors.New("restart requested")

// Teler is the part of tele.Manager used by loop.
type Teler interface {
	PublishReading(ctx context.Context, r sensor.Reading) error
	Poll() (tele.Inbound, bool)
	Handle(msg tele.Inbound) (tele.Action, error)
	Session() tele.Session
}

type Display interface {
	SetLines(line1, line2 string) error
}

type Options struct {
	Log      *log2.Log
	Settings *settings.Store
	Reader   *sensor.Reader
	Alarm    *alarm.Controller
	Tele     Teler
	Display  Display // optional
	Metrics  *metrics.Metrics

	BaseInterval time.Duration
	PollInterval time.Duration
	Now          func() time.Time
	Sleep        helpers.SleepFunc
	Watchdog     func()
}

type Loop struct {
	opt         Options
	log         *log2.Log
	lastMeasure time.Time
	measured    bool
}

func New(opt Options) *Loop {
	if opt.Settings == nil || opt.Reader == nil || opt.Alarm == nil || opt.Tele == nil {
		panic("code error loop.Options missing Settings, Reader, Alarm or Tele")
	}
	if opt.BaseInterval == 0 {
		opt.BaseInterval = DefaultBaseInterval
	}
	if opt.PollInterval == 0 {
		opt.PollInterval = DefaultPollInterval
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.Sleep == nil {
		opt.Sleep = helpers.SleepContext
	}
	if opt.Watchdog == nil {
		opt.Watchdog = func() { _, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog) }
	}
	return &Loop{opt: opt, log: opt.Log}
}

// Run returns only on ctx cancel or restart request:
// ErrRestartRequested after accepted remote configuration,
// tele.RestartError after broker session loss.
// Session loss gets the same restart as failed Connect because
// auto reconnect is off and lost session never recovers by itself.
func (self *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := self.Step(ctx)
		switch {
		case err == nil:
		case errors.Cause(err) == ErrRestartRequested || tele.IsRestart(err):
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			self.fault(err)
		}
	}
}

// Step runs one iteration. Panic inside is returned as error.
func (self *Loop) Step(ctx context.Context) (err error) {
	defer func() {
		if x := recover(); x != nil {
			err = errors.Errorf("loop panic: %v", x)
			self.log.Debugf("loop panic stack:\n%s", debug.Stack())
		}
	}()

	if err := self.opt.Sleep(ctx, self.opt.BaseInterval); err != nil {
		return err
	}
	now := self.opt.Now()
	config := self.opt.Settings.Config()

	if !self.measured || now.Sub(self.lastMeasure) >= config.MeasureInterval() {
		if err := self.measure(ctx, now, config); err != nil {
			return err
		}
	}

	if r, ok := self.opt.Reader.Last(); ok {
		tr, err := self.opt.Alarm.Evaluate(now, r, alarm.ThresholdsFromConfig(config))
		if err != nil {
			self.fault(err)
		} else if tr != alarm.TransitionNone {
			self.opt.Metrics.Alarm(self.opt.Alarm.State().Asserted, tr.String())
		}
	}

	if err := self.opt.Sleep(ctx, self.opt.PollInterval); err != nil {
		return err
	}
	for {
		msg, ok := self.opt.Tele.Poll()
		if !ok {
			break
		}
		action, err := self.opt.Tele.Handle(msg)
		if err != nil {
			self.fault(err)
			continue
		}
		if action == tele.ActionRestart {
			return errors.Annotatef(ErrRestartRequested, "config topic=%s", msg.Topic)
		}
	}

	self.opt.Watchdog()
	return nil
}

// measure takes sample, publishes and renders it.
// On sensor failure the last valid reading is reported instead,
// nothing is reported until first successful sample.
func (self *Loop) measure(ctx context.Context, now time.Time, config settings.Config) error {
	r, err := self.opt.Reader.Sample(now, sensor.CalibrationFromConfig(config))
	if err != nil {
		self.log.Error(err)
		self.opt.Metrics.SensorFailure()
		var ok bool
		if r, ok = self.opt.Reader.Last(); !ok {
			return nil
		}
		self.log.Infof("measure stale %s", r.String())
	} else {
		self.log.Infof("measure %s", r.String())
		self.opt.Metrics.ObserveReading(r.Temperature, r.Humidity, r.CapturedAt)
	}

	if err := self.opt.Tele.PublishReading(ctx, r); err != nil {
		if !self.opt.Tele.Session().BrokerConnected {
			return tele.RestartError{Err: errors.Annotate(err, "broker session lost")}
		}
		return errors.Annotate(err, "loop publish")
	}
	self.lastMeasure, self.measured = now, true

	if self.opt.Display != nil {
		l1, l2 := Render(r)
		if err := self.opt.Display.SetLines(l1, l2); err != nil {
			return errors.Annotate(err, "loop display")
		}
	}
	return nil
}

func (self *Loop) fault(err error) {
	self.log.Error(errors.ErrorStack(err))
	self.opt.Metrics.LoopFault()
}

// Render formats reading for 16 column display.
func Render(r sensor.Reading) (string, string) {
	return fmt.Sprintf("Temp: %.2f °C", r.Temperature), fmt.Sprintf("Humi: %.2f %%", r.Humidity)
}
