// Sorry, workaround to import cycles.
package state_new

import (
	"context"
	"os"
	"testing"

	"github.com/temoto/alive/v2"
	"github.com/temoto/drybox/hardware/buzzer"
	"github.com/temoto/drybox/hardware/env_sensor"
	"github.com/temoto/drybox/hardware/link"
	"github.com/temoto/drybox/hardware/text_display"
	"github.com/temoto/drybox/internal/settings"
	"github.com/temoto/drybox/internal/state"
	"github.com/temoto/drybox/log2"
)

func NewContext(log *log2.Log) (context.Context, *state.Global) {
	if log == nil {
		panic("code error NewContext() log=nil")
	}

	g := &state.Global{
		Alive: alive.NewAlive(),
		Log:   log,
	}
	ctx := context.Background()
	ctx = context.WithValue(ctx, log2.ContextKey, log)
	ctx = context.WithValue(ctx, state.ContextKey, g)

	return ctx, g
}

// Mocks gives tests access to simulated hardware and storage.
type Mocks struct {
	Display *text_display.MockDevicer
	Sensor  *env_sensor.Mock
	Alarm   *buzzer.Mock
	Link    *link.Mock
	Storage *settings.MemoryStorage
}

func NewTestContext(t testing.TB, buildVersion string, confString string) (context.Context, *state.Global, *Mocks) {
	fs := state.NewMockFullReader(map[string]string{
		"test-inline": confString,
	})

	var log *log2.Log
	if os.Getenv("drybox_test_log_stderr") == "1" {
		log = log2.NewStderr(log2.LDebug) // useful with panics
	} else {
		log = log2.NewTest(t, log2.LDebug)
	}
	log.SetFlags(log2.LTestFlags)
	ctx, g := NewContext(log)
	g.BuildVersion = buildVersion

	mocks := &Mocks{
		Sensor: env_sensor.NewMock(env_sensor.Sample{Temperature: 20, Humidity: 5}),
		Alarm:  &buzzer.Mock{},
		Link:   link.NewMock("b8:27:eb:00:00:01", 0),
	}
	g.Settings, mocks.Storage = settings.NewMemory(log)
	g.Hardware.LCD.Display, mocks.Display = text_display.NewMockTextDisplay(&text_display.TextDisplayConfig{Width: 16, Log: log})
	g.Hardware.Sensor.Sampler = mocks.Sensor
	g.Hardware.Alarm.Output = mocks.Alarm
	g.Hardware.Link.Linker = mocks.Link

	config, err := state.ReadConfig(log, fs, "test-inline")
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Init(ctx, config); err != nil {
		t.Fatal(err)
	}
	return ctx, g, mocks
}
