// Package run is the device service: link up, broker session, main loop,
// restart on request.
package run

import (
	"context"
	"os"
	"sync"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/drybox/cmd/drybox/subcmd"
	"github.com/temoto/drybox/helpers"
	"github.com/temoto/drybox/internal/alarm"
	"github.com/temoto/drybox/internal/loop"
	"github.com/temoto/drybox/internal/restart"
	"github.com/temoto/drybox/internal/sensor"
	"github.com/temoto/drybox/internal/state"
	"github.com/temoto/drybox/internal/tele"
	"github.com/temoto/drybox/log2"
)

var Mod = subcmd.Mod{Name: "run", Usage: "device service (default)", Main: Main}

func Main(ctx context.Context, config *state.Config, args []string) error {
	g := state.GetGlobal(ctx)
	tele.SetLibraryLog(g.Log.Clone(log2.LInfo))
	g.MustInit(ctx, config)
	g.Log.Debugf("config=%s", g.Config.String())

	var closeOnce sync.Once
	closeAll := func() {
		closeOnce.Do(func() { g.Error(g.Close(), "close") })
	}
	defer closeAll()
	rs := restart.New(g.Config.Restart.Mode, g.Log, os.Exit)

	id, err := g.Tele.LinkUp(ctx)
	if err != nil {
		return stopped(ctx, g, errors.Annotate(err, "link up"))
	}
	g.Log.Infof("device link id=%s", id)

	if err := g.Tele.Connect(ctx); err != nil {
		return stopped(ctx, g, restartAfter(ctx, g, rs, closeAll, err))
	}

	l, err := newLoop(g)
	if err != nil {
		return err
	}
	subcmd.SdNotify(daemon.SdNotifyReady)
	g.Log.Infof("drybox init complete, running")

	err = l.Run(ctx)
	return stopped(ctx, g, restartAfter(ctx, g, rs, closeAll, err))
}

func newLoop(g *state.Global) (*loop.Loop, error) {
	sampler, err := g.Sensor()
	if err != nil {
		return nil, err
	}
	out, err := g.AlarmOutput()
	if err != nil {
		return nil, err
	}
	opt := loop.Options{
		Log:          g.Log,
		Settings:     g.Settings,
		Reader:       sensor.NewReader(sampler),
		Alarm:        alarm.NewController(out, g.Log),
		Tele:         g.Tele,
		Metrics:      g.Metrics,
		BaseInterval: g.Config.BaseInterval(),
		PollInterval: g.Config.PollInterval(),
	}
	if d, _ := g.TextDisplay(); d != nil {
		opt.Display = d
	}
	return loop.New(opt), nil
}

// restartAfter shows reason, pauses, releases hardware then restarts.
// Returns only when ctx is cancelled or reboot failed.
func restartAfter(ctx context.Context, g *state.Global, rs *restart.Restarter, closeAll func(), reason error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	g.Log.Error(errors.ErrorStack(reason))
	if d, _ := g.TextDisplay(); d != nil {
		g.Error(d.SetLines("Reiniciando . . .", ""), "display")
	}
	if err := helpers.SleepContext(ctx, g.Config.RestartPause()); err != nil {
		return err
	}
	closeAll()
	return rs.Restart(reason)
}

// stopped treats ctx cancel as normal service stop.
func stopped(ctx context.Context, g *state.Global, err error) error {
	if ctx.Err() != nil {
		g.Log.Infof("drybox stopping")
		subcmd.SdNotify(daemon.SdNotifyStopping)
		return nil
	}
	return err
}
