package state

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/drybox/helpers"
	"github.com/temoto/drybox/internal/metrics"
	"github.com/temoto/drybox/internal/settings"
	"github.com/temoto/drybox/internal/tele"
	"github.com/temoto/drybox/log2"
)

type Global struct {
	Alive        *alive.Alive
	BuildVersion string
	Config       *Config
	Hardware     hardware // hardware.go
	Log          *log2.Log
	Metrics      *metrics.Metrics
	Settings     *settings.Store
	Tele         *tele.Manager
}

const ContextKey = "run/state-global"

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// If `Init` fails, consider `Global` is in broken state.
// Display problems are logged only, device works without it.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	g.Config = cfg
	g.Log.Infof("build version=%s", g.BuildVersion)

	if g.Config.Persist.Root == "" {
		g.Config.Persist.Root = DefaultPersistRoot
		g.Log.Errorf("config: persist.root=empty changed=%s", g.Config.Persist.Root)
	}
	g.Log.Debugf("config: persist.root=%s", g.Config.Persist.Root)

	if g.Config.Metrics.Listen != "" && g.Metrics == nil {
		g.Metrics = metrics.New()
		go func() {
			err := g.Metrics.Serve(ctx, g.Config.Metrics.Listen, g.Log)
			g.Error(err, "metrics listen=%s", g.Config.Metrics.Listen)
		}()
	}

	errs := make([]error, 0, 4)
	g.initSettings()
	if _, err := g.TextDisplay(); err != nil {
		g.Error(err, "display init")
	}
	if _, err := g.Sensor(); err != nil {
		errs = append(errs, err)
	}
	if _, err := g.AlarmOutput(); err != nil {
		errs = append(errs, err)
	}
	linker, err := g.Link()
	if err != nil {
		errs = append(errs, err)
	}
	if err := helpers.FoldErrors(errs); err != nil {
		return err
	}

	if g.Tele == nil {
		opt := tele.Options{
			Log:      g.Log,
			Link:     linker,
			Settings: g.Settings,
			Metrics:  g.Metrics,
		}
		if d, _ := g.TextDisplay(); d != nil {
			opt.Display = d
		}
		g.Tele = tele.NewManager(opt)
	}
	return nil
}

// Storage failure is not fatal, Load keeps defaults in memory.
func (g *Global) initSettings() {
	if g.Settings == nil {
		root := g.Config.Persist.Root
		g.Settings = settings.NewFile(root, g.Log)
	}
	c, err := g.Settings.Load()
	g.Error(err, "settings load")
	for _, line := range c.Banner() {
		g.Log.Info(line)
	}
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Fatal(err)
	}
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Error(err)
	}
}

func (g *Global) Fatal(err error, args ...interface{}) {
	if err != nil {
		g.Error(err, args...)
		g.StopWait(5 * time.Second)
		g.Log.Fatal(errors.ErrorStack(err))
		os.Exit(1)
	}
}

func (g *Global) Stop() {
	g.Alive.Stop()
}

func (g *Global) StopWait(timeout time.Duration) bool {
	g.Alive.Stop()
	select {
	case <-g.Alive.WaitChan():
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close releases hardware, MQTT session and display.
func (g *Global) Close() error {
	if g.Tele != nil {
		g.Tele.Close()
	}
	return g.closeHardware()
}
