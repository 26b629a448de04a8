package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
	"github.com/temoto/drybox/cmd/drybox/lcd"
	"github.com/temoto/drybox/cmd/drybox/run"
	"github.com/temoto/drybox/cmd/drybox/settings"
	"github.com/temoto/drybox/cmd/drybox/subcmd"
	"github.com/temoto/drybox/internal/state"
	state_new "github.com/temoto/drybox/internal/state/new"
	"github.com/temoto/drybox/log2"
)

var log = log2.NewStderr(log2.LDebug)

// set with -ldflags "-X main.BuildVersion=..."
var BuildVersion string = "unknown"

var modules = []subcmd.Mod{
	run.Mod,
	lcd.Mod,
	settings.Mod,
}

func main() {
	flagConfig := flag.String("config", "drybox.hcl", "service config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config drybox.hcl] [command [args]]\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprint(flag.CommandLine.Output(), subcmd.Usage(modules))
	}
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = run.Mod.Name
	}
	mod, err := subcmd.Parse(command, modules)
	if err != nil {
		flag.Usage()
		log.Fatal(err)
	}

	if subcmd.SdNotify("start") {
		// we're under systemd, assume systemd journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	} else if isatty.IsTerminal(os.Stderr.Fd()) {
		log.SetFlags(log2.LInteractiveFlags)
	}

	config := state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)
	if !config.LogDebug {
		log.SetLevel(log2.LInfo)
	}

	ctx, g := state_new.NewContext(log)
	g.BuildVersion = BuildVersion
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigch
		log.Infof("signal=%v stopping", sig)
		g.Stop()
		cancel()
	}()

	if err := mod.Main(ctx, config, flag.Args()[min(1, flag.NArg()):]); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
