// Package lcd is interactive display console for bench testing.
package lcd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	prompt "github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/drybox/cmd/drybox/subcmd"
	"github.com/temoto/drybox/helpers/cli"
	"github.com/temoto/drybox/internal/state"
)

const usage = `syntax:
- text LINE1|LINE2    set both lines, ° is supported
- clear               clear display
- backlight on|off
- move COL ROW        move cursor
- put STRING          write at cursor, \n moves to next row
- cursor on|off|blink
- help
`

var Mod = subcmd.Mod{Name: "lcd", Usage: "display console", Main: Main}

func Main(ctx context.Context, config *state.Config, args []string) error {
	g := state.GetGlobal(ctx)
	g.Config = config
	config.Hardware.LCD.Enable = true
	if _, err := g.TextDisplay(); err != nil {
		return errors.Annotate(err, "lcd console")
	}

	exec := newExecutor(g)
	if len(args) != 0 {
		exec(strings.Join(args, " "))
		return nil
	}
	cli.MainLoop("drybox-lcd", exec, newCompleter())
	return nil
}

func newCompleter() func(d prompt.Document) []prompt.Suggest {
	suggests := []prompt.Suggest{
		{Text: "text", Description: "LINE1|LINE2"},
		{Text: "clear"},
		{Text: "backlight", Description: "on|off"},
		{Text: "move", Description: "COL ROW"},
		{Text: "put", Description: "STRING"},
		{Text: "cursor", Description: "on|off|blink"},
		{Text: "help"},
	}
	return func(d prompt.Document) []prompt.Suggest {
		return cli.Suggest(d, suggests)
	}
}

func newExecutor(g *state.Global) func(string) {
	return func(line string) {
		if err := execLine(g, line); err != nil {
			g.Log.Error(err)
		}
	}
}

func execLine(g *state.Global, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	cmd, rest := line, ""
	if i := strings.IndexByte(line, ' '); i >= 0 {
		cmd, rest = line[:i], strings.TrimSpace(line[i+1:])
	}
	display, err := g.TextDisplay()
	if err != nil {
		return err
	}
	dev := g.Hardware.LCD.Device
	raw := func() error {
		if dev == nil {
			return errors.NotSupportedf("raw lcd command=%s", cmd)
		}
		return nil
	}

	switch cmd {
	case "help":
		fmt.Print(usage)
		return nil

	case "text":
		l1, l2 := rest, ""
		if i := strings.IndexByte(rest, '|'); i >= 0 {
			l1, l2 = rest[:i], rest[i+1:]
		}
		return display.SetLines(l1, l2)

	case "clear":
		return display.Clear()

	case "backlight":
		if err := raw(); err != nil {
			return err
		}
		switch rest {
		case "on":
			return dev.BacklightOn()
		case "off":
			return dev.BacklightOff()
		}
		return errors.NotValidf("backlight %q", rest)

	case "move":
		if err := raw(); err != nil {
			return err
		}
		parts := strings.Fields(rest)
		if len(parts) != 2 {
			return errors.NotValidf("move %q", rest)
		}
		col, err := strconv.Atoi(parts[0])
		if err != nil {
			return errors.Annotate(err, "move col")
		}
		row, err := strconv.Atoi(parts[1])
		if err != nil {
			return errors.Annotate(err, "move row")
		}
		return dev.MoveTo(col, row)

	case "put":
		if err := raw(); err != nil {
			return err
		}
		return dev.PutStr(strings.Replace(rest, `\n`, "\n", -1))

	case "cursor":
		if err := raw(); err != nil {
			return err
		}
		switch rest {
		case "on":
			return dev.ShowCursor()
		case "off":
			return dev.HideCursor()
		case "blink":
			return dev.BlinkCursorOn()
		}
		return errors.NotValidf("cursor %q", rest)
	}
	return errors.NotFoundf("command=%s, try help", cmd)
}
