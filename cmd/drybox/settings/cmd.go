// Package settings prints or edits persisted device settings locally,
// through the same update path as remote configuration.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/temoto/drybox/cmd/drybox/subcmd"
	"github.com/temoto/drybox/internal/settings"
	"github.com/temoto/drybox/internal/state"
)

var Mod = subcmd.Mod{Name: "settings", Usage: "print settings or set KEY=value ...", Main: Main}

func Main(ctx context.Context, config *state.Config, args []string) error {
	g := state.GetGlobal(ctx)
	root := config.Persist.Root
	if root == "" {
		root = state.DefaultPersistRoot
	}
	store := settings.NewFile(root, g.Log)
	if _, err := store.Load(); err != nil {
		return errors.Annotatef(err, "settings persist.root=%s", root)
	}
	return run(store, args, os.Stdout)
}

func run(store *settings.Store, args []string, w io.Writer) error {
	if len(args) != 0 {
		partial, err := ParseAssignments(args)
		if err != nil {
			return err
		}
		if _, err := store.Update(partial); err != nil {
			return errors.Annotate(err, "settings update")
		}
	}
	b, err := json.MarshalIndent(store.Raw(), "", "    ")
	if err != nil {
		return errors.Trace(err)
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

// ParseAssignments converts KEY=value pairs by key type.
// String keys take value as is, JSON quoted string is unquoted.
// Numeric keys must parse as number.
func ParseAssignments(args []string) (map[string]interface{}, error) {
	partial := make(map[string]interface{}, len(args))
	for _, arg := range args {
		i := strings.IndexByte(arg, '=')
		if i <= 0 {
			return nil, errors.NotValidf("assignment %q, expected KEY=value", arg)
		}
		key, s := arg[:i], arg[i+1:]
		if !settings.IsCanonical(key) {
			return nil, errors.NotFoundf("settings key=%s", key)
		}
		if settings.IsStringKey(key) {
			if unq, err := strconv.Unquote(s); err == nil && strings.HasPrefix(s, `"`) {
				s = unq
			}
			partial[key] = s
			continue
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errors.NotValidf("settings %s=%q expected number", key, s)
		}
		partial[key] = f
	}
	return partial, nil
}
