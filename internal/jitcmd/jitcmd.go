// Package jitcmd implements corejit's command dispatch, the same
// reflection-based "method name is the command name" shape as the
// teacher's internal/maincmd: Cmd exposes one exported method per
// subcommand (Build, Disasm), buildCmds picks them up automatically, and
// Main wires flag parsing, help/version, and signal cancellation around
// whichever one the user named.
package jitcmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/mna/mainer"
)

const binName = "corejit"

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] <command> <file.jitasm>
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] <command> <file.jitasm>
       %[1]s -h|--help
       %[1]s -v|--version

Ahead-of-time driver for the corejit code-generation pipeline: parses a
textual IR assembly file (jit/backend.ParseAsm's format), compiles it
against the reference vm64 backend, and reports the result.

The <command> can be one of:
       build                     Compile the function and print its
                                 entry address, byte size, and any
                                 compile error.
       disasm                    Compile the function and dump its
                                 emitted bytes plus bytecode-offset map
                                 as hex.

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.

Valid flag options for the <build> and <disasm> commands are:
       --global-registers        Enable usage-ranked global register
                                 allocation (on by default).
       --max-restarts N          Cache-full restart budget (default 4).
`, binName)
)

// Cmd is corejit's top-level command, built and parsed the same way the
// teacher's maincmd.Cmd is: SetArgs/SetFlags/Validate/Main satisfy
// mainer's command contract, and buildCmds resolves c.args[0] to one of
// Cmd's own exported methods by name.
type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help    bool `flag:"h,help"`
	Version bool `flag:"v,version"`

	GlobalRegisters bool `flag:"global-registers"`
	MaxRestarts     int  `flag:"max-restarts"`

	args  []string
	flags map[string]bool
	cmdFn func(context.Context, mainer.Stdio, []string) error
}

func (c *Cmd) SetArgs(args []string) { c.args = args }

func (c *Cmd) SetFlags(flags map[string]bool) { c.flags = flags }

func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}
	if len(c.args) == 0 {
		return errors.New("no command specified")
	}

	cmdName := c.args[0]
	commands := buildCmds(c)
	c.cmdFn = commands[cmdName]
	if c.cmdFn == nil {
		return fmt.Errorf("unknown command: %s", cmdName)
	}

	if len(c.args[1:]) == 0 {
		return fmt.Errorf("%s: a .jitasm file must be provided", cmdName)
	}
	if c.MaxRestarts < 0 {
		return fmt.Errorf("%s: max-restarts must not be negative", cmdName)
	}
	return nil
}

func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{
		EnvVars:   false,
		EnvPrefix: binName + "_",
	}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.InvalidArgs
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success
	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.Success
	}

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)
	if err := c.cmdFn(ctx, stdio, c.args[1:]); err != nil {
		return mainer.Failure
	}
	return mainer.Success
}

// buildCmds mirrors maincmd.buildCmds exactly: it reflects over v's
// exported methods and keeps the ones shaped like a subcommand handler,
// keyed by the lowercased method name.
func buildCmds(v interface{}) map[string]func(context.Context, mainer.Stdio, []string) error {
	cmds := make(map[string]func(context.Context, mainer.Stdio, []string) error)

	vv := reflect.ValueOf(v)
	vt := vv.Type()
	for i := 0; i < vt.NumMethod(); i++ {
		m := vt.Method(i)
		mt := m.Type

		if mt.NumIn() != 4 || mt.NumOut() != 1 {
			continue
		}
		if rt := mt.Out(0); rt.Kind() != reflect.Interface || rt.Name() != "error" {
			continue
		}
		if p0 := mt.In(0); p0.Kind() != reflect.Ptr || p0.Elem().Name() != "Cmd" {
			continue
		}
		if p1 := mt.In(1); p1.Kind() != reflect.Interface || p1.Name() != "Context" {
			continue
		}
		if p2 := mt.In(2); p2.Kind() != reflect.Struct || p2.Name() != "Stdio" {
			continue
		}
		if p3 := mt.In(3); p3.Kind() != reflect.Slice || p3.Elem().Name() != "string" {
			continue
		}
		cmds[strings.ToLower(m.Name)] = vv.Method(i).Interface().(func(context.Context, mainer.Stdio, []string) error)
	}
	return cmds
}
