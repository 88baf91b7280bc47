package jitcmd

import (
	"os"

	"github.com/mna/corejit/jit/backend"
	"github.com/mna/corejit/jit/backend/vmbackend"
	"github.com/mna/corejit/jit/codegen"
	"github.com/mna/corejit/jit/config"
	jitcontext "github.com/mna/corejit/jit/context"
	"github.com/mna/corejit/jit/ir"
)

// compileFile reads path as jit/backend.ParseAsm textual IR, compiles it
// against the reference vm64 backend, and returns the function, the
// backend it was compiled against, the context whose code cache holds the
// result, and the entry address.
func (c *Cmd) compileFile(path string) (*ir.Function, *vmbackend.Backend, *jitcontext.Context, uintptr, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, 0, err
	}
	fn, err := backend.ParseAsm(src)
	if err != nil {
		return nil, nil, nil, 0, err
	}

	opts := config.Default()
	if c.flags["global-registers"] {
		opts.GlobalRegisters = c.GlobalRegisters
	}
	if c.flags["max-restarts"] {
		opts.MaxRestarts = c.MaxRestarts
	}

	ctx := jitcontext.New(opts)
	be := vmbackend.New()
	entry, err := codegen.New().Compile(ctx, fn, be)
	if err != nil {
		return nil, nil, nil, 0, err
	}
	return fn, be, ctx, entry, nil
}
