package jitcmd

import (
	"context"
	"fmt"

	"github.com/mna/mainer"

	"github.com/mna/corejit/jit/codegen"
)

// Disasm compiles each named .jitasm file and dumps its emitted native
// bytes plus its bytecode-offset map (if it has one) as hex.
func (c *Cmd) Disasm(ctx context.Context, stdio mainer.Stdio, args []string) error {
	var firstErr error
	for _, path := range args {
		if err := c.disasmOne(stdio, path); err != nil {
			fmt.Fprintf(stdio.Stderr, "%s: %s\n", path, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (c *Cmd) disasmOne(stdio mainer.Stdio, path string) error {
	fn, _, jctx, entry, err := c.compileFile(path)
	if err != nil {
		return err
	}

	length := fn.CodeEnd - fn.CodeStart
	code := jctx.Cache.Bytes(fn.CodeStart, length)
	fmt.Fprintf(stdio.Stdout, "%s: entry=0x%x %d bytes\n", path, entry, length)
	fmt.Fprintf(stdio.Stdout, "  code: % x\n", code)

	if fn.OffsetMapLen == 0 {
		fmt.Fprintln(stdio.Stdout, "  offset map: (none)")
		return nil
	}
	raw := jctx.Cache.AuxBytes(fn.OffsetMapPage, fn.OffsetMapOff, fn.OffsetMapLen)
	entries, err := codegen.DecodeOffsetMap(raw)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdio.Stdout, "  offset map:")
	for _, e := range entries {
		fmt.Fprintf(stdio.Stdout, "    bytecode=%d -> native=%d\n", e.BytecodeOffset, e.NativeOffset)
	}
	return nil
}
