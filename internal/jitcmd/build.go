package jitcmd

import (
	"context"
	"fmt"

	"github.com/mna/mainer"
)

// Build compiles each named .jitasm file and reports its entry address
// and emitted code size, one line per file.
func (c *Cmd) Build(ctx context.Context, stdio mainer.Stdio, args []string) error {
	var firstErr error
	for _, path := range args {
		fn, _, _, entry, err := c.compileFile(path)
		if err != nil {
			fmt.Fprintf(stdio.Stderr, "%s: %s\n", path, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		fmt.Fprintf(stdio.Stdout, "%s: entry=0x%x size=%d bytes\n", path, entry, fn.CodeEnd-fn.CodeStart)
	}
	return firstErr
}
