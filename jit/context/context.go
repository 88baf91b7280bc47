// Package context implements the per-engine shared state a JIT context
// owns: the code cache every compiled function's bytes land in, the
// configuration jit/codegen.Driver consults, and the build lock that
// serializes compilation so exactly one function compiles at a time.
//
// Named Context after the engine's own vocabulary for this object rather
// than sidestepping the stdlib context package's name; callers that need
// both import this one under an alias (e.g. jitcontext
// "github.com/mna/corejit/jit/context").
package context

import (
	"sync"

	"github.com/mna/corejit/jit/codecache"
	"github.com/mna/corejit/jit/config"
)

// Context bundles the code cache and configuration jit/codegen.Driver
// needs to compile functions, plus the build lock that ensures exactly one
// compile runs against a given Context at a time.
type Context struct {
	Cache   *codecache.Cache
	Options config.Options

	// buildLock serializes jit/codegen.Driver.Compile calls against this
	// Context. Driver.Compile is the only entry point and never calls
	// itself recursively, so a plain sync.Mutex suffices in place of a
	// recursive mutex (Go has none).
	buildLock sync.Mutex
}

// New creates a Context with a fresh code cache sized per opts.
func New(opts config.Options) *Context {
	return &Context{
		Cache:   codecache.New(opts.InitialPageSize, opts.PageAlign),
		Options: opts,
	}
}

// Lock acquires the build lock, blocking until no other compile is in
// progress against this Context.
func (c *Context) Lock() { c.buildLock.Lock() }

// Unlock releases the build lock.
func (c *Context) Unlock() { c.buildLock.Unlock() }
