// Package config implements the context-wide tunables: initial code-cache
// sizing, how aggressively a cache-full restart grows the next page, how
// many restart attempts to allow before giving up, and whether global
// register allocation is enabled at all. Loaded from the environment the
// way
// internal/maincmd configures github.com/mna/mainer commands, but using
// github.com/caarlos0/env/v6 directly rather than mainer's flag parser,
// since these are process-wide defaults rather than per-invocation CLI
// flags.
package config

import "github.com/caarlos0/env/v6"

// Options holds every context-wide tunable jit/context.New reads to build
// a Context's code cache and compile-attempt limits.
type Options struct {
	// InitialPageSize is the number of bytes the code cache's first page
	// reserves.
	InitialPageSize int64 `env:"COREJIT_INITIAL_PAGE_SIZE" envDefault:"65536"`

	// PageGrowthFactor is the multiplier applied to the last page's size on
	// a cache-full restart (page size grows by at least doubling on
	// restart); values below 2 are treated as 2 by codecache.Cache.GrowPage.
	PageGrowthFactor float64 `env:"COREJIT_PAGE_GROWTH_FACTOR" envDefault:"2.0"`

	// PageAlign is the default byte alignment codecache.Cache.StartMethod
	// reserves each method at.
	PageAlign int32 `env:"COREJIT_PAGE_ALIGN" envDefault:"8"`

	// MaxRestarts bounds how many times jit/codegen.Driver.Compile will
	// grow the cache and retry a single function before giving up with a
	// CompileErr.
	MaxRestarts int `env:"COREJIT_MAX_RESTARTS" envDefault:"4"`

	// GlobalRegisters enables the usage-ranked global register allocation
	// pass that runs before code generation. Disabled, every value is
	// allocated purely locally by the per-instruction allocator.
	GlobalRegisters bool `env:"COREJIT_GLOBAL_REGISTERS" envDefault:"true"`
}

// Default returns the zero-configuration Options every constant above
// documents.
func Default() Options {
	return Options{
		InitialPageSize:  65536,
		PageGrowthFactor: 2.0,
		PageAlign:        8,
		MaxRestarts:      4,
		GlobalRegisters:  true,
	}
}

// FromEnv starts from Default and overrides any field whose env tag names
// a variable present in the process environment.
func FromEnv() (Options, error) {
	opts := Default()
	if err := env.Parse(&opts); err != nil {
		return Options{}, err
	}
	return opts, nil
}
