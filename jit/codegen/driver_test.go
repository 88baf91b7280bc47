package codegen_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/corejit/jit/backend"
	"github.com/mna/corejit/jit/backend/vmbackend"
	"github.com/mna/corejit/jit/codegen"
	"github.com/mna/corejit/jit/config"
	jitcontext "github.com/mna/corejit/jit/context"
)

const addSrc = `
	function: fn i32 i32,i32
	block:
		v0 = incoming_reg i32 0
		v1 = incoming_reg i32 1
		v2 = add i32 v0 v1
		return v2
`

func TestCompileSimpleFunction(t *testing.T) {
	fn, err := backend.ParseAsm([]byte(addSrc))
	require.NoError(t, err)

	ctx := jitcontext.New(config.Default())
	be := vmbackend.New()
	d := codegen.New()

	entry, err := d.Compile(ctx, fn, be)
	require.NoError(t, err)
	require.NotZero(t, entry)
	require.True(t, fn.IsCompiled)
	require.Equal(t, entry, fn.EntryPoint)
}

func TestCompileIsIdempotentForNonRecompilableFunction(t *testing.T) {
	fn, err := backend.ParseAsm([]byte(addSrc))
	require.NoError(t, err)

	ctx := jitcontext.New(config.Default())
	be := vmbackend.New()
	d := codegen.New()

	first, err := d.Compile(ctx, fn, be)
	require.NoError(t, err)

	second, err := d.Compile(ctx, fn, be)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestCompileRestartsOnCacheFull(t *testing.T) {
	src := `
		function: fn i32 i32,i32,i32,i32
		block:
			v0 = incoming_reg i32 0
			v1 = incoming_reg i32 1
			v2 = incoming_reg i32 2
			v3 = incoming_reg i32 3
			v4 = add i32 v0 v1
			v5 = add i32 v4 v2
			v6 = add i32 v5 v3
			v7 = add i32 v6 v0
			v8 = add i32 v7 v1
			v9 = add i32 v8 v2
			return v9
	`
	fn, err := backend.ParseAsm([]byte(src))
	require.NoError(t, err)

	opts := config.Default()
	opts.InitialPageSize = 16
	opts.MaxRestarts = 8
	ctx := jitcontext.New(opts)
	be := vmbackend.New()
	d := codegen.New()

	entry, err := d.Compile(ctx, fn, be)
	require.NoError(t, err)
	require.NotZero(t, entry)
	require.True(t, fn.IsCompiled)
}

func TestCompileRejectsNilFunction(t *testing.T) {
	ctx := jitcontext.New(config.Default())
	be := vmbackend.New()
	d := codegen.New()

	_, err := d.Compile(ctx, nil, be)
	require.Error(t, err)
}
