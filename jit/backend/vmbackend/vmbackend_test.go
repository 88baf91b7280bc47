package vmbackend_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/corejit/jit/backend"
	"github.com/mna/corejit/jit/backend/vmbackend"
	"github.com/mna/corejit/jit/ir"
	"github.com/mna/corejit/jit/regalloc"
)

func TestGenInsnEmitsArithmeticAndReturn(t *testing.T) {
	src := `
		function: fn i32 i32,i32
		block:
			v0 = incoming_reg i32 0
			v1 = incoming_reg i32 1
			v2 = add i32 v0 v1
			return v2
	`
	fn, err := backend.ParseAsm([]byte(src))
	require.NoError(t, err)

	b := vmbackend.New()
	g := backend.NewGen(4096, regalloc.NewFile(fn, b.Target().NumWordRegs+b.Target().NumFloatRegs))

	blk := fn.Block(fn.EntryBlock)
	var insns []ir.InsnID
	for i := blk.FirstInsn; i <= blk.LastInsn; i++ {
		insns = append(insns, i)
	}
	require.NotEmpty(t, insns)

	for _, id := range insns {
		require.NoError(t, b.GenInsn(g, fn, fn.EntryBlock, id))
	}
	require.NotZero(t, g.Len())
}

func TestOpcodeIsSupportedExcludesCall(t *testing.T) {
	b := vmbackend.New()
	require.False(t, b.OpcodeIsSupported(ir.CALL))
	require.True(t, b.OpcodeIsSupported(ir.ADD))
}

func TestPrologAndEpilogWriteBytes(t *testing.T) {
	src := `
		function: fn void -
		block:
			return_void
	`
	fn, err := backend.ParseAsm([]byte(src))
	require.NoError(t, err)

	b := vmbackend.New()
	g := backend.NewGen(64, regalloc.NewFile(fn, b.Target().NumWordRegs+b.Target().NumFloatRegs))

	n, err := b.GenProlog(g, fn)
	require.NoError(t, err)
	require.Positive(t, n)
	require.NoError(t, b.GenEpilog(g, fn))
}
