package cfg_test

import (
	"testing"

	"github.com/mna/corejit/jit/builder"
	"github.com/mna/corejit/jit/cfg"
	"github.com/mna/corejit/jit/ir"
	"github.com/mna/corejit/jit/types"
	"github.com/stretchr/testify/require"
)

// Liveness across a branch: B1: v1 = const 1; br B2; B2: return v1.
// Expected: LiveOut(B1) = {v1}, UEVar(B2) = {v1}, VarKill(B1) = {v1},
// LiveOut(B2) = {}.
func TestLivenessAcrossBranches(t *testing.T) {
	// v1 is the destination of a CALL (never constant-folded) so it stays
	// a genuine register value flowing from B1 into B2.
	fn2 := ir.NewFunction(types.NewSignature(types.TypeI32, nil, types.ABICdecl))
	b2 := builder.New(fn2)
	w1 := fn2.NewValue(types.TypeI32)
	_, _, err := b2.Append(ir.CALL, w1, ir.NoValue, ir.NoValue)
	require.NoError(t, err)

	_, labelB2 := b2.NewLabel()
	b2.AppendBranch(ir.BR, labelB2, ir.NoValue, ir.NoValue)

	b2.SwitchToBlock(mustBlock(fn2, labelB2))
	b2.AppendBranch(ir.RETURN, 0, w1, ir.NoValue)

	g := cfg.Build(fn2)
	cfg.ComputeLiveness(fn2, g)

	b1id := fn2.EntryBlock
	b1 := fn2.Block(b1id)
	b2blk := fn2.Block(mustBlock(fn2, labelB2))

	require.True(t, b1.VarKills.Test(int(w1)), "VarKill(B1) = {v1}")
	require.True(t, b1.LiveOut.Test(int(w1)), "LiveOut(B1) = {v1}")
	require.True(t, b2blk.UpwardExposed.Test(int(w1)), "UEVar(B2) = {v1}")
	require.True(t, b2blk.LiveOut.IsEmpty(), "LiveOut(B2) = {}")
}

func mustBlock(fn *ir.Function, label ir.LabelID) ir.BlockID {
	id, ok := fn.BlockByLabel(label)
	if !ok {
		panic("label not bound")
	}
	return id
}

func TestCFGElidesBranchToNextBlock(t *testing.T) {
	fn := ir.NewFunction(nil)
	b := builder.New(fn)

	entry := fn.CurrentBlock
	next, label := b.NewLabel()
	b.AppendBranch(ir.BR, label, ir.NoValue, ir.NoValue)
	_ = entry

	cfg.Build(fn)

	entryBlk := fn.Block(fn.EntryBlock)
	last := fn.Instruction(entryBlk.LastInsn)
	require.Equal(t, ir.NOP, last.Opcode, "a branch to the immediately following block is elided")
	require.Equal(t, []ir.BlockID{next}, entryBlk.Succs)
}

func TestCFGConditionalBranchHasTwoSuccessors(t *testing.T) {
	fn := ir.NewFunction(nil)
	b := builder.New(fn)

	v1 := fn.NewValue(types.TypeI32)
	v2 := fn.NewValue(types.TypeI32)
	target, label := b.NewLabel()
	b.AppendBranch(ir.BR_EQ, label, v1, v2)

	b.SwitchToBlock(target)
	b.AppendBranch(ir.RETURN_VOID, 0, ir.NoValue, ir.NoValue)

	g := cfg.Build(fn)
	entryBlk := fn.Block(fn.EntryBlock)
	require.Len(t, entryBlk.Succs, 2)
	_ = g
}
