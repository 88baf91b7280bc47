package cfg

import (
	"github.com/mna/corejit/internal/bitset"
	"github.com/mna/corejit/jit/ir"
)

// ComputeLiveness computes per-block UEVar (upward-exposed: used before any
// def in the block) and VarKill (defined in the block), then iterates the
// dataflow equation
//
//	LiveOut(b) = ∪_{s∈succ(b)} (UEVar(s) ∪ (LiveOut(s) − VarKill(s)))
//
// in reverse post-order until a fixed point. NOP
// instructions are skipped; values marked IsConstant, IsAddressable, or
// IsVolatile are excluded from both sets.
func ComputeLiveness(fn *ir.Function, g *CFG) {
	n := fn.NumValues()

	fn.EachBlock(func(_ ir.BlockID, b *ir.Block) {
		b.UpwardExposed = bitset.New(n)
		b.VarKills = bitset.New(n)
		b.LiveOut = bitset.New(n)
	})

	fn.EachBlock(func(id ir.BlockID, b *ir.Block) {
		if b.Empty() {
			return
		}
		for i := b.FirstInsn; i <= b.LastInsn; i++ {
			in := fn.Instruction(i)
			if in.IsNop() {
				continue
			}
			in.Uses(func(vid ir.ValueID) {
				if !excluded(fn, vid) && !b.VarKills.Test(int(vid)) {
					b.UpwardExposed.Set(int(vid))
				}
			})
			if in.DefinesValue() && !excluded(fn, in.Dest) {
				b.VarKills.Set(int(in.Dest))
			}
		}
	})

	rpo := g.ReversePostOrder()
	for {
		changed := false
		for _, id := range rpo {
			b := fn.Block(id)
			for _, s := range b.Succs {
				sb := fn.Block(s)
				if b.LiveOut.Union(sb.UpwardExposed) {
					changed = true
				}
				if b.LiveOut.UnionDiff(sb.LiveOut, sb.VarKills) {
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}
}

func excluded(fn *ir.Function, vid ir.ValueID) bool {
	v := fn.Value(vid)
	return v.IsConstant || v.IsAddressable || v.IsVolatile
}
