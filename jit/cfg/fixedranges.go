package cfg

import "github.com/mna/corejit/jit/ir"

// SynthesizeFixedRanges handles fixed ranges for hardware constraints: a
// CALL-family instruction kills every register in callClobbered, and an
// OUTGOING_REG
// instruction forces its operand to a specific color (the register number
// is carried in Aux, since OUTGOING_REG's Value1 slot holds the value
// being placed, not a register literal).
//
// Each synthesized range is a single-instruction-neighborhood range
// (IsFixed, Colors preset) so the graph-coloring allocator can treat it
// exactly like any other pre-colored neighbor when building interference.
// A call-clobber range has no associated ir.Value (Value is ir.NoValue)
// and is also marked IsSpillRange; an OUTGOING_REG range belongs to the
// instruction's Value1 and is recorded as its Value1Range.
func SynthesizeFixedRanges(fn *ir.Function, callClobbered []int) []ir.RangeID {
	var out []ir.RangeID
	fn.EachBlock(func(id ir.BlockID, b *ir.Block) {
		if b.Empty() {
			return
		}
		for i := b.FirstInsn; i <= b.LastInsn; i++ {
			in := fn.Instruction(i)
			switch {
			case in.Opcode.IsCall():
				for _, reg := range callClobbered {
					rid := fn.NewLiveRange(ir.NoValue)
					r := fn.LiveRange(rid)
					r.IsFixed = true
					r.IsSpillRange = true
					r.Colors = []int{reg}
					r.RegisterCount = 1
					r.AddTouchedBlock(id)
					r.AddStart(id, i)
					r.AddEnd(id, i)
					out = append(out, rid)
				}
			case in.Opcode == ir.OUTGOING_REG:
				rid := fn.NewLiveRange(in.Value1)
				r := fn.LiveRange(rid)
				r.IsFixed = true
				r.Colors = []int{int(in.Aux)}
				r.RegisterCount = 1
				r.AddTouchedBlock(id)
				r.AddStart(id, i)
				r.AddEnd(id, i)
				in.Value1Range = rid
				out = append(out, rid)
			}
		}
	})
	return out
}
