// Package cfg builds the control-flow graph from a Function's terminator
// opcodes, cleans it with a bounded peephole, computes per-block liveness,
// and builds per-value live ranges.
package cfg

import "github.com/mna/corejit/jit/ir"

// maxCleanHops bounds the unconditional-chain-threading peephole so that a
// pathological "while true { goto self }" shaped IR cannot loop forever.
const maxCleanHops = 32

// CFG holds the computed successor/predecessor edges for a Function. The
// edges are also mirrored onto each ir.Block's Preds/Succs fields so
// callers that only have a *ir.Block (e.g. jit/codegen) don't need to
// thread a *CFG everywhere, but CFG additionally exposes reverse
// post-order, which only the analyses in this package need.
type CFG struct {
	fn  *ir.Function
	rpo []ir.BlockID
}

// Build computes successors from each block's terminator instruction and
// predecessors as the reverse adjacency, then runs the
// cleaning peephole. It must be called before ComputeLiveness or
// BuildLiveRanges.
func Build(fn *ir.Function) *CFG {
	g := &CFG{fn: fn}
	g.computeEdges()
	g.clean()
	g.computeEdges() // re-derive successors/predecessors after cleaning rewrote some terminators
	g.computeRPO()
	return g
}

func (g *CFG) computeEdges() {
	fn := g.fn
	fn.EachBlock(func(id ir.BlockID, b *ir.Block) {
		b.Succs = b.Succs[:0]
		b.Preds = b.Preds[:0]
	})

	fn.EachBlock(func(id ir.BlockID, b *ir.Block) {
		succs := g.terminatorSuccessors(id, b)
		b.Succs = succs
		for _, s := range succs {
			sb := fn.Block(s)
			sb.Preds = append(sb.Preds, id)
		}
	})
}

// terminatorSuccessors computes the successor list for block b: BR has one successor, conditional branches have two
// (fall-through block + label target), RETURN/RETURN_VOID/THROW have
// none, JUMPTABLE gets no successors here (its case targets are opaque
// Aux data to this layer and are not enumerated), and a block with no
// terminator yet (still being built, or a
// dangling block) falls through to the next block by index, mirroring an
// implicit straight-line function body.
func (g *CFG) terminatorSuccessors(id ir.BlockID, b *ir.Block) []ir.BlockID {
	if b.Empty() {
		return fallThrough(g.fn, id)
	}
	last := g.fn.Instruction(b.LastInsn)
	switch {
	case last.Opcode == ir.BR:
		if target, ok := g.fn.BlockByLabel(ir.LabelID(last.Dest)); ok {
			return []ir.BlockID{target}
		}
		return nil
	case last.Opcode.IsConditionalBranch():
		var out []ir.BlockID
		if ft := fallThrough(g.fn, id); len(ft) > 0 {
			out = append(out, ft...)
		}
		if target, ok := g.fn.BlockByLabel(ir.LabelID(last.Dest)); ok {
			out = append(out, target)
		}
		return out
	case last.Opcode.IsTerminator():
		// RETURN, RETURN_VOID, THROW, JUMPTABLE (case targets are opaque
		// here; a real jump table would enumerate its Aux-encoded targets).
		return nil
	default:
		return fallThrough(g.fn, id)
	}
}

func fallThrough(fn *ir.Function, id ir.BlockID) []ir.BlockID {
	next := ir.BlockID(int(id) + 1)
	if int(next) < fn.NumBlocks() {
		return []ir.BlockID{next}
	}
	return nil
}

// clean performs a bounded local peephole: for
// each trailing unconditional branch, thread through chains of "BR to a
// block that is itself just BR to somewhere else" and drop a branch whose
// target is the immediately following block (an elided fall-through: a
// branch whose target is the next emission position is elided).
func (g *CFG) clean() {
	fn := g.fn
	fn.EachBlock(func(id ir.BlockID, b *ir.Block) {
		if b.Empty() {
			return
		}
		last := fn.Instruction(b.LastInsn)
		if last.Opcode != ir.BR {
			return
		}

		target, ok := fn.BlockByLabel(ir.LabelID(last.Dest))
		if !ok {
			return
		}

		hops := 0
		for hops < maxCleanHops {
			tb := fn.Block(target)
			if tb.Empty() {
				break
			}
			tlast := fn.Instruction(tb.LastInsn)
			if tlast.Opcode != ir.BR {
				break
			}
			next, ok := fn.BlockByLabel(ir.LabelID(tlast.Dest))
			if !ok || next == target {
				break
			}
			target = next
			hops++
		}
		last.Dest = ir.ValueID(fn.Block(target).Label)

		if target == ir.BlockID(int(id)+1) {
			// Branch to the immediately following block: elide it by turning
			// it into a NOP so emission naturally falls through.
			last.Opcode = ir.NOP
			last.Dest = ir.NoValue
			last.DestFlags = 0
		}
	})
}

func (g *CFG) computeRPO() {
	fn := g.fn
	n := fn.NumBlocks()
	visited := make([]bool, n)
	order := make([]ir.BlockID, 0, n)

	var visit func(id ir.BlockID)
	visit = func(id ir.BlockID) {
		if int(id) >= n || visited[id] {
			return
		}
		visited[id] = true
		for _, s := range fn.Block(id).Succs {
			visit(s)
		}
		order = append(order, id)
	}
	if fn.EntryBlock != ir.NoBlock {
		visit(fn.EntryBlock)
	}
	// Any block unreachable from the entry (shouldn't normally happen, but
	// keep the analysis total) is appended afterward so every block still
	// gets an RPO position.
	for id := ir.BlockID(0); int(id) < n; id++ {
		visit(id)
	}

	// order is currently post-order; reverse it for reverse post-order.
	g.rpo = make([]ir.BlockID, len(order))
	for i, id := range order {
		g.rpo[len(order)-1-i] = id
	}
}

// ReversePostOrder returns the blocks in reverse post-order, the iteration
// order ComputeLiveness uses to reach its fixed point quickly.
func (g *CFG) ReversePostOrder() []ir.BlockID { return g.rpo }
