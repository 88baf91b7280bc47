package cfg

import "github.com/mna/corejit/jit/ir"

// unionFind is a tiny disjoint-set structure over block indices, used to
// group blocks that the same live range flows through into one connected
// component before a LiveRange is materialized for it.
type unionFind struct{ parent []int }

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra != rb {
		uf.parent[ra] = rb
	}
}

// BuildLiveRanges implements the live-range construction algorithm:
// starting from a value's occurrences (its defs and
// uses), blocks are flood-filled into the same range while the value
// flows live between them — forward through a successor whose LiveOut
// still contains the value and whose VarKill doesn't redefine it first,
// backward through a predecessor whose UEVar shows the value is used
// before any local redefinition. Each resulting connected component of
// blocks becomes one ir.LiveRange, linked onto its ir.Value.
//
// Addressable/volatile values instead get one per-use spill range with
// local (single-instruction-neighborhood) extent, and every use of a
// constant inside a register gets its own per-use dummy spill range.
func BuildLiveRanges(fn *ir.Function, g *CFG) {
	nb := fn.NumBlocks()

	fn.EachValue(func(vid ir.ValueID, v *ir.Value) {
		v.FirstRange, v.LastRange = ir.NoRange, ir.NoRange

		if v.IsConstant {
			buildConstantUseRanges(fn, vid)
			return
		}
		if v.IsAddressable || v.IsVolatile {
			buildSpillRanges(fn, vid)
			return
		}

		occBlocks := occurrenceBlocks(fn, vid)
		if len(occBlocks) == 0 {
			return
		}

		uf := newUnionFind(nb)
		fn.EachBlock(func(id ir.BlockID, b *ir.Block) {
			if b.LiveOut.Test(int(vid)) {
				for _, s := range b.Succs {
					sb := fn.Block(s)
					if sb.UpwardExposed.Test(int(vid)) || (sb.LiveOut.Test(int(vid)) && !sb.VarKills.Test(int(vid))) {
						uf.union(int(id), int(s))
					}
				}
			}
		})

		groups := map[int][]ir.BlockID{}
		for b := range occBlocks {
			root := uf.find(int(b))
			groups[root] = append(groups[root], b)
		}
		// Also fold in any pass-through block sharing a root with an
		// occurrence block, so TouchedBlocks covers the full flow, not just
		// the blocks where the value textually appears.
		touched := map[int][]ir.BlockID{}
		fn.EachBlock(func(id ir.BlockID, _ *ir.Block) {
			root := uf.find(int(id))
			if _, ok := groups[root]; ok {
				touched[root] = append(touched[root], id)
			}
		})

		for root, blocks := range groups {
			rid := fn.NewLiveRange(vid)
			r := fn.LiveRange(rid)
			for _, tb := range touched[root] {
				r.AddTouchedBlock(tb)
			}
			for _, b := range blocks {
				addOccurrencePoints(fn, vid, b, r)
			}
		}
	})
}

// occurrenceBlocks returns the set of blocks where value vid is defined or
// used by a non-NOP instruction.
func occurrenceBlocks(fn *ir.Function, vid ir.ValueID) map[ir.BlockID]bool {
	out := map[ir.BlockID]bool{}
	fn.EachBlock(func(id ir.BlockID, b *ir.Block) {
		if b.Empty() {
			return
		}
		for i := b.FirstInsn; i <= b.LastInsn; i++ {
			in := fn.Instruction(i)
			if in.IsNop() {
				continue
			}
			if in.DefinesValue() && in.Dest == vid {
				out[id] = true
			}
			in.Uses(func(id2 ir.ValueID) {
				if id2 == vid {
					out[id] = true
				}
			})
		}
	})
	return out
}

func addOccurrencePoints(fn *ir.Function, vid ir.ValueID, b ir.BlockID, r *ir.LiveRange) {
	blk := fn.Block(b)
	if blk.Empty() {
		return
	}
	for i := blk.FirstInsn; i <= blk.LastInsn; i++ {
		in := fn.Instruction(i)
		if in.IsNop() {
			continue
		}
		if in.DefinesValue() && in.Dest == vid {
			r.AddStart(b, i)
			in.DestRange = fn.Value(vid).LastRange
		}
		in.Uses(func(id2 ir.ValueID) {
			if id2 == vid {
				r.AddEnd(b, i)
				if in.Value1 == vid {
					in.Value1Range = fn.Value(vid).LastRange
				}
				if in.Value2 == vid {
					in.Value2Range = fn.Value(vid).LastRange
				}
			}
		})
	}
}

// buildSpillRanges gives an addressable/volatile value one per-use spill
// range with strictly local (this instruction only) extent.
func buildSpillRanges(fn *ir.Function, vid ir.ValueID) {
	fn.EachBlock(func(id ir.BlockID, b *ir.Block) {
		if b.Empty() {
			return
		}
		for i := b.FirstInsn; i <= b.LastInsn; i++ {
			in := fn.Instruction(i)
			if in.IsNop() {
				continue
			}
			used := in.DefinesValue() && in.Dest == vid
			in.Uses(func(id2 ir.ValueID) {
				if id2 == vid {
					used = true
				}
			})
			if !used {
				continue
			}
			rid := fn.NewLiveRange(vid)
			r := fn.LiveRange(rid)
			r.IsSpillRange = true
			r.AddTouchedBlock(id)
			if in.DefinesValue() && in.Dest == vid {
				r.AddStart(id, i)
				in.DestRange = rid
			}
			in.Uses(func(id2 ir.ValueID) {
				if id2 != vid {
					return
				}
				r.AddEnd(id, i)
				if in.Value1 == vid {
					in.Value1Range = rid
				}
				if in.Value2 == vid {
					in.Value2Range = rid
				}
			})
		}
	})
}

// buildConstantUseRanges gives every register use of a constant its own
// per-use dummy live range flagged IsSpillRange.
func buildConstantUseRanges(fn *ir.Function, vid ir.ValueID) {
	fn.EachBlock(func(id ir.BlockID, b *ir.Block) {
		if b.Empty() {
			return
		}
		for i := b.FirstInsn; i <= b.LastInsn; i++ {
			in := fn.Instruction(i)
			if in.IsNop() {
				continue
			}
			isUse := false
			in.Uses(func(id2 ir.ValueID) {
				if id2 == vid {
					isUse = true
				}
			})
			if !isUse {
				continue
			}
			rid := fn.NewLiveRange(vid)
			r := fn.LiveRange(rid)
			r.IsSpillRange = true
			r.AddTouchedBlock(id)
			r.AddEnd(id, i)
			if in.Value1 == vid {
				in.Value1Range = rid
			}
			if in.Value2 == vid {
				in.Value2Range = rid
			}
		}
	})
}
