package coloring

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/mna/corejit/jit/ir"
)

// Result is the outcome of a successful Color call: every range's
// assigned physical color(s).
type Result struct {
	Colors map[ir.RangeID][]int
}

// Color runs the full simplify/select/spill-and-restart loop against the
// interference graph built from ranges, retrying with rewritten spill
// ranges until every node colors, or giving up after maxRestarts rounds.
func Color(fn *ir.Function, ranges []ir.RangeID, target *Target, maxRestarts int) (*Result, error) {
	current := append([]ir.RangeID(nil), ranges...)

	for round := 0; round <= maxRestarts; round++ {
		g := BuildGraph(fn, current, target.Matrix)
		stack := simplify(g, target)
		spilled := selectColors(g, stack, target)

		if len(spilled) == 0 {
			res := &Result{Colors: make(map[ir.RangeID][]int, len(current))}
			for rid, n := range g.nodes {
				res.Colors[rid] = n.Colors
			}
			return res, nil
		}

		if round == maxRestarts {
			return nil, fmt.Errorf("coloring: %d ranges still uncolorable after %d restarts", len(spilled), maxRestarts)
		}

		next := make([]ir.RangeID, 0, len(current))
		spilledSet := make(map[ir.RangeID]bool, len(spilled))
		for _, rid := range spilled {
			spilledSet[rid] = true
		}
		for _, rid := range current {
			if !spilledSet[rid] {
				next = append(next, rid)
			}
		}
		for _, rid := range spilled {
			next = append(next, SpillAndRewrite(fn, rid)...)
		}
		current = next
	}
	return nil, fmt.Errorf("coloring: unreachable")
}

// Select runs one simplify/select pass over an already-built graph without
// the spill-and-restart loop Color wraps around it, returning the ranges
// that came up uncolorable and the ranges that were assigned a color. It
// is the single-round building block Color uses, exposed directly for
// callers (and tests) that want to inspect one pass in isolation.
func Select(g *Graph, target *Target) (spilled, colored []ir.RangeID) {
	stack := simplify(g, target)
	spilled = selectColors(g, stack, target)

	spilledSet := make(map[ir.RangeID]bool, len(spilled))
	for _, rid := range spilled {
		spilledSet[rid] = true
	}
	for _, rid := range g.order {
		if !spilledSet[rid] && !g.nodes[rid].IsFixed {
			colored = append(colored, rid)
		}
	}
	return spilled, colored
}

// simplify repeatedly pushes onto a stack any node with fewer neighbors
// than colors available to its class; if
// none remain, optimistically push the highest-spill-cost non-dummy,
// non-fixed node.
func simplify(g *Graph, target *Target) []*Node {
	remaining := make(map[ir.RangeID]bool, len(g.order))
	for _, rid := range g.order {
		remaining[rid] = true
	}

	var stack []*Node
	degree := func(n *Node) int {
		d := 0
		for other := range remaining {
			if other != n.Range && remaining[other] && n.isNeighbor(other) {
				d++
			}
		}
		return d
	}

	for len(remaining) > 0 {
		picked := ir.NoRange
		for _, rid := range g.order {
			if !remaining[rid] {
				continue
			}
			n := g.nodes[rid]
			if n.IsFixed {
				continue
			}
			if degree(n) < len(target.Colors[n.Class]) {
				picked = rid
				break
			}
		}
		if picked == ir.NoRange {
			picked = pickOptimistic(g, remaining)
		}
		if picked == ir.NoRange {
			break
		}
		stack = append(stack, g.nodes[picked])
		delete(remaining, picked)
	}

	// Fixed ranges never go through simplify/select proper; their color is
	// already pinned, but they still participate in the coloring order so
	// Select can see them as already-colored neighbors.
	for _, rid := range g.order {
		if g.nodes[rid].IsFixed {
			stack = append([]*Node{g.nodes[rid]}, stack...)
		}
	}
	return stack
}

// pickOptimistic chooses the remaining node least likely to need a spill:
// prefer a non-dummy, non-constant range with the highest spill cost.
func pickOptimistic(g *Graph, remaining map[ir.RangeID]bool) ir.RangeID {
	best := ir.NoRange
	bestCost := -1.0
	bestIsDummy := true
	for rid := range remaining {
		n := g.nodes[rid]
		if n.IsFixed {
			continue
		}
		betterTier := bestIsDummy && !n.IsDummy
		sameTier := n.IsDummy == bestIsDummy
		if best == ir.NoRange || betterTier || (sameTier && n.SpillCost > bestCost) {
			best, bestCost, bestIsDummy = rid, n.SpillCost, n.IsDummy
		}
	}
	return best
}

// selectColors pops the simplify stack in LIFO order, assigning the cheapest available color (non-global
// preferred, then highest PreferredColors score) not used by any
// already-colored neighbor; a node with no legal color is returned in the
// spilled list instead of being colored.
func selectColors(g *Graph, stack []*Node, target *Target) []ir.RangeID {
	var spilled []ir.RangeID

	for i := len(stack) - 1; i >= 0; i-- {
		n := stack[i]
		if n.IsFixed {
			continue // already carries its pre-assigned color
		}

		used := map[int]bool{}
		for other := range iterNeighbors(n) {
			on := g.nodes[other]
			for _, c := range on.Colors {
				used[c] = true
			}
		}

		candidates := append([]int(nil), target.Colors[n.Class]...)
		slices.SortFunc(candidates, func(a, b int) int {
			ag, bg := target.Global[a], target.Global[b]
			if ag != bg {
				if ag {
					return 1
				}
				return -1
			}
			return n.PreferredColors[b] - n.PreferredColors[a]
		})

		chosen := -1
		for _, c := range candidates {
			if !used[c] {
				chosen = c
				break
			}
		}
		if chosen == -1 {
			spilled = append(spilled, n.Range)
			n.spilled = true
			continue
		}
		n.Colors = []int{chosen}
	}
	return spilled
}

func iterNeighbors(n *Node) map[ir.RangeID]bool {
	out := make(map[ir.RangeID]bool, n.degree())
	n.Neighbors.Iter(func(rid ir.RangeID, _ struct{}) bool {
		out[rid] = true
		return false
	})
	return out
}

// SpillAndRewrite splits an uncolorable range into one per-use dummy
// spill range per occurrence, the same shape
// jit/cfg.BuildLiveRanges already gives constants-in-registers, so that
// the next Color round sees small local ranges trivial to color.
func SpillAndRewrite(fn *ir.Function, rid ir.RangeID) []ir.RangeID {
	r := fn.LiveRange(rid)
	var out []ir.RangeID

	for _, sp := range r.Starts {
		nrid := fn.NewLiveRange(r.Value)
		nr := fn.LiveRange(nrid)
		nr.IsSpillRange = true
		nr.AddTouchedBlock(sp.Block)
		nr.AddStart(sp.Block, sp.Insn)
		in := fn.Instruction(sp.Insn)
		if in.Dest == r.Value {
			in.DestRange = nrid
		}
		out = append(out, nrid)
	}
	for _, ep := range r.Ends {
		nrid := fn.NewLiveRange(r.Value)
		nr := fn.LiveRange(nrid)
		nr.IsSpillRange = true
		nr.AddTouchedBlock(ep.Block)
		nr.AddEnd(ep.Block, ep.Insn)
		in := fn.Instruction(ep.Insn)
		if in.Value1 == r.Value {
			in.Value1Range = nrid
		}
		if in.Value2 == r.Value {
			in.Value2Range = nrid
		}
		out = append(out, nrid)
	}
	return out
}
