package coloring

import (
	"github.com/dolthub/swiss"

	"github.com/mna/corejit/jit/ir"
)

// Node is one interference-graph vertex: a live range plus its adjacency
// set, coloring state, and spill metadata.
type Node struct {
	Range ir.RangeID
	Class RegClass

	// Neighbors is the interference-adjacency set, a swiss.Map keyed by
	// RangeID.
	Neighbors *swiss.Map[ir.RangeID, struct{}]

	PreferredColors map[int]int
	Colors          []int // assigned color(s) once Select succeeds; pre-populated for a fixed range

	IsFixed  bool
	IsDummy  bool // constant-in-register or spill-range placeholder, deprioritized for optimistic simplify
	CanBeMem bool // operand slot tolerates a memory operand, skipping the reload a spill would otherwise need

	SpillCost float64 // higher means a more attractive spill candidate

	onStack bool
	spilled bool
}

func newNode(rid ir.RangeID, class RegClass) *Node {
	return &Node{
		Range:           rid,
		Class:           class,
		Neighbors:       swiss.NewMap[ir.RangeID, struct{}](4),
		PreferredColors: make(map[int]int),
	}
}

func (n *Node) degree() int { return int(n.Neighbors.Count()) }

// Degree reports how many other ranges in the graph interfere with n.
func (n *Node) Degree() int { return n.degree() }

func (n *Node) addNeighbor(other ir.RangeID) { n.Neighbors.Put(other, struct{}{}) }

func (n *Node) isNeighbor(other ir.RangeID) bool {
	_, ok := n.Neighbors.Get(other)
	return ok
}

// Graph is the interference graph built by BuildGraph, keyed by RangeID.
type Graph struct {
	fn     *ir.Function
	matrix *CompatMatrix
	nodes  map[ir.RangeID]*Node
	order  []ir.RangeID // construction order, for deterministic iteration
}

// BuildGraph constructs the interference graph over ranges: two ranges
// become adjacent iff they are type-compatible (per matrix) and interfere
// (share a block in which both are simultaneously live; for two local
// ranges, instruction-accurate overlap; see interferes), plus the
// "dest interferes with value2" special case for non-commutative
// instructions.
func BuildGraph(fn *ir.Function, ranges []ir.RangeID, matrix *CompatMatrix) *Graph {
	g := &Graph{fn: fn, matrix: matrix, nodes: make(map[ir.RangeID]*Node, len(ranges))}

	for _, rid := range ranges {
		r := fn.LiveRange(rid)
		class := classOf(fn, r)
		n := newNode(rid, class)
		if r.IsFixed {
			n.IsFixed = true
			n.Colors = append([]int(nil), r.Colors...)
		}
		n.IsDummy = r.IsSpillRange
		n.SpillCost = spillCost(fn, r)
		g.nodes[rid] = n
		g.order = append(g.order, rid)
	}

	for i, a := range ranges {
		for _, b := range ranges[i+1:] {
			na, nb := g.nodes[a], g.nodes[b]
			if !matrix.Compatible(na.Class, nb.Class) {
				continue
			}
			if interferes(fn, fn.LiveRange(a), fn.LiveRange(b)) {
				g.addEdge(a, b)
			}
		}
	}

	addDestValue2Edges(fn, g)
	return g
}

func (g *Graph) addEdge(a, b ir.RangeID) {
	if a == b {
		return
	}
	g.nodes[a].addNeighbor(b)
	g.nodes[b].addNeighbor(a)
}

// Node returns the graph node for a range, or nil if it is not part of
// this graph.
func (g *Graph) Node(rid ir.RangeID) *Node { return g.nodes[rid] }

// Nodes returns every node in construction order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.order))
	for i, rid := range g.order {
		out[i] = g.nodes[rid]
	}
	return out
}

func classOf(fn *ir.Function, r *ir.LiveRange) RegClass {
	if r.Value == ir.NoValue {
		return ClassWord // fixed/dummy hardware-constraint ranges carry no value; treat as the default integer class
	}
	v := fn.Value(r.Value)
	return ClassForType(v.Type.Kind)
}

// spillCost is a simple span-over-uses metric: the number of blocks the
// range touches divided by its use count (starts plus ends), so a range
// that spans many blocks but is used rarely is the more attractive spill
// candidate: "spill cost" here means attractiveness to evict, not the
// cost paid to spill it.
func spillCost(fn *ir.Function, r *ir.LiveRange) float64 {
	if r.IsFixed {
		return -1 // fixed ranges are never spill candidates
	}
	uses := len(r.Starts) + len(r.Ends)
	if uses == 0 {
		uses = 1
	}
	return float64(len(r.TouchedBlocks)) / float64(uses)
}

// interferes reports whether two ranges conflict: ranges sharing no
// touched block never interfere; two single-block ranges use exact instruction
// extents; anything else (a range spanning multiple blocks) is treated
// conservatively as interfering wherever they share a block.
func interferes(fn *ir.Function, ra, rb *ir.LiveRange) bool {
	if ra.Value != ir.NoValue && ra.Value == rb.Value {
		return false
	}
	shared := false
	for _, blk := range ra.TouchedBlocks {
		if rb.Touches(blk) {
			shared = true
			break
		}
	}
	if !shared {
		return false
	}
	if isLocal(ra) && isLocal(rb) {
		aStart, aEnd := extent(ra)
		bStart, bEnd := extent(rb)
		return aStart <= bEnd && bStart <= aEnd
	}
	return true
}

func isLocal(r *ir.LiveRange) bool { return len(r.TouchedBlocks) <= 1 }

func extent(r *ir.LiveRange) (ir.InsnID, ir.InsnID) {
	var start, end ir.InsnID
	has := false
	for _, s := range r.Starts {
		if !has || s.Insn < start {
			start = s.Insn
		}
		if !has || s.Insn > end {
			end = s.Insn
		}
		has = true
	}
	for _, e := range r.Ends {
		if !has || e.Insn < start {
			start = e.Insn
		}
		if !has || e.Insn > end {
			end = e.Insn
		}
		has = true
	}
	return start, end
}

// addDestValue2Edges adds a dest-interferes-with-value2 edge for
// non-commutative ops: the destination register cannot
// reuse value2's register even when their computed extents would
// otherwise appear disjoint, because the result overwrites value2 before
// a non-commutative op could be re-expressed with swapped operands.
func addDestValue2Edges(fn *ir.Function, g *Graph) {
	fn.EachInstruction(func(_ ir.InsnID, in *ir.Instruction) {
		if in.Opcode.IsCommutative() {
			return
		}
		if in.DestRange == ir.NoRange || in.Value2Range == ir.NoRange {
			return
		}
		if _, ok := g.nodes[in.DestRange]; !ok {
			return
		}
		if _, ok := g.nodes[in.Value2Range]; !ok {
			return
		}
		g.addEdge(in.DestRange, in.Value2Range)
	})
}
